package assets

import (
	"context"

	"github.com/dmitrijs2005/esimrouter/internal/models"
)

type Repository interface {
	// FetchAll returns every stored asset in order id order.
	FetchAll(ctx context.Context) ([]models.Asset, error)
	// CreateBatch inserts assets and returns them with store-assigned ids.
	CreateBatch(ctx context.Context, assets []models.Asset) ([]models.Asset, error)
	// DeleteBatch removes assets by id.
	DeleteBatch(ctx context.Context, ids []string) error
}
