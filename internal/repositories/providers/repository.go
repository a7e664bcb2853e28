package providers

import (
	"context"

	"github.com/dmitrijs2005/esimrouter/internal/models"
)

type Repository interface {
	FetchAll(ctx context.Context) ([]models.Provider, error)
}
