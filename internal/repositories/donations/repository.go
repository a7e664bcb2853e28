package donations

import (
	"context"

	"github.com/dmitrijs2005/esimrouter/internal/models"
)

type Repository interface {
	// FetchPending returns donations not yet ingested, with attachments.
	FetchPending(ctx context.Context) ([]models.Donation, error)
	// SaveStatuses persists validation outcomes.
	SaveStatuses(ctx context.Context, statuses []models.DonationStatus) error
	// MarkDuplicates flags donations found to duplicate stored inventory.
	MarkDuplicates(ctx context.Context, updates []models.DuplicateUpdate) error
}
