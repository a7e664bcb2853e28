package donations

import (
	"context"

	at "github.com/mehanizm/airtable"

	"github.com/dmitrijs2005/esimrouter/internal/airtable"
	"github.com/dmitrijs2005/esimrouter/internal/models"
)

// Airtable field names of the donations table.
const (
	FieldProvider           = "eSIM Provider"
	FieldEmail              = "Email"
	FieldQRCodes            = "QR Codes"
	FieldIngested           = "Ingested?"
	FieldRejected           = "Rejected?"
	FieldInvalidType        = "Is Invalid Type"
	FieldMissingQR          = "Missing QR Code"
	FieldProtocolMismatch   = "Protocol Mismatch"
	FieldProviderMismatch   = "Provider Mismatch"
	FieldMissingPhoneNumber = "Missing Phone Number"
	FieldDuplicate          = "Is Duplicate"
	FieldCleanEmail         = "Clean Email"
	FieldOriginal           = "Original Donation"
	FieldSendErrorEmail     = "Send Error Email"
)

// AirtableRepository stores donations in an Airtable table. The view is
// expected to hide donations that were already ingested; FetchPending
// filters them out as well.
type AirtableRepository struct {
	table airtable.Table
	view  string
}

func NewAirtableRepository(t airtable.Table, view string) *AirtableRepository {
	return &AirtableRepository{table: t, view: view}
}

func (r *AirtableRepository) FetchPending(ctx context.Context) ([]models.Donation, error) {
	recs, err := airtable.All(ctx, r.table, r.view)
	if err != nil {
		return nil, err
	}
	var out []models.Donation
	for _, rec := range recs {
		f := airtable.Fields(rec.Fields)
		if f.Bool(FieldIngested) {
			continue
		}
		d := models.Donation{
			ID:           rec.ID,
			ProviderID:   f.First(FieldProvider),
			ContactEmail: f.String(FieldEmail),
		}
		for _, a := range f.Attachments(FieldQRCodes) {
			d.Attachments = append(d.Attachments, models.Attachment{ID: a.ID, Type: a.Type, Filename: a.Filename, URL: a.URL})
		}
		out = append(out, d)
	}
	return out, nil
}

// SaveStatuses overwrites every outcome field of each donation.
func (r *AirtableRepository) SaveStatuses(ctx context.Context, statuses []models.DonationStatus) error {
	return airtable.Chunks(statuses, func(batch []models.DonationStatus) error {
		recs := make([]*at.Record, len(batch))
		for i, s := range batch {
			f := s.Flags
			recs[i] = &at.Record{ID: s.DonationID, Fields: map[string]any{
				FieldIngested:           f.Ingested,
				FieldRejected:           f.Rejected,
				FieldInvalidType:        f.InvalidType,
				FieldMissingQR:          f.MissingQR,
				FieldProtocolMismatch:   f.ProtocolMismatch,
				FieldProviderMismatch:   f.ProviderMismatch,
				FieldMissingPhoneNumber: f.MissingPhoneNumber,
				FieldDuplicate:          f.Duplicate,
				FieldCleanEmail:         !f.DifferentEmail,
				FieldOriginal:           airtable.Link(s.Original.Resolve(s.DonationID)),
				FieldSendErrorEmail:     f.Rejected || f.Duplicate,
			}}
		}
		_, err := r.table.Update(ctx, recs)
		return err
	})
}

// MarkDuplicates sets the duplicate flag. Clean Email and Original
// Donation are only written when the update carries a value, so earlier
// marks are kept.
func (r *AirtableRepository) MarkDuplicates(ctx context.Context, updates []models.DuplicateUpdate) error {
	return airtable.Chunks(updates, func(batch []models.DuplicateUpdate) error {
		recs := make([]*at.Record, len(batch))
		for i, u := range batch {
			fields := map[string]any{
				FieldDuplicate:      true,
				FieldSendErrorEmail: true,
			}
			if u.DifferentEmail {
				fields[FieldCleanEmail] = false
			}
			if id := u.Original.Resolve(u.DonationID); id != "" {
				fields[FieldOriginal] = airtable.Link(id)
			}
			recs[i] = &at.Record{ID: u.DonationID, Fields: fields}
		}
		_, err := r.table.Update(ctx, recs)
		return err
	})
}
