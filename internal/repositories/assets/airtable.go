package assets

import (
	"context"
	"fmt"
	"path"
	"time"

	at "github.com/mehanizm/airtable"

	"github.com/dmitrijs2005/esimrouter/internal/airtable"
	"github.com/dmitrijs2005/esimrouter/internal/models"
)

// Airtable field names of the inventory table.
const (
	FieldOrderID     = "ID"
	FieldProvider    = "eSIM Provider"
	FieldQRCode      = "QR Code"
	FieldQRSHA       = "QR SHA"
	FieldDonation    = "Donation Record"
	FieldPhoneNumber = "eSIM Phone Number"
	FieldStorageKey  = "Storage Key"
	FieldImageURL    = "Image URL"
)

// FieldContactEmail is a lookup of the linked donation's email.
const FieldContactEmail = "Donor Email"

// AirtableRepository stores inventory assets in an Airtable table whose
// ID field is an autonumber.
type AirtableRepository struct {
	table airtable.Table
	view  string
}

func NewAirtableRepository(t airtable.Table, view string) *AirtableRepository {
	return &AirtableRepository{table: t, view: view}
}

func (r *AirtableRepository) FetchAll(ctx context.Context) ([]models.Asset, error) {
	recs, err := airtable.All(ctx, r.table, r.view)
	if err != nil {
		return nil, err
	}
	out := make([]models.Asset, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}

// CreateBatch adds assets ten at a time. On failure the assets created by
// earlier batches are returned with the error.
func (r *AirtableRepository) CreateBatch(ctx context.Context, assets []models.Asset) ([]models.Asset, error) {
	out := make([]models.Asset, 0, len(assets))
	err := airtable.Chunks(assets, func(batch []models.Asset) error {
		recs := make([]*at.Record, len(batch))
		for i, a := range batch {
			recs[i] = &at.Record{Fields: toFields(a)}
		}
		created, err := r.table.Create(ctx, recs)
		if err != nil {
			return err
		}
		if len(created) != len(batch) {
			return fmt.Errorf("airtable create: sent %d records, got %d back", len(batch), len(created))
		}
		for i, rec := range created {
			a := batch[i]
			a.ID = rec.ID
			a.OrderID = airtable.Fields(rec.Fields).Int(FieldOrderID)
			a.CreatedAt = createdAt(rec)
			out = append(out, a)
		}
		return nil
	})
	return out, err
}

func (r *AirtableRepository) DeleteBatch(ctx context.Context, ids []string) error {
	return airtable.Chunks(ids, func(batch []string) error {
		return r.table.Delete(ctx, batch)
	})
}

func toFields(a models.Asset) map[string]any {
	fields := map[string]any{
		FieldQRSHA:      a.QRSHA,
		FieldStorageKey: a.StorageKey,
		FieldImageURL:   a.ImageURL,
	}
	if a.ImageURL != "" {
		fields[FieldQRCode] = airtable.AttachmentURL(a.ImageURL, path.Base(a.StorageKey))
	}
	if a.PhoneNumber != "" {
		fields[FieldPhoneNumber] = a.PhoneNumber
	}
	if a.ProviderID != "" {
		fields[FieldProvider] = airtable.Link(a.ProviderID)
	}
	if a.DonationID != "" {
		fields[FieldDonation] = airtable.Link(a.DonationID)
	}
	return fields
}

func fromRecord(rec *at.Record) models.Asset {
	f := airtable.Fields(rec.Fields)
	a := models.Asset{
		ID:           rec.ID,
		OrderID:      f.Int(FieldOrderID),
		ProviderID:   f.First(FieldProvider),
		DonationID:   f.First(FieldDonation),
		QRSHA:        f.String(FieldQRSHA),
		PhoneNumber:  f.String(FieldPhoneNumber),
		ImageURL:     f.String(FieldImageURL),
		StorageKey:   f.String(FieldStorageKey),
		ContactEmail: f.String(FieldContactEmail),
		CreatedAt:    createdAt(rec),
	}
	if a.ImageURL == "" {
		if atts := f.Attachments(FieldQRCode); len(atts) > 0 {
			a.ImageURL = atts[0].URL
		}
	}
	return a
}

func createdAt(rec *at.Record) time.Time {
	t, _ := time.Parse(time.RFC3339, rec.CreatedTime)
	return t
}
