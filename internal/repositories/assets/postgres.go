package assets

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/esimrouter/internal/dbx"
	"github.com/dmitrijs2005/esimrouter/internal/models"
)

// PostgresRepository stores inventory assets over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FetchAll(ctx context.Context) ([]models.Asset, error) {
	query := `
		SELECT a.id, a.order_id, a.provider_id, a.donation_id, a.qr_sha, a.phone_number,
			a.image_url, a.storage_key, COALESCE(d.contact_email, a.contact_email), a.created_at
		FROM assets a
		LEFT JOIN donations d ON d.id = a.donation_id
		ORDER BY a.order_id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Asset
	for rows.Next() {
		var (
			a        models.Asset
			donation sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.OrderID, &a.ProviderID, &donation, &a.QRSHA, &a.PhoneNumber,
			&a.ImageURL, &a.StorageKey, &a.ContactEmail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		a.DonationID = donation.String
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) CreateBatch(ctx context.Context, assets []models.Asset) ([]models.Asset, error) {
	query := `
		INSERT INTO assets (provider_id, donation_id, qr_sha, phone_number, image_url, storage_key, contact_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, order_id, created_at
	`
	out := make([]models.Asset, 0, len(assets))
	for _, a := range assets {
		donation := sql.NullString{String: a.DonationID, Valid: a.DonationID != ""}
		err := r.db.QueryRowContext(ctx, query,
			a.ProviderID, donation, a.QRSHA, a.PhoneNumber, a.ImageURL, a.StorageKey, a.ContactEmail,
		).Scan(&a.ID, &a.OrderID, &a.CreatedAt)
		if err != nil {
			return out, fmt.Errorf("db error: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

// DeleteBatch removes each id; ids already gone are not an error.
func (r *PostgresRepository) DeleteBatch(ctx context.Context, ids []string) error {
	query := `DELETE FROM assets WHERE id = $1`
	for _, id := range ids {
		if _, err := r.db.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}
