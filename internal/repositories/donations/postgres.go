package donations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/esimrouter/internal/dbx"
	"github.com/dmitrijs2005/esimrouter/internal/models"
)

// PostgresRepository stores donations over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FetchPending returns donations with ingested = false in creation order,
// each with its attachments in position order.
func (r *PostgresRepository) FetchPending(ctx context.Context) ([]models.Donation, error) {
	query := `
		SELECT d.id, d.provider_id, d.contact_email, a.id, a.type, a.filename, a.url
		FROM donations d
		LEFT JOIN attachments a ON a.donation_id = d.id
		WHERE NOT d.ingested
		ORDER BY d.created_at, d.id, a.position, a.id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Donation
	for rows.Next() {
		var (
			d                        models.Donation
			attID, typ, name, rawURL sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.ProviderID, &d.ContactEmail, &attID, &typ, &name, &rawURL); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		if n := len(result); n == 0 || result[n-1].ID != d.ID {
			result = append(result, d)
		}
		if attID.Valid {
			last := &result[len(result)-1]
			last.Attachments = append(last.Attachments, models.Attachment{
				ID: attID.String, Type: typ.String, Filename: name.String, URL: rawURL.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

// SaveStatuses overwrites the outcome flags of each donation. Exactly one
// row must match each status.
func (r *PostgresRepository) SaveStatuses(ctx context.Context, statuses []models.DonationStatus) error {
	query := `
		UPDATE donations SET
			ingested = $2, rejected = $3, invalid_type = $4, missing_qr = $5,
			protocol_mismatch = $6, provider_mismatch = $7, missing_phone_number = $8,
			is_duplicate = $9, different_email = $10, original_donation_id = $11,
			updated_at = now()
		WHERE id = $1
	`
	for _, s := range statuses {
		f := s.Flags
		res, err := r.db.ExecContext(ctx, query, s.DonationID,
			f.Ingested, f.Rejected, f.InvalidType, f.MissingQR,
			f.ProtocolMismatch, f.ProviderMismatch, f.MissingPhoneNumber,
			f.Duplicate, f.DifferentEmail, nullable(s.Original.Resolve(s.DonationID)))
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if err := expectOne(res, s.DonationID); err != nil {
			return err
		}
	}
	return nil
}

// MarkDuplicates sets is_duplicate, ORs different_email and links the
// original when one is known.
func (r *PostgresRepository) MarkDuplicates(ctx context.Context, updates []models.DuplicateUpdate) error {
	query := `
		UPDATE donations SET
			is_duplicate = TRUE,
			different_email = different_email OR $2,
			original_donation_id = COALESCE($3, original_donation_id),
			updated_at = now()
		WHERE id = $1
	`
	for _, u := range updates {
		res, err := r.db.ExecContext(ctx, query, u.DonationID, u.DifferentEmail, nullable(u.Original.Resolve(u.DonationID)))
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if err := expectOne(res, u.DonationID); err != nil {
			return err
		}
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("donation %s: unexpected rows affected: %d", id, n)
	}
	return nil
}
