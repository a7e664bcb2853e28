// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/esimrouter/internal/dbx"
	"github.com/dmitrijs2005/esimrouter/internal/migrations"
	"github.com/dmitrijs2005/esimrouter/internal/models"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/assets"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/donations"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/providers"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Providers(db dbx.DBTX) providers.Repository {
	return providers.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Donations(db dbx.DBTX) donations.Repository {
	return donations.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Assets(db dbx.DBTX) assets.Repository {
	return assets.NewPostgresRepository(db)
}

// Transactional returns a donations.Repository whose writes each run in
// their own transaction, so a batch of status updates lands all or nothing.
func (m *PostgresRepositoryManager) Transactional(db *sql.DB) donations.Repository {
	return &txDonations{db: db, m: m}
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

type txDonations struct {
	db *sql.DB
	m  *PostgresRepositoryManager
}

func (r *txDonations) FetchPending(ctx context.Context) ([]models.Donation, error) {
	return r.m.Donations(r.db).FetchPending(ctx)
}

func (r *txDonations) SaveStatuses(ctx context.Context, statuses []models.DonationStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return r.m.Donations(tx).SaveStatuses(ctx, statuses)
	})
}

func (r *txDonations) MarkDuplicates(ctx context.Context, updates []models.DuplicateUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return r.m.Donations(tx).MarkDuplicates(ctx, updates)
	})
}
