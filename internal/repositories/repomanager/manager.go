package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/esimrouter/internal/dbx"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/assets"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/donations"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/providers"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Providers(db dbx.DBTX) providers.Repository
	Donations(db dbx.DBTX) donations.Repository
	Assets(db dbx.DBTX) assets.Repository
}
