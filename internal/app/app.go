// Package app wires configuration into the pipeline jobs. Each job binary
// builds an App, picks one job and serves it either once from the command
// line or as an AWS Lambda handler.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/dmitrijs2005/esimrouter/internal/airtable"
	"github.com/dmitrijs2005/esimrouter/internal/config"
	"github.com/dmitrijs2005/esimrouter/internal/locks"
	"github.com/dmitrijs2005/esimrouter/internal/logging"
	"github.com/dmitrijs2005/esimrouter/internal/pipeline"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/assets"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/donations"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/providers"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/repomanager"
	"github.com/dmitrijs2005/esimrouter/internal/secrets"
)

// Job is one runnable pipeline job.
type Job func(ctx context.Context) error

var (
	openDB = func(dsn string) (*sql.DB, error) { return sql.Open("pgx", dsn) }

	newParamStore = func(ctx context.Context, region string) (pipeline.ParamStore, error) {
		return secrets.New(ctx, region)
	}
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	store   pipeline.Store
	locker  locks.Locker
	params  pipeline.ParamStore
	closers []func() error
}

// NewApp resolves secrets, opens the configured record store and prepares
// the run lock.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}

	if needsParams(c) {
		ps, err := newParamStore(ctx, c.S3Region)
		if err != nil {
			return nil, fmt.Errorf("secrets init error: %w", err)
		}
		app.params = ps
		if err := c.ResolveSecrets(ctx, ps); err != nil {
			return nil, err
		}
	}

	if err := app.openStore(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	if !c.LockEnabled {
		app.locker = locks.Nop{}
	}
	return app, nil
}

func needsParams(c *config.Config) bool {
	for _, p := range []string{
		c.AirtableAPIKeyParam,
		c.DropboxTokenParam,
		c.DropboxAppKeyParam,
		c.DropboxAppSecretParam,
		c.DropboxRefreshTokenParam,
		c.LayanUsernameParam,
		c.LayanPasswordParam,
		c.LayanTokenParam,
	} {
		if p != "" {
			return true
		}
	}
	return false
}

func (app *App) openStore(ctx context.Context) error {
	c := app.config
	switch c.Store {
	case config.StorePostgres:
		db, err := openDB(c.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("db init error: %w", err)
		}
		app.closers = append(app.closers, db.Close)

		rm := repomanager.NewPostgresRepositoryManager()
		if err := rm.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("db migrations error: %w", err)
		}
		app.store = pipeline.Store{
			Providers: rm.Providers(db),
			Donations: rm.Transactional(db),
			Assets:    rm.Assets(db),
		}
		app.locker = locks.NewAdvisory(db)

	case config.StoreAirtable:
		client := airtable.NewClient(c.AirtableAPIKey, c.AirtableBaseID)
		app.store = pipeline.Store{
			Providers: providers.NewAirtableRepository(client.Table(c.AirtableProvidersTable), c.AirtableView),
			Donations: donations.NewAirtableRepository(client.Table(c.AirtableDonationsTable), c.AirtableView),
			Assets:    assets.NewAirtableRepository(client.Table(c.AirtableInventoryTable), c.AirtableView),
		}
		// Airtable has no lock primitive.
		app.locker = locks.Nop{}

	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	return nil
}

func (app *App) runner() pipeline.Runner {
	return pipeline.Runner{Locker: app.locker, Log: app.logger, PushURL: app.config.PushgatewayURL}
}

// Close releases every resource opened by NewApp and the jobs.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i]())
	}
	app.closers = nil
	return errors.Join(errs...)
}

// Serve runs job under the Lambda runtime when started by it, and once
// otherwise. A one-off run is cancelled by SIGINT or SIGTERM.
func (app *App) Serve(ctx context.Context, job Job) error {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		app.logger.Info(ctx, "starting lambda handler")
		lambda.Start(func(ctx context.Context) error { return job(ctx) })
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return job(ctx)
}
