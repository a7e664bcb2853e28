package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/esimrouter/internal/blobstore"
	"github.com/dmitrijs2005/esimrouter/internal/caption"
	"github.com/dmitrijs2005/esimrouter/internal/config"
	"github.com/dmitrijs2005/esimrouter/internal/dropbox"
	"github.com/dmitrijs2005/esimrouter/internal/fetch"
	"github.com/dmitrijs2005/esimrouter/internal/layan"
	"github.com/dmitrijs2005/esimrouter/internal/metrics"
	"github.com/dmitrijs2005/esimrouter/internal/ocr/tesseract"
	"github.com/dmitrijs2005/esimrouter/internal/phone"
	"github.com/dmitrijs2005/esimrouter/internal/pipeline"
	"github.com/dmitrijs2005/esimrouter/internal/qr"
	"github.com/dmitrijs2005/esimrouter/internal/queue"
	"github.com/dmitrijs2005/esimrouter/internal/validation"
)

var (
	errNoDropboxToken = errors.New("router: dropbox access token is not configured")
	errNoParamStore   = errors.New("refresh-dropbox: parameter names are not configured")
)

var newUploader = func(ctx context.Context, c *config.Config) (pipeline.Uploader, error) {
	return blobstore.New(ctx, blobstore.Options{
		Region:   c.S3Region,
		User:     c.S3RootUser,
		Password: c.S3RootPassword,
		Endpoint: c.S3BaseEndpoint,
		Bucket:   c.S3Bucket,
		Expiry:   c.S3PresignExpiry,
	})
}

func (app *App) fetcher() *fetch.Client {
	return fetch.NewClient(app.config.FetchTimeout, app.config.FetchRetries, app.logger)
}

// validator builds the image validator. The returned func closes the OCR
// engine.
func (app *App) validator() (*validation.Validator, func() error) {
	rec := tesseract.New()
	v := validation.NewValidator(
		app.fetcher(),
		qr.NewDecoder(app.logger),
		phone.NewExtractor(rec, app.logger),
		app.logger,
	)
	return v, rec.Close
}

func (app *App) notifier(ctx context.Context) (pipeline.Notifier, error) {
	if app.config.SQSQueueURL == "" {
		return queue.Discard{Log: app.logger}, nil
	}
	return queue.NewSQSNotifier(ctx, app.config.S3Region, app.config.SQSQueueURL, app.logger)
}

// Ingest validates pending donations and stocks their eSIMs.
func (app *App) Ingest(ctx context.Context) error {
	return app.runner().Run(ctx, pipeline.JobIngest, func(ctx context.Context, m *metrics.Run) error {
		up, err := newUploader(ctx, app.config)
		if err != nil {
			return err
		}
		n, err := app.notifier(ctx)
		if err != nil {
			return err
		}
		v, closeOCR := app.validator()
		defer closeOCR()

		_, err = pipeline.NewIngest(app.store, v, up, n, app.config.DefaultContact, app.logger).Run(ctx, m)
		return err
	})
}

// Dedupe resolves duplicate fingerprints across stored inventory.
func (app *App) Dedupe(ctx context.Context) error {
	return app.runner().Run(ctx, pipeline.JobDedupe, func(ctx context.Context, m *metrics.Run) error {
		n, err := app.notifier(ctx)
		if err != nil {
			return err
		}
		_, err = pipeline.NewDedupe(app.store, n, app.config.DefaultContact, app.logger).Run(ctx, m)
		return err
	})
}

// Router moves staged Dropbox files into inventory.
func (app *App) Router(ctx context.Context) error {
	if app.config.DropboxToken == "" {
		return errNoDropboxToken
	}
	return app.runner().Run(ctx, pipeline.JobRouter, func(ctx context.Context, m *metrics.Run) error {
		up, err := newUploader(ctx, app.config)
		if err != nil {
			return err
		}
		v, closeOCR := app.validator()
		defer closeOCR()

		st := dropbox.New(app.config.DropboxToken, app.logger)
		_, err = pipeline.NewRouter(app.store, st, v, up, app.config.DropboxRoot, app.logger).Run(ctx, m)
		return err
	})
}

// Restock issues new eSIMs for providers that run low.
func (app *App) Restock(ctx context.Context) error {
	return app.runner().Run(ctx, pipeline.JobRestock, func(ctx context.Context, m *metrics.Run) error {
		c := app.config
		up, err := newUploader(ctx, c)
		if err != nil {
			return err
		}
		r, err := caption.NewRenderer(c.FontPath)
		if err != nil {
			return err
		}
		v, closeOCR := app.validator()
		defer closeOCR()

		var tokens layan.TokenStore
		if app.params != nil {
			tokens = app.params
		}
		issuer := layan.New(layan.Options{
			BaseURL:    c.LayanURL,
			Username:   c.LayanUsername,
			Password:   c.LayanPassword,
			TokenParam: c.LayanTokenParam,
			Customer:   c.LayanCustomerName,
			Workers:    c.IssueWorkers,
		}, tokens, app.logger)

		opts := pipeline.RestockOptions{
			Packages: layanPackages(c.LayanPackages),
			Amount:   c.RestockAmount,
			Workers:  c.IssueWorkers,
		}
		_, err = pipeline.NewRestock(app.store, issuer, app.fetcher(), r, v, up, opts, app.logger).Run(ctx, m)
		return err
	})
}

// RefreshDropbox renews the Dropbox access token kept in SSM.
func (app *App) RefreshDropbox(ctx context.Context) error {
	if app.params == nil {
		return errNoParamStore
	}
	c := app.config
	hc := &http.Client{Timeout: 30 * time.Second}
	refresh := func(ctx context.Context, a dropbox.App) (string, error) {
		return dropbox.RefreshAccessToken(ctx, hc, dropbox.TokenURL, a)
	}
	names := pipeline.RefreshParams{
		AppKey:       c.DropboxAppKeyParam,
		AppSecret:    c.DropboxAppSecretParam,
		RefreshToken: c.DropboxRefreshTokenParam,
		AccessToken:  c.DropboxTokenParam,
	}
	return app.runner().Run(ctx, pipeline.JobRefreshDropbox, func(ctx context.Context, _ *metrics.Run) error {
		return pipeline.NewRefreshDropbox(app.params, refresh, names, app.logger).Run(ctx)
	})
}

func layanPackages(in map[string]config.LayanPackage) map[string]layan.Package {
	out := make(map[string]layan.Package, len(in))
	for name, p := range in {
		out[name] = layan.Package{ID: p.ID, Price: p.Price}
	}
	return out
}
