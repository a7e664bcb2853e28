package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/esimrouter/internal/dedup"
	"github.com/dmitrijs2005/esimrouter/internal/dropbox"
	"github.com/dmitrijs2005/esimrouter/internal/logging"
	"github.com/dmitrijs2005/esimrouter/internal/metrics"
	"github.com/dmitrijs2005/esimrouter/internal/models"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/assets"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/providers"
	"github.com/dmitrijs2005/esimrouter/internal/validation"
)

// Stager lists, downloads and deletes staged files.
type Stager interface {
	List(ctx context.Context, folder string) ([]dropbox.File, error)
	Download(ctx context.Context, path string) ([]byte, error)
	DeleteBatch(ctx context.Context, paths []string) error
}

// RouterReport summarizes one router run.
type RouterReport struct {
	Files      int
	Rejected   int
	Duplicates int
	Created    int
	Deleted    int
}

// Router moves eSIM images staged under <root>/<provider name> into
// inventory. Accepted and duplicate files are deleted from staging once
// inventory is written; rejected files stay for a human to inspect.
type Router struct {
	providers providers.Repository
	assets    assets.Repository
	stager    Stager
	validator ImageValidator
	uploader  Uploader
	root      string
	log       logging.Logger
	now       func() time.Time
}

func NewRouter(store Store, st Stager, v ImageValidator, up Uploader, root string, log logging.Logger) *Router {
	return &Router{
		providers: store.Providers,
		assets:    store.Assets,
		stager:    st,
		validator: v,
		uploader:  up,
		root:      root,
		log:       log,
		now:       time.Now,
	}
}

func (j *Router) Run(ctx context.Context, m *metrics.Run) (RouterReport, error) {
	var rep RouterReport

	provs, err := j.providers.FetchAll(ctx)
	if err != nil {
		return rep, fmt.Errorf("fetch providers: %w", err)
	}
	stored, err := j.assets.FetchAll(ctx)
	if err != nil {
		return rep, fmt.Errorf("fetch assets: %w", err)
	}
	known := knownFingerprints(stored, "")
	names := providerNames(provs)

	for _, p := range provs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := j.routeProvider(ctx, m, p, known, names, &rep); err != nil {
			return rep, err
		}
	}

	j.log.Info(ctx, "router: done", "files", rep.Files, "rejected", rep.Rejected,
		"duplicates", rep.Duplicates, "created", rep.Created, "deleted", rep.Deleted)
	return rep, nil
}

func (j *Router) routeProvider(ctx context.Context, m *metrics.Run, p models.Provider, known map[string]dedup.Known, names map[string]string, rep *RouterReport) error {
	folder := dropbox.ProviderFolder(j.root, p.Name)
	log := j.log.With("provider", p.Name, "folder", folder)

	files, err := j.stager.List(ctx, folder)
	if err != nil {
		m.Error("stage")
		return fmt.Errorf("list %s: %w", folder, err)
	}
	if len(files) == 0 {
		return nil
	}

	var (
		cands []models.Candidate
		done  []string
	)
	for _, f := range files {
		rep.Files++
		data, err := j.stager.Download(ctx, f.Path)
		if err != nil {
			log.Error(ctx, "router: download failed", "path", f.Path, "error", err)
			m.Error("stage")
			continue
		}
		verdict, c := j.validator.ValidateImage(ctx, data, p)
		if verdict != validation.Accepted {
			log.Warn(ctx, "router: file rejected", "path", f.Path, "verdict", verdict.String())
			rep.Rejected++
			continue
		}
		c.Filename = f.Name
		c.ImageURL = f.Path
		cands = append(cands, c)
	}

	batch := dedup.DedupeAgainst(cands, known)
	for _, c := range cands {
		done = append(done, c.ImageURL)
	}
	rep.Duplicates += len(cands) - len(batch.Kept)
	m.Duplicates(len(cands) - len(batch.Kept))

	created, err := stock(ctx, j.uploader, j.assets, batch.Kept, names, j.now())
	rep.Created += len(created)
	m.Kept(len(created))
	if err != nil {
		m.Error("stock")
		return err
	}
	for _, a := range created {
		known[a.QRSHA] = dedup.Known{DonationID: a.DonationID, Contact: a.ContactEmail}
	}

	if len(done) == 0 {
		return nil
	}
	if err := j.stager.DeleteBatch(ctx, done); err != nil {
		m.Error("stage")
		return fmt.Errorf("delete staged files: %w", err)
	}
	rep.Deleted += len(done)
	log.Info(ctx, "router: provider routed", "files", len(files), "created", len(created), "deleted", len(done))
	return nil
}
