package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/esimrouter/internal/caption"
	"github.com/dmitrijs2005/esimrouter/internal/dedup"
	"github.com/dmitrijs2005/esimrouter/internal/layan"
	"github.com/dmitrijs2005/esimrouter/internal/logging"
	"github.com/dmitrijs2005/esimrouter/internal/metrics"
	"github.com/dmitrijs2005/esimrouter/internal/models"
	"github.com/dmitrijs2005/esimrouter/internal/validation"
)

// Issuer issues fresh eSIMs for a vendor package.
type Issuer interface {
	IssueBatch(ctx context.Context, pkg layan.Package, target int) ([]layan.ESIM, error)
}

// Fetcher downloads a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Captioner stamps donor-facing text onto an eSIM image.
type Captioner interface {
	RenderPNG(data []byte, c caption.Caption) ([]byte, error)
}

// RestockOptions tunes a restock run.
type RestockOptions struct {
	// Packages maps provider package names to vendor packages.
	Packages map[string]layan.Package
	// Amount is the number of eSIMs to issue per low provider.
	Amount  int
	Workers int
}

// RestockReport summarizes one restock run.
type RestockReport struct {
	Providers int
	Issued    int
	Failed    int
	Created   int
}

// Restock issues eSIMs from the vendor for every provider marked low on
// stock and adds them to inventory.
type Restock struct {
	store     Store
	issuer    Issuer
	fetcher   Fetcher
	captioner Captioner
	validator ImageValidator
	uploader  Uploader
	opts      RestockOptions
	log       logging.Logger
	now       func() time.Time
}

func NewRestock(store Store, is Issuer, f Fetcher, c Captioner, v ImageValidator, up Uploader, opts RestockOptions, log logging.Logger) *Restock {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Restock{
		store:     store,
		issuer:    is,
		fetcher:   f,
		captioner: c,
		validator: v,
		uploader:  up,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

func (j *Restock) Run(ctx context.Context, m *metrics.Run) (RestockReport, error) {
	var rep RestockReport

	provs, err := j.store.Providers.FetchAll(ctx)
	if err != nil {
		return rep, fmt.Errorf("fetch providers: %w", err)
	}
	stored, err := j.store.Assets.FetchAll(ctx)
	if err != nil {
		return rep, fmt.Errorf("fetch assets: %w", err)
	}
	known := knownFingerprints(stored, "")
	names := providerNames(provs)

	for _, p := range provs {
		if !p.NeedsRestock() {
			continue
		}
		log := j.log.With("provider", p.Name, "package", p.PackageName)
		pkg, ok := j.opts.Packages[p.PackageName]
		if !ok {
			log.Error(ctx, "restock: no vendor package configured")
			m.Error("package")
			continue
		}
		rep.Providers++

		esims, err := j.issuer.IssueBatch(ctx, pkg, j.opts.Amount)
		rep.Issued += len(esims)
		m.Issued(len(esims))
		if err != nil {
			// Stock what was issued before failing the run.
			log.Error(ctx, "restock: issuance stopped early", "issued", len(esims), "error", err)
			m.Error("issue")
		}

		cands := j.prepare(ctx, m, p, esims)
		rep.Failed += len(esims) - len(cands)

		batch := dedup.DedupeAgainst(cands, known)
		m.Duplicates(len(batch.Duplicates))
		created, serr := stock(ctx, j.uploader, j.store.Assets, batch.Kept, names, j.now())
		rep.Created += len(created)
		m.Kept(len(created))
		for _, a := range created {
			known[a.QRSHA] = dedup.Known{DonationID: a.DonationID, Contact: a.ContactEmail}
		}
		if serr != nil {
			m.Error("stock")
			return rep, serr
		}
		if err != nil {
			return rep, fmt.Errorf("issue %s: %w", p.Name, err)
		}
		log.Info(ctx, "restock: provider restocked", "issued", len(esims), "created", len(created))
	}

	j.log.Info(ctx, "restock: done", "providers", rep.Providers, "issued", rep.Issued,
		"failed", rep.Failed, "created", rep.Created)
	return rep, nil
}

// prepare fetches, captions and validates each issued eSIM concurrently.
// eSIMs that fail any step are logged and left out; the result keeps the
// issuance order.
func (j *Restock) prepare(ctx context.Context, m *metrics.Run, p models.Provider, esims []layan.ESIM) []models.Candidate {
	// The vendor reports the number; the image is not read for one.
	check := p
	check.Renewable = false

	slots := make([]*models.Candidate, len(esims))

	var g errgroup.Group
	g.SetLimit(j.opts.Workers)
	for i, e := range esims {
		g.Go(func() error {
			c, err := j.candidate(ctx, check, e)
			if err != nil {
				j.log.Error(ctx, "restock: eSIM not stocked", "provider", p.Name, "phone", e.PhoneNumber, "error", err)
				m.Error("prepare")
				return nil
			}
			slots[i] = &c
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.Candidate, 0, len(esims))
	for _, c := range slots {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

func (j *Restock) candidate(ctx context.Context, p models.Provider, e layan.ESIM) (models.Candidate, error) {
	raw, err := j.fetcher.Fetch(ctx, e.QRCodeURL)
	if err != nil {
		return models.Candidate{}, fmt.Errorf("fetch qr: %w", err)
	}
	img, err := j.captioner.RenderPNG(raw, caption.ForESIM(p.Networks, e.PhoneNumber, p.DataGB, p.DaysValid))
	if err != nil {
		return models.Candidate{}, fmt.Errorf("caption: %w", err)
	}
	verdict, c := j.validator.ValidateImage(ctx, img, p)
	if verdict != validation.Accepted {
		return models.Candidate{}, fmt.Errorf("captioned image rejected: %s", verdict)
	}
	c.PhoneNumber = e.PhoneNumber
	c.ImageURL = e.QRCodeURL
	return c, nil
}
