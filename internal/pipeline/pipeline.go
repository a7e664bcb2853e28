// Package pipeline drives the batch jobs: ingesting donations, resolving
// duplicates across inventory, routing staged files into inventory and
// restocking providers that run low.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/esimrouter/internal/locks"
	"github.com/dmitrijs2005/esimrouter/internal/logging"
	"github.com/dmitrijs2005/esimrouter/internal/metrics"
	"github.com/dmitrijs2005/esimrouter/internal/models"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/assets"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/donations"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/providers"
	"github.com/dmitrijs2005/esimrouter/internal/validation"
)

// Job names, also used as lock names.
const (
	JobIngest         = "ingest"
	JobDedupe         = "dedupe"
	JobRouter         = "router"
	JobRestock        = "restock"
	JobRefreshDropbox = "refresh-dropbox"
)

// Store bundles the record-store repositories of one backend.
type Store struct {
	Providers providers.Repository
	Donations donations.Repository
	Assets    assets.Repository
}

// Uploader stores image bytes and returns a link to them.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
}

// Notifier delivers donor notices.
type Notifier interface {
	Notify(ctx context.Context, notices []models.Notice) error
}

// ImageValidator checks already fetched image bytes against a provider.
type ImageValidator interface {
	ValidateImage(ctx context.Context, data []byte, p models.Provider) (validation.Verdict, models.Candidate)
}

// DonationValidator checks every attachment of a donation.
type DonationValidator interface {
	Validate(ctx context.Context, d models.Donation, p models.Provider) (validation.Result, error)
}

// Runner wraps a job body with the run lock and per-run metrics.
type Runner struct {
	Locker  locks.Locker
	Log     logging.Logger
	PushURL string
}

// Run holds the lock named job while fn runs and releases it whether fn
// succeeds or not. Metrics are pushed after the lock is released.
func (r Runner) Run(ctx context.Context, job string, fn func(ctx context.Context, m *metrics.Run) error) (err error) {
	log := r.Log.With("job", job)
	start := time.Now()
	m := metrics.NewRun(job)

	locker := r.Locker
	if locker == nil {
		locker = locks.Nop{}
	}
	release, err := locker.Acquire(ctx, job)
	if err != nil {
		log.Warn(ctx, "run not started", "error", err)
		return err
	}

	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			log.Error(ctx, "failed to release run lock", "error", rerr)
			if err == nil {
				err = fmt.Errorf("release lock: %w", rerr)
			}
		}
		m.Finish(start, err)
		if perr := m.Push(context.WithoutCancel(ctx), r.PushURL); perr != nil {
			log.Warn(ctx, "metrics not pushed", "error", perr)
		}
		if err != nil {
			log.Error(ctx, "run failed", "error", err, "duration", time.Since(start).String())
		} else {
			log.Info(ctx, "run finished", "duration", time.Since(start).String())
		}
	}()

	log.Info(ctx, "run started")
	return fn(ctx, m)
}

func providerIndex(ps []models.Provider) map[string]models.Provider {
	idx := make(map[string]models.Provider, len(ps))
	for _, p := range ps {
		idx[p.ID] = p
	}
	return idx
}
