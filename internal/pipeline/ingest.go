package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/esimrouter/internal/common"
	"github.com/dmitrijs2005/esimrouter/internal/dedup"
	"github.com/dmitrijs2005/esimrouter/internal/logging"
	"github.com/dmitrijs2005/esimrouter/internal/metrics"
	"github.com/dmitrijs2005/esimrouter/internal/models"
	"github.com/dmitrijs2005/esimrouter/internal/validation"
)

// IngestReport summarizes one ingest run.
type IngestReport struct {
	Donations  int
	Skipped    int
	Rejected   int
	Duplicates int
	Created    int

	// AlreadyStocked counts candidates an earlier, interrupted run stocked.
	AlreadyStocked int
}

// Ingest validates pending donations, stocks their new eSIMs and records
// every donation's outcome.
type Ingest struct {
	store          Store
	validator      DonationValidator
	uploader       Uploader
	notifier       Notifier
	defaultContact string
	log            logging.Logger
	now            func() time.Time
}

func NewIngest(store Store, v DonationValidator, up Uploader, n Notifier, defaultContact string, log logging.Logger) *Ingest {
	return &Ingest{
		store:          store,
		validator:      v,
		uploader:       up,
		notifier:       n,
		defaultContact: defaultContact,
		log:            log,
		now:            time.Now,
	}
}

// Run processes every pending donation once. A donation whose images
// cannot be fetched, or whose provider is unknown, is logged and left
// pending for the next run. Store failures abort the run.
func (j *Ingest) Run(ctx context.Context, m *metrics.Run) (IngestReport, error) {
	var rep IngestReport

	provs, err := j.store.Providers.FetchAll(ctx)
	if err != nil {
		return rep, fmt.Errorf("fetch providers: %w", err)
	}
	pending, err := j.store.Donations.FetchPending(ctx)
	if err != nil {
		return rep, fmt.Errorf("fetch donations: %w", err)
	}
	stored, err := j.store.Assets.FetchAll(ctx)
	if err != nil {
		return rep, fmt.Errorf("fetch assets: %w", err)
	}
	j.log.Info(ctx, "ingest: loaded", "providers", len(provs), "pending", len(pending), "assets", len(stored))

	byID := providerIndex(provs)
	var (
		results []validation.Result
		cands   []models.Candidate
	)
	for _, d := range pending {
		p, ok := byID[d.ProviderID]
		if !ok {
			j.log.Error(ctx, "ingest: skipping donation", "donation_id", d.ID, "error",
				fmt.Errorf("%w: %q", common.ErrProviderNotFound, d.ProviderID))
			m.Error("provider")
			rep.Skipped++
			continue
		}
		res, err := j.validator.Validate(ctx, d, p)
		if err != nil {
			j.log.Error(ctx, "ingest: skipping donation", "donation_id", d.ID, "error", err)
			m.Error("fetch")
			rep.Skipped++
			continue
		}
		results = append(results, res)
		cands = append(cands, res.Candidates...)
	}

	fresh, stocked := alreadyStocked(cands, stored)
	rep.AlreadyStocked = stocked
	if stocked > 0 {
		j.log.Warn(ctx, "ingest: candidates already in inventory", "count", stocked)
	}

	batch := dedup.DedupeAgainst(fresh, knownFingerprints(stored, j.defaultContact))
	created, err := stock(ctx, j.uploader, j.store.Assets, batch.Kept, providerNames(provs), j.now())
	m.Kept(len(created))
	rep.Created = len(created)
	if err != nil {
		j.log.Error(ctx, "ingest: stocking failed", "created", len(created), "error", err)
		m.Error("stock")
		return rep, err
	}

	statuses := ingestStatuses(results, batch.Duplicates)
	if err := j.store.Donations.SaveStatuses(ctx, statuses); err != nil {
		j.log.Error(ctx, "ingest: saving statuses failed", "error", err)
		m.Error("save")
		return rep, fmt.Errorf("save statuses: %w", err)
	}

	contacts := make(map[string]string, len(pending))
	for _, d := range pending {
		contacts[d.ID] = d.ContactEmail
	}
	for _, s := range statuses {
		m.Donation(s.Flags)
		rep.Donations++
		if s.Flags.Rejected {
			rep.Rejected++
		}
		if s.Flags.Duplicate {
			rep.Duplicates++
		}
	}
	m.Duplicates(len(batch.Duplicates))

	j.notify(ctx, m, noticesFor(statuses, contacts))
	j.log.Info(ctx, "ingest: done", "donations", rep.Donations, "skipped", rep.Skipped,
		"rejected", rep.Rejected, "duplicates", rep.Duplicates, "created", rep.Created)
	return rep, nil
}

func (j *Ingest) notify(ctx context.Context, m *metrics.Run, notices []models.Notice) {
	if len(notices) == 0 || j.notifier == nil {
		return
	}
	if err := j.notifier.Notify(ctx, notices); err != nil {
		j.log.Error(ctx, "ingest: notices not sent", "count", len(notices), "error", err)
		m.Error("notify")
	}
}

// ingestStatuses turns validation results and batch duplicates into the
// persisted status of each donation.
func ingestStatuses(results []validation.Result, dups []models.DuplicateUpdate) []models.DonationStatus {
	byDonation := make(map[string]models.DuplicateUpdate)
	for _, u := range dedup.MergeUpdates(dups) {
		byDonation[u.DonationID] = u
	}

	out := make([]models.DonationStatus, 0, len(results))
	for _, r := range results {
		s := models.DonationStatus{DonationID: r.DonationID, Flags: r.Flags}
		s.Flags.Ingested = true
		if u, ok := byDonation[r.DonationID]; ok {
			s.Flags.Duplicate = true
			s.Flags.DifferentEmail = u.DifferentEmail
			s.Original = u.Original
		}
		out = append(out, s)
	}
	return out
}

// noticesFor builds one notice per rejected or duplicate donation.
func noticesFor(statuses []models.DonationStatus, contacts map[string]string) []models.Notice {
	var out []models.Notice
	for _, s := range statuses {
		if !s.Flags.Rejected && !s.Flags.Duplicate {
			continue
		}
		out = append(out, models.Notice{
			DonationID:     s.DonationID,
			Contact:        contacts[s.DonationID],
			Reasons:        s.Flags.Reasons(),
			OriginalID:     s.Original.Resolve(s.DonationID),
			DifferentEmail: s.Flags.DifferentEmail,
		})
	}
	return out
}
