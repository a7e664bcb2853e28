package pipeline

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/esimrouter/internal/dedup"
	"github.com/dmitrijs2005/esimrouter/internal/logging"
	"github.com/dmitrijs2005/esimrouter/internal/metrics"
	"github.com/dmitrijs2005/esimrouter/internal/models"
)

// DedupeReport summarizes one dedupe run.
type DedupeReport struct {
	Assets       int
	Groups       int
	Deleted      int
	Donations    int
	Placeholders int
}

// Dedupe resolves fingerprint groups across stored inventory, deletes every
// duplicate asset and flags the donations they came from.
type Dedupe struct {
	store          Store
	notifier       Notifier
	defaultContact string
	log            logging.Logger
}

func NewDedupe(store Store, n Notifier, defaultContact string, log logging.Logger) *Dedupe {
	return &Dedupe{store: store, notifier: n, defaultContact: defaultContact, log: log}
}

// Run deletes losers before saving donation flags. The two writes are not
// atomic; a failure between them leaves already deleted assets deleted and
// the next run finds nothing left to flag for them.
func (j *Dedupe) Run(ctx context.Context, m *metrics.Run) (DedupeReport, error) {
	var rep DedupeReport

	provs, err := j.store.Providers.FetchAll(ctx)
	if err != nil {
		return rep, fmt.Errorf("fetch providers: %w", err)
	}
	stored, err := j.store.Assets.FetchAll(ctx)
	if err != nil {
		return rep, fmt.Errorf("fetch assets: %w", err)
	}
	rep.Assets = len(stored)

	res := dedup.NewResolver(provs, j.defaultContact).Resolve(stored)
	rep.Groups = len(res)
	for _, r := range res {
		if r.Placeholder && len(r.Duplicates) > 0 {
			rep.Placeholders++
		}
	}

	losers := dedup.Losers(res)
	ids := make([]string, len(losers))
	for i, a := range losers {
		ids[i] = a.ID
	}
	if err := j.store.Assets.DeleteBatch(ctx, ids); err != nil {
		j.log.Error(ctx, "dedupe: delete failed", "assets", len(ids), "error", err)
		m.Error("delete")
		return rep, fmt.Errorf("delete duplicates: %w", err)
	}
	rep.Deleted = len(ids)
	m.Duplicates(len(ids))

	updates := dedup.Updates(res)
	if err := j.store.Donations.MarkDuplicates(ctx, updates); err != nil {
		j.log.Error(ctx, "dedupe: marking donations failed", "donations", len(updates), "error", err)
		m.Error("save")
		return rep, fmt.Errorf("mark duplicates: %w", err)
	}
	rep.Donations = len(updates)
	for _, u := range updates {
		m.Donation(models.Flags{Duplicate: true, DifferentEmail: u.DifferentEmail})
	}

	if notices := duplicateNotices(res); len(notices) > 0 && j.notifier != nil {
		if err := j.notifier.Notify(ctx, notices); err != nil {
			j.log.Error(ctx, "dedupe: notices not sent", "count", len(notices), "error", err)
			m.Error("notify")
		}
	}

	j.log.Info(ctx, "dedupe: done", "assets", rep.Assets, "groups", rep.Groups,
		"deleted", rep.Deleted, "donations", rep.Donations, "placeholders", rep.Placeholders)
	return rep, nil
}

// duplicateNotices builds one notice per duplicate donation that is not
// its own original.
func duplicateNotices(res []dedup.Resolution) []models.Notice {
	var out []models.Notice
	seen := map[string]bool{}
	for _, r := range res {
		for _, d := range r.Duplicates {
			id := d.Asset.DonationID
			if id == "" || id == r.Original.DonationID || seen[id] {
				continue
			}
			seen[id] = true
			reasons := []string{"is_duplicate"}
			if d.DifferentEmail {
				reasons = append(reasons, "different_email")
			}
			out = append(out, models.Notice{
				DonationID:     id,
				Contact:        d.Asset.ContactEmail,
				Reasons:        reasons,
				OriginalID:     r.Original.DonationID,
				DifferentEmail: d.DifferentEmail,
			})
		}
	}
	return out
}
