package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/esimrouter/internal/blobstore"
	"github.com/dmitrijs2005/esimrouter/internal/dedup"
	"github.com/dmitrijs2005/esimrouter/internal/models"
	"github.com/dmitrijs2005/esimrouter/internal/repositories/assets"
)

// knownFingerprints maps each stored fingerprint to its first stored owner.
// An owner without a donation is contacted at defaultContact, as the
// dedupe job does for placeholder originals.
func knownFingerprints(stored []models.Asset, defaultContact string) map[string]dedup.Known {
	known := make(map[string]dedup.Known, len(stored))
	for _, a := range stored {
		if _, ok := known[a.QRSHA]; ok {
			continue
		}
		k := dedup.Known{DonationID: a.DonationID, Contact: a.ContactEmail}
		if k.DonationID == "" {
			k.Contact = defaultContact
		}
		known[a.QRSHA] = k
	}
	return known
}

// alreadyStocked drops candidates whose donation already owns an asset with
// the same fingerprint. That happens when a run stocked them and then failed
// before saving the donation's status. Each stored asset accounts for one
// candidate, so a repeat within the donation is still a duplicate.
func alreadyStocked(cands []models.Candidate, stored []models.Asset) (fresh []models.Candidate, stocked int) {
	owned := make(map[string]int)
	for _, a := range stored {
		if a.DonationID != "" {
			owned[a.DonationID+"\x00"+a.QRSHA]++
		}
	}
	fresh = make([]models.Candidate, 0, len(cands))
	for _, c := range cands {
		k := c.DonationID + "\x00" + c.QRSHA
		if c.DonationID != "" && owned[k] > 0 {
			owned[k]--
			stocked++
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh, stocked
}

// stock uploads each kept candidate and records it in inventory. The
// candidate's provider name picks the storage prefix.
func stock(ctx context.Context, up Uploader, repo assets.Repository, kept []models.Candidate, names map[string]string, now time.Time) ([]models.Asset, error) {
	if len(kept) == 0 {
		return nil, nil
	}
	pending := make([]models.Asset, 0, len(kept))
	for _, c := range kept {
		key := blobstore.StorageKey(names[c.ProviderID], now)
		url, err := up.Upload(ctx, key, c.Image)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", c.QRSHA, err)
		}
		pending = append(pending, models.Asset{
			ProviderID:   c.ProviderID,
			DonationID:   c.DonationID,
			QRSHA:        c.QRSHA,
			PhoneNumber:  c.PhoneNumber,
			ImageURL:     url,
			StorageKey:   key,
			ContactEmail: c.Contact,
		})
	}
	created, err := repo.CreateBatch(ctx, pending)
	if err != nil {
		return created, fmt.Errorf("create assets: %w", err)
	}
	return created, nil
}

func providerNames(ps []models.Provider) map[string]string {
	names := make(map[string]string, len(ps))
	for _, p := range ps {
		names[p.ID] = p.Name
	}
	return names
}
