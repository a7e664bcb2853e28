// Package dedup removes repeated eSIMs by content fingerprint, both within
// one batch of fresh candidates and across stored inventory.
package dedup

import (
	"strings"

	"github.com/dmitrijs2005/esimrouter/internal/models"
)

// Known describes the stored owner of a fingerprint.
type Known struct {
	DonationID string
	Contact    string
}

// BatchResult is the outcome of deduplicating one batch.
type BatchResult struct {
	// Kept holds the first candidate of every new fingerprint, in input order.
	Kept []models.Candidate
	// Duplicates has one entry per dropped candidate, in input order.
	Duplicates []models.DuplicateUpdate
}

// SameContact compares contact addresses ignoring case and surrounding
// whitespace.
func SameContact(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Dedupe keeps the first candidate of each fingerprint and marks the
// donation owning every later one as a duplicate of the first owner.
// A list without repeated fingerprints is returned unchanged.
func Dedupe(cands []models.Candidate) BatchResult {
	return DedupeAgainst(cands, nil)
}

// DedupeAgainst is Dedupe with fingerprints already present in storage
// treated as seen before the batch starts.
func DedupeAgainst(cands []models.Candidate, known map[string]Known) BatchResult {
	seen := make(map[string]Known, len(known)+len(cands))
	for sha, k := range known {
		seen[sha] = k
	}

	res := BatchResult{Kept: make([]models.Candidate, 0, len(cands))}
	for _, c := range cands {
		owner, dup := seen[c.QRSHA]
		if !dup {
			seen[c.QRSHA] = Known{DonationID: c.DonationID, Contact: c.Contact}
			res.Kept = append(res.Kept, c)
			continue
		}
		res.Duplicates = append(res.Duplicates, models.DuplicateUpdate{
			DonationID:     c.DonationID,
			Original:       originalFor(c.DonationID, owner.DonationID),
			DifferentEmail: !SameContact(c.Contact, owner.Contact),
		})
	}
	return res
}

func originalFor(self, owner string) models.OriginalRef {
	if self != "" && self == owner {
		return models.SelfOriginal()
	}
	return models.OriginalOf(owner)
}

// MergeUpdates folds several updates for the same donation into one,
// keeping the first original reference and OR-ing DifferentEmail. Updates
// without a donation are dropped. Order follows first appearance.
func MergeUpdates(ups []models.DuplicateUpdate) []models.DuplicateUpdate {
	idx := make(map[string]int, len(ups))
	var out []models.DuplicateUpdate
	for _, u := range ups {
		if u.DonationID == "" {
			continue
		}
		if i, ok := idx[u.DonationID]; ok {
			out[i].DifferentEmail = out[i].DifferentEmail || u.DifferentEmail
			if out[i].Original.Kind() == models.OriginalNone {
				out[i].Original = u.Original
			}
			continue
		}
		idx[u.DonationID] = len(out)
		out = append(out, u)
	}
	return out
}
