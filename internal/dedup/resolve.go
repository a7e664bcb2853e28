package dedup

import (
	"cmp"
	"slices"

	"github.com/dmitrijs2005/esimrouter/internal/models"
)

// Duplicate is a stored asset that lost to its group's original.
type Duplicate struct {
	Asset          models.Asset
	DifferentEmail bool
}

// Resolution is the decision for one fingerprint group.
type Resolution struct {
	SHA      string
	Original models.Asset
	// Placeholder is set when the original has no donation; its contact
	// is then the configured default so notices still have a target.
	Placeholder bool
	Duplicates  []Duplicate
}

// Resolver picks one canonical original per fingerprint among stored
// assets.
type Resolver struct {
	descending     map[string]bool
	defaultContact string
}

func NewResolver(providers []models.Provider, defaultContact string) *Resolver {
	desc := make(map[string]bool, len(providers))
	for _, p := range providers {
		desc[p.ID] = p.OrderDescending
	}
	return &Resolver{descending: desc, defaultContact: defaultContact}
}

type member struct {
	asset models.Asset
	pos   int
}

// Resolve groups assets by fingerprint, in order of first appearance, and
// picks each group's original.
//
// By default members are ordered by ascending order id, ties broken by
// asset id. When every member belongs to a provider flagged
// OrderDescending, order ids are ignored and members are taken in reverse
// of their position in assets, so the last one fetched is the original.
// Callers must pass assets in the store's fetch order. The first member
// after ordering is the original.
func (r *Resolver) Resolve(assets []models.Asset) []Resolution {
	groups := make(map[string][]member)
	var order []string
	for i, a := range assets {
		if _, ok := groups[a.QRSHA]; !ok {
			order = append(order, a.QRSHA)
		}
		groups[a.QRSHA] = append(groups[a.QRSHA], member{asset: a, pos: i})
	}

	out := make([]Resolution, 0, len(order))
	for _, sha := range order {
		out = append(out, r.resolveGroup(sha, groups[sha]))
	}
	return out
}

func (r *Resolver) resolveGroup(sha string, ms []member) Resolution {
	if r.allDescending(ms) {
		slices.SortStableFunc(ms, func(a, b member) int { return cmp.Compare(b.pos, a.pos) })
	} else {
		slices.SortStableFunc(ms, func(a, b member) int {
			if c := cmp.Compare(a.asset.OrderID, b.asset.OrderID); c != 0 {
				return c
			}
			return cmp.Compare(a.asset.ID, b.asset.ID)
		})
	}

	res := Resolution{SHA: sha, Original: ms[0].asset}
	if res.Original.DonationID == "" {
		res.Placeholder = true
		res.Original.ContactEmail = r.defaultContact
	}
	for _, m := range ms[1:] {
		res.Duplicates = append(res.Duplicates, Duplicate{
			Asset:          m.asset,
			DifferentEmail: !SameContact(m.asset.ContactEmail, res.Original.ContactEmail),
		})
	}
	return res
}

func (r *Resolver) allDescending(ms []member) bool {
	for _, m := range ms {
		if !r.descending[m.asset.ProviderID] {
			return false
		}
	}
	return len(ms) > 0
}

// Losers returns every duplicate asset across resolutions.
func Losers(res []Resolution) []models.Asset {
	var out []models.Asset
	for _, r := range res {
		for _, d := range r.Duplicates {
			out = append(out, d.Asset)
		}
	}
	return out
}

// Updates returns the donation status changes implied by res, one per
// duplicate donation.
func Updates(res []Resolution) []models.DuplicateUpdate {
	var ups []models.DuplicateUpdate
	for _, r := range res {
		for _, d := range r.Duplicates {
			if d.Asset.DonationID == "" {
				continue
			}
			ups = append(ups, models.DuplicateUpdate{
				DonationID:     d.Asset.DonationID,
				Original:       originalFor(d.Asset.DonationID, r.Original.DonationID),
				DifferentEmail: d.DifferentEmail,
			})
		}
	}
	return MergeUpdates(ups)
}
