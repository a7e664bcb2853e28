package models

// Flags is the set of independent outcome flags recorded on a donation.
// A flag records that at least one attachment had the problem; it is never
// cleared by a later attachment in the same run.
type Flags struct {
	InvalidType        bool
	MissingQR          bool
	ProtocolMismatch   bool
	ProviderMismatch   bool
	MissingPhoneNumber bool
	Duplicate          bool
	Rejected           bool
	Ingested           bool
	DifferentEmail     bool
}

// Merge returns the union of f and o.
func (f Flags) Merge(o Flags) Flags {
	return Flags{
		InvalidType:        f.InvalidType || o.InvalidType,
		MissingQR:          f.MissingQR || o.MissingQR,
		ProtocolMismatch:   f.ProtocolMismatch || o.ProtocolMismatch,
		ProviderMismatch:   f.ProviderMismatch || o.ProviderMismatch,
		MissingPhoneNumber: f.MissingPhoneNumber || o.MissingPhoneNumber,
		Duplicate:          f.Duplicate || o.Duplicate,
		Rejected:           f.Rejected || o.Rejected,
		Ingested:           f.Ingested || o.Ingested,
		DifferentEmail:     f.DifferentEmail || o.DifferentEmail,
	}
}

// Reasons lists the donor-facing problem names of every set error flag.
func (f Flags) Reasons() []string {
	var out []string
	for _, r := range []struct {
		set  bool
		name string
	}{
		{f.InvalidType, "invalid_type"},
		{f.MissingQR, "missing_qr"},
		{f.ProtocolMismatch, "protocol_mismatch"},
		{f.ProviderMismatch, "provider_mismatch"},
		{f.MissingPhoneNumber, "missing_phone_number"},
		{f.Duplicate, "is_duplicate"},
		{f.DifferentEmail, "different_email"},
	} {
		if r.set {
			out = append(out, r.name)
		}
	}
	return out
}

// OriginalKind tags which variant an OriginalRef holds.
type OriginalKind int

const (
	OriginalNone OriginalKind = iota
	OriginalSelf
	OriginalOther
)

func (k OriginalKind) String() string {
	switch k {
	case OriginalSelf:
		return "self"
	case OriginalOther:
		return "ref"
	default:
		return "none"
	}
}

// OriginalRef links a duplicate donation to its canonical original. The
// zero value means "no original".
type OriginalRef struct {
	kind OriginalKind
	id   string
}

func NoOriginal() OriginalRef { return OriginalRef{} }

// SelfOriginal marks a donation that duplicates one of its own attachments.
func SelfOriginal() OriginalRef { return OriginalRef{kind: OriginalSelf} }

// OriginalOf points at another donation. An empty id yields NoOriginal.
func OriginalOf(id string) OriginalRef {
	if id == "" {
		return OriginalRef{}
	}
	return OriginalRef{kind: OriginalOther, id: id}
}

func (r OriginalRef) Kind() OriginalKind { return r.kind }

// ID returns the referenced donation id, or "" unless Kind is OriginalOther.
func (r OriginalRef) ID() string { return r.id }

// Resolve returns the donation id a store should link to, given the id of
// the donation holding r.
func (r OriginalRef) Resolve(self string) string {
	switch r.kind {
	case OriginalSelf:
		return self
	case OriginalOther:
		return r.id
	default:
		return ""
	}
}

// DonationStatus is the persisted outcome of one donation.
type DonationStatus struct {
	DonationID string
	Flags      Flags
	Original   OriginalRef
}

// DuplicateUpdate marks a donation as a duplicate of original.
type DuplicateUpdate struct {
	DonationID     string
	Original       OriginalRef
	DifferentEmail bool
}
