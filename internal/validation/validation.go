// Package validation decides, per donated attachment, whether it is an
// acceptable eSIM QR code for the donation's provider.
package validation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/dmitrijs2005/esimrouter/internal/classify"
	"github.com/dmitrijs2005/esimrouter/internal/common"
	"github.com/dmitrijs2005/esimrouter/internal/imaging"
	"github.com/dmitrijs2005/esimrouter/internal/logging"
	"github.com/dmitrijs2005/esimrouter/internal/models"
	"github.com/dmitrijs2005/esimrouter/internal/qr"
)

// Verdict is the terminal outcome of one attachment.
type Verdict int

const (
	Accepted Verdict = iota
	InvalidType
	MissingQR
	ProtocolMismatch
	ProviderMismatch
	MissingPhoneNumber
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case InvalidType:
		return "invalid_type"
	case MissingQR:
		return "missing_qr"
	case ProtocolMismatch:
		return "protocol_mismatch"
	case ProviderMismatch:
		return "provider_mismatch"
	case MissingPhoneNumber:
		return "missing_phone_number"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// flag returns the donation flag raised by v.
func (v Verdict) flag() models.Flags {
	switch v {
	case InvalidType:
		return models.Flags{InvalidType: true}
	case MissingQR:
		return models.Flags{MissingQR: true}
	case ProtocolMismatch:
		return models.Flags{ProtocolMismatch: true}
	case ProviderMismatch:
		return models.Flags{ProviderMismatch: true}
	case MissingPhoneNumber:
		return models.Flags{MissingPhoneNumber: true}
	default:
		return models.Flags{}
	}
}

// Fetcher downloads attachment bytes. Errors must wrap common.ErrFetch.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// QRDecoder finds the QR code in a grayscale image.
type QRDecoder interface {
	Decode(ctx context.Context, g *image.Gray) (qr.Code, bool)
}

// PhoneExtractor reads the SIM phone number from a grayscale image.
type PhoneExtractor interface {
	Extract(ctx context.Context, g *image.Gray) (string, bool)
}

// Outcome records the verdict for one attachment.
type Outcome struct {
	AttachmentID string
	Filename     string
	Verdict      Verdict
}

// Result is the immutable outcome of validating one donation.
type Result struct {
	DonationID string
	Outcomes   []Outcome
	Candidates []models.Candidate
	// Flags is the union of every attachment's flag; Rejected is set iff
	// Candidates is empty.
	Flags models.Flags
}

// Rejected reports whether no attachment produced a candidate.
func (r Result) Rejected() bool { return r.Flags.Rejected }

type Validator struct {
	fetch  Fetcher
	decode QRDecoder
	phone  PhoneExtractor
	log    logging.Logger
}

func NewValidator(f Fetcher, d QRDecoder, p PhoneExtractor, log logging.Logger) *Validator {
	return &Validator{fetch: f, decode: d, phone: p, log: log}
}

// IsImageType reports whether a declared attachment type is an image
// category such as "image/png".
func IsImageType(t string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(t)), "image")
}

// Validate checks every attachment of d against p. Classified problems are
// returned as flags; only fetch failures are returned as errors, in which
// case the partial result must be discarded.
func (v *Validator) Validate(ctx context.Context, d models.Donation, p models.Provider) (Result, error) {
	res := Result{DonationID: d.ID}
	log := v.log.With("donation_id", d.ID, "provider", p.Name)

	for _, a := range d.Attachments {
		verdict, cand, err := v.validateAttachment(ctx, d, a, p)
		if err != nil {
			return Result{}, fmt.Errorf("donation %s attachment %s: %w", d.ID, a.ID, err)
		}

		res.Outcomes = append(res.Outcomes, Outcome{AttachmentID: a.ID, Filename: a.Filename, Verdict: verdict})
		res.Flags = res.Flags.Merge(verdict.flag())
		if verdict == Accepted {
			res.Candidates = append(res.Candidates, cand)
		}
		log.Debug(ctx, "attachment checked", "attachment_id", a.ID, "verdict", verdict.String())
	}

	res.Flags.Rejected = len(res.Candidates) == 0
	return res, nil
}

func (v *Validator) validateAttachment(ctx context.Context, d models.Donation, a models.Attachment, p models.Provider) (Verdict, models.Candidate, error) {
	if !IsImageType(a.Type) {
		return InvalidType, models.Candidate{}, nil
	}

	data, err := v.fetch.Fetch(ctx, a.URL)
	if err != nil {
		if !errors.Is(err, common.ErrFetch) {
			err = fmt.Errorf("%w: %w", common.ErrFetch, err)
		}
		return 0, models.Candidate{}, err
	}

	verdict, cand := v.ValidateImage(ctx, data, p)
	cand.DonationID = d.ID
	cand.AttachmentID = a.ID
	cand.Filename = a.Filename
	cand.ImageURL = a.URL
	cand.Contact = d.ContactEmail
	return verdict, cand, nil
}

// ValidateImage runs the QR, protocol, domain and phone checks over already
// fetched bytes. The image is decoded once and shared by every check.
func (v *Validator) ValidateImage(ctx context.Context, data []byte, p models.Provider) (Verdict, models.Candidate) {
	g, err := imaging.LoadGray(data)
	if err != nil {
		v.log.Warn(ctx, "image not decodable", "provider", p.Name, "error", err)
		return MissingQR, models.Candidate{}
	}

	code, ok := v.decode.Decode(ctx, g)
	if !ok {
		return MissingQR, models.Candidate{}
	}
	if !classify.MatchesProtocol(code.Text) {
		return ProtocolMismatch, models.Candidate{}
	}
	if !classify.MatchesProvider(code.Text, p.SMDPDomains) {
		return ProviderMismatch, models.Candidate{}
	}

	cand := models.Candidate{
		ProviderID: p.ID,
		Image:      data,
		QRText:     code.Text,
		QRSHA:      code.SHA,
	}
	if p.Renewable {
		number, ok := v.phone.Extract(ctx, g)
		if !ok {
			return MissingPhoneNumber, models.Candidate{}
		}
		cand.PhoneNumber = number
	}
	return Accepted, cand
}
