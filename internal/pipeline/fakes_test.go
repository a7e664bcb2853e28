package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/dmitrijs2005/esimrouter/internal/common"
	"github.com/dmitrijs2005/esimrouter/internal/dropbox"
	"github.com/dmitrijs2005/esimrouter/internal/logging"
	"github.com/dmitrijs2005/esimrouter/internal/models"
	"github.com/dmitrijs2005/esimrouter/internal/qr"
	"github.com/dmitrijs2005/esimrouter/internal/validation"
)

var nop = logging.NewNopLogger()

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type memProviders struct {
	list []models.Provider
	err  error
}

func (m *memProviders) FetchAll(context.Context) ([]models.Provider, error) {
	return m.list, m.err
}

type memDonations struct {
	pending  []models.Donation
	statuses []models.DonationStatus
	updates  []models.DuplicateUpdate
	saveErr  error
}

func (m *memDonations) FetchPending(context.Context) ([]models.Donation, error) {
	return m.pending, nil
}

func (m *memDonations) SaveStatuses(_ context.Context, s []models.DonationStatus) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.statuses = append(m.statuses, s...)
	return nil
}

func (m *memDonations) MarkDuplicates(_ context.Context, u []models.DuplicateUpdate) error {
	m.updates = append(m.updates, u...)
	return nil
}

type memAssets struct {
	list      []models.Asset
	deleted   []string
	next      int64
	createErr error
}

func (m *memAssets) FetchAll(context.Context) ([]models.Asset, error) {
	return append([]models.Asset(nil), m.list...), nil
}

func (m *memAssets) CreateBatch(_ context.Context, in []models.Asset) ([]models.Asset, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	out := make([]models.Asset, 0, len(in))
	for _, a := range in {
		m.next++
		a.ID = fmt.Sprintf("A%d", m.next)
		a.OrderID = m.next
		m.list = append(m.list, a)
		out = append(out, a)
	}
	return out, nil
}

func (m *memAssets) DeleteBatch(_ context.Context, ids []string) error {
	m.deleted = append(m.deleted, ids...)
	return nil
}

type memUploader struct {
	keys []string
	err  error
}

func (u *memUploader) Upload(_ context.Context, key string, _ []byte) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.keys = append(u.keys, key)
	return "https://blob/" + key, nil
}

type memNotifier struct {
	notices []models.Notice
	err     error
}

func (n *memNotifier) Notify(_ context.Context, notices []models.Notice) error {
	n.notices = append(n.notices, notices...)
	return n.err
}

// urlFetcher serves fixed bytes per URL; unknown URLs fail like a dead link.
type urlFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (f *urlFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s: 404", common.ErrFetch, url)
	}
	return data, nil
}

type fixedPhone string

func (p fixedPhone) Extract(context.Context, *image.Gray) (string, bool) {
	return string(p), p != ""
}

func newValidator(f validation.Fetcher, phone fixedPhone) *validation.Validator {
	return validation.NewValidator(f, qr.NewDecoder(nop), phone, nop)
}

type fakeLocker struct {
	held     bool
	acquired []string
	released int
}

func (l *fakeLocker) Acquire(_ context.Context, name string) (func(context.Context) error, error) {
	if l.held {
		return nil, fmt.Errorf("%w: %s", common.ErrRunInProgress, name)
	}
	l.acquired = append(l.acquired, name)
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

type memStager struct {
	folders map[string][]dropbox.File
	data    map[string][]byte
	deleted []string
	listed  []string
}

func (s *memStager) List(_ context.Context, folder string) ([]dropbox.File, error) {
	s.listed = append(s.listed, folder)
	return s.folders[folder], nil
}

func (s *memStager) Download(_ context.Context, p string) ([]byte, error) {
	d, ok := s.data[p]
	if !ok {
		return nil, &dropbox.Error{Kind: dropbox.KindNotFound, Op: "download", Path: p, Err: errors.New("path/not_found")}
	}
	return d, nil
}

func (s *memStager) DeleteBatch(_ context.Context, paths []string) error {
	s.deleted = append(s.deleted, paths...)
	return nil
}

func stagedFile(folder, name string) dropbox.File {
	return dropbox.File{Name: name, Path: folder + "/" + name, Size: 1}
}
