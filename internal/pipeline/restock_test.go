package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/esimrouter/internal/caption"
	"github.com/dmitrijs2005/esimrouter/internal/layan"
	"github.com/dmitrijs2005/esimrouter/internal/metrics"
	"github.com/dmitrijs2005/esimrouter/internal/models"
	"github.com/dmitrijs2005/esimrouter/internal/qr/qrtest"
)

type fakeIssuer struct {
	esims []layan.ESIM
	err   error
	calls []layan.Package
}

func (f *fakeIssuer) IssueBatch(_ context.Context, pkg layan.Package, target int) ([]layan.ESIM, error) {
	f.calls = append(f.calls, pkg)
	return f.esims, f.err
}

// passCaptioner records captions and returns the image unchanged.
type passCaptioner struct {
	mu       sync.Mutex
	captions []caption.Caption
}

func (c *passCaptioner) RenderPNG(data []byte, cp caption.Caption) ([]byte, error) {
	c.mu.Lock()
	c.captions = append(c.captions, cp)
	c.mu.Unlock()
	return data, nil
}

var lowProvider = models.Provider{
	ID:               "L",
	Name:             "Layan",
	SMDPDomains:      []string{"layan.mno"},
	Renewable:        true,
	AutomaticRestock: true,
	StockStatus:      models.StockLow,
	PackageName:      "10GB",
	Networks:         []string{"Jawwal"},
	DataGB:           10,
	DaysValid:        30,
}

func newRestock(t *testing.T, is *fakeIssuer, files map[string][]byte, provs ...models.Provider) (*Restock, *memAssets, *passCaptioner) {
	t.Helper()
	assets := &memAssets{}
	capt := &passCaptioner{}
	store := Store{Providers: &memProviders{list: provs}, Assets: assets}
	opts := RestockOptions{Packages: map[string]layan.Package{"10GB": {ID: "pkg-10", Price: 12}}, Amount: 3, Workers: 2}
	// The phone extractor finds nothing; restocked numbers come from the vendor.
	v := newValidator(&urlFetcher{}, "")
	job := NewRestock(store, is, &urlFetcher{files: files}, capt, v, &memUploader{}, opts, nop)
	job.now = func() time.Time { return fixedNow }
	return job, assets, capt
}

func TestRestock_IssuesForLowProviders(t *testing.T) {
	is := &fakeIssuer{esims: []layan.ESIM{
		{QRCodeURL: "https://vendor/q1", PhoneNumber: "0599000001"},
		{QRCodeURL: "https://vendor/q2", PhoneNumber: "0599000002"},
		{QRCodeURL: "https://vendor/missing", PhoneNumber: "0599000003"},
	}}
	files := map[string][]byte{
		"https://vendor/q1": qrtest.PNG(t, "LPA:1$layan.mno$Q1"),
		"https://vendor/q2": qrtest.PNG(t, "LPA:1$layan.mno$Q2"),
	}
	ok := models.Provider{ID: "K", Name: "Stocked", AutomaticRestock: true, StockStatus: "OK", PackageName: "10GB"}
	job, assets, capt := newRestock(t, is, files, lowProvider, ok)

	rep, err := job.Run(context.Background(), metrics.NewRun(JobRestock))
	require.NoError(t, err)
	assert.Equal(t, RestockReport{Providers: 1, Issued: 3, Failed: 1, Created: 2}, rep)
	assert.Equal(t, []layan.Package{{ID: "pkg-10", Price: 12}}, is.calls)

	require.Len(t, assets.list, 2)
	assert.Equal(t, "0599000001", assets.list[0].PhoneNumber)
	assert.Equal(t, "0599000002", assets.list[1].PhoneNumber)
	for _, a := range assets.list {
		assert.Equal(t, "L", a.ProviderID)
		assert.Empty(t, a.DonationID)
	}

	require.Len(t, capt.captions, 2)
	assert.ElementsMatch(t, []caption.Caption{
		caption.ForESIM([]string{"Jawwal"}, "0599000001", 10, 30),
		caption.ForESIM([]string{"Jawwal"}, "0599000002", 10, 30),
	}, capt.captions)
}

func TestRestock_UnknownPackageSkipsProvider(t *testing.T) {
	p := lowProvider
	p.PackageName = "unknown"
	is := &fakeIssuer{}
	job, assets, _ := newRestock(t, is, nil, p)

	rep, err := job.Run(context.Background(), metrics.NewRun(JobRestock))
	require.NoError(t, err)
	assert.Equal(t, RestockReport{}, rep)
	assert.Empty(t, is.calls)
	assert.Empty(t, assets.list)
}

func TestRestock_IssuanceErrorStocksWhatWasIssued(t *testing.T) {
	is := &fakeIssuer{
		esims: []layan.ESIM{{QRCodeURL: "https://vendor/q1", PhoneNumber: "0599000001"}},
		err:   errors.New("vendor down"),
	}
	job, assets, _ := newRestock(t, is, map[string][]byte{"https://vendor/q1": qrtest.PNG(t, "LPA:1$layan.mno$Q1")}, lowProvider)

	rep, err := job.Run(context.Background(), metrics.NewRun(JobRestock))
	require.Error(t, err)
	assert.Equal(t, 1, rep.Created)
	assert.Len(t, assets.list, 1)
}

func TestRestock_DropsAlreadyStockedCodes(t *testing.T) {
	is := &fakeIssuer{esims: []layan.ESIM{
		{QRCodeURL: "https://vendor/q1", PhoneNumber: "0599000001"},
		{QRCodeURL: "https://vendor/q1", PhoneNumber: "0599000001"},
	}}
	job, assets, _ := newRestock(t, is, map[string][]byte{"https://vendor/q1": qrtest.PNG(t, "LPA:1$layan.mno$Q1")}, lowProvider)

	rep, err := job.Run(context.Background(), metrics.NewRun(JobRestock))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Created)
	assert.Len(t, assets.list, 1)
}
