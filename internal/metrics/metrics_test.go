package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/esimrouter/internal/models"
)

func TestRun_Donation(t *testing.T) {
	r := NewRun("ingest")

	r.Donation(models.Flags{Ingested: true})
	r.Donation(models.Flags{Ingested: true, Rejected: true, MissingQR: true})
	r.Donation(models.Flags{Ingested: true, MissingQR: true, Duplicate: true})

	assert.Equal(t, 3.0, testutil.ToFloat64(r.donations))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.outcomes.WithLabelValues("missing_qr")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues("is_duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues("rejected")))
}

func TestRun_Counters(t *testing.T) {
	r := NewRun("restock")
	r.Kept(4)
	r.Duplicates(2)
	r.Issued(5)
	r.Error("issue")
	r.Error("issue")

	assert.Equal(t, 4.0, testutil.ToFloat64(r.kept))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.duplicates))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.issued))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.errors.WithLabelValues("issue")))
}

func TestRun_Finish(t *testing.T) {
	r := NewRun("dedupe")
	r.Finish(time.Now().Add(-2*time.Second), assert.AnError)
	assert.GreaterOrEqual(t, testutil.ToFloat64(r.duration), 2.0)
	assert.Zero(t, testutil.ToFloat64(r.lastSuccess))

	r.Finish(time.Now(), nil)
	assert.Positive(t, testutil.ToFloat64(r.lastSuccess))
}

func TestRun_Push(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		path = req.URL.Path
		b, _ := io.ReadAll(req.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRun("ingest")
	r.Kept(1)
	require.NoError(t, r.Push(context.Background(), srv.URL))

	assert.Equal(t, "/metrics/job/esimrouter_ingest", path)
	assert.NotEmpty(t, body)
}

func TestRun_PushDisabled(t *testing.T) {
	assert.NoError(t, NewRun("ingest").Push(context.Background(), ""))
}

func TestRun_PushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewRun("ingest").Push(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "push metrics"))
}

func TestRun_RegistryGathers(t *testing.T) {
	r := NewRun("router")
	r.Error("stage")
	n, err := testutil.GatherAndCount(r.Registry(), "esimrouter_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
