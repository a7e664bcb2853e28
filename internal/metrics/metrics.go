// Package metrics records per-run pipeline counters in a private Prometheus
// registry and pushes them to a pushgateway when the run ends. Jobs are
// short-lived, so nothing is scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/dmitrijs2005/esimrouter/internal/models"
)

const namespace = "esimrouter"

type Run struct {
	job string
	reg *prometheus.Registry

	donations   prometheus.Counter
	outcomes    *prometheus.CounterVec
	kept        prometheus.Counter
	duplicates  prometheus.Counter
	errors      *prometheus.CounterVec
	issued      prometheus.Counter
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
}

func NewRun(job string) *Run {
	labels := prometheus.Labels{"job_name": job}
	r := &Run{
		job: job,
		reg: prometheus.NewRegistry(),
		donations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "donations_processed_total",
			Help: "Donations whose outcome was persisted.", ConstLabels: labels,
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "donation_flags_total",
			Help: "Donations carrying each outcome flag.", ConstLabels: labels,
		}, []string{"flag"}),
		kept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "assets_created_total",
			Help: "Inventory assets created.", ConstLabels: labels,
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "duplicates_total",
			Help: "Candidates or stored assets dropped as duplicates.", ConstLabels: labels,
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "Collaborator failures by stage.", ConstLabels: labels,
		}, []string{"stage"}),
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "esims_issued_total",
			Help: "eSIMs issued by the restock job.", ConstLabels: labels,
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "run_duration_seconds",
			Help: "Wall time of the last run.", ConstLabels: labels,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without error.", ConstLabels: labels,
		}),
	}
	r.reg.MustRegister(r.donations, r.outcomes, r.kept, r.duplicates, r.errors, r.issued, r.duration, r.lastSuccess)
	return r
}

// Donation counts one persisted donation and each flag it carries.
func (r *Run) Donation(f models.Flags) {
	r.donations.Inc()
	for _, reason := range f.Reasons() {
		r.outcomes.WithLabelValues(reason).Inc()
	}
	if f.Rejected {
		r.outcomes.WithLabelValues("rejected").Inc()
	}
}

func (r *Run) Kept(n int)       { r.kept.Add(float64(n)) }
func (r *Run) Duplicates(n int) { r.duplicates.Add(float64(n)) }
func (r *Run) Issued(n int)     { r.issued.Add(float64(n)) }
func (r *Run) Error(stage string) {
	r.errors.WithLabelValues(stage).Inc()
}

// Finish records the run's wall time and, when err is nil, its completion time.
func (r *Run) Finish(start time.Time, err error) {
	now := time.Now()
	r.duration.Set(now.Sub(start).Seconds())
	if err == nil {
		r.lastSuccess.Set(float64(now.Unix()))
	}
}

// Push sends every metric of the run to the pushgateway at url.
func (r *Run) Push(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, namespace+"_"+r.job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// Registry exposes the run's registry for inspection.
func (r *Run) Registry() *prometheus.Registry { return r.reg }
