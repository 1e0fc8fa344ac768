package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"autoreply/internal/application/reply"
)

const namespace = "autoreply"

// Scan results.
const (
	ResultSuccess     = "success"
	ResultAbandoned   = "abandoned"
	ResultInterrupted = "interrupted"
)

// Metrics records scan outcomes as Prometheus counters.
type Metrics struct {
	registry *prometheus.Registry

	scans        *prometheus.CounterVec
	candidates   prometheus.Counter
	checks       *prometheus.CounterVec
	repliesSent  prometheus.Counter
	labelsAdded  prometheus.Counter
	stepFailures *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scan cycles by result.",
		}, []string{"result"}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Unread messages evaluated.",
		}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contact_checks_total",
			Help:      "Prior-contact checks by outcome.",
		}, []string{"outcome"}),
		repliesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_sent_total",
			Help:      "Auto-replies sent.",
		}),
		labelsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "labels_applied_total",
			Help:      "Labels applied to sent replies.",
		}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      "Failed provider or storage calls by step.",
		}, []string{"step"}),
	}

	m.registry.MustRegister(m.scans, m.candidates, m.checks, m.repliesSent, m.labelsAdded, m.stepFailures)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveScan implements reply.Recorder.
func (m *Metrics) ObserveScan(report reply.Report, err error) {
	switch {
	case err == nil:
		m.scans.WithLabelValues(ResultSuccess).Inc()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		m.scans.WithLabelValues(ResultInterrupted).Inc()
	default:
		m.scans.WithLabelValues(ResultAbandoned).Inc()
	}

	m.candidates.Add(float64(report.Candidates))
	m.checks.WithLabelValues("prior_contact").Add(float64(report.PriorContact))
	m.checks.WithLabelValues("failed").Add(float64(report.CheckFailed))
	m.checks.WithLabelValues("duplicate").Add(float64(report.Duplicates))
	m.checks.WithLabelValues("first_contact").Add(float64(report.Checked - report.PriorContact - report.CheckFailed - report.Duplicates))
	m.repliesSent.Add(float64(report.Sent))
	m.labelsAdded.Add(float64(report.Labeled))

	for _, f := range report.Failures {
		m.stepFailures.WithLabelValues(string(f.Step)).Inc()
	}
}
