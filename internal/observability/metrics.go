// Package observability exposes pipeline counters through Prometheus.
// The metrics live on a dedicated registry so tests never collide on
// the global default.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cartwatch/cartwatch-go/internal/errors"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	FramesProcessed      prometheus.Counter
	Triggers             *prometheus.CounterVec
	Captures             prometheus.Counter
	ClassificationCalls  *prometheus.CounterVec
	CartAdds             prometheus.Counter
	CartMerges           prometheus.Counter
	DuplicatesSuppressed *prometheus.CounterVec
	DealAnalyses         *prometheus.CounterVec
	ResultsFlushes       prometheus.Counter
}

// NewMetrics creates and registers the pipeline collectors.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: registry,
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartwatch_frames_processed_total",
			Help: "Total video frames read from the source",
		}),
		Triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartwatch_triggers_total",
			Help: "Frame triggers by source",
		}, []string{"source"}),
		Captures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartwatch_captures_total",
			Help: "Frames saved for classification",
		}),
		ClassificationCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartwatch_classification_calls_total",
			Help: "Classification dispatches by outcome",
		}, []string{"outcome"}),
		CartAdds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartwatch_cart_adds_total",
			Help: "New items added to the cart",
		}),
		CartMerges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartwatch_cart_merges_total",
			Help: "Repeat sightings merged into existing cart entries",
		}),
		DuplicatesSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartwatch_duplicates_suppressed_total",
			Help: "Duplicate classifications suppressed, by detection method",
		}, []string{"method"}),
		DealAnalyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartwatch_deal_analyses_total",
			Help: "Deal enrichment attempts by outcome",
		}, []string{"outcome"}),
		ResultsFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartwatch_results_flushes_total",
			Help: "Results document writes",
		}),
	}

	collectors := []prometheus.Collector{
		m.FramesProcessed, m.Triggers, m.Captures, m.ClassificationCalls,
		m.CartAdds, m.CartMerges, m.DuplicatesSuppressed, m.DealAnalyses,
		m.ResultsFlushes,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, errors.Newf("registering metrics: %w", err).
				Component("observability").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}
	return m, nil
}

// Registry returns the registry the collectors are attached to.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
