// Package metrics exports history events as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/entrhq/navhistory/pkg/history"
)

const namespace = "navhistory"

// Recorder turns history events into metrics. One Recorder can observe
// any number of tabs; the tab label keeps their gauges apart.
type Recorder struct {
	commits   *prometheus.CounterVec
	ignored   *prometheus.CounterVec
	pruned    *prometheus.CounterVec
	discarded *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	restored  *prometheus.CounterVec
	entries   *prometheus.GaugeVec
}

// NewRecorder registers the metrics with reg. A nil reg uses the default
// registerer.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commits",
			Name:      "total",
			Help:      "Commits applied to history, by navigation type",
		}, []string{"tab", "type", "in_page"}),

		ignored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commits",
			Name:      "ignored_total",
			Help:      "Commits classified NAV_IGNORE, by rule",
		}, []string{"tab", "rule"}),

		pruned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entries",
			Name:      "pruned_total",
			Help:      "Entries dropped to honor the capacity or by explicit pruning",
		}, []string{"tab"}),

		discarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pending",
			Name:      "discarded_total",
			Help:      "Pending entries discarded before committing",
		}, []string{"tab"}),

		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "restore",
			Name:      "frame_fallbacks_total",
			Help:      "Re-created frames without a stored frame entry",
		}, []string{"tab"}),

		restored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "restore",
			Name:      "entries_total",
			Help:      "Entries restored from persisted sessions",
		}, []string{"tab"}),

		entries: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "entries",
			Name:      "current",
			Help:      "Committed entries in the tab's history",
		}, []string{"tab"}),
	}
}

// Observer returns a history observer for one tab. count reports the
// tab's current entry count; it may be nil when the gauge is not wanted.
func (r *Recorder) Observer(tab string, count func() int) history.Observer {
	return func(ev history.Event) {
		switch ev.Type {
		case history.EventNavigationCommitted:
			inPage := "false"
			if ev.Details != nil && ev.Details.IsInPage {
				inPage = "true"
			}
			typ := history.NavigationTypeUnknown
			if ev.Details != nil {
				typ = ev.Details.Type
			}
			r.commits.WithLabelValues(tab, typ.String(), inPage).Inc()
		case history.EventNavigationIgnored:
			r.ignored.WithLabelValues(tab, ev.Rule).Inc()
		case history.EventEntriesPruned:
			r.pruned.WithLabelValues(tab).Add(float64(ev.Count))
		case history.EventPendingDiscarded:
			r.discarded.WithLabelValues(tab).Inc()
		case history.EventFrameEntryFallback:
			r.fallbacks.WithLabelValues(tab).Inc()
		case history.EventSessionRestored:
			r.restored.WithLabelValues(tab).Add(float64(ev.Count))
		}
		if count != nil {
			r.entries.WithLabelValues(tab).Set(float64(count()))
		}
	}
}
