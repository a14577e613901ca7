package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Toggles          *prometheus.CounterVec
	AutoFilled       prometheus.Counter
	SessionsActive   prometheus.Gauge
	LookupSeconds    prometheus.Histogram
	RevalidateDrops  prometheus.Counter
	ProtocolRejected *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plots_toggles_total",
			Help: "Selection toggles by action and outcome (ok or rejection reason).",
		}, []string{"action", "outcome"}),
		AutoFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plots_autofill_parcels_total",
			Help: "Parcels pulled into selections to close gaps.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plots_sessions_active",
			Help: "Open selection sessions.",
		}),
		LookupSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "plots_universe_lookup_seconds",
			Help:    "Time to resolve the anchor and its adjacent parcels.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		RevalidateDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plots_revalidation_drops_total",
			Help: "Members dropped when a refreshed universe invalidated them.",
		}),
		ProtocolRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plots_protocol_errors_total",
			Help: "Protocol-level errors sent to clients, by code.",
		}, []string{"code"}),
	}
	if reg != nil {
		reg.MustRegister(m.Toggles, m.AutoFilled, m.SessionsActive, m.LookupSeconds, m.RevalidateDrops, m.ProtocolRejected)
	}
	return m
}

func (m *Metrics) ObserveToggle(action string, success bool, reason string, autoAdded int) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !success {
		outcome = reason
	}
	m.Toggles.WithLabelValues(action, outcome).Inc()
	if success && autoAdded > 0 {
		m.AutoFilled.Add(float64(autoAdded))
	}
}

func (m *Metrics) ObserveLookup(d time.Duration) {
	if m == nil {
		return
	}
	m.LookupSeconds.Observe(d.Seconds())
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.SessionsActive.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.SessionsActive.Dec()
	}
}

func (m *Metrics) Dropped(n int) {
	if m != nil && n > 0 {
		m.RevalidateDrops.Add(float64(n))
	}
}

func (m *Metrics) ProtocolError(code string) {
	if m != nil {
		m.ProtocolRejected.WithLabelValues(code).Inc()
	}
}
