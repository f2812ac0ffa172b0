package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "epaper_slideshow"

// Metrics are the loop's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	fetches     *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	frames      *prometheus.CounterVec
	online      prometheus.Gauge
	slide       prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fetches_total",
			Help:      "Atomic batch fetches by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commits_total",
			Help:      "Successful fetches by commit outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connectivity_transitions_total",
			Help:      "Debounced connectivity edges.",
		}, []string{"to"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_presented_total",
			Help:      "Frames pushed to the display by result.",
		}, []string{"result"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "online",
			Help:      "1 when connectivity is judged available.",
		}),
		slide: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "slide_index",
			Help:      "Index of the slide on screen.",
		}),
	}
	reg.MustRegister(m.fetches, m.refreshes, m.transitions, m.frames, m.online, m.slide)
	return m
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *Metrics) fetched(err error) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) committed(r CommitResult) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(r.String()).Inc()
}

func (m *Metrics) transition(t Transition) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) presented(err error) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) setOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}

func (m *Metrics) setSlide(index int) {
	if m == nil {
		return
	}
	m.slide.Set(float64(index))
}
