package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "makelocal"

type Metrics struct {
	CartMutations    *prometheus.CounterVec
	CartItems        prometheus.Histogram
	SessionCreations *prometheus.CounterVec
	CheckoutResults  *prometheus.CounterVec
	APIRequests      *prometheus.HistogramVec
	PhotoCache       *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers every collector on reg. Passing a fresh registry keeps tests
// isolated from the process wide default registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		CartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "mutations_total",
			Help:      "Cart mutations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		CartItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "total_items",
			Help:      "Total item quantity of a cart after a successful mutation.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
		SessionCreations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "creations_total",
			Help:      "Anonymous session creations by outcome.",
		}, []string{"outcome"}),
		CheckoutResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "results_total",
			Help:      "Checkout submissions by final state.",
		}, []string{"state"}),
		APIRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency of calls to the order management API.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "code"}),
		PhotoCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "photo",
			Name:      "cache_lookups_total",
			Help:      "Photo cache lookups by result.",
		}, []string{"result"}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.CartMutations,
		m.CartItems,
		m.SessionCreations,
		m.CheckoutResults,
		m.APIRequests,
		m.PhotoCache,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *Metrics) ObserveCartMutation(operation string, totalItems int, err error) {
	if m == nil {
		return
	}
	m.CartMutations.WithLabelValues(operation, Outcome(err)).Inc()
	if err == nil {
		m.CartItems.Observe(float64(totalItems))
	}
}

func (m *Metrics) ObserveSessionCreation(err error) {
	if m == nil {
		return
	}
	m.SessionCreations.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) ObserveCheckout(state string) {
	if m == nil {
		return
	}
	m.CheckoutResults.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveAPIRequest(endpoint string, code string, seconds float64) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(endpoint, code).Observe(seconds)
}

func (m *Metrics) ObservePhotoLookup(result string) {
	if m == nil {
		return
	}
	m.PhotoCache.WithLabelValues(result).Inc()
}
