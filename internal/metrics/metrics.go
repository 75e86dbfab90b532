// Package metrics owns the prometheus registry exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	OffersCreated     *prometheus.CounterVec
	Normalizations    *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec
	Conversions       *prometheus.CounterVec
	ShipmentEvents    *prometheus.CounterVec
	ExtractorLatency  prometheus.Histogram
	KPICache          *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	offersCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offerflow_offers_created_total",
		Help: "Offers created, by source type.",
	}, []string{"source"})
	normalizations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offerflow_normalizations_total",
		Help: "Normalization runs, by source and outcome.",
	}, []string{"source", "result"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offerflow_offer_transitions_total",
		Help: "Offer status changes, by target status.",
	}, []string{"to"})
	conversions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offerflow_conversions_total",
		Help: "Offer to order conversions, by outcome.",
	}, []string{"result"})
	shipmentEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offerflow_shipment_events_total",
		Help: "Shipment events appended, by resulting status.",
	}, []string{"status"})
	extractorLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "offerflow_extractor_latency_seconds",
		Help:    "Structured extractor call latency.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45, 90},
	})
	kpiCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offerflow_kpi_cache_total",
		Help: "KPI snapshot cache lookups, by outcome.",
	}, []string{"result"})
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offerflow_http_requests_total",
		Help: "HTTP requests, by method, route and status code.",
	}, []string{"method", "route", "code"})
	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "offerflow_http_request_duration_seconds",
		Help:    "HTTP request duration, by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	r.MustRegister(
		offersCreated, normalizations, transitions, conversions, shipmentEvents,
		extractorLatency, kpiCache, httpRequests, httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		reg:               r,
		OffersCreated:     offersCreated,
		Normalizations:    normalizations,
		StatusTransitions: transitions,
		Conversions:       conversions,
		ShipmentEvents:    shipmentEvents,
		ExtractorLatency:  extractorLatency,
		KPICache:          kpiCache,
		HTTPRequests:      httpRequests,
		HTTPDuration:      httpDuration,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// ObserveHTTP records one served request
func (r *Registry) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	r.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Outcome maps an error to the result label used by the counters
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
