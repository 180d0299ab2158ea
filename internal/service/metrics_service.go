package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transition outcomes recorded by ObserveTransition.
const (
	OutcomeSuccess   = "success"
	OutcomeInvalid   = "invalid"
	OutcomeForbidden = "forbidden"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// MetricsService owns the Prometheus registry and the collectors of the
// HTTP surface, the mutation pipeline and the background jobs. A nil
// *MetricsService is valid and records nothing.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	eventsAppended  prometheus.Counter
	cascadeArchived prometheus.Counter
	statisticsRuns  *prometheus.CounterVec
	statisticsLast  prometheus.Gauge
	alertsSent      *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "application_transitions_total",
		Help: "Application transitions by name and outcome",
	}, []string{"transition", "outcome"})

	eventsAppended := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "domain_events_appended_total",
		Help: "Domain events committed to the event store",
	})

	cascadeArchived := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "application_cascade_archived_total",
		Help: "Applications archived because a sibling was accepted",
	})

	statisticsRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statistics_runs_total",
		Help: "Statistics aggregation runs by outcome",
	}, []string{"outcome"})

	statisticsLast := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "statistics_watermark_timestamp_seconds",
		Help: "Unix time of the last committed statistics watermark",
	})

	alertsSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appointment_alerts_total",
		Help: "Appointment alerts by channel and outcome",
	}, []string{"channel", "outcome"})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Read cache lookups by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitions, eventsAppended, cascadeArchived,
		statisticsRuns, statisticsLast, alertsSent, cacheLookups, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitions:     transitions,
		eventsAppended:  eventsAppended,
		cascadeArchived: cascadeArchived,
		statisticsRuns:  statisticsRuns,
		statisticsLast:  statisticsLast,
		alertsSent:      alertsSent,
		cacheLookups:    cacheLookups,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveTransition counts one attempted transition.
func (m *MetricsService) ObserveTransition(transition, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(transition, outcome).Inc()
}

// AddEventsAppended counts committed domain events.
func (m *MetricsService) AddEventsAppended(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsAppended.Add(float64(n))
}

// AddCascadeArchived counts siblings archived by an acceptance.
func (m *MetricsService) AddCascadeArchived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cascadeArchived.Add(float64(n))
}

// ObserveStatisticsRun counts a statistics run and, when committed, records
// the new watermark.
func (m *MetricsService) ObserveStatisticsRun(outcome string, watermark time.Time) {
	if m == nil {
		return
	}
	m.statisticsRuns.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuccess && !watermark.IsZero() {
		m.statisticsLast.Set(float64(watermark.Unix()))
	}
}

// ObserveAlert counts one delivery attempt on a notification channel.
func (m *MetricsService) ObserveAlert(channel, outcome string) {
	if m == nil {
		return
	}
	m.alertsSent.WithLabelValues(channel, outcome).Inc()
}

// RecordCacheLookup counts a read cache hit or miss.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
