package observability

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "costamar", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "costamar", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "costamar", Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "costamar", Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	BookingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "costamar", Name: "booking_attempts_total", Help: "Booking attempts by outcome."},
		[]string{"outcome"},
	)
	LedgerReserves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "costamar", Name: "ledger_reserves_total", Help: "Ledger balance reservations."},
		[]string{"result"}, // result: ok|insufficient|not_found|error
	)
	CommitConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "costamar", Name: "commit_conflicts_total", Help: "Unit-taken conflicts during commit."},
	)
	RetryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "costamar", Name: "retry_attempts_total", Help: "Scheduler retry attempts per stage."},
		[]string{"stage"},
	)
	Escalations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "costamar", Name: "escalations_total", Help: "Cases handed to a human."},
		[]string{"reason"}, // reason: exhausted|distress
	)
	GuardEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "costamar", Name: "guard_events_total", Help: "Customer lock and cooldown events."},
		[]string{"kind", "event"},
	)
)

func Serve() {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency,
		BookingAttempts, LedgerReserves, CommitConflicts, RetryAttempts, Escalations, GuardEvents)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveBooking(outcome string) {
	BookingAttempts.WithLabelValues(outcome).Inc()
}

func ObserveReserve(result string) {
	LedgerReserves.WithLabelValues(result).Inc()
}

func ObserveRetry(stage int) {
	RetryAttempts.WithLabelValues(strconv.Itoa(stage)).Inc()
}

func ObserveEscalation(reason string) {
	Escalations.WithLabelValues(reason).Inc()
}

func ObserveGuard(kind, event string) {
	GuardEvents.WithLabelValues(kind, event).Inc()
}

func LabelErr(err error) string {
	if err == nil {
		return "none"
	}
	return fmt.Sprintf("%T", err)
}
