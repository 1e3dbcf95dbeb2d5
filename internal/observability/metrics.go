package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mantra"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	httpMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "fiber_messages_total",
			Help:      "Fiber messages accepted over HTTP by wire format.",
		},
		[]string{"node", "format"},
	)
	httpMessageTerms = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "fiber_message_terms_total",
			Help:      "Terms carried by fiber messages accepted over HTTP.",
		},
		[]string{"node", "format"},
	)
	fiberSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fiber",
			Name:      "steps_total",
			Help:      "Fiber steps by outcome.",
		},
		[]string{"outcome"},
	)
	poolSends = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "sends_total",
			Help:      "Messages enqueued into fiber mailboxes.",
		},
	)
	poolFibers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "fibers",
			Help:      "Fibers registered in the pool.",
		},
	)
	workerPasses = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "pass_duration_seconds",
			Help:      "Worker evaluation pass duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"worker"},
	)
	ruleLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "lookups_total",
			Help:      "Rule lookups by cache result.",
		},
		[]string{"result"},
	)
	moduleRegistrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "module_registrations_total",
			Help:      "Module registrations, split into first loads and reloads.",
		},
		[]string{"kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			httpMessages,
			httpMessageTerms,
			fiberSteps,
			poolSends,
			poolFibers,
			workerPasses,
			ruleLookups,
			moduleRegistrations,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordHTTPMessage(node, format string, terms int) {
	RegisterMetrics()
	httpMessages.WithLabelValues(node, format).Inc()
	httpMessageTerms.WithLabelValues(node, format).Add(float64(terms))
}

// RecordStep counts one fiber step; outcome is active, blocked or fault.
func RecordStep(outcome string) {
	RegisterMetrics()
	fiberSteps.WithLabelValues(outcome).Inc()
}

func RecordSend() {
	RegisterMetrics()
	poolSends.Inc()
}

func SetFiberCount(n int) {
	RegisterMetrics()
	poolFibers.Set(float64(n))
}

func RecordPass(worker int, duration time.Duration) {
	RegisterMetrics()
	workerPasses.WithLabelValues(strconv.Itoa(worker)).Observe(duration.Seconds())
}

func RecordRuleLookup(hit bool) {
	RegisterMetrics()
	result := "miss"
	if hit {
		result = "hit"
	}
	ruleLookups.WithLabelValues(result).Inc()
}

func RecordModuleRegistration(reload bool) {
	RegisterMetrics()
	kind := "load"
	if reload {
		kind = "reload"
	}
	moduleRegistrations.WithLabelValues(kind).Inc()
}
