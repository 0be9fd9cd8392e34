package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nomadaapp/nomada/internal/pkg/statistics"
)

const (
	metricsNamespace = "nomada"
	sourceLabel      = "source"
	opLabel          = "op"
	resultLabel      = "result"
)

// Service owns the prometheus registry of the process. It doubles as the
// statistics.Observer of the visit aggregator.
type Service struct {
	registry      *prometheus.Registry
	visitsCounted *prometheus.CounterVec
	visitsDeduped prometheus.Counter
	fallbackUsed  *prometheus.CounterVec
	storeFailures *prometheus.CounterVec
	subscribers   *prometheus.CounterVec
	welcomeEmails *prometheus.CounterVec
}

var _ statistics.Observer = (*Service)(nil)

func NewService() *Service {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Service{
		registry: reg,
		visitsCounted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "visits",
			Name:      "counted_total",
			Help:      "Visits counted, by the store that accepted the write",
		}, []string{sourceLabel}),
		visitsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "visits",
			Name:      "deduplicated_total",
			Help:      "Page loads that belonged to an ongoing visit session",
		}),
		fallbackUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "visits",
			Name:      "fallback_total",
			Help:      "Operations served by the fallback store",
		}, []string{opLabel}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "visits",
			Name:      "remote_failures_total",
			Help:      "Failed calls to the remote visit store",
		}, []string{opLabel}),
		subscribers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "waitlist",
			Name:      "join_total",
			Help:      "Waitlist sign ups by result",
		}, []string{resultLabel}),
		welcomeEmails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "waitlist",
			Name:      "welcome_email_total",
			Help:      "Welcome emails by result",
		}, []string{resultLabel}),
	}
	reg.MustRegister(s.visitsCounted, s.visitsDeduped, s.fallbackUsed, s.storeFailures, s.subscribers, s.welcomeEmails)

	return s
}

// Registry returns the registry behind Handler.
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// TrackTrackers exposes the number of mounted visit trackers.
func (s *Service) TrackTrackers(size func() int) {
	s.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "visits",
		Name:      "mounted_trackers",
		Help:      "Visit trackers currently mounted",
	}, func() float64 { return float64(size()) }))
}

func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

func (s *Service) VisitCounted(src statistics.Source) {
	s.visitsCounted.WithLabelValues(string(src)).Inc()
}

func (s *Service) VisitDeduplicated() {
	s.visitsDeduped.Inc()
}

func (s *Service) FallbackUsed(op string) {
	s.fallbackUsed.WithLabelValues(op).Inc()
}

func (s *Service) StoreFailed(op string) {
	s.storeFailures.WithLabelValues(op).Inc()
}

// SubscriberJoined records a waitlist sign up attempt: "created", "duplicate"
// or "invalid".
func (s *Service) SubscriberJoined(result string) {
	s.subscribers.WithLabelValues(result).Inc()
}

func (s *Service) WelcomeEmailSent(ok bool) {
	result := "sent"
	if !ok {
		result = "failed"
	}
	s.welcomeEmails.WithLabelValues(result).Inc()
}
