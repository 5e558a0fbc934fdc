// Package metrics exposes Prometheus counters for sessions, scraping,
// messaging and device connections.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the surface components report through.
type Recorder interface {
	SessionCreated()
	SessionRejected()
	SessionEvicted()
	SetLiveSessions(n int)
	InteractionsScraped(kind string, n int)
	InteractionsCreated(n int)
	MessageSent()
	RateLimited(class string)
	QROutcome(state string)
	ObserveOperation(op string, d time.Duration, err error)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	sessionsCreated  prometheus.Counter
	sessionsRejected prometheus.Counter
	sessionsEvicted  prometheus.Counter
	liveSessions     prometheus.Gauge
	scraped          *prometheus.CounterVec
	created          prometheus.Counter
	messagesSent     prometheus.Counter
	rateLimited      *prometheus.CounterVec
	qrOutcomes       *prometheus.CounterVec
	operations       *prometheus.HistogramVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sociallink_sessions_created_total",
			Help: "Browser sessions built and validated.",
		}),
		sessionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sociallink_sessions_rejected_total",
			Help: "Sessions whose credentials did not authenticate.",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sociallink_sessions_evicted_total",
			Help: "Sessions closed for staleness or on release.",
		}),
		liveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sociallink_sessions_live",
			Help: "Sessions currently cached.",
		}),
		scraped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sociallink_interactions_scraped_total",
			Help: "Interaction events extracted, by kind.",
		}, []string{"kind"}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sociallink_interactions_created_total",
			Help: "Interaction events persisted for the first time.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sociallink_messages_sent_total",
			Help: "Direct messages sent.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sociallink_rate_limited_total",
			Help: "Requests denied by the rate limiter, by class.",
		}, []string{"class"}),
		qrOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sociallink_qr_outcomes_total",
			Help: "Terminal QR connection states.",
		}, []string{"state"}),
		operations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sociallink_operation_duration_seconds",
			Help:    "Engine operation latency.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"op", "result"}),
	}

	reg.MustRegister(
		c.sessionsCreated,
		c.sessionsRejected,
		c.sessionsEvicted,
		c.liveSessions,
		c.scraped,
		c.created,
		c.messagesSent,
		c.rateLimited,
		c.qrOutcomes,
		c.operations,
	)
	return c
}

func (c *Collector) SessionCreated()       { c.sessionsCreated.Inc() }
func (c *Collector) SessionRejected()      { c.sessionsRejected.Inc() }
func (c *Collector) SessionEvicted()       { c.sessionsEvicted.Inc() }
func (c *Collector) SetLiveSessions(n int) { c.liveSessions.Set(float64(n)) }
func (c *Collector) MessageSent()          { c.messagesSent.Inc() }

func (c *Collector) InteractionsScraped(kind string, n int) {
	c.scraped.WithLabelValues(kind).Add(float64(n))
}

func (c *Collector) InteractionsCreated(n int) {
	c.created.Add(float64(n))
}

func (c *Collector) RateLimited(class string) {
	c.rateLimited.WithLabelValues(class).Inc()
}

func (c *Collector) QROutcome(state string) {
	c.qrOutcomes.WithLabelValues(state).Inc()
}

func (c *Collector) ObserveOperation(op string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.operations.WithLabelValues(op, result).Observe(d.Seconds())
}

// Nop discards everything.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) SessionCreated()                              {}
func (Nop) SessionRejected()                             {}
func (Nop) SessionEvicted()                              {}
func (Nop) SetLiveSessions(int)                          {}
func (Nop) InteractionsScraped(string, int)              {}
func (Nop) InteractionsCreated(int)                      {}
func (Nop) MessageSent()                                 {}
func (Nop) RateLimited(string)                           {}
func (Nop) QROutcome(string)                             {}
func (Nop) ObserveOperation(string, time.Duration, error) {}

// HealthFunc reports readiness; a nil error means healthy.
type HealthFunc func(ctx context.Context) error

// NewOpsRouter serves /metrics from gatherer and /healthz from health.
func NewOpsRouter(gatherer prometheus.Gatherer, health HealthFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if health != nil {
			if err := health(req.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
