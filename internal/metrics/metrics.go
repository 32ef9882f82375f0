// Package metrics exposes quiz room activity and HTTP traffic to Prometheus.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"promptquiz-service/internal/domain"
)

// Collector implements app.Observer on top of Prometheus collectors.
type Collector struct {
	roomsCreated    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	activeRooms     prometheus.Gauge
	answers         *prometheus.CounterVec
	subscriptions   prometheus.Gauge
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		roomsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_rooms_created_total",
			Help: "Rooms created, by kind.",
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_room_transitions_total",
			Help: "Room status transitions.",
		}, []string{"from", "to"}),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_rooms_active",
			Help: "Rooms currently in the active status.",
		}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_answers_total",
			Help: "Recorded answers.",
		}, []string{"source", "correct"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_subscriptions_open",
			Help: "Open room event subscriptions.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "endpoint"}),
	}
	reg.MustRegister(
		c.roomsCreated,
		c.transitions,
		c.activeRooms,
		c.answers,
		c.subscriptions,
		c.requests,
		c.requestDuration,
	)
	return c
}

func (c *Collector) RoomCreated(demo bool) {
	kind := "hosted"
	if demo {
		kind = "demo"
	}
	c.roomsCreated.WithLabelValues(kind).Inc()
}

func (c *Collector) StatusChanged(from, to domain.Status) {
	c.transitions.WithLabelValues(string(from), string(to)).Inc()
	if to == domain.StatusActive {
		c.activeRooms.Inc()
	}
	if from == domain.StatusActive {
		c.activeRooms.Dec()
	}
}

func (c *Collector) AnswerRecorded(auto, correct bool) {
	source := "participant"
	if auto {
		source = "timeout"
	}
	c.answers.WithLabelValues(source, strconv.FormatBool(correct)).Inc()
}

func (c *Collector) SubscriptionOpened() { c.subscriptions.Inc() }
func (c *Collector) SubscriptionClosed() { c.subscriptions.Dec() }

// Middleware records request counts and latency per route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		c.requests.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		c.requestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes websocket upgrades through to the underlying connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
