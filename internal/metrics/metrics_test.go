package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"promptquiz-service/internal/domain"
)

func TestCollectorCountsRoomActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RoomCreated(true)
	c.RoomCreated(false)
	c.StatusChanged(domain.StatusWaiting, domain.StatusActive)
	c.AnswerRecorded(false, true)
	c.AnswerRecorded(true, false)
	c.AnswerRecorded(true, false)
	c.SubscriptionOpened()
	c.SubscriptionOpened()
	c.SubscriptionClosed()

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"demo rooms", c.roomsCreated.WithLabelValues("demo"), 1},
		{"active rooms", c.activeRooms, 1},
		{"timeout answers", c.answers.WithLabelValues("timeout", "false"), 2},
		{"open subscriptions", c.subscriptions, 1},
	}
	for _, check := range checks {
		if got := testutil.ToFloat64(check.c); got != check.want {
			t.Fatalf("%s: expected %v, got %v", check.name, check.want, got)
		}
	}

	c.StatusChanged(domain.StatusActive, domain.StatusCompleted)
	if got := testutil.ToFloat64(c.activeRooms); got != 0 {
		t.Fatalf("expected no active rooms after completion, got %v", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/quiz/room/{roomId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := c.Middleware(mux)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/quiz/room/ABC", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues("GET", "GET /api/quiz/room/{roomId}", "404")); got != 1 {
		t.Fatalf("expected one request counted under the route pattern, got %v", got)
	}

	out := httptest.NewRecorder()
	Handler(reg).ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(out.Body.String(), "http_requests_total") {
		t.Fatalf("metrics output missing http_requests_total")
	}
}
