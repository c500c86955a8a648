package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHandlerServesRecordedMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.ObserveOperation("sign_in", nil)
	c.ObserveOperation("sign_in", errors.New("boom"))
	c.ObserveProfileResolution("bootstrapped")
	c.SetActiveSessions(3)
	c.RecordRegistration("register")
	c.RecordHTTPRequest(http.MethodGet, "/api/events", http.StatusOK, 15*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Result().Body)
	out := string(body)

	for _, want := range []string{
		`eventhub_session_operations_total{op="sign_in",result="failure"} 1`,
		`eventhub_session_operations_total{op="sign_in",result="success"} 1`,
		`eventhub_profile_resolutions_total{outcome="bootstrapped"} 1`,
		`eventhub_active_sessions 3`,
		`eventhub_event_registrations_total{action="register"} 1`,
		`eventhub_http_requests_total{method="GET",route="/api/events",status_code="200"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}
