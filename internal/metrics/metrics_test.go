package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/scarmonit-creator/LLM-sub005/internal/notify"
)

func TestObserver_ClientLifecycle(t *testing.T) {
	registered := testutil.ToFloat64(ClientsRegistered)
	connected := testutil.ToFloat64(ConnectedClients)
	stale := testutil.ToFloat64(ClientsDisconnected.WithLabelValues("stale"))

	var o Observer
	o.Observe(notify.Event{Type: notify.EventClientRegistered, ClientID: "a"})
	o.Observe(notify.Event{Type: notify.EventClientRegistered, ClientID: "b"})
	o.Observe(notify.Event{Type: notify.EventClientDisconnected, ClientID: "a", Reason: "stale"})

	if got := testutil.ToFloat64(ClientsRegistered) - registered; got != 2 {
		t.Errorf("Expected 2 registrations, got %v", got)
	}
	if got := testutil.ToFloat64(ConnectedClients) - connected; got != 1 {
		t.Errorf("Expected connected gauge +1, got %v", got)
	}
	if got := testutil.ToFloat64(ClientsDisconnected.WithLabelValues("stale")) - stale; got != 1 {
		t.Errorf("Expected 1 stale disconnect, got %v", got)
	}
}

func TestObserver_EnvelopeKinds(t *testing.T) {
	direct := testutil.ToFloat64(EnvelopesProcessed.WithLabelValues("direct"))
	broadcast := testutil.ToFloat64(EnvelopesProcessed.WithLabelValues("broadcast"))

	var o Observer
	o.Observe(notify.Event{Type: notify.EventEnvelopeProcessed, To: "b"})
	o.Observe(notify.Event{Type: notify.EventEnvelopeProcessed})

	if got := testutil.ToFloat64(EnvelopesProcessed.WithLabelValues("direct")) - direct; got != 1 {
		t.Errorf("Expected 1 direct envelope, got %v", got)
	}
	if got := testutil.ToFloat64(EnvelopesProcessed.WithLabelValues("broadcast")) - broadcast; got != 1 {
		t.Errorf("Expected 1 broadcast envelope, got %v", got)
	}
}

func TestObserver_Failures(t *testing.T) {
	failures := testutil.ToFloat64(DeliveryFailures)
	malformed := testutil.ToFloat64(MalformedFrames)

	var o Observer
	o.Observe(notify.Event{Type: notify.EventDeliveryFailed})
	o.Observe(notify.Event{Type: notify.EventMalformedFrame})

	if got := testutil.ToFloat64(DeliveryFailures) - failures; got != 1 {
		t.Errorf("Expected 1 delivery failure, got %v", got)
	}
	if got := testutil.ToFloat64(MalformedFrames) - malformed; got != 1 {
		t.Errorf("Expected 1 malformed frame, got %v", got)
	}
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/agents/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/agents/{id}", "404"))

	req := httptest.NewRequest("GET", "/agents/agent-42", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/agents/{id}", "404")) - before; got != 1 {
		t.Errorf("Expected 1 request recorded under the route pattern, got %v", got)
	}
}

func TestMiddleware_UnmatchedRoutesShareOneLabel(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", UnmatchedRoute, "404"))

	for _, path := range []string{"/nope", "/random/abc", "/random/def"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	if got := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", UnmatchedRoute, "404")) - before; got != 3 {
		t.Errorf("Expected 3 requests under %q, got %v", UnmatchedRoute, got)
	}
	if n := testutil.CollectAndCount(HTTPRequestsTotal, "agent_bridge_http_requests_total"); n == 0 {
		t.Error("Expected request series to be collected")
	}
}
