package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestGateway stands up a stub upstream plus a gateway app whose
// allow-list admits exactly that upstream's host.
func newTestGateway(t *testing.T, upstream http.HandlerFunc) (*fiber.App, *httptest.Server) {
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse upstream url: %v", err)
	}

	app := fiber.New()
	gw := New(u.Hostname(), srv.Client(), testLogger())
	gw.Register(app)

	return app, srv
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestForwardAllowedTarget(t *testing.T) {
	app, srv := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cache-Control") != "no-cache" || r.Header.Get("Pragma") != "no-cache" {
			t.Error("forwarded request must disable intermediary caching")
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"observations":[]}`)
	})

	target := url.QueryEscape(srv.URL + "/v2/pws/observations/current?stationId=K1")
	req := httptest.NewRequest(http.MethodGet, "/?url="+target, nil)
	req.Header.Set("Origin", "https://charts.example")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"observations":[]}` {
		t.Errorf("body not relayed verbatim: %q", body)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://charts.example" {
		t.Errorf("Allow-Origin = %q, want reflected origin", got)
	}
	if got := resp.Header.Get("Content-Type"); got != fiber.MIMEApplicationJSON {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestForwardRelaysUpstreamStatus(t *testing.T) {
	app, srv := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"bad key"}`)
	})

	req := httptest.NewRequest(http.MethodGet, "/?url="+url.QueryEscape(srv.URL+"/x"), nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want upstream's 401", resp.StatusCode)
	}
}

func TestForwardDeniesOtherHosts(t *testing.T) {
	app, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called for a denied host")
	})

	req := httptest.NewRequest(http.MethodGet,
		"/?url="+url.QueryEscape("https://evil.example/x"), nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if got := decodeError(t, resp); got != "Domain not allowed" {
		t.Errorf("error = %q", got)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("error responses must still carry CORS headers")
	}
}

func TestForwardRejectsMalformedURL(t *testing.T) {
	app, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called for a malformed URL")
	})

	req := httptest.NewRequest(http.MethodGet, "/?url=not-a-url", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if got := decodeError(t, resp); got != "Invalid URL" {
		t.Errorf("error = %q", got)
	}
}

func TestForwardRequiresURLParameter(t *testing.T) {
	app, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called without a target")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if got := decodeError(t, resp); got != "Missing ?url= parameter" {
		t.Errorf("error = %q", got)
	}
}

func TestPreflightAlwaysSucceeds(t *testing.T) {
	app, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight must never reach upstream")
	})

	for _, path := range []string{"/", "/?url=" + url.QueryEscape("https://evil.example/x")} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", "https://anywhere.example")

		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("app.Test(%s): %v", path, err)
		}
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("OPTIONS %s status = %d, want 204", path, resp.StatusCode)
		}
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://anywhere.example" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if got := resp.Header.Get("Access-Control-Allow-Methods"); got != "GET, OPTIONS" {
			t.Errorf("Allow-Methods = %q", got)
		}
	}
}

func TestDebugModeReturnsDiagnostics(t *testing.T) {
	app, srv := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"observations":[1,2,3]}`)
	})

	req := httptest.NewRequest(http.MethodGet,
		"/?url="+url.QueryEscape(srv.URL+"/x")+"&debug", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var diag struct {
		UpstreamStatus  int               `json:"upstreamStatus"`
		UpstreamHeaders map[string]string `json:"upstreamHeaders"`
		BodyLength      int               `json:"bodyLength"`
		BodyPreview     string            `json:"bodyPreview"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&diag); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if diag.UpstreamStatus != http.StatusOK {
		t.Errorf("upstreamStatus = %d", diag.UpstreamStatus)
	}
	if diag.BodyLength != len(`{"observations":[1,2,3]}`) {
		t.Errorf("bodyLength = %d", diag.BodyLength)
	}
	if diag.BodyPreview != `{"observations":[1,2,3]}` {
		t.Errorf("bodyPreview = %q", diag.BodyPreview)
	}
	if diag.UpstreamHeaders["X-Upstream"] != "yes" {
		t.Errorf("upstreamHeaders missing X-Upstream: %v", diag.UpstreamHeaders)
	}
}

func TestUpstreamUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	u, _ := url.Parse(srv.URL)
	srv.Close() // nothing listens anymore

	app := fiber.New()
	gw := New(u.Hostname(), &http.Client{}, testLogger())
	gw.Register(app)

	req := httptest.NewRequest(http.MethodGet, "/?url="+url.QueryEscape(srv.URL+"/x"), nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	if got := decodeError(t, resp); got != "Upstream fetch failed" {
		t.Errorf("error = %q", got)
	}
}
