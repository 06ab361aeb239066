package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/respirasense/abg/internal/platform/auth"
)

// mockRecorder collects audit entries for assertions.
type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error // if set, RecordAccess returns this error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newTestContext(method, path string, sess *auth.Session) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	if sess != nil {
		req = req.WithContext(auth.WithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestAudit_FormAnalysis(t *testing.T) {
	var buf bytes.Buffer
	recorder := &mockRecorder{}
	c, _ := newTestContext(http.MethodPost, "/analyze", &auth.Session{Subject: "nuhansa@example.com", Authenticated: true})
	c.Set("request_id", "req-123")

	if err := Audit(zerolog.New(&buf), recorder)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if recorder.count() != 1 {
		t.Fatalf("expected 1 audit entry, got %d", recorder.count())
	}
	entry := recorder.last()
	if entry.Subject != "nuhansa@example.com" || entry.Action != "analyze" || entry.Resource != "analysis" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.RequestID != "req-123" || entry.StatusCode != http.StatusOK {
		t.Errorf("unexpected request id or status: %+v", entry)
	}
	if !strings.Contains(buf.String(), `"type":"phi_access"`) {
		t.Errorf("expected phi_access log line, got %s", buf.String())
	}
}

func TestAudit_HandlerErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	recorder := &mockRecorder{}
	c, rec := newTestContext(http.MethodPost, "/api/v1/analyses", &auth.Session{Subject: "a@b.c", Authenticated: true})

	failing := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "patient name is required")
	}
	err := Audit(zerolog.New(&buf), recorder)(failing)(c)
	if err == nil {
		t.Fatal("expected the handler error to be returned")
	}

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 response, got %d", rec.Code)
	}
	if got := recorder.last().StatusCode; got != http.StatusUnprocessableEntity {
		t.Errorf("expected audited status 422, got %d", got)
	}
	if !strings.Contains(buf.String(), `"status":422`) {
		t.Errorf("expected status 422 in audit line, got %s", buf.String())
	}
}

func TestAudit_LoggerChainStatus(t *testing.T) {
	var buf bytes.Buffer
	recorder := &mockRecorder{}
	c, rec := newTestContext(http.MethodPost, "/api/v1/analyses", nil)

	failing := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	h := Logger(zerolog.Nop())(Audit(zerolog.New(&buf), recorder)(failing))
	h(c)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 response, got %d", rec.Code)
	}
	if got := recorder.last().StatusCode; got != http.StatusUnauthorized {
		t.Errorf("expected audited status 401, got %d", got)
	}
}

func TestAudit_APIRecords(t *testing.T) {
	recorder := &mockRecorder{}
	c, _ := newTestContext(http.MethodGet, "/api/v1/records", &auth.Session{Subject: "a@b.c", Authenticated: true})

	Audit(zerolog.Nop(), recorder)(okHandler)(c)

	entry := recorder.last()
	if entry.Action != "read" || entry.Resource != "records" {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestAudit_AnonymousSubjectEmpty(t *testing.T) {
	recorder := &mockRecorder{}
	c, _ := newTestContext(http.MethodGet, "/records", &auth.Session{ID: "anon"})
	Audit(zerolog.Nop(), recorder)(okHandler)(c)
	if recorder.last().Subject != "" {
		t.Errorf("expected empty subject for an unauthenticated session, got %q", recorder.last().Subject)
	}
}

func TestAudit_SkipsNonAuditablePaths(t *testing.T) {
	for _, path := range []string{"/", "/login", "/health", "/api/v1/login"} {
		recorder := &mockRecorder{}
		c, _ := newTestContext(http.MethodGet, path, nil)
		Audit(zerolog.Nop(), recorder)(okHandler)(c)
		if recorder.count() != 0 {
			t.Errorf("%s should not be audited", path)
		}
	}
}

func TestAudit_RecorderError_DoesNotBreakRequest(t *testing.T) {
	recorder := &mockRecorder{err: errors.New("db down")}
	c, rec := newTestContext(http.MethodGet, "/api/v1/guidance", nil)

	if err := Audit(zerolog.Nop(), recorder)(okHandler)(c); err != nil {
		t.Fatalf("recorder errors must not fail the request: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAudit_CapturesIPAndUserAgent(t *testing.T) {
	recorder := &mockRecorder{}
	c, _ := newTestContext(http.MethodGet, "/records", nil)
	c.Request().Header.Set("User-Agent", "abg-test/1.0")
	c.Request().Header.Set("X-Real-IP", "10.1.2.3")

	Audit(zerolog.Nop(), recorder)(okHandler)(c)

	entry := recorder.last()
	if entry.UserAgent != "abg-test/1.0" || entry.IPAddress != "10.1.2.3" {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestIsAuditablePath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/analyze", true},
		{"/records", true},
		{"/api/v1/analyses", true},
		{"/api/v1/records", true},
		{"/api/v1/guidance", true},
		{"/api/v1/login", false},
		{"/login", false},
		{"/", false},
		{"/health", false},
	}
	for _, tt := range tests {
		if got := isAuditablePath(tt.path); got != tt.want {
			t.Errorf("isAuditablePath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestAuditResource(t *testing.T) {
	tests := map[string]string{
		"/analyze":         "analysis",
		"/api/v1/analyses": "analysis",
		"/records":         "records",
		"/api/v1/guidance": "guidance",
		"/api/v1/":         "unknown",
	}
	for path, want := range tests {
		if got := auditResource(path); got != want {
			t.Errorf("auditResource(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestAuditRecorderFunc(t *testing.T) {
	var got AuditEntry
	f := AuditRecorderFunc(func(e AuditEntry) error {
		got = e
		return nil
	})
	f.RecordAccess(AuditEntry{Path: "/records"})
	if got.Path != "/records" {
		t.Errorf("expected adapter to forward the entry, got %+v", got)
	}
}
