package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	return r
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	r := newTestRouter(RequestID())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Generated when absent.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}

	// Propagated when present.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "fixed-id" {
		t.Fatalf("expected propagated id, got %q", got)
	}
}

func TestRecovery_TurnsPanicInto500(t *testing.T) {
	r := newTestRouter(RequestID(), Logger(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("expected structured error body, got %s", w.Body.String())
	}
}

func TestLoggerFrom_FallbackWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if lg := LoggerFrom(c); lg == nil {
		t.Fatal("LoggerFrom must never return nil")
	}
}

func TestMaskQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"page=2", "page=2"},
		{"session_id=abc", "session_id=" + maskedValue},
		{"state=abc&page=2", "page=2&state=" + maskedValue},
		{"code=secret", "code=" + maskedValue},
		{"%zz", maskedValue}, // unparseable: masked wholesale
	}
	for _, c := range cases {
		if got := maskQuery(c.in); got != c.want {
			t.Errorf("maskQuery(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc" {
		t.Fatalf("truncate: %q", got)
	}
	if got := truncate("ab", 3); got != "ab" {
		t.Fatalf("truncate: %q", got)
	}
}
