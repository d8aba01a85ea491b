package middlewares

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/invoiceflow/invoiceflow_backend/utils"
	"github.com/redis/go-redis/v9"
)

func newTestEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/", func(c *gin.Context) {
		biz, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		user, _ := utils.GetUserNameFromContext(c.Request.Context())
		c.String(http.StatusOK, biz+"|"+cid+"|"+user)
	})
	return r
}

func TestSessionMiddleware(t *testing.T) {
	r := newTestEngine(CorrelationMiddleware(), SessionMiddleware())

	cases := []struct {
		business string
		user     string
		status   int
		body     string
	}{
		{"biz-1", "asha", http.StatusOK, "biz-1|cid-1|asha"},
		{"  biz-2 ", "", http.StatusOK, "biz-2|cid-1|"},
		{"", "", http.StatusBadRequest, ""},
		{strings.Repeat("x", 65), "", http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderBusinessId, tc.business)
		req.Header.Set(HeaderCorrelationId, "cid-1")
		if tc.user != "" {
			req.Header.Set(HeaderUserName, tc.user)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.status {
			t.Fatalf("business %q expected %d, got %d", tc.business, tc.status, w.Code)
		}
		if tc.body != "" && w.Body.String() != tc.body {
			t.Fatalf("expected body %q, got %q", tc.body, w.Body.String())
		}
		if w.Header().Get(HeaderCorrelationId) != "cid-1" {
			t.Fatalf("correlation id was not echoed")
		}
	}
}

func TestCorrelationMiddlewareGeneratesId(t *testing.T) {
	r := newTestEngine(CorrelationMiddleware())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	cid := w.Header().Get(HeaderCorrelationId)
	if len(cid) != 36 {
		t.Fatalf("expected a generated uuid, got %q", cid)
	}
	if !strings.Contains(w.Body.String(), cid) {
		t.Fatalf("context correlation id %q does not match header %q", w.Body.String(), cid)
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	rl := NewRateLimiter(client, 1, time.Minute)
	r := newTestEngine(rl.RateLimitMiddleware)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d expected 200 without redis, got %d", i, w.Code)
		}
	}
}
