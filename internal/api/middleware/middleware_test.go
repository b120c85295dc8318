package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcoot/dicefunnel/internal/middleware"
	"github.com/mcoot/dicefunnel/internal/testutil"
)

func sessionEcho() http.Handler {
	return SessionToken()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(MustGetSessionToken(r.Context())))
	}))
}

func TestSessionTokenFromBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rr := httptest.NewRecorder()
	sessionEcho().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "tok-1", rr.Body.String())
}

func TestSessionTokenFromCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok-2"})
	rr := httptest.NewRecorder()
	sessionEcho().ServeHTTP(rr, req)

	assert.Equal(t, "tok-2", rr.Body.String())
}

func TestSessionTokenPrefersHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "from-cookie"})
	rr := httptest.NewRecorder()
	sessionEcho().ServeHTTP(rr, req)

	assert.Equal(t, "from-header", rr.Body.String())
}

func TestSessionTokenMissing(t *testing.T) {
	rr := httptest.NewRecorder()
	sessionEcho().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "UNAUTHORIZED")
}

func TestAdminKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	tests := []struct {
		name       string
		configured string
		header     string
		query      string
		want       int
	}{
		{name: "header", configured: "secret", header: "secret", want: http.StatusOK},
		{name: "query", configured: "secret", query: "secret", want: http.StatusOK},
		{name: "wrong", configured: "secret", header: "nope", want: http.StatusUnauthorized},
		{name: "missing", configured: "secret", want: http.StatusUnauthorized},
		{name: "unconfigured", configured: "", header: "", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/"
			if tt.query != "" {
				path += "?api_key=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if tt.header != "" {
				req.Header.Set(AdminKeyHeader, tt.header)
			}
			rr := httptest.NewRecorder()
			AdminKey(tt.configured)(ok).ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestRecoveryWritesJSON(t *testing.T) {
	h := Recovery(testutil.NopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "INTERNAL_ERROR")
}

func TestRecoveryQuotesRequestID(t *testing.T) {
	logger, logs := testutil.BufferLogger()
	h := middleware.RequestID()(Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-77")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "request req-77")
	assert.Contains(t, logs.String(), "req-77")
}
