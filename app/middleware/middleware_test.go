package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/beego/beego/v2/server/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, origins []string) http.Handler {
	t.Helper()
	reg := web.NewControllerRegister()
	require.NoError(t, NewManager(origins).Apply(reg))
	reg.Handler("/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))
	return reg
}

func TestCORS_Allowed(t *testing.T) {
	c := NewCORS([]string{"http://localhost:5173", " http://127.0.0.1:3000 "})
	assert.True(t, c.Allowed("http://localhost:5173"))
	assert.True(t, c.Allowed("http://127.0.0.1:3000"))
	assert.False(t, c.Allowed("https://evil.example"))

	wildcard := NewCORS([]string{"*"})
	assert.True(t, wildcard.Allowed("https://anything.example"))
}

func TestCORS_PreflightFromAllowedOrigin(t *testing.T) {
	handler := newTestHandler(t, []string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PUT")
	assert.Empty(t, rec.Body.String())
}

func TestCORS_DisallowedOriginGetsNoHeaders(t *testing.T) {
	handler := newTestHandler(t, []string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID_GeneratedWhenMissing(t *testing.T) {
	handler := newTestHandler(t, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := rec.Header().Get(HeaderRequestID)
	assert.Len(t, generated, 36)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "upstream-id")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id", rec.Header().Get(HeaderRequestID))
}
