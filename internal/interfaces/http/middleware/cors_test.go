package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func corsEngine(t *testing.T, config CORSConfig) *gin.Engine {
	t.Helper()
	mw, err := CORS(config)
	require.NoError(t, err)
	r := gin.New()
	r.Use(mw)
	r.GET("/api/v1/deadlines", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestCORS_PreflightRequest(t *testing.T) {
	r := corsEngine(t, DefaultCORSConfig("https://ofis.example.com"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/deadlines", nil)
	req.Header.Set("Origin", "https://ofis.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://ofis.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
	assert.NotEmpty(t, w.Header().Get("Access-Control-Max-Age"))
	assert.Empty(t, w.Body.String())
}

func TestCORS_SimpleRequest(t *testing.T) {
	r := corsEngine(t, DefaultCORSConfig("https://ofis.example.com"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/deadlines", nil)
	req.Header.Set("Origin", "https://ofis.example.com")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://ofis.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), http.CanonicalHeaderKey(HeaderRequestID))
	assert.Equal(t, "ok", w.Body.String())
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	r := corsEngine(t, DefaultCORSConfig("https://ofis.example.com"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/deadlines", nil)
	req.Header.Set("Origin", "https://evil.example.org")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_NoOriginHeader(t *testing.T) {
	r := corsEngine(t, DefaultCORSConfig("https://ofis.example.com"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/deadlines", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_WildcardOrigin(t *testing.T) {
	r := corsEngine(t, DefaultCORSConfig("*"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/deadlines", nil)
	req.Header.Set("Origin", "https://herhangi.example.net")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_SubdomainWildcard(t *testing.T) {
	r := corsEngine(t, DefaultCORSConfig("https://*.example.com"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/deadlines", nil)
	req.Header.Set("Origin", "https://muhasebe.example.com")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://muhasebe.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_InvalidConfig(t *testing.T) {
	cfg := DefaultCORSConfig("*")
	cfg.AllowCredentials = true
	_, err := CORS(cfg)
	assert.Error(t, err)

	_, err = CORS(DefaultCORSConfig())
	assert.Error(t, err, "no origins at all")

	_, err = CORS(DefaultCORSConfig("ofis.example.com"))
	assert.Error(t, err, "origin without scheme")
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := DefaultCORSConfig("https://a.example.com")
	assert.Equal(t, []string{"https://a.example.com"}, cfg.AllowedOrigins)
	assert.Contains(t, cfg.AllowedMethods, http.MethodPatch)
	assert.False(t, cfg.AllowCredentials)
	assert.Positive(t, cfg.MaxAge)
}
