package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	mwopts "github.com/kart-io/bdlaw/pkg/options/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.POST("/v1/chat", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/v1/chat", nil)
	req.Header.Set("Origin", "https://law.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Message-ID")
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORSSpecificOrigin(t *testing.T) {
	r := gin.New()
	r.Use(CORSWithOptions(mwopts.CORSOptions{
		AllowOrigins:     []string{"https://law.example"},
		AllowCredentials: true,
	}))
	r.GET("/v1/stats", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Origin", "https://law.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://law.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidateCORSOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    mwopts.CORSOptions
		wantErr bool
	}{
		{"wildcard", mwopts.CORSOptions{AllowOrigins: []string{"*"}}, false},
		{"empty", mwopts.CORSOptions{}, true},
		{"wildcard_with_credentials", mwopts.CORSOptions{AllowOrigins: []string{"*"}, AllowCredentials: true}, true},
		{"missing_scheme", mwopts.CORSOptions{AllowOrigins: []string{"law.example"}}, true},
		{"with_path", mwopts.CORSOptions{AllowOrigins: []string{"https://law.example/api"}}, true},
		{"with_port", mwopts.CORSOptions{AllowOrigins: []string{"http://localhost:3000"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCORSOptions(tt.opts)
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}

	assert.Panics(t, func() { CORSWithOptions(mwopts.CORSOptions{}) })
}
