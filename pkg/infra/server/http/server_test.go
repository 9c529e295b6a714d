package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bdlaw/pkg/infra/middleware"
	options "github.com/kart-io/bdlaw/pkg/options/http"
	apierrors "github.com/kart-io/bdlaw/pkg/utils/errors"
	"github.com/kart-io/bdlaw/pkg/utils/json"
)

func testOptions() *options.Options {
	opts := options.NewOptions()
	opts.Addr = "127.0.0.1:0"
	opts.Mode = gin.TestMode
	return opts
}

func TestServerMiddlewareChain(t *testing.T) {
	s := NewServer(testOptions())
	s.Engine().GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))

	var body struct {
		Code      int    `json:"code"`
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apierrors.ErrPanic.Code, body.Code)
	assert.Equal(t, w.Header().Get(middleware.HeaderXRequestID), body.RequestID)
}

func TestServerNoRoute(t *testing.T) {
	s := NewServer(testOptions())
	s.Engine().GET("/only-get", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/only-get", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerStartStop(t *testing.T) {
	s := NewServer(testOptions())
	s.Engine().GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "second start must fail")

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(data))

	require.NoError(t, s.Stop(context.Background()))
}

func TestServerStartBindError(t *testing.T) {
	first := NewServer(testOptions())
	require.NoError(t, first.Start(context.Background()))
	defer func() { _ = first.Stop(context.Background()) }()

	opts := testOptions()
	opts.Addr = first.Addr()
	assert.Error(t, NewServer(opts).Start(context.Background()))
}
