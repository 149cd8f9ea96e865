package httpserver

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/m600-assistant/internal/config"
	appmetrics "github.com/taoyao-code/m600-assistant/internal/metrics"
)

func TestMetricsAndPprof(t *testing.T) {
	cfg := cfgpkg.HTTPConfig{
		Addr:        ":0",
		ReadTimeout: time.Second,
		Pprof:       cfgpkg.HTTPPprof{Enable: true, Prefix: "/debug/pprof"},
	}
	reg := appmetrics.NewRegistry()
	srv := New(cfg, "/metrics", appmetrics.Handler(reg), nil)

	for path, code := range map[string]int{
		"/metrics":             http.StatusOK,
		"/debug/pprof/":        http.StatusOK,
		"/debug/pprof/cmdline": http.StatusOK,
		"/missing":             http.StatusNotFound,
	} {
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, code, rr.Code, path)
	}
}

func TestPprofDisabled(t *testing.T) {
	srv := New(cfgpkg.HTTPConfig{Addr: ":0"}, "", nil, nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServeAndShutdown(t *testing.T) {
	srv := New(cfgpkg.HTTPConfig{Addr: "127.0.0.1:0"}, "/metrics", appmetrics.Handler(appmetrics.NewRegistry()), nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errC := make(chan error, 1)
	go func() { errC <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-errC)
}
