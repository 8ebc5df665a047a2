package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/tbox/internal/kvstore"
	"github.com/loykin/tbox/internal/server"
	tlsutil "github.com/loykin/tbox/internal/tls"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := kvstore.NewFileStore(filepath.Join(t.TempDir(), "tbox.kv"))
	status := server.StatusFunc(func() server.Status {
		return server.Status{App: "tcu", Profile: "prod", Phase: "Running", StartedAt: time.Unix(1700000000, 0).UTC()}
	})
	ts := httptest.NewServer(server.NewRouter(status, store, "/api").Handler())
	t.Cleanup(ts.Close)
	return New(Config{
		BaseURL: ts.URL + "/api/",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestIsReachable(t *testing.T) {
	c := newTestClient(t)
	assert.True(t, c.IsReachable(context.Background()))

	dead := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 500 * time.Millisecond,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.False(t, dead.IsReachable(context.Background()))
}

func TestStatus(t *testing.T) {
	c := newTestClient(t)
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Running", st.Phase)
	assert.Equal(t, "prod", st.Profile)
	assert.Equal(t, int64(1700000000), st.StartedAt.Unix())
}

func TestValueLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, ok, err := c.GetValue(ctx, "iccid")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetValue(ctx, "iccid", "8949020000000000001"))
	v, ok, err := c.GetValue(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "8949020000000000001", v)

	require.NoError(t, c.DeleteValue(ctx, "iccid"))
	_, ok, err = c.GetValue(ctx, "iccid")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAPIErrors(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	err := c.SetValue(ctx, "vin", "bad=value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API error")

	_, _, err = c.GetValue(ctx, "odometer")
	require.Error(t, err)
}

func TestNonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer ts.Close()
	c := New(Config{BaseURL: ts.URL, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	_, err := c.Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestDefaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, 10*time.Second, c.client.Timeout)

	cfg := InsecureConfig()
	tlsCfg, err := setupClientTLS(cfg)
	require.NoError(t, err)
	assert.True(t, tlsCfg.InsecureSkipVerify)

	_, err = setupClientTLS(Config{TLS: &TLSClientConfig{Enabled: true, CACert: filepath.Join(t.TempDir(), "missing.pem")}})
	assert.Error(t, err)
}

func TestClientVerifiesSelfSignedCA(t *testing.T) {
	gin.SetMode(gin.TestMode)
	certDir := filepath.Join(t.TempDir(), "tls")
	tlsCfg, err := tlsutil.Setup(tlsutil.Development(certDir))
	require.NoError(t, err)
	store := kvstore.NewFileStore(filepath.Join(t.TempDir(), "tbox.kv"))
	srv, err := server.NewServer("127.0.0.1:0", "/api", nil, store, tlsCfg)
	require.NoError(t, err)
	defer func() { _ = srv.Close() }()

	base := "https://" + srv.Addr + "/api"
	ctx := context.Background()
	c := New(Config{BaseURL: base, TLS: &TLSClientConfig{Enabled: true, CACert: filepath.Join(certDir, tlsutil.CACertFile)}})
	assert.True(t, c.IsReachable(ctx))
	require.NoError(t, c.SetValue(ctx, "iccid", "8949020000000000001"))
	v, ok, err := c.GetValue(ctx, "iccid")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "8949020000000000001", v)

	untrusted := New(Config{BaseURL: base, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.False(t, untrusted.IsReachable(ctx))
}
