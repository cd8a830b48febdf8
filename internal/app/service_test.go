package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"checkengine/internal/clock"
	"checkengine/internal/config"

	"github.com/stretchr/testify/require"
)

func writeServiceConfig(t *testing.T, body string) config.ConfigSource {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkengine.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	source, err := config.FromCLI(path, "")
	require.NoError(t, err)
	return source
}

func singleModeConfig(t *testing.T) string {
	return `[service]
mode = "single"
check_interval_sec = 1

[log.console]
level = "error"

[ingest.http]
enabled = true
listen = "127.0.0.1:0"

[metrics]
enabled = true

[autochecks]
dir = "` + filepath.ToSlash(t.TempDir()) + `"

[host.web01]
address = "10.0.0.21"
`
}

func TestServiceHTTPRoutes(t *testing.T) {
	service, err := NewService(writeServiceConfig(t, singleModeConfig(t)), clock.RealClock{})
	require.NoError(t, err)
	defer func() { require.NoError(t, service.shutdown()) }()

	handler := service.httpSrv.Handler

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := `{"dt":1700000000000,"host":"web01","payload":"<<<df>>>\n/dev/sda1 ext4 1000 100 900 10% /\n<<<uptime>>>\n60.0"}`
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, service.Checker().Snapshot(), 1)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/discover?host=web01", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var discovered struct {
		Services []struct {
			CheckPluginName string `json:"check_plugin_name"`
			Item            string `json:"item"`
		} `json:"services"`
		HostLabels []struct {
			Name string `json:"name"`
		} `json:"host_labels"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &discovered))
	require.Len(t, discovered.Services, 2)
	require.Equal(t, "df", discovered.Services[0].CheckPluginName)
	require.Equal(t, "/", discovered.Services[0].Item)
	require.Equal(t, "filesystem/ext4", discovered.HostLabels[0].Name)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingest/discover?host=web01", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `checkengine_ingest_payloads_total{outcome="accepted",transport="http"} 1`)
}

func TestServiceRunStopsOnContextCancel(t *testing.T) {
	service, err := NewService(writeServiceConfig(t, singleModeConfig(t)), clock.RealClock{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	require.Eventually(t, service.readyFlag.Load, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("service did not stop")
	}
	require.False(t, service.readyFlag.Load())
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewService(writeServiceConfig(t, "[service]\nmode = \"bogus\"\n"), clock.RealClock{})
	require.ErrorContains(t, err, "service.mode")
}
