package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/subtrack/internal/app"
	"github.com/felixgeelhaar/subtrack/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:                 "test",
		HTTPAddr:               "127.0.0.1:0",
		ServerURL:              "http://subtrack.test",
		AuthUserHeader:         "X-User-ID",
		CORSAllowedOrigins:     []string{"*"},
		SQLitePath:             filepath.Join(t.TempDir(), "subtrack.db"),
		WorkflowTimeout:        time.Second,
		WorkflowInlineDispatch: true,
		ReminderRunTTL:         time.Hour,
		OutboxPollInterval:     10 * time.Millisecond,
		OutboxBatchSize:        10,
		OutboxMaxRetries:       3,
		OutboxProcessorEnabled: true,
	}
}

func withApp(t *testing.T, c *app.Container, cfg *config.Config) {
	t.Helper()
	SetApp(c)
	SetConfig(cfg)
	t.Cleanup(func() {
		SetApp(nil)
		SetConfig(nil)
	})
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "subtrack dev")
	assert.Contains(t, out, "commit: none")
}

func TestHealthCommand(t *testing.T) {
	cfg := testConfig(t)
	c := app.NewInMemoryContainer(cfg, nil)
	t.Cleanup(c.Close)
	withApp(t, c, cfg)

	out, err := run(t, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "status: healthy")
	assert.Contains(t, out, "workflow")
}

func TestHealthCommand_RequiresApp(t *testing.T) {
	withApp(t, nil, nil)

	_, err := run(t, "health")
	assert.ErrorIs(t, err, errAppNotInitialized)
}

func TestMigrateCommand_SQLite(t *testing.T) {
	cfg := testConfig(t)
	withApp(t, nil, cfg)

	for i := 0; i < 2; i++ {
		out, err := run(t, "migrate")
		require.NoError(t, err)
		assert.Contains(t, out, "SQLite schema is up to date")
	}
}

func TestMigrateCommand_RequiresConfig(t *testing.T) {
	withApp(t, nil, nil)

	_, err := run(t, "migrate")
	assert.Error(t, err)
}

func TestNewAPIServer_ServesContainerHandlers(t *testing.T) {
	cfg := testConfig(t)
	c := app.NewInMemoryContainer(cfg, nil)
	t.Cleanup(c.Close)

	server := NewAPIServer(c, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	c := app.NewInMemoryContainer(cfg, nil)
	t.Cleanup(c.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, c, NewAPIServer(c, "127.0.0.1:0"), true)
	}()

	require.Eventually(t, c.OutboxProcessor.IsRunning, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	assert.False(t, c.OutboxProcessor.IsRunning())
}
