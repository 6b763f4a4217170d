package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/gridcrawl/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. The report is
// captured in out and debug logs in logs. The app is closed when the test ends.
func SetupAppTest(t *testing.T, cfg Config, opts ...Option) (a *App, out, logs *testutil.SafeBuffer) {
	t.Helper()

	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	cfg.LogLevel = "debug"
	config, err := NewConfig(cfg)
	require.NoError(t, err)

	out, logs = &testutil.SafeBuffer{}, &testutil.SafeBuffer{}
	a, err = NewApp(context.Background(), out, logs, config, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = a.Close()
		if testutil.LogsEnabled() {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return a, out, logs
}
