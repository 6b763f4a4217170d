package integration_tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/gridcrawl/internal/app"
	"github.com/vk/gridcrawl/internal/testutil"
)

// runPlan writes planHCL to a temporary directory and crawls it with rec.
func runPlan(t *testing.T, planHCL string, workers int, rec *testutil.Recorder) string {
	t.Helper()

	root := testutil.WriteFiles(t, map[string]string{"main.hcl": planHCL})
	testApp, out, _ := app.SetupAppTest(t, app.Config{PlanPath: root, Workers: workers}, app.WithExecutor(rec))
	require.NoError(t, testApp.Run(context.Background()))
	return out.String()
}
