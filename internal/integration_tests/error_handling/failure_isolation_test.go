package integration_tests

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridcrawl/internal/app"
	"github.com/vk/gridcrawl/internal/task"
	"github.com/vk/gridcrawl/internal/testutil"
)

// Test for: A failed page does not stop unrelated pages or its dependents
// under the default policy.
func TestErrorHandling_FailureIsolation(t *testing.T) {
	root := testutil.WriteFiles(t, map[string]string{"main.hcl": `
		page "good" {}
		page "bad" {}
		page "after_bad" { depends_on = ["bad"] }
	`})
	rec := testutil.NewRecorder(0).FailOn("bad", errors.New("connection refused"))

	testApp, out, _ := app.SetupAppTest(t, app.Config{PlanPath: root}, app.WithExecutor(rec))
	err := testApp.Run(context.Background())
	require.ErrorIs(t, err, app.ErrTasksFailed)

	assert.Equal(t, 3, rec.Calls())
	assert.Equal(t,
		"good\tOK\t15 bytes\n"+
			"bad\tERROR\tconnection refused\n"+
			"after_bad\tOK\t20 bytes\n",
		out.String())

	res, ok := testApp.Store().Result("bad")
	require.True(t, ok)
	assert.Equal(t, task.FailureMarker, res.String())
}
