package integration_tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridcrawl/internal/app"
	"github.com/vk/gridcrawl/internal/scheduler"
	"github.com/vk/gridcrawl/internal/testutil"
)

// Test for: A plan whose pages depend on each other in a loop never runs.
func TestErrorHandling_CycleIsRejected(t *testing.T) {
	testCases := []struct {
		name string
		plan string
	}{
		{
			name: "two page loop",
			plan: `
				page "A" { depends_on = ["B"] }
				page "B" { depends_on = ["A"] }
			`,
		},
		{
			name: "self dependency",
			plan: `page "A" { depends_on = ["A"] }`,
		},
		{
			name: "loop behind a healthy root",
			plan: `
				page "root" {}
				page "X" { depends_on = ["root", "Z"] }
				page "Y" { depends_on = ["X"] }
				page "Z" { depends_on = ["Y"] }
			`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := testutil.WriteFiles(t, map[string]string{"main.hcl": tc.plan})
			rec := testutil.NewRecorder(0)

			testApp, out, _ := app.SetupAppTest(t, app.Config{PlanPath: root}, app.WithExecutor(rec))
			err := testApp.Run(context.Background())
			require.ErrorIs(t, err, scheduler.ErrCycle)
			assert.Zero(t, rec.Calls(), "no page may run when the plan has a cycle")
			assert.Empty(t, out.String())
		})
	}
}
