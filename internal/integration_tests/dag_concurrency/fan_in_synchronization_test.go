package integration_tests

import (
	"testing"
	"time"

	"github.com/vk/gridcrawl/internal/testutil"
)

// Test for: Fan-in synchronization waits for all parallel nodes.
func TestDagConcurrency_FanInSynchronization(t *testing.T) {
	planHCL := `
		page "A" {}
		page "B" {}
		page "C" {}
		page "D" {
			depends_on = ["A", "B", "C"]
		}
	`
	rec := testutil.NewRecorder(100 * time.Millisecond)

	runPlan(t, planHCL, 4, rec)

	records := rec.Records()
	latestPrereqEndTime := records["A"].End
	if records["B"].End.After(latestPrereqEndTime) {
		latestPrereqEndTime = records["B"].End
	}
	if records["C"].End.After(latestPrereqEndTime) {
		latestPrereqEndTime = records["C"].End
	}

	if records["D"].Start.Before(latestPrereqEndTime) {
		t.Errorf("fan-in synchronization failed: page D started before all prerequisites were complete")
	}
}
