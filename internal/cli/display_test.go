package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/RevCBH/berth/internal/store"
	"github.com/RevCBH/berth/internal/workload"
)

func TestGetRunSymbol(t *testing.T) {
	assert.Equal(t, SymbolRunning, GetRunSymbol(store.RunStatusRunning))
	assert.Equal(t, SymbolStopped, GetRunSymbol(store.RunStatusStopped))
	assert.Equal(t, SymbolFailed, GetRunSymbol(store.RunStatusFailed))
}

func TestFormatPlan_SkippedAndDependencies(t *testing.T) {
	ordered := []workload.Workload{
		{Name: "postgres:16", Alias: "db"},
		{Name: "seed", Run: workload.RunSpec{Skip: true}},
		{Name: "example/api", Alias: "api", Run: workload.RunSpec{DependsOn: []string{"db"}}},
	}

	got := FormatPlan("demo", ordered, DisplayConfig{})

	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	assert.Equal(t, []string{
		"Start order for demo (3 workloads)",
		`  1. ● [postgres:16] "db"`,
		"  2. - [seed] (skipped)",
		`  3. ● [example/api] "api"`,
		"       → needs db",
	}, lines)
}

func TestFormatRuns(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	stopped := started.Add(90 * time.Second)
	errMsg := "db: start container: boom"

	runs := []*store.Run{
		{ID: "b2", Status: store.RunStatusRunning, Workloads: 3, StartedAt: started},
		{ID: "b1", Status: store.RunStatusFailed, Workloads: 1, StartedAt: started, StoppedAt: &stopped, Error: &errMsg},
	}

	got := FormatRuns("demo", runs, DisplayConfig{Now: started.Add(time.Minute)})

	assert.Contains(t, got, "Batches for demo")
	assert.Contains(t, got, "● b2  running  3 containers")
	assert.Contains(t, got, "up 1m0s")
	assert.Contains(t, got, "✗ b1  failed   1 containers")
	assert.Contains(t, got, "ran 1m30s")
	assert.Contains(t, got, errMsg)
}

func TestFormatRuns_Empty(t *testing.T) {
	got := FormatRuns("demo", nil, DisplayConfig{})
	assert.Equal(t, "Batches for demo\n  No batches recorded\n", got)
}
