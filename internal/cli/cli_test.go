package cli

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusRuns(t *testing.T, app *App) []runJSON {
	t.Helper()
	out, err := execute(context.Background(), app, "status", "--json")
	require.NoError(t, err)
	var runs []runJSON
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	return runs
}

func TestUp_DetachRecordsRun(t *testing.T) {
	rt := newFakeRuntime()
	app, _ := newTestApp(t, rt, testConfig)

	out, err := execute(context.Background(), app, "up", "--detach", "--no-tui", "--batch", "b1")
	require.NoError(t, err)

	assert.Contains(t, out, "Batch b1 started 2 containers")
	assert.Equal(t, 2, rt.running())
	assert.Equal(t, 2, rt.count("pull"))

	runs := statusRuns(t, app)
	require.Len(t, runs, 1)
	assert.Equal(t, "b1", runs[0].ID)
	assert.Equal(t, "running", runs[0].Status)
	assert.Equal(t, 2, runs[0].Workloads)
}

func TestUp_PrintsEvents(t *testing.T) {
	rt := newFakeRuntime()
	app, _ := newTestApp(t, rt, testConfig)

	out, err := execute(context.Background(), app, "up", "--detach", "--no-tui", "--json", "--batch", "b1")
	require.NoError(t, err)

	var types []string
	for _, line := range strings.Split(out, "\n") {
		var e struct {
			Type string `json:"type"`
		}
		if json.Unmarshal([]byte(line), &e) == nil && e.Type != "" {
			types = append(types, e.Type)
		}
	}
	assert.Contains(t, types, "batch.started")
	assert.Contains(t, types, "workload.ready")
	assert.Contains(t, types, "batch.ready")
}

func TestDown_StopsLatestRunningBatch(t *testing.T) {
	rt := newFakeRuntime()
	app, _ := newTestApp(t, rt, testConfig)

	_, err := execute(context.Background(), app, "up", "--detach", "--no-tui", "--batch", "b1")
	require.NoError(t, err)
	require.Equal(t, 2, rt.running())

	_, err = execute(context.Background(), app, "down")
	require.NoError(t, err)

	assert.Equal(t, 0, rt.running())
	assert.Equal(t, 2, rt.count("remove"))

	runs := statusRuns(t, app)
	require.Len(t, runs, 1)
	assert.Equal(t, "stopped", runs[0].Status)
	assert.NotNil(t, runs[0].StoppedAt)
}

func TestDown_KeepLeavesContainers(t *testing.T) {
	rt := newFakeRuntime()
	app, _ := newTestApp(t, rt, testConfig)

	_, err := execute(context.Background(), app, "up", "--detach", "--no-tui", "--batch", "b1")
	require.NoError(t, err)

	_, err = execute(context.Background(), app, "down", "--batch", "b1", "--keep")
	require.NoError(t, err)

	assert.Equal(t, 0, rt.running())
	assert.Equal(t, 2, rt.count("stop"))
	assert.Equal(t, 0, rt.count("remove"))
}

func TestDown_NoRunningBatch(t *testing.T) {
	app, _ := newTestApp(t, newFakeRuntime(), testConfig)

	_, err := execute(context.Background(), app, "down")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no running batch")
}

func TestUp_ForegroundTearsDownOnCancel(t *testing.T) {
	rt := newFakeRuntime()
	app, _ := newTestApp(t, rt, testConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := execute(ctx, app, "up", "--no-tui", "--batch", "fg")
		done <- err
	}()

	require.Eventually(t, func() bool { return rt.running() == 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("up did not return after cancel")
	}

	assert.Equal(t, 0, rt.running())
	assert.Equal(t, 2, rt.count("remove"))

	runs := statusRuns(t, app)
	require.Len(t, runs, 1)
	assert.Equal(t, "stopped", runs[0].Status)
}

func TestUp_StartFailureRecordsFailedRun(t *testing.T) {
	rt := newFakeRuntime()
	rt.startErr = errors.New("port is already allocated")
	app, _ := newTestApp(t, rt, testConfig)

	_, err := execute(context.Background(), app, "up", "--no-tui", "--batch", "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port is already allocated")
	assert.Equal(t, 0, rt.running())

	runs := statusRuns(t, app)
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].Status)
	require.NotNil(t, runs[0].Error)
	assert.Contains(t, *runs[0].Error, "port is already allocated")
}

func TestUp_NoWorkloads(t *testing.T) {
	app, _ := newTestApp(t, newFakeRuntime(), "project: empty\n")

	_, err := execute(context.Background(), app, "up", "--no-tui")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no workloads defined")
}

func TestUpOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    UpOptions
		wantErr string
	}{
		{name: "defaults", opts: UpOptions{}},
		{name: "detach without tui", opts: UpOptions{Detach: true, NoTUI: true}},
		{name: "watch with detach", opts: UpOptions{Detach: true, Watch: true}, wantErr: "--detach"},
		{name: "json needs no-tui", opts: UpOptions{JSON: true}, wantErr: "--json requires --no-tui"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPlan_Text(t *testing.T) {
	app, _ := newTestApp(t, newFakeRuntime(), testConfig)

	out, err := execute(context.Background(), app, "plan")
	require.NoError(t, err)

	assert.Contains(t, out, "Start order for demo (2 workloads)")
	db := strings.Index(out, `[postgres:16] "db"`)
	api := strings.Index(out, `[example/api:latest] "api"`)
	require.NotEqual(t, -1, db)
	require.NotEqual(t, -1, api)
	assert.Less(t, db, api)
	assert.Contains(t, out, "needs db")
}

func TestPlan_JSON(t *testing.T) {
	app, _ := newTestApp(t, newFakeRuntime(), testConfig)

	out, err := execute(context.Background(), app, "plan", "--json")
	require.NoError(t, err)

	var entries []planEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "db", entries[0].Alias)
	assert.Equal(t, 1, entries[0].Position)
	assert.Equal(t, "api", entries[1].Alias)
	assert.Equal(t, []string{"db"}, entries[1].Dependencies)
}

func TestPlan_UnresolvedDependency(t *testing.T) {
	cfg := `project: demo
workloads:
  - name: example/api:latest
    run:
      depends_on: [missing]
`
	app, _ := newTestApp(t, newFakeRuntime(), cfg)

	_, err := execute(context.Background(), app, "plan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestStatus_Empty(t *testing.T) {
	app, _ := newTestApp(t, newFakeRuntime(), testConfig)

	out, err := execute(context.Background(), app, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Batches for demo")
	assert.Contains(t, out, "No batches recorded")
}

func TestStatus_PulledImages(t *testing.T) {
	rt := newFakeRuntime()
	app, _ := newTestApp(t, rt, testConfig)

	out, err := execute(context.Background(), app, "status", "--pulled")
	require.NoError(t, err)
	assert.Contains(t, out, "No images pulled yet")

	_, err = execute(context.Background(), app, "up", "--detach", "--no-tui", "--batch", "b1")
	require.NoError(t, err)

	out, err = execute(context.Background(), app, "status", "--pulled", "--json")
	require.NoError(t, err)
	var images []string
	require.NoError(t, json.Unmarshal([]byte(out), &images))
	assert.Equal(t, []string{"example/api:latest", "postgres:16"}, images)
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := newLogger("chatty", false, false, &syncBuffer{})
	require.Error(t, err)
}

func TestNewLogger_JSONWhenNotConsole(t *testing.T) {
	sink := &syncBuffer{}
	logger, err := newLogger("info", false, false, sink)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown")

	out := sink.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
}

func TestNewLogger_VerboseEnablesDebug(t *testing.T) {
	sink := &syncBuffer{}
	logger, err := newLogger("warn", true, true, sink)
	require.NoError(t, err)

	logger.Debug("details")
	assert.Contains(t, sink.String(), "details")
}
