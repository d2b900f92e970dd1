package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/RevCBH/berth/internal/container"
	"github.com/RevCBH/berth/internal/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanImageName(t *testing.T) {
	tests := map[string]string{
		"redis":                          "redis",
		"redis:7":                        "redis",
		"library/postgres:16":            "postgres",
		"registry.local:5000/team/app:1": "app",
		"ghcr.io/org/tool@sha256:abcd":   "tool",
		"weird+name":                     "weird_name",
	}
	for image, want := range tests {
		assert.Equal(t, want, cleanImageName(image), image)
	}
}

func TestApplyNamePattern(t *testing.T) {
	w := workload.Workload{Name: "docker.io/library/nginx:1.25", Alias: "web"}

	assert.Equal(t, "shop-nginx-%i", applyNamePattern("%p-%n-%i", "shop", w, 0))
	assert.Equal(t, "web-1700000000000", applyNamePattern("%a-%t", "", w, 1700000000000))
	assert.Equal(t, "nginx-%i", applyNamePattern("%p-%n-%i", "", w, 0))
	assert.Equal(t, "x-%z-%", applyNamePattern("x-%z-%", "", w, 0))
	assert.Equal(t, "nginx", applyNamePattern("%a", "", workload.Workload{Name: "nginx"}, 0))
}

func TestFirstFreeIndex(t *testing.T) {
	existing := []container.Summary{{Name: "app-1"}, {Name: "app-2"}, {Name: "app-4"}}
	assert.Equal(t, "app-3", firstFreeIndex("app-%i", existing))
	assert.Equal(t, "db-1", firstFreeIndex("db-%i", existing))
}

func TestService_ContainerName(t *testing.T) {
	ts := newTestService(t, Config{Project: "p"}, nil)
	ts.now = func() time.Time { return time.UnixMilli(42) }
	ctx := context.Background()
	ts.runtime.addRunning("p-redis-1", "redis:7", nil)

	tests := []struct {
		name    string
		w       workload.Workload
		want    string
		wantErr string
	}{
		{"auto default", workload.Workload{Name: "redis:7"}, "p-redis-2", ""},
		{"auto per-workload pattern", workload.Workload{Name: "redis:7", Run: workload.RunSpec{NamePattern: "%n-%t"}}, "redis-42", ""},
		{"empty pattern", workload.Workload{Name: "redis:7", Run: workload.RunSpec{NamePattern: "%e"}}, "", ""},
		{"alias", workload.Workload{Name: "redis:7", Alias: "cache", Run: workload.RunSpec{Naming: workload.NamingAlias}}, "cache", ""},
		{"alias missing", workload.Workload{Name: "redis:7", Run: workload.RunSpec{Naming: workload.NamingAlias}}, "", "requires an alias"},
		{"none", workload.Workload{Name: "redis:7", Alias: "cache", Run: workload.RunSpec{Naming: workload.NamingNone}}, "", ""},
		{"unknown", workload.Workload{Name: "redis:7", Run: workload.RunSpec{Naming: "random"}}, "", "unknown naming strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ts.containerName(ctx, tt.w)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
