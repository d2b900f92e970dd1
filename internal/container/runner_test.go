package container_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/berth/internal/container"
	"github.com/RevCBH/berth/internal/testutil"
)

func TestCLIManager_CreateReturnsLastLine(t *testing.T) {
	runner := testutil.NewStubRunner()
	runner.Stub("create --name web nginx:1", "Trying to pull nginx:1...\nc0ffee\n", nil)
	mgr := container.NewCLIManagerWithRunner("podman", runner)

	id, err := mgr.Create(context.Background(), container.ContainerConfig{Image: "nginx:1", Name: "web"})
	require.NoError(t, err)
	assert.Equal(t, container.ContainerID("c0ffee"), id)
}

func TestCLIManager_StopPassesTimeoutSeconds(t *testing.T) {
	runner := testutil.NewStubRunner()
	runner.Stub("stop -t 3 abc", "abc\n", nil)
	mgr := container.NewCLIManagerWithRunner("docker", runner)

	require.NoError(t, mgr.Stop(context.Background(), "abc", 3*time.Second))
	assert.Equal(t, 1, runner.CallsFor("stop", "-t", "3", "abc"))
}

func TestCLIManager_InspectNotFound(t *testing.T) {
	runner := testutil.NewStubRunner()
	runner.StubFailure("inspect --type container gone", "Error: No such object: gone")
	mgr := container.NewCLIManagerWithRunner("docker", runner)

	_, err := mgr.Inspect(context.Background(), "gone")
	require.Error(t, err)
	assert.ErrorIs(t, err, container.ErrNotFound)
	assert.Contains(t, err.Error(), "No such object")
}

func TestCLIManager_InspectParsesOutput(t *testing.T) {
	runner := testutil.NewStubRunner()
	runner.Stub("inspect --type container abc", `[{
		"Id": "abc",
		"Name": "/demo-db-1",
		"State": {"Running": true, "Status": "running"},
		"Config": {"Image": "postgres:16", "Labels": {"berth.batch": "b1"}},
		"HostConfig": {"NetworkMode": "bridge"},
		"NetworkSettings": {"IPAddress": "172.17.0.3", "Ports": {"5432/tcp": [{"HostIp": "0.0.0.0", "HostPort": "15432"}]}}
	}]`, nil)
	mgr := container.NewCLIManagerWithRunner("docker", runner)

	d, err := mgr.Inspect(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "demo-db-1", d.Name)
	assert.True(t, d.Running)
	assert.Equal(t, "b1", d.Labels["berth.batch"])

	hp, ok := d.HostPortFor(5432)
	require.True(t, ok)
	assert.Equal(t, 15432, hp.Port)
}

func TestCLIManager_ImageExists(t *testing.T) {
	runner := testutil.NewStubRunner()
	runner.Stub("image inspect redis:7", "[{}]", nil)
	runner.StubFailure("image inspect missing:1", "Error: No such image: missing:1")
	runner.StubFailure("image inspect broken:1", "Cannot connect to the Docker daemon")
	mgr := container.NewCLIManagerWithRunner("docker", runner)
	ctx := context.Background()

	ok, err := mgr.ImageExists(ctx, "redis:7")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mgr.ImageExists(ctx, "missing:1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = mgr.ImageExists(ctx, "broken:1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, container.ErrNotFound)
	assert.Contains(t, err.Error(), "Cannot connect")
}

func TestCLIManager_ListContainersByLabel(t *testing.T) {
	runner := testutil.NewStubRunner()
	runner.Stub("ps --no-trunc --format {{.ID}}\t{{.Names}} -a --filter label=berth.batch=b1",
		"aaa\tdemo-db-1\nbbb\tdemo-api-1\n\n", nil)
	mgr := container.NewCLIManagerWithRunner("docker", runner)

	list, err := mgr.ListContainers(context.Background(), container.ListFilter{
		Labels: []string{"berth.batch=b1"},
		All:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, []container.Summary{
		{ID: "aaa", Name: "demo-db-1"},
		{ID: "bbb", Name: "demo-api-1"},
	}, list)
}

func TestCLIManager_ListNetworks(t *testing.T) {
	runner := testutil.NewStubRunner()
	runner.Stub("network ls --no-trunc --format {{.ID}}\t{{.Name}}\t{{.Driver}}",
		"n1\tbridge\tbridge\nn2\tbackend\tbridge\n", nil)
	mgr := container.NewCLIManagerWithRunner("docker", runner)

	nets, err := mgr.ListNetworks(context.Background())
	require.NoError(t, err)
	require.Len(t, nets, 2)
	assert.Equal(t, container.Network{ID: "n2", Name: "backend", Driver: "bridge"}, nets[1])
}

func TestCLIManager_Exec(t *testing.T) {
	runner := testutil.NewStubRunner()
	runner.Stub("exec abc redis-cli ping", "PONG\n", nil)
	runner.StubFailure("exec gone redis-cli ping", "Error: No such container: gone")
	runner.StubFailure("exec abc nope", `OCI runtime exec failed: exec: "nope": executable file not found in $PATH`)
	mgr := container.NewCLIManagerWithRunner("docker", runner)
	ctx := context.Background()

	out, err := mgr.Exec(ctx, "abc", []string{"redis-cli", "ping"})
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", out)

	_, err = mgr.Exec(ctx, "gone", []string{"redis-cli", "ping"})
	require.ErrorIs(t, err, container.ErrNotFound)
	assert.Contains(t, err.Error(), `failed to exec "redis-cli ping"`)

	_, err = mgr.Exec(ctx, "abc", []string{"nope"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, container.ErrNotFound)
	assert.Contains(t, err.Error(), "executable file not found")

	_, err = mgr.Exec(ctx, "abc", nil)
	require.Error(t, err)
	assert.Equal(t, 1, runner.CallsFor("exec", "abc", "redis-cli", "ping"))
}

func TestCLIManager_UnexpectedCall(t *testing.T) {
	mgr := container.NewCLIManagerWithRunner("docker", testutil.NewStubRunner())

	err := mgr.Start(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected docker call: start abc")
}
