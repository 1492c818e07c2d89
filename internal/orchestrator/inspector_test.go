package orchestrator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/stackd/internal/model"
	"github.com/edvin/stackd/internal/runtime"
)

func TestStatusAbsent(t *testing.T) {
	fake := runtime.NewFake()
	insp := NewStateInspector(fake)

	state, hash, err := insp.Status(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, model.StateAbsent, state)
	assert.Empty(t, hash)
}

func TestStatusRunningAndStopped(t *testing.T) {
	fake := runtime.NewFake()
	insp := NewStateInspector(fake)
	ctx := context.Background()

	require.NoError(t, fake.CreateNetwork(ctx, "demo-net"))
	_, err := fake.CreateContainer(ctx, runtime.ContainerSpec{
		Name:    "api",
		Image:   "demo/api:1",
		Network: "demo-net",
		Labels:  map[string]string{runtime.LabelConfigHash: "abc123"},
	})
	require.NoError(t, err)

	state, hash, err := insp.Status(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, model.StateStopped, state)
	assert.Equal(t, "abc123", hash)

	require.NoError(t, fake.StartContainer(ctx, "api"))
	state, hash, err = insp.Status(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, model.StateRunning, state)
	assert.Equal(t, "abc123", hash)
}

func TestStatusUnhealthy(t *testing.T) {
	fake := runtime.NewFake()
	insp := NewStateInspector(fake)
	ctx := context.Background()

	require.NoError(t, fake.CreateNetwork(ctx, "demo-net"))
	_, err := fake.CreateContainer(ctx, runtime.ContainerSpec{
		Name: "api", Image: "demo/api:1", Network: "demo-net",
	})
	require.NoError(t, err)
	require.NoError(t, fake.StartContainer(ctx, "api"))
	fake.Unhealthy["api"] = true

	state, _, err := insp.Status(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, model.StateUnhealthy, state)
}

func TestNetworkProvisionerEnsureIsIdempotent(t *testing.T) {
	fake := runtime.NewFake()
	prov := NewNetworkProvisioner(zerolog.Nop(), fake)
	ctx := context.Background()

	require.NoError(t, prov.Ensure(ctx, "demo-net"))
	require.True(t, fake.HasNetwork("demo-net"))

	// A second ensure is a no-op, not an error.
	require.NoError(t, prov.Ensure(ctx, "demo-net"))
}

func TestNetworkProvisionerRemoveMissingIsNoop(t *testing.T) {
	fake := runtime.NewFake()
	prov := NewNetworkProvisioner(zerolog.Nop(), fake)

	require.NoError(t, prov.Remove(context.Background(), "demo-net"))
	assert.Zero(t, fake.MutatingCalls())
}
