package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/stackd/internal/model"
	"github.com/edvin/stackd/internal/runtime"
)

func TestBuildContainerSpecEnvBindings(t *testing.T) {
	topo := &model.Topology{
		Name:    "demo",
		Network: "demo-net",
		Services: []model.Service{
			{Name: "db", Image: "postgres:16", ContainerPort: 5432},
			{Name: "task-queue", Image: "redis:7", ContainerPort: 6379},
			{
				Name:          "api",
				Image:         "demo/api:1",
				Port:          8081,
				ContainerPort: 3000,
				DependsOn:     []string{"db", "task-queue"},
				Env:           map[string]string{"FEATURE": "on"},
			},
		},
	}

	spec := buildContainerSpec(topo, topo.Service("api"))

	assert.Equal(t, "api", spec.Name)
	assert.Equal(t, "demo-net", spec.Network)
	assert.Equal(t, "3000", spec.Env["PORT"])
	assert.Equal(t, "on", spec.Env["FEATURE"])

	// Dependencies resolve by service name over the shared network; the
	// env prefix upper-cases the name and folds separators to underscores.
	assert.Equal(t, "db", spec.Env["DB_HOST"])
	assert.Equal(t, "5432", spec.Env["DB_PORT"])
	assert.Equal(t, "task-queue", spec.Env["TASK_QUEUE_HOST"])
	assert.Equal(t, "6379", spec.Env["TASK_QUEUE_PORT"])
}

func TestBuildContainerSpecLabels(t *testing.T) {
	topo := testTopology()

	spec := buildContainerSpec(topo, topo.Service("api"))

	assert.Equal(t, "demo", spec.Labels[runtime.LabelStack])
	assert.Equal(t, "api", spec.Labels[runtime.LabelService])
	assert.NotEmpty(t, spec.Labels[runtime.LabelConfigHash])
}

func TestBuildContainerSpecHealthCheck(t *testing.T) {
	topo := testTopology()
	topo.Service("db").Health = &model.HealthCheck{
		Test:        []string{"CMD-SHELL", "pg_isready"},
		Interval:    5 * time.Second,
		Timeout:     3 * time.Second,
		Retries:     5,
		StartPeriod: 10 * time.Second,
	}

	spec := buildContainerSpec(topo, topo.Service("db"))

	require.NotNil(t, spec.HealthCheck)
	assert.Equal(t, []string{"CMD-SHELL", "pg_isready"}, spec.HealthCheck.Test)
	assert.Equal(t, 10*time.Second, spec.HealthCheck.StartPeriod)
}

func TestConfigHashIsStable(t *testing.T) {
	topo := testTopology()

	first := buildContainerSpec(topo, topo.Service("api")).Labels[runtime.LabelConfigHash]
	second := buildContainerSpec(topo, topo.Service("api")).Labels[runtime.LabelConfigHash]
	assert.Equal(t, first, second)
}

func TestConfigHashChangesWithConfiguration(t *testing.T) {
	topo := testTopology()
	base := buildContainerSpec(topo, topo.Service("api")).Labels[runtime.LabelConfigHash]

	envChanged := testTopology()
	envChanged.Service("api").Env = map[string]string{"FEATURE": "on"}
	assert.NotEqual(t, base, buildContainerSpec(envChanged, envChanged.Service("api")).Labels[runtime.LabelConfigHash])

	imageChanged := testTopology()
	imageChanged.Service("api").Image = "demo/api:2"
	assert.NotEqual(t, base, buildContainerSpec(imageChanged, imageChanged.Service("api")).Labels[runtime.LabelConfigHash])

	portChanged := testTopology()
	portChanged.Service("api").Port = 9999
	assert.NotEqual(t, base, buildContainerSpec(portChanged, portChanged.Service("api")).Labels[runtime.LabelConfigHash])
}

func TestEnvPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "db", want: "DB"},
		{in: "task-queue", want: "TASK_QUEUE"},
		{in: "svc.internal", want: "SVC_INTERNAL"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, envPrefix(tc.in))
	}
}
