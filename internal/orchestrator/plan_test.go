package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/stackd/internal/model"
)

func TestTopoOrderRespectsDependencies(t *testing.T) {
	topo := &model.Topology{
		Name:    "demo",
		Network: "demo-net",
		Services: []model.Service{
			{Name: "frontend", ContainerPort: 80, DependsOn: []string{"api"}},
			{Name: "api", ContainerPort: 3000, DependsOn: []string{"db", "cache"}},
			{Name: "cache", ContainerPort: 6379},
			{Name: "db", ContainerPort: 5432},
		},
	}

	order, err := topoOrder(topo)
	require.NoError(t, err)

	var names []string
	for _, svc := range order {
		names = append(names, svc.Name)
	}
	// Dependencies come first; services ready in the same round keep their
	// declaration order.
	assert.Equal(t, []string{"cache", "db", "api", "frontend"}, names)
}

func TestTopoOrderIndependentServicesKeepDeclarationOrder(t *testing.T) {
	topo := &model.Topology{
		Name:    "demo",
		Network: "demo-net",
		Services: []model.Service{
			{Name: "c", ContainerPort: 1},
			{Name: "a", ContainerPort: 2},
			{Name: "b", ContainerPort: 3},
		},
	}

	order, err := topoOrder(topo)
	require.NoError(t, err)

	var names []string
	for _, svc := range order {
		names = append(names, svc.Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func TestTopoOrderDetectsCycle(t *testing.T) {
	topo := &model.Topology{
		Name:    "demo",
		Network: "demo-net",
		Services: []model.Service{
			{Name: "a", ContainerPort: 1, DependsOn: []string{"b"}},
			{Name: "b", ContainerPort: 2, DependsOn: []string{"a"}},
		},
	}

	_, err := topoOrder(topo)
	require.ErrorIs(t, err, ErrCycle)
}

func TestTopoOrderSelfCycle(t *testing.T) {
	topo := &model.Topology{
		Name:    "demo",
		Network: "demo-net",
		Services: []model.Service{
			{Name: "a", ContainerPort: 1, DependsOn: []string{"a"}},
		},
	}

	_, err := topoOrder(topo)
	require.ErrorIs(t, err, ErrCycle)
}
