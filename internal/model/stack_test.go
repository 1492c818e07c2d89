package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopologyServiceLookup(t *testing.T) {
	topo := &Topology{
		Name:    "demo",
		Network: "demo-net",
		Services: []Service{
			{Name: "db", ContainerPort: 5432},
			{Name: "api", ContainerPort: 3000},
		},
	}

	assert.Equal(t, 3000, topo.Service("api").ContainerPort)
	assert.Nil(t, topo.Service("nope"))

	// The pointer aliases the slice entry, so callers can mutate in place.
	topo.Service("api").Port = 8081
	assert.Equal(t, 8081, topo.Services[1].Port)
}

func TestPlanChanged(t *testing.T) {
	plan := &Plan{Network: NetworkNone, Actions: []Action{
		{Service: "db", Op: OpNone},
		{Service: "api", Op: OpNone},
	}}
	assert.False(t, plan.Changed())

	plan.Actions[1].Op = OpStart
	assert.True(t, plan.Changed())

	plan.Actions[1].Op = OpNone
	plan.Network = NetworkCreate
	assert.True(t, plan.Changed())
}

func TestReportFailed(t *testing.T) {
	report := &Report{Results: []ServiceResult{
		{Service: "db", Status: ResultOK},
		{Service: "api", Status: ResultOK},
	}}
	assert.False(t, report.Failed())

	report.Results[1].Status = ResultBlocked
	assert.True(t, report.Failed())
}
