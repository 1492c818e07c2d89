package proxy

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/stackd/internal/model"
)

func testPool(t *testing.T) *Pool {
	t.Helper()
	return NewPool(zerolog.Nop(), []model.UpstreamGroup{
		{
			Name:       "api",
			Members:    []string{"127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9003"},
			PoolSize:   4,
			HealthPath: "/healthz",
		},
	}, 2)
}

func TestAcquireRoundRobin(t *testing.T) {
	p := testPool(t)

	var got []string
	for i := 0; i < 6; i++ {
		m, err := p.Acquire("api")
		require.NoError(t, err)
		got = append(got, m.Addr)
		p.Release(m)
	}

	assert.Equal(t, []string{
		"127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9003",
		"127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9003",
	}, got)
}

func TestAcquireSkipsUnhealthyMembers(t *testing.T) {
	p := testPool(t)
	p.MarkHealth("api", "127.0.0.1:9002", false)

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		m, err := p.Acquire("api")
		require.NoError(t, err)
		seen[m.Addr]++
		p.Release(m)
	}

	assert.Zero(t, seen["127.0.0.1:9002"])
	assert.Equal(t, 2, seen["127.0.0.1:9001"])
	assert.Equal(t, 2, seen["127.0.0.1:9003"])
}

func TestAcquireWholeGroupDown(t *testing.T) {
	p := testPool(t)
	for _, addr := range []string{"127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9003"} {
		p.MarkHealth("api", addr, false)
	}

	_, err := p.Acquire("api")
	require.ErrorIs(t, err, ErrNoHealthyUpstream)
}

func TestAcquireUnknownGroup(t *testing.T) {
	p := testPool(t)

	_, err := p.Acquire("nope")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoHealthyUpstream)
}

func TestAcquireReleaseTracksInflight(t *testing.T) {
	p := testPool(t)

	m, err := p.Acquire("api")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Inflight())

	p.Release(m)
	assert.Equal(t, 0, m.Inflight())

	// Double release must not go negative.
	p.Release(m)
	assert.Equal(t, 0, m.Inflight())
}

func TestObserveProbeEjectsImmediately(t *testing.T) {
	p := testPool(t)

	p.observeProbe("api", "127.0.0.1:9001", false)
	assert.False(t, p.member("api", "127.0.0.1:9001").Healthy())
}

func TestObserveProbeRejoinRequiresConsecutiveSuccesses(t *testing.T) {
	p := testPool(t)
	addr := "127.0.0.1:9001"

	p.observeProbe("api", addr, false)
	require.False(t, p.member("api", addr).Healthy())

	p.observeProbe("api", addr, true)
	assert.False(t, p.member("api", addr).Healthy(), "one success is not enough")

	p.observeProbe("api", addr, true)
	assert.True(t, p.member("api", addr).Healthy(), "rejoined after two consecutive successes")
}

func TestObserveProbeFailureResetsSuccessStreak(t *testing.T) {
	p := testPool(t)
	addr := "127.0.0.1:9001"

	p.observeProbe("api", addr, false)
	p.observeProbe("api", addr, true)
	p.observeProbe("api", addr, false)
	p.observeProbe("api", addr, true)

	assert.False(t, p.member("api", addr).Healthy(), "streak restarted after the second failure")

	p.observeProbe("api", addr, true)
	assert.True(t, p.member("api", addr).Healthy())
}

func TestMembersReturnsAllGroups(t *testing.T) {
	p := NewPool(zerolog.Nop(), []model.UpstreamGroup{
		{Name: "api", Members: []string{"127.0.0.1:9001"}, PoolSize: 2},
		{Name: "frontend", Members: []string{"127.0.0.1:9101", "127.0.0.1:9102"}, PoolSize: 2},
	}, 2)

	assert.Len(t, p.Members(), 3)
}
