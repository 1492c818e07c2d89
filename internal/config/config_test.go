package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/stackd/internal/model"
)

func writeStack(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullStack(t *testing.T) {
	stack, err := Load("testdata/stack.yaml")
	require.NoError(t, err)

	assert.Equal(t, "demo", stack.Topology.Name)
	assert.Equal(t, "demo-net", stack.Topology.Network)
	require.Len(t, stack.Topology.Services, 3)

	db := stack.Topology.Service("db")
	require.NotNil(t, db)
	assert.Equal(t, "postgres:16-alpine", db.Image)
	assert.Equal(t, 5432, db.ContainerPort)
	require.NotNil(t, db.Health)
	assert.Equal(t, 5*time.Second, db.Health.Interval)
	assert.Equal(t, 10*time.Second, db.Health.StartPeriod)
	assert.Equal(t, 5, db.Health.Retries)

	api := stack.Topology.Service("api")
	require.NotNil(t, api)
	assert.Equal(t, []string{"db"}, api.DependsOn)
	assert.Equal(t, 8081, api.Port)
	assert.Nil(t, api.Health)
}

func TestLoadProxyDefaults(t *testing.T) {
	stack, err := Load("testdata/stack.yaml")
	require.NoError(t, err)
	require.NotNil(t, stack.Proxy)

	// Explicit values survive, omitted ones take defaults.
	assert.Equal(t, ":8080", stack.Proxy.Listen)
	assert.Equal(t, 15*time.Second, stack.Proxy.RequestTimeout)
	assert.Equal(t, ":9090", stack.Proxy.AdminListen)
	assert.Equal(t, 10*time.Second, stack.Proxy.ProbeInterval)
	assert.Equal(t, 2*time.Second, stack.Proxy.ProbeTimeout)
	assert.Equal(t, 2, stack.Proxy.RejoinAfter)

	require.Len(t, stack.Proxy.Upstreams, 2)
	api := stack.Proxy.Upstreams[0]
	assert.Equal(t, 10, api.PoolSize)
	assert.Equal(t, "/healthz", api.HealthPath)
	frontend := stack.Proxy.Upstreams[1]
	assert.Equal(t, 4, frontend.PoolSize)
	assert.Equal(t, "/", frontend.HealthPath)

	require.Len(t, stack.Proxy.Zones, 1)
	assert.Equal(t, model.KeyByClientIP, stack.Proxy.Zones[0].KeyBy)
}

func TestLoadWithoutProxySection(t *testing.T) {
	stack, err := Load(writeStack(t, `
name: demo
network: demo-net
services:
  - name: api
    image: demo/api:1
    container_port: 3000
`))
	require.NoError(t, err)
	assert.Nil(t, stack.Proxy)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read stack file")
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeStack(t, "name: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse stack file")
}

func TestLoadRejectsInvalidStacks(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "bad service name",
			yaml: `
name: demo
network: demo-net
services:
  - name: "API Service"
    image: demo/api:1
    container_port: 3000
`,
			wantErr: "validation error",
		},
		{
			name: "duplicate service name",
			yaml: `
name: demo
network: demo-net
services:
  - name: api
    image: demo/api:1
    container_port: 3000
  - name: api
    image: demo/api:2
    container_port: 3001
`,
			wantErr: "duplicate service name",
		},
		{
			name: "unknown dependency",
			yaml: `
name: demo
network: demo-net
services:
  - name: api
    image: demo/api:1
    container_port: 3000
    depends_on: [db]
`,
			wantErr: "unknown service",
		},
		{
			name: "self dependency",
			yaml: `
name: demo
network: demo-net
services:
  - name: api
    image: demo/api:1
    container_port: 3000
    depends_on: [api]
`,
			wantErr: "depends on itself",
		},
		{
			name: "ip literal in host env",
			yaml: `
name: demo
network: demo-net
services:
  - name: api
    image: demo/api:1
    container_port: 3000
    env:
      DB_HOST: 192.168.1.10
`,
			wantErr: "not IP",
		},
		{
			name: "missing container port",
			yaml: `
name: demo
network: demo-net
services:
  - name: api
    image: demo/api:1
`,
			wantErr: "validation error",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeStack(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadRejectsInvalidProxy(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "missing catch-all",
			yaml: `
name: demo
network: demo-net
services:
  - name: api
    image: demo/api:1
    container_port: 3000
proxy:
  routes:
    - pattern: /api/
      match: prefix
      upstream: api
  upstreams:
    - name: api
      members: ["127.0.0.1:8081"]
`,
			wantErr: "catch-all",
		},
		{
			name: "unknown upstream",
			yaml: `
name: demo
network: demo-net
services:
  - name: api
    image: demo/api:1
    container_port: 3000
proxy:
  routes:
    - pattern: /
      match: prefix
      upstream: nope
  upstreams:
    - name: api
      members: ["127.0.0.1:8081"]
`,
			wantErr: "unknown upstream group",
		},
		{
			name: "unknown zone",
			yaml: `
name: demo
network: demo-net
services:
  - name: api
    image: demo/api:1
    container_port: 3000
proxy:
  routes:
    - pattern: /
      match: prefix
      upstream: api
      zone: nope
  upstreams:
    - name: api
      members: ["127.0.0.1:8081"]
`,
			wantErr: "unknown zone",
		},
		{
			name: "member without port",
			yaml: `
name: demo
network: demo-net
services:
  - name: api
    image: demo/api:1
    container_port: 3000
proxy:
  routes:
    - pattern: /
      match: prefix
      upstream: api
  upstreams:
    - name: api
      members: ["127.0.0.1"]
`,
			wantErr: "not host:port",
		},
		{
			name: "static route with upstream",
			yaml: `
name: demo
network: demo-net
services:
  - name: api
    image: demo/api:1
    container_port: 3000
proxy:
  routes:
    - pattern: /healthz
      match: exact
      static: true
      upstream: api
    - pattern: /
      match: prefix
      upstream: api
  upstreams:
    - name: api
      members: ["127.0.0.1:8081"]
`,
			wantErr: "static routes cannot target",
		},
		{
			name: "invalid regex route",
			yaml: `
name: demo
network: demo-net
services:
  - name: api
    image: demo/api:1
    container_port: 3000
proxy:
  routes:
    - pattern: "^/v[0-9+/"
      match: regex
      upstream: api
    - pattern: /
      match: prefix
      upstream: api
  upstreams:
    - name: api
      members: ["127.0.0.1:8081"]
`,
			wantErr: "invalid regex",
		},
		{
			name: "bad match kind",
			yaml: `
name: demo
network: demo-net
services:
  - name: api
    image: demo/api:1
    container_port: 3000
proxy:
  routes:
    - pattern: /
      match: glob
      upstream: api
  upstreams:
    - name: api
      members: ["127.0.0.1:8081"]
`,
			wantErr: "validation error",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeStack(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
