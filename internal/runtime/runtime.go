package runtime

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Inspect when the named container does not exist.
var ErrNotFound = errors.New("container not found")

// Label keys stamped on every container the orchestrator owns.
const (
	LabelStack      = "stackd.stack"
	LabelService    = "stackd.service"
	LabelConfigHash = "stackd.config-hash"
)

// HealthCheck holds container-level health check configuration.
type HealthCheck struct {
	Test        []string
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

// ContainerSpec holds the options for creating a container.
type ContainerSpec struct {
	Name          string
	Image         string
	Network       string
	Env           map[string]string
	Port          int // published host port, 0 = internal only
	ContainerPort int
	HealthCheck   *HealthCheck
	Labels        map[string]string
}

// ContainerStatus holds the observed status of a container.
type ContainerStatus struct {
	ID      string
	Name    string
	State   string // running, exited, created, etc.
	Health  string // healthy, unhealthy, starting, none
	Running bool
	Labels  map[string]string
}

// Runtime is the narrow capability set the core depends on. All decision
// logic lives above it, so tests substitute a Fake.
type Runtime interface {
	Ping(ctx context.Context) error
	PullImage(ctx context.Context, image string) error
	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)
	StartContainer(ctx context.Context, name string) error
	StopContainer(ctx context.Context, name string) error
	RemoveContainer(ctx context.Context, name string) error
	InspectContainer(ctx context.Context, name string) (*ContainerStatus, error)
	NetworkExists(ctx context.Context, name string) (bool, error)
	CreateNetwork(ctx context.Context, name string) error
	RemoveNetwork(ctx context.Context, name string) error
}
