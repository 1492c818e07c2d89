package model

import "time"

// ServiceState is the authoritative state of a service as observed from the
// runtime. Valid transitions: Absent->Running, Running->Stopped,
// Stopped->Running, Stopped->Absent, Running->Unhealthy->(Stopped|Running).
type ServiceState string

const (
	StateAbsent    ServiceState = "absent"
	StateStopped   ServiceState = "stopped"
	StateRunning   ServiceState = "running"
	StateUnhealthy ServiceState = "unhealthy"
)

// HealthCheck describes a container-level health probe.
type HealthCheck struct {
	Test        []string      `json:"test"`
	Interval    time.Duration `json:"interval"`
	Timeout     time.Duration `json:"timeout"`
	Retries     int           `json:"retries"`
	StartPeriod time.Duration `json:"start_period"`
}

// Service is one member of a deployment unit.
type Service struct {
	Name          string            `json:"name"`
	Image         string            `json:"image"`
	DependsOn     []string          `json:"depends_on,omitempty"`
	Port          int               `json:"port,omitempty"` // published host port, 0 = internal only
	ContainerPort int               `json:"container_port"`
	Env           map[string]string `json:"env,omitempty"`
	Health        *HealthCheck      `json:"health,omitempty"`
}

// Topology is the full desired set of services and their shared network for
// one deployment unit.
type Topology struct {
	Name     string    `json:"name"`
	Network  string    `json:"network"`
	Services []Service `json:"services"`
}

// Service returns the service with the given name, or nil.
func (t *Topology) Service(name string) *Service {
	for i := range t.Services {
		if t.Services[i].Name == name {
			return &t.Services[i]
		}
	}
	return nil
}
