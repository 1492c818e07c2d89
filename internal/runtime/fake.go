package runtime

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Runtime for tests and offline plan inspection. It
// records every call and counts mutations so reconciliation properties
// (idempotence, dry-run purity, ordering) can be asserted directly.
type Fake struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer
	networks   map[string]bool

	// Failure injection.
	PingErr       error
	StartFailures map[string]int // remaining forced start failures per name
	Unhealthy     map[string]bool

	mutations int
	calls     []string
}

type fakeContainer struct {
	spec    ContainerSpec
	running bool
}

// NewFake creates an empty fake runtime.
func NewFake() *Fake {
	return &Fake{
		containers:    make(map[string]*fakeContainer),
		networks:      make(map[string]bool),
		StartFailures: make(map[string]int),
		Unhealthy:     make(map[string]bool),
	}
}

func (f *Fake) record(mutating bool, format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	if mutating {
		f.mutations++
	}
}

// MutatingCalls returns the number of mutating runtime calls so far.
func (f *Fake) MutatingCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutations
}

// Calls returns the ordered call log.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// ResetCounters clears the call log and mutation count, keeping state.
func (f *Fake) ResetCounters() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = 0
	f.calls = nil
}

// ContainerSpecFor returns the spec the container was created with.
func (f *Fake) ContainerSpecFor(name string) (ContainerSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return ContainerSpec{}, false
	}
	return c.spec, true
}

// Running reports whether the named container exists and is running.
func (f *Fake) Running(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	return ok && c.running
}

// SetStopped forces an existing container into the stopped state.
func (f *Fake) SetStopped(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[name]; ok {
		c.running = false
	}
}

// HasNetwork reports whether the named network exists.
func (f *Fake) HasNetwork(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.networks[name]
}

func (f *Fake) Ping(_ context.Context) error {
	return f.PingErr
}

func (f *Fake) PullImage(_ context.Context, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(true, "pull:%s", image)
	return nil
}

func (f *Fake) CreateContainer(_ context.Context, spec ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(true, "create:%s", spec.Name)
	if _, exists := f.containers[spec.Name]; exists {
		return "", fmt.Errorf("container %s already exists", spec.Name)
	}
	if spec.Network != "" && !f.networks[spec.Network] {
		return "", fmt.Errorf("network %s does not exist", spec.Network)
	}
	f.containers[spec.Name] = &fakeContainer{spec: spec}
	return "id-" + spec.Name, nil
}

func (f *Fake) StartContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(true, "start:%s", name)
	c, ok := f.containers[name]
	if !ok {
		return ErrNotFound
	}
	if f.StartFailures[name] > 0 {
		f.StartFailures[name]--
		return fmt.Errorf("start container %s: injected failure", name)
	}
	c.running = true
	return nil
}

func (f *Fake) StopContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(true, "stop:%s", name)
	c, ok := f.containers[name]
	if !ok {
		return ErrNotFound
	}
	c.running = false
	return nil
}

func (f *Fake) RemoveContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(true, "remove:%s", name)
	if _, ok := f.containers[name]; !ok {
		return ErrNotFound
	}
	delete(f.containers, name)
	return nil
}

func (f *Fake) InspectContainer(_ context.Context, name string) (*ContainerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(false, "inspect:%s", name)
	c, ok := f.containers[name]
	if !ok {
		return nil, ErrNotFound
	}

	status := &ContainerStatus{
		ID:     "id-" + name,
		Name:   name,
		Labels: c.spec.Labels,
		Health: "none",
	}
	if c.running {
		status.State = "running"
		status.Running = true
		if c.spec.HealthCheck != nil {
			status.Health = "healthy"
		}
		if f.Unhealthy[name] {
			status.Health = "unhealthy"
		}
	} else {
		status.State = "exited"
	}
	return status, nil
}

func (f *Fake) NetworkExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(false, "network-inspect:%s", name)
	return f.networks[name], nil
}

func (f *Fake) CreateNetwork(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(true, "network-create:%s", name)
	if f.networks[name] {
		return fmt.Errorf("network %s already exists", name)
	}
	f.networks[name] = true
	return nil
}

func (f *Fake) RemoveNetwork(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(true, "network-remove:%s", name)
	if !f.networks[name] {
		return fmt.Errorf("network %s does not exist", name)
	}
	delete(f.networks, name)
	return nil
}
