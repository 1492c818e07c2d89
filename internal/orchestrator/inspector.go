package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/stackd/internal/model"
	"github.com/edvin/stackd/internal/runtime"
)

// StateInspector maps raw runtime container status onto the ServiceState
// enum. It is consumed exactly once per reconciliation step so decision
// logic never does its own check-then-act against the runtime.
type StateInspector struct {
	rt runtime.Runtime
}

// NewStateInspector creates a state inspector over the given runtime.
func NewStateInspector(rt runtime.Runtime) *StateInspector {
	return &StateInspector{rt: rt}
}

// Status returns the authoritative state of a named service plus the config
// hash the running instance was created with (empty when absent).
func (i *StateInspector) Status(ctx context.Context, name string) (model.ServiceState, string, error) {
	status, err := i.rt.InspectContainer(ctx, name)
	if err != nil {
		if errors.Is(err, runtime.ErrNotFound) {
			return model.StateAbsent, "", nil
		}
		return "", "", fmt.Errorf("inspect %s: %w", name, err)
	}

	hash := status.Labels[runtime.LabelConfigHash]

	if status.Running {
		if status.Health == "unhealthy" {
			return model.StateUnhealthy, hash, nil
		}
		return model.StateRunning, hash, nil
	}
	return model.StateStopped, hash, nil
}

// NetworkProvisioner ensures the deployment unit's isolated network exists
// before any service is created, and removes it on teardown.
type NetworkProvisioner struct {
	logger zerolog.Logger
	rt     runtime.Runtime
}

// NewNetworkProvisioner creates a network provisioner over the given runtime.
func NewNetworkProvisioner(logger zerolog.Logger, rt runtime.Runtime) *NetworkProvisioner {
	return &NetworkProvisioner{
		logger: logger.With().Str("component", "network").Logger(),
		rt:     rt,
	}
}

// Ensure creates the network if it does not already exist.
func (p *NetworkProvisioner) Ensure(ctx context.Context, name string) error {
	exists, err := p.rt.NetworkExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check network %s: %w", name, err)
	}
	if exists {
		return nil
	}
	if err := p.rt.CreateNetwork(ctx, name); err != nil {
		return err
	}
	p.logger.Info().Str("network", name).Msg("network created")
	return nil
}

// Remove removes the network if it exists.
func (p *NetworkProvisioner) Remove(ctx context.Context, name string) error {
	exists, err := p.rt.NetworkExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check network %s: %w", name, err)
	}
	if !exists {
		return nil
	}
	if err := p.rt.RemoveNetwork(ctx, name); err != nil {
		return err
	}
	p.logger.Info().Str("network", name).Msg("network removed")
	return nil
}
