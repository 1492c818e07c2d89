package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/edvin/stackd/internal/model"
	"github.com/edvin/stackd/internal/runtime"
)

// ErrCycle is returned when the topology's dependency graph is not a DAG.
var ErrCycle = errors.New("dependency cycle in topology")

// topoOrder returns the services in dependency order: every service appears
// after all of its dependencies. Declaration order is preserved among
// services whose dependencies are already satisfied, so the order is
// deterministic.
func topoOrder(topo *model.Topology) ([]*model.Service, error) {
	placed := make(map[string]bool, len(topo.Services))
	order := make([]*model.Service, 0, len(topo.Services))

	for len(order) < len(topo.Services) {
		progressed := false
		for i := range topo.Services {
			svc := &topo.Services[i]
			if placed[svc.Name] {
				continue
			}
			ready := true
			for _, dep := range svc.DependsOn {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				placed[svc.Name] = true
				order = append(order, svc)
				progressed = true
			}
		}
		if !progressed {
			return nil, fmt.Errorf("%w: involving %d unplaced services", ErrCycle, len(topo.Services)-len(order))
		}
	}

	return order, nil
}

// buildPlan inspects current state and computes the minimal action set to
// reach (or tear down) the desired topology. It performs no mutation.
func (r *Reconciler) buildPlan(ctx context.Context, topo *model.Topology, mode model.Mode) (*model.Plan, error) {
	order, err := topoOrder(topo)
	if err != nil {
		return nil, err
	}
	if mode == model.ModeDestroy {
		reverse(order)
	}

	plan := &model.Plan{
		ID:      uuid.NewString(),
		Stack:   topo.Name,
		Mode:    mode,
		Network: model.NetworkNone,
	}

	networkExists, err := r.rt.NetworkExists(ctx, topo.Network)
	if err != nil {
		return nil, fmt.Errorf("check network %s: %w", topo.Network, err)
	}

	for _, svc := range order {
		state, haveHash, err := r.inspector.Status(ctx, svc.Name)
		if err != nil {
			return nil, err
		}

		action := model.Action{Service: svc.Name, From: state}
		if mode == model.ModeDestroy {
			if state == model.StateAbsent {
				action.Op = model.OpNone
				action.Reason = "not present"
			} else {
				action.Op = model.OpRemove
				action.Reason = "stop and remove"
			}
			plan.Actions = append(plan.Actions, action)
			continue
		}

		wantHash := buildContainerSpec(topo, svc).Labels[runtime.LabelConfigHash]
		drifted := haveHash != wantHash

		switch {
		case state == model.StateAbsent:
			action.Op = model.OpCreate
			action.Reason = "not present"
		case state == model.StateUnhealthy:
			action.Op = model.OpRecreate
			action.Reason = "unhealthy"
		case drifted:
			action.Op = model.OpRecreate
			action.Reason = "configuration drift"
		case state == model.StateStopped:
			action.Op = model.OpStart
			action.Reason = "stopped"
		default:
			action.Op = model.OpNone
			action.Reason = "up to date"
		}
		plan.Actions = append(plan.Actions, action)
	}

	switch mode {
	case model.ModeApply:
		if !networkExists {
			plan.Network = model.NetworkCreate
		}
	case model.ModeDestroy:
		if networkExists {
			plan.Network = model.NetworkRemove
		}
	}

	return plan, nil
}

func reverse(order []*model.Service) {
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
}
