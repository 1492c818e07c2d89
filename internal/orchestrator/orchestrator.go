package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/stackd/internal/model"
	"github.com/edvin/stackd/internal/runtime"
)

var (
	// ErrConfirmationRequired is returned when destroy is requested without
	// the stack-name confirmation token. Nothing is mutated.
	ErrConfirmationRequired = errors.New("destroy requires confirmation token")

	// ErrRuntimeUnavailable wraps a failed pre-flight ping of the runtime
	// backend. The reconciliation aborts before any mutation.
	ErrRuntimeUnavailable = errors.New("runtime unavailable")
)

// Options control one reconciliation pass.
type Options struct {
	Mode     model.Mode
	DryRun   bool
	Confirm  string // must equal the topology name for a real destroy
	SkipPull bool
}

// Reconciler sequences service transitions for one deployment unit. A mutex
// serializes concurrent Reconcile calls so two passes can never interleave
// state transitions against the same topology.
type Reconciler struct {
	logger    zerolog.Logger
	rt        runtime.Runtime
	inspector *StateInspector
	network   *NetworkProvisioner

	startTimeout time.Duration
	pollInterval time.Duration

	mu sync.Mutex
}

// NewReconciler creates a reconciler over the given runtime.
func NewReconciler(logger zerolog.Logger, rt runtime.Runtime) *Reconciler {
	return &Reconciler{
		logger:       logger.With().Str("component", "orchestrator").Logger(),
		rt:           rt,
		inspector:    NewStateInspector(rt),
		network:      NewNetworkProvisioner(logger, rt),
		startTimeout: 60 * time.Second,
		pollInterval: 250 * time.Millisecond,
	}
}

// Reconcile computes and applies the minimal action set to move current
// state to desired state. Repeated apply calls against an unchanged
// topology converge: the second pass plans no actions and performs no
// mutating runtime calls. With DryRun set, the plan is returned untouched.
func (r *Reconciler) Reconcile(ctx context.Context, topo *model.Topology, opts Options) (*model.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()

	if opts.Mode == model.ModeDestroy && !opts.DryRun && opts.Confirm != topo.Name {
		return nil, ErrConfirmationRequired
	}

	if err := r.rt.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}

	plan, err := r.buildPlan(ctx, topo, opts.Mode)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		r.logger.Info().Str("plan_id", plan.ID).Str("mode", string(opts.Mode)).
			Bool("changed", plan.Changed()).Msg("dry run, no actions applied")
		return &model.Report{Plan: plan}, nil
	}

	var report *model.Report
	switch opts.Mode {
	case model.ModeApply:
		report, err = r.apply(ctx, topo, plan, opts)
	case model.ModeDestroy:
		report, err = r.destroy(ctx, topo, plan)
	default:
		return nil, fmt.Errorf("unknown mode %q", opts.Mode)
	}
	if err != nil {
		return nil, err
	}

	reconcileDuration.Observe(time.Since(start).Seconds())
	r.logger.Info().
		Str("plan_id", plan.ID).
		Str("mode", string(opts.Mode)).
		Int("services", len(report.Results)).
		Bool("failed", report.Failed()).
		Dur("duration", time.Since(start)).
		Msg("reconciliation completed")

	return report, nil
}

func (r *Reconciler) apply(ctx context.Context, topo *model.Topology, plan *model.Plan, opts Options) (*model.Report, error) {
	report := &model.Report{Plan: plan}

	if plan.Network == model.NetworkCreate {
		if err := r.network.Ensure(ctx, topo.Network); err != nil {
			return nil, err
		}
	}

	failed := make(map[string]bool)

	for _, action := range plan.Actions {
		svc := topo.Service(action.Service)
		result := model.ServiceResult{Service: svc.Name, Op: action.Op, Status: model.ResultOK}

		if dep := blockedBy(svc, failed); dep != "" {
			failed[svc.Name] = true
			result.Status = model.ResultBlocked
			result.Error = fmt.Sprintf("dependency %s did not reach running", dep)
			r.logger.Warn().Str("service", svc.Name).Str("dependency", dep).Msg("service blocked")
			report.Results = append(report.Results, result)
			continue
		}

		var err error
		switch action.Op {
		case model.OpNone:
			// Already converged.
		case model.OpStart:
			err = r.startService(ctx, svc)
			if err != nil {
				// A plain start did not take; fall back to remove-then-recreate
				// so the instance reflects the current desired configuration.
				r.logger.Warn().Err(err).Str("service", svc.Name).Msg("start failed, recreating")
				err = r.recreateService(ctx, topo, svc, opts)
			}
		case model.OpCreate:
			err = r.createService(ctx, topo, svc, opts)
		case model.OpRecreate:
			err = r.recreateService(ctx, topo, svc, opts)
		}

		actionsTotal.WithLabelValues(string(action.Op)).Inc()

		if err != nil {
			failed[svc.Name] = true
			serviceFailures.WithLabelValues(svc.Name).Inc()
			result.Status = model.ResultFailed
			result.Error = err.Error()
			r.logger.Error().Err(err).Str("service", svc.Name).Str("op", string(action.Op)).Msg("service failed")
		} else if svc.Port > 0 {
			result.Endpoint = fmt.Sprintf("http://localhost:%d", svc.Port)
		}

		report.Results = append(report.Results, result)
	}

	return report, nil
}

func (r *Reconciler) destroy(ctx context.Context, topo *model.Topology, plan *model.Plan) (*model.Report, error) {
	report := &model.Report{Plan: plan}

	removalFailed := false
	for _, action := range plan.Actions {
		result := model.ServiceResult{Service: action.Service, Op: action.Op, Status: model.ResultOK}

		if action.Op == model.OpRemove {
			if err := r.removeService(ctx, action.Service, action.From); err != nil {
				removalFailed = true
				result.Status = model.ResultFailed
				result.Error = err.Error()
				r.logger.Error().Err(err).Str("service", action.Service).Msg("removal failed")
			}
			actionsTotal.WithLabelValues(string(action.Op)).Inc()
		}

		report.Results = append(report.Results, result)
	}

	// The network is shared; it goes only after every service released it.
	if plan.Network == model.NetworkRemove && !removalFailed {
		if err := r.network.Remove(ctx, topo.Network); err != nil {
			return nil, err
		}
		report.NetworkRemoved = true
	}

	return report, nil
}

func (r *Reconciler) startService(ctx context.Context, svc *model.Service) error {
	if err := r.rt.StartContainer(ctx, svc.Name); err != nil {
		return err
	}
	return r.waitRunning(ctx, svc)
}

func (r *Reconciler) createService(ctx context.Context, topo *model.Topology, svc *model.Service, opts Options) error {
	if !opts.SkipPull {
		if err := r.rt.PullImage(ctx, svc.Image); err != nil {
			return err
		}
	}
	spec := buildContainerSpec(topo, svc)
	if _, err := r.rt.CreateContainer(ctx, spec); err != nil {
		return err
	}
	if err := r.rt.StartContainer(ctx, svc.Name); err != nil {
		return err
	}
	return r.waitRunning(ctx, svc)
}

func (r *Reconciler) recreateService(ctx context.Context, topo *model.Topology, svc *model.Service, opts Options) error {
	if err := r.removeService(ctx, svc.Name, model.StateRunning); err != nil {
		return err
	}
	return r.createService(ctx, topo, svc, opts)
}

func (r *Reconciler) removeService(ctx context.Context, name string, from model.ServiceState) error {
	if from == model.StateRunning || from == model.StateUnhealthy {
		if err := r.rt.StopContainer(ctx, name); err != nil {
			return err
		}
	}
	return r.rt.RemoveContainer(ctx, name)
}

// waitRunning polls the inspector until the service is observed Running, so
// dependents are never created before their dependency is up.
func (r *Reconciler) waitRunning(ctx context.Context, svc *model.Service) error {
	timeout := r.startTimeout
	if svc.Health != nil {
		timeout += svc.Health.StartPeriod
	}
	deadline := time.Now().Add(timeout)

	for {
		state, _, err := r.inspector.Status(ctx, svc.Name)
		if err != nil {
			return err
		}
		switch state {
		case model.StateRunning:
			return nil
		case model.StateUnhealthy:
			return fmt.Errorf("service %s is unhealthy", svc.Name)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("service %s did not reach running within %s", svc.Name, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}

func blockedBy(svc *model.Service, failed map[string]bool) string {
	for _, dep := range svc.DependsOn {
		if failed[dep] {
			return dep
		}
	}
	return ""
}
