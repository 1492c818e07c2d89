package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/edvin/stackd/internal/config"
	"github.com/edvin/stackd/internal/logging"
	"github.com/edvin/stackd/internal/model"
	"github.com/edvin/stackd/internal/orchestrator"
	"github.com/edvin/stackd/internal/runtime"
)

const (
	exitOK        = 0
	exitFatal     = 1
	exitCancelled = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitFatal)
	}

	switch os.Args[1] {
	case "up":
		fs := flag.NewFlagSet("up", flag.ExitOnError)
		file := fs.String("f", "stack.yaml", "Path to stack definition YAML file")
		dryRun := fs.Bool("dry-run", false, "Compute the action plan without mutating the runtime")
		skipPull := fs.Bool("skip-pull", false, "Skip pulling images before create")
		timeout := fs.Duration("timeout", 10*time.Minute, "Timeout for the reconciliation pass")
		fs.Parse(os.Args[2:])

		os.Exit(runUp(*file, *dryRun, *skipPull, *timeout))

	case "down":
		fs := flag.NewFlagSet("down", flag.ExitOnError)
		file := fs.String("f", "stack.yaml", "Path to stack definition YAML file")
		dryRun := fs.Bool("dry-run", false, "Compute the action plan without mutating the runtime")
		yes := fs.Bool("yes", false, "Skip the interactive confirmation prompt")
		timeout := fs.Duration("timeout", 10*time.Minute, "Timeout for the reconciliation pass")
		fs.Parse(os.Args[2:])

		os.Exit(runDown(*file, *dryRun, *yes, *timeout))

	case "plan":
		fs := flag.NewFlagSet("plan", flag.ExitOnError)
		file := fs.String("f", "stack.yaml", "Path to stack definition YAML file")
		destroy := fs.Bool("destroy", false, "Plan a teardown instead of a bring-up")
		timeout := fs.Duration("timeout", 1*time.Minute, "Timeout for plan computation")
		fs.Parse(os.Args[2:])

		mode := model.ModeApply
		if *destroy {
			mode = model.ModeDestroy
		}
		os.Exit(runPlan(*file, mode, *timeout))

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(exitFatal)
	}
}

func runUp(file string, dryRun, skipPull bool, timeout time.Duration) int {
	stack, rec, err := setup(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFatal
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	report, err := rec.Reconcile(ctx, &stack.Topology, orchestrator.Options{
		Mode:     model.ModeApply,
		DryRun:   dryRun,
		SkipPull: skipPull,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFatal
	}

	if dryRun {
		printPlan(report.Plan)
		return exitOK
	}

	code := exitOK
	for _, res := range report.Results {
		switch res.Status {
		case model.ResultOK:
			if res.Endpoint != "" {
				fmt.Printf("%-12s %s\n", res.Service, res.Endpoint)
			} else {
				fmt.Printf("%-12s up\n", res.Service)
			}
		case model.ResultBlocked:
			fmt.Printf("%-12s blocked: %s\n", res.Service, res.Error)
			code = exitFatal
		default:
			fmt.Printf("%-12s failed: %s\n", res.Service, res.Error)
			code = exitFatal
		}
	}
	return code
}

func runDown(file string, dryRun, yes bool, timeout time.Duration) int {
	stack, rec, err := setup(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFatal
	}

	confirm := ""
	if yes {
		confirm = stack.Topology.Name
	} else if !dryRun {
		fmt.Printf("Type the stack name %q to confirm destroy: ", stack.Topology.Name)
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			confirm = scanner.Text()
		}
		if confirm != stack.Topology.Name {
			fmt.Fprintln(os.Stderr, "Destroy cancelled.")
			return exitCancelled
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	report, err := rec.Reconcile(ctx, &stack.Topology, orchestrator.Options{
		Mode:    model.ModeDestroy,
		DryRun:  dryRun,
		Confirm: confirm,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrConfirmationRequired) {
			fmt.Fprintln(os.Stderr, "Destroy cancelled.")
			return exitCancelled
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFatal
	}

	if dryRun {
		printPlan(report.Plan)
		return exitOK
	}

	code := exitOK
	for _, res := range report.Results {
		if res.Status == model.ResultOK {
			fmt.Printf("%-12s removed\n", res.Service)
		} else {
			fmt.Printf("%-12s failed: %s\n", res.Service, res.Error)
			code = exitFatal
		}
	}
	if report.NetworkRemoved {
		fmt.Printf("%-12s removed\n", stack.Topology.Network)
	}
	return code
}

func runPlan(file string, mode model.Mode, timeout time.Duration) int {
	stack, rec, err := setup(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFatal
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	report, err := rec.Reconcile(ctx, &stack.Topology, orchestrator.Options{
		Mode:   mode,
		DryRun: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFatal
	}

	printPlan(report.Plan)
	return exitOK
}

func setup(file string) (*config.Stack, *orchestrator.Reconciler, error) {
	stack, err := config.Load(file)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.NewLogger(stack.LogLevel, stack.Topology.Name)

	rt, err := runtime.NewDockerRuntime()
	if err != nil {
		return nil, nil, err
	}

	return stack, orchestrator.NewReconciler(logger, rt), nil
}

func printPlan(plan *model.Plan) {
	fmt.Printf("Plan %s (%s):\n", plan.ID, plan.Mode)
	if plan.Network != model.NetworkNone {
		fmt.Printf("  network: %s\n", plan.Network)
	}
	for _, a := range plan.Actions {
		fmt.Printf("  %-12s %-8s (%s)\n", a.Service, a.Op, a.Reason)
	}
	if !plan.Changed() {
		fmt.Println("Nothing to do.")
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  stackctl up [-f stack.yaml] [-dry-run] [-skip-pull]
  stackctl down [-f stack.yaml] [-dry-run] [-yes]
  stackctl plan [-f stack.yaml] [-destroy]

Commands:
  up     Provision the network and reconcile all services in dependency order
  down   Stop and remove all services, then the network (asks for confirmation)
  plan   Print the computed action plan without mutating anything

Flags:
  -f string         Path to the stack definition YAML file (default: stack.yaml)
  -dry-run          Report the action plan instead of applying it
  -skip-pull        Do not pull images before creating containers
  -yes              Non-interactive destroy confirmation override
  -destroy          Plan a teardown instead of a bring-up
  -timeout duration Timeout for the reconciliation pass (default: 10m)`)
}
