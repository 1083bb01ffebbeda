package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/switchover/switchover/internal/domain"
	"github.com/switchover/switchover/internal/infrastructure/inventory"
)

func newRootCmd(cfg Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "switchover",
		Short:         "Blue/green slot switch orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newSwitchCmd(cfg),
		newRollbackCmd(cfg),
		newHealthCheckCmd(cfg),
		newStateCmd(cfg),
		newInventoryCmd(cfg),
		newClearFatalCmd(cfg),
		newPruneSnapshotsCmd(cfg),
	)
	return root
}

func newSwitchCmd(cfg Config) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "switch <environment> <slot>",
		Short: "Route an environment's traffic to the given slot",
		Long: `Routes traffic to the requested slot: validates the target, snapshots
the current state, converges through the provisioning engine, validates
the result, and rolls back automatically when the new slot is unhealthy.

Exit codes: 0 committed, 1 aborted (environment unchanged or rolled
back), 2 fatal (rollback exhausted, manual intervention required).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := domain.ParseSlot(args[1])
			if err != nil {
				return err
			}

			a, err := buildApp(cfg)
			if err != nil {
				return err
			}

			policy := cfg.switchPolicy()
			policy.ForceUnvalidated = force

			result, err := a.switches.Switch(cmd.Context(), domain.SwitchRequest{
				Environment: args[0],
				Target:      target,
				Policy:      policy,
			})
			if err != nil {
				return err
			}

			log.Info().
				Str("environment", args[0]).
				Str("target", string(target)).
				Str("outcome", string(result.Outcome)).
				Bool("rolled_back", result.RolledBack).
				Msg(result.Reason)

			switch result.Outcome {
			case domain.OutcomeCommitted:
				return nil
			case domain.OutcomeFatal:
				return exitError{code: 2, msg: result.Reason}
			default:
				return exitError{code: 1, msg: result.Reason}
			}
		},
	}

	cmd.Flags().BoolVar(&force, "force", false,
		"proceed with the switch even when pre-switch validation fails")
	return cmd
}

func newRollbackCmd(cfg Config) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <environment>",
		Short: "Restore the environment to its most recent snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}

			result, err := a.rollbacks.Rollback(cmd.Context(), args[0], cfg.switchPolicy().Rollback)
			if err != nil {
				return exitError{code: 1, msg: err.Error()}
			}

			log.Info().
				Str("environment", args[0]).
				Str("restored", string(result.Restored)).
				Int("attempts", result.Attempts).
				Msg("rollback complete")
			return nil
		},
	}
}

func newHealthCheckCmd(cfg Config) *cobra.Command {
	return &cobra.Command{
		Use:   "health-check <environment> <slot>",
		Short: "Validate a slot's health without touching routing state",
		Long: `Runs the full validation suite against the slot and reports every
check. Exit codes: 0 healthy, 1 unhealthy.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := domain.ParseSlot(args[1])
			if err != nil {
				return err
			}

			a, err := buildApp(cfg)
			if err != nil {
				return err
			}

			verdict, err := a.health.Check(cmd.Context(), args[0], slot, cfg.switchPolicy().PreValidation)
			if err != nil {
				return err
			}

			for _, check := range verdict.Checks {
				fmt.Fprintf(os.Stdout, "%-20s %-5v %s\n", check.Check, check.Passed, check.Detail)
			}
			if !verdict.Passed {
				return exitError{code: 1, msg: fmt.Sprintf("slot %s unhealthy: failed checks %v", slot, verdict.FailedChecks())}
			}
			log.Info().Str("slot", string(slot)).Msg("slot healthy")
			return nil
		},
	}
}

func newStateCmd(cfg Config) *cobra.Command {
	var showTrail bool

	cmd := &cobra.Command{
		Use:   "state <environment>",
		Short: "Print the environment's routing state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}

			state, err := a.state.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := printJSON(state); err != nil {
				return err
			}

			if showTrail {
				trail, err := a.state.Trail(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(trail)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showTrail, "trail", false, "also print the switch attempt audit trail")
	return cmd
}

func newInventoryCmd(cfg Config) *cobra.Command {
	return &cobra.Command{
		Use:   "inventory <environment>",
		Short: "Print an Ansible dynamic inventory for the environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}

			live, err := a.engine.ReadLiveState(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := inventory.Render(live)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(out))
			return nil
		},
	}
}

func newClearFatalCmd(cfg Config) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-fatal <environment>",
		Short: "Clear the fatal latch after manual remediation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}

			state, err := a.state.ClearFatal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			log.Info().
				Str("environment", args[0]).
				Str("active_slot", string(state.ActiveSlot)).
				Msg("fatal latch cleared, automated switches re-enabled")
			return nil
		},
	}
}

func newPruneSnapshotsCmd(cfg Config) *cobra.Command {
	var keep time.Duration

	cmd := &cobra.Command{
		Use:   "prune-snapshots <environment>",
		Short: "Delete snapshots older than the retention window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}

			pruned, err := a.state.PruneSnapshots(cmd.Context(), args[0], keep)
			if err != nil {
				return err
			}
			log.Info().Int("pruned", pruned).Dur("keep", keep).Msg("snapshots pruned")
			return nil
		},
	}

	cmd.Flags().DurationVar(&keep, "keep", 7*24*time.Hour, "retention window for snapshots")
	return cmd
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
