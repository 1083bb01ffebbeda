// Package terraform implements [domain.ConvergenceEngine] by driving
// the terraform CLI against per-environment root modules. The
// orchestrator never edits infrastructure directly; desired state goes
// in as a variable and live state comes back from `terraform output`.
package terraform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/switchover/switchover/internal/domain"
)

// Well-known output names the environment root modules expose.
const (
	outputActiveSlot = "active_slot"
	outputPlanID     = "plan_id"
)

const planExitDiffPresent = 2

// CommandRunner executes one CLI invocation in dir and returns stdout,
// the process exit code, and any execution error. Injectable for tests.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, int, error)

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), exitErr.ExitCode(), fmt.Errorf("%s %v: %s", name, args, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, -1, fmt.Errorf("%s %v: %w", name, args, err)
	}
	return stdout.Bytes(), 0, nil
}

// Engine drives terraform plan/apply/output for one environments
// directory, one subdirectory per environment.
type Engine struct {
	// Dir contains the per-environment root modules
	// (<Dir>/<environment>/*.tf).
	Dir string
	// Binary defaults to "terraform".
	Binary string
	// Run defaults to executing the real CLI.
	Run CommandRunner
}

func (e *Engine) binary() string {
	if e.Binary != "" {
		return e.Binary
	}
	return "terraform"
}

func (e *Engine) run(ctx context.Context, environment string, args ...string) ([]byte, int, error) {
	runner := e.Run
	if runner == nil {
		runner = execRunner
	}
	return runner(ctx, filepath.Join(e.Dir, environment), e.binary(), args...)
}

// Plan computes the diff that would route traffic to desired.ActiveSlot.
// A detailed exit code distinguishes "no changes" from "diff present";
// anything else is a plan failure.
func (e *Engine) Plan(ctx context.Context, desired domain.DesiredState) (domain.ConvergencePlan, error) {
	planID := uuid.NewString()
	planFile := planFileName(planID)

	stdout, exitCode, err := e.run(ctx, desired.Environment,
		"plan",
		"-input=false",
		"-detailed-exitcode",
		"-out="+planFile,
		"-var", "active_slot="+string(desired.ActiveSlot),
	)
	switch exitCode {
	case 0:
		return domain.ConvergencePlan{
			ID:          planID,
			Environment: desired.Environment,
			TargetSlot:  desired.ActiveSlot,
			DiffSummary: "no changes",
			Empty:       true,
		}, nil
	case planExitDiffPresent:
		return domain.ConvergencePlan{
			ID:          planID,
			Environment: desired.Environment,
			TargetSlot:  desired.ActiveSlot,
			DiffSummary: string(bytes.TrimSpace(stdout)),
		}, nil
	default:
		return domain.ConvergencePlan{}, fmt.Errorf("terraform plan: %w", err)
	}
}

// Apply applies a previously computed plan file.
func (e *Engine) Apply(ctx context.Context, plan domain.ConvergencePlan) error {
	_, _, err := e.run(ctx, plan.Environment,
		"apply",
		"-input=false",
		"-auto-approve",
		planFileName(plan.ID),
	)
	if err != nil {
		return fmt.Errorf("terraform apply: %w", err)
	}
	return nil
}

// ReadLiveState reads `terraform output -json` and maps the well-known
// outputs plus everything else (flattened) into a LiveState.
func (e *Engine) ReadLiveState(ctx context.Context, environment string) (domain.LiveState, error) {
	stdout, _, err := e.run(ctx, environment, "output", "-json")
	if err != nil {
		return domain.LiveState{}, fmt.Errorf("terraform output: %w", err)
	}

	outputs, err := ParseOutputs(stdout)
	if err != nil {
		return domain.LiveState{}, err
	}

	live := domain.LiveState{
		Environment: environment,
		Outputs:     outputs,
		PlanID:      outputs[outputPlanID],
	}
	if slotName, ok := outputs[outputActiveSlot]; ok {
		slot, err := domain.ParseSlot(slotName)
		if err != nil {
			return domain.LiveState{}, fmt.Errorf("output %s: %w", outputActiveSlot, err)
		}
		live.ActiveSlot = slot
	}
	return live, nil
}

// ParseOutputs flattens `terraform output -json` into string values.
// Scalars keep their name; object outputs contribute "name.key" entries.
func ParseOutputs(raw []byte) (map[string]string, error) {
	var parsed map[string]struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse terraform outputs: %w", err)
	}

	outputs := make(map[string]string, len(parsed))
	for name, out := range parsed {
		var str string
		if err := json.Unmarshal(out.Value, &str); err == nil {
			outputs[name] = str
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(out.Value, &obj); err == nil {
			for key, value := range obj {
				if s, ok := value.(string); ok {
					outputs[name+"."+key] = s
				}
			}
			continue
		}
		// Non-string, non-object outputs (numbers, lists) are kept raw.
		outputs[name] = string(bytes.TrimSpace(out.Value))
	}
	return outputs, nil
}

func planFileName(planID string) string {
	return "switch-" + planID + ".tfplan"
}
