package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	wfsqlite "github.com/cschleiden/go-workflows/backend/sqlite"
	"github.com/cschleiden/go-workflows/client"
	"github.com/cschleiden/go-workflows/worker"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vrischmann/envconfig"

	"github.com/switchover/switchover/internal/application"
	"github.com/switchover/switchover/internal/domain"
	"github.com/switchover/switchover/internal/infrastructure/goworkflows"
	"github.com/switchover/switchover/internal/infrastructure/probes"
	"github.com/switchover/switchover/internal/infrastructure/sqlite"
	"github.com/switchover/switchover/internal/infrastructure/syncworkflow"
	"github.com/switchover/switchover/internal/infrastructure/terraform"
)

type Config struct {
	LoggerLevel string `envconfig:"LOGGER_LEVEL,optional"`

	// DatabasePath is the SQLite file holding routing state, snapshots
	// and the attempt trail.
	DatabasePath string `envconfig:"DATABASE_PATH,optional"`

	// TerraformDir contains one root module per environment.
	TerraformDir string `envconfig:"TERRAFORM_DIR,optional"`
	TerraformBin string `envconfig:"TERRAFORM_BIN,optional"`

	ProbeTimeout     time.Duration `envconfig:"PROBE_TIMEOUT,optional"`
	LatencyThreshold time.Duration `envconfig:"LATENCY_THRESHOLD,optional"`

	// WorkflowEngine selects the switch workflow backend: "sync"
	// (in-process, default) or "durable" (go-workflows over its own
	// SQLite history at WorkflowDatabasePath).
	WorkflowEngine       string `envconfig:"WORKFLOW_ENGINE,optional"`
	WorkflowDatabasePath string `envconfig:"WORKFLOW_DATABASE_PATH,optional"`

	ValidationAttempts uint          `envconfig:"VALIDATION_ATTEMPTS,optional"`
	ValidationInterval time.Duration `envconfig:"VALIDATION_INTERVAL,optional"`
	SettleDelay        time.Duration `envconfig:"SETTLE_DELAY,optional"`
	RollbackAttempts   uint          `envconfig:"ROLLBACK_ATTEMPTS,optional"`
	RollbackInterval   time.Duration `envconfig:"ROLLBACK_INTERVAL,optional"`
}

// switchPolicy builds the per-request policy from the defaults plus any
// configured overrides.
func (c Config) switchPolicy() domain.SwitchPolicy {
	policy := domain.DefaultSwitchPolicy()
	if c.ValidationAttempts > 0 {
		policy.PreValidation.MaxAttempts = c.ValidationAttempts
		policy.PostValidation.MaxAttempts = c.ValidationAttempts
		policy.Rollback.Validation.MaxAttempts = c.ValidationAttempts
	}
	if c.ValidationInterval > 0 {
		policy.PreValidation.Interval = c.ValidationInterval
		policy.PostValidation.Interval = c.ValidationInterval
		policy.Rollback.Validation.Interval = c.ValidationInterval
	}
	if c.SettleDelay > 0 {
		policy.PostValidation.SettleDelay = c.SettleDelay
	}
	if c.RollbackAttempts > 0 {
		policy.Rollback.MaxAttempts = c.RollbackAttempts
	}
	if c.RollbackInterval > 0 {
		policy.Rollback.Interval = c.RollbackInterval
	}
	return policy
}

func (c *Config) applyDefaults() {
	if c.LoggerLevel == "" {
		c.LoggerLevel = "info"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "switchover.db"
	}
	if c.TerraformDir == "" {
		c.TerraformDir = "environments"
	}
	if c.WorkflowEngine == "" {
		c.WorkflowEngine = "sync"
	}
	if c.WorkflowDatabasePath == "" {
		c.WorkflowDatabasePath = "switchover-workflows.db"
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = time.Second
	}
	if c.LatencyThreshold == 0 {
		c.LatencyThreshold = 500 * time.Millisecond
	}
}

func loggerLevelFromString(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// app is the fully wired command surface.
type app struct {
	cfg       Config
	engine    *terraform.Engine
	switches  *application.SwitchService
	health    *application.HealthService
	state     *application.StateService
	rollbacks *application.RollbackService
}

func buildApp(cfg Config) (*app, error) {
	db, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	states := &sqlite.StateRepo{DB: db}
	snapshots := &sqlite.SnapshotRepo{DB: db}
	attempts := &sqlite.AttemptRepo{DB: db}

	engine := &terraform.Engine{Dir: cfg.TerraformDir, Binary: cfg.TerraformBin}
	converger := &domain.ConvergenceExecutor{Engine: engine}

	settings := probes.DefaultSettings()
	settings.Timeout = cfg.ProbeTimeout
	settings.LatencyThreshold = cfg.LatencyThreshold

	validator := &domain.RetryingValidator{
		Prober:    probes.New(settings),
		Endpoints: &terraform.Resolver{Engine: engine},
	}

	rollback := &domain.RollbackController{
		Converger: converger,
		Validator: validator,
		Attempts:  attempts,
	}

	wf := &domain.SwitchWorkflow{
		States:      states,
		Snapshotter: &domain.Snapshotter{Snapshots: snapshots, Engine: engine},
		Validator:   validator,
		Converger:   converger,
		Rollback:    rollback,
		Attempts:    attempts,
	}

	runner, err := newSwitchRunner(cfg, wf)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		engine:   engine,
		switches: &application.SwitchService{Workflow: runner},
		health:   &application.HealthService{Validator: validator},
		state: &application.StateService{
			States:    states,
			Snapshots: snapshots,
			Attempts:  attempts,
		},
		rollbacks: &application.RollbackService{
			States:     states,
			Snapshots:  snapshots,
			Controller: rollback,
		},
	}, nil
}

func newSwitchRunner(cfg Config, wf *domain.SwitchWorkflow) (domain.SwitchRunner, error) {
	switch cfg.WorkflowEngine {
	case "sync":
		return (&syncworkflow.Engine{}).SwitchRunner(wf)
	case "durable":
		b := wfsqlite.NewSqliteBackend(cfg.WorkflowDatabasePath)
		w := worker.New(b, nil)
		engine := &goworkflows.Engine{Worker: w, Client: client.New(b)}
		runner, err := engine.SwitchRunner(wf)
		if err != nil {
			return nil, err
		}
		if err := w.Start(context.Background()); err != nil {
			return nil, fmt.Errorf("start workflow worker: %w", err)
		}
		return runner, nil
	default:
		return nil, fmt.Errorf("%w: unknown workflow engine %q (want sync or durable)",
			domain.ErrInvalidArgument, cfg.WorkflowEngine)
	}
}

// exitError carries a process exit code through cobra's error path.
type exitError struct {
	code int
	msg  string
}

func (e exitError) Error() string { return e.msg }

func main() {
	var cfg Config
	if err := envconfig.Init(&cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to read config")
	}
	cfg.applyDefaults()
	log.Logger = log.Level(loggerLevelFromString(cfg.LoggerLevel))

	if err := newRootCmd(cfg).Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			if exit.msg != "" {
				log.Error().Msg(exit.msg)
			}
			os.Exit(exit.code)
		}
		log.Fatal().Err(err).Msg("command failed")
	}
}
