package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/overseer/internal/core/config"
	"github.com/vietddude/overseer/internal/core/domain"
	"github.com/vietddude/overseer/internal/core/registry"
	"github.com/vietddude/overseer/internal/core/worker"
	redisclient "github.com/vietddude/overseer/internal/infra/redis"
	"github.com/vietddude/overseer/internal/infra/remediation"
	"github.com/vietddude/overseer/internal/infra/storage"
	"github.com/vietddude/overseer/internal/infra/storage/memory"
	"github.com/vietddude/overseer/internal/infra/storage/postgres"
	"github.com/vietddude/overseer/internal/infra/unit"
	"github.com/vietddude/overseer/internal/observe"
	"github.com/vietddude/overseer/internal/supervision/boot"
	"github.com/vietddude/overseer/internal/supervision/harness"
	"github.com/vietddude/overseer/internal/supervision/health"
	"github.com/vietddude/overseer/internal/supervision/heartbeat"
	"github.com/vietddude/overseer/internal/supervision/metrics"
	"github.com/vietddude/overseer/internal/supervision/playbook"
	"github.com/vietddude/overseer/internal/supervision/recognition"
)

// Overseer is the main application struct that wires the unit registry,
// boot orchestrator, heartbeat supervisor, recognition engine, playbook
// engine and fault-injection harness together.
type Overseer struct {
	cfg          Config
	reg          registry.Registry
	runners      map[string]unit.Runner
	tracker      *heartbeat.Tracker
	buffer       *observe.LogBuffer
	bus          *observe.Bus
	orchestrator *boot.Orchestrator
	supervisor   *heartbeat.Supervisor
	recognizer   *recognition.Engine
	playbooks    *playbook.Library
	pbWatcher    *playbook.Watcher
	pbEngine     *playbook.Engine
	harness      *harness.Harness
	pruner       *worker.Pruner
	healthMon    *health.Monitor
	healthServer *health.Server
	store        *memory.MemoryStorage
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger

	// Synthetic fault flags set by the harness hooks and cleared by the
	// scale/rewrite playbook actions.
	faultMu   sync.Mutex
	saturated map[string]bool
	corrupted map[string]bool
}

// NewOverseer creates a new Overseer instance with all dependencies initialized.
func NewOverseer(cfg Config) (*Overseer, error) {
	o := &Overseer{
		cfg:       cfg,
		log:       slog.Default(),
		saturated: make(map[string]bool),
		corrupted: make(map[string]bool),
	}

	// Diagnostic bundles need the recent log lines per unit, so the
	// default handler is wrapped with a retaining buffer.
	o.buffer = observe.NewLogBuffer(slog.Default().Handler())
	slog.SetDefault(slog.New(o.buffer))
	o.log = slog.Default()

	// 1. Initialize Storage
	var incidents storage.IncidentRepository
	var ledger storage.ScenarioLedgerRepository
	var kb storage.KnowledgeBaseRepository

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		dir := cfg.Boot.MigrationsDir
		if dir == "" {
			dir = "migrations"
		}
		if err := db.Migrate(dir); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		o.db = db
		incidents = postgres.NewIncidentRepo(db)
		ledger = postgres.NewLedgerRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		o.store = memory.NewMemoryStorage()
		incidents = memory.NewIncidentRepo(o.store)
		ledger = memory.NewLedgerRepo(o.store)
		slog.Info("Using Memory storage")
	}

	if cfg.Redis.URL != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, using in-memory knowledge base", "error", err)
		} else {
			o.redisClient = redisClient
			kb = redisclient.NewKnowledgeRepo(redisClient)
			slog.Info("Using Redis knowledge base")
		}
	}
	if kb == nil {
		if o.store == nil {
			o.store = memory.NewMemoryStorage()
		}
		kb = memory.NewKnowledgeRepo(o.store)
	}

	// 2. Initialize Registry and Runners
	reg := registry.New()
	if err := registerUnits(reg, cfg.Units); err != nil {
		return nil, err
	}
	o.reg = reg

	o.runners = make(map[string]unit.Runner, len(cfg.Units))
	for _, uc := range cfg.Units {
		o.runners[uc.Name] = unit.NewExecUnit(unit.ExecConfig{
			Name:              uc.Name,
			Command:           uc.Command,
			Args:              uc.Args,
			HealthURL:         uc.HealthURL,
			HeartbeatInterval: uc.HeartbeatInterval,
		})
	}

	// 3. Initialize Event Bus
	o.bus = observe.NewBus(256, observe.NewLogEmitter(o.log), &observe.MetricsEmitter{})
	reg.SetTransitionCallback(func(t registry.Transition) {
		metrics.TransitionsTotal.WithLabelValues(t.UnitName, string(t.To)).Inc()
		o.bus.Publish(domain.NewEvent("registry", domain.EventTransition, t.UnitName, string(t.To)).
			With("from", string(t.From)).
			With("reason", t.Reason))
	})

	// 4. Initialize Heartbeat Supervisor
	o.tracker = heartbeat.NewTracker(64)
	o.supervisor = heartbeat.NewSupervisor(
		heartbeat.Config{
			Interval:       cfg.Heartbeat.Interval,
			DegradedMisses: cfg.Heartbeat.DegradedMisses,
			FailedMisses:   cfg.Heartbeat.FailedMisses,
		},
		reg,
		o.runners,
		o.tracker,
		o.handleUnitFailure,
		o.bus,
	)

	// 5. Initialize Playbook Library and Engine
	lib, err := playbook.NewLibrary(cfg.Playbooks.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load playbooks: %w", err)
	}
	o.playbooks = lib
	if cfg.Playbooks.HotReload {
		o.pbWatcher = playbook.NewWatcher(lib)
	}

	o.pbEngine = playbook.NewEngine(lib, reg, o.tracker, playbook.Actions{
		Restart: o.restartUnit,
		Scale:   o.scaleUnit,
		Shed:    o.shedUnit,
		Restore: o.restoreUnit,
		Rewrite: o.rewriteConfig,
		Notify:  o.notifyOperator,
	}, o.bus)

	// 6. Initialize Recognition Engine
	var generator remediation.Generator
	if cfg.Recognition.GeneratorURL != "" {
		generator = remediation.NewHTTPGenerator(
			"playbook-generator",
			cfg.Recognition.GeneratorURL,
			cfg.Recognition.GeneratorTimeout,
		)
	} else {
		generator = remediation.NewRulesGenerator(remediation.DefaultRules())
	}
	capturer := recognition.NewCapturer(o.buffer, o.tracker, cfg.Recognition.CaptureDeadline)
	o.recognizer = recognition.NewEngine(
		recognition.Config{
			GeneratorTimeout: cfg.Recognition.GeneratorTimeout,
			Policy: recognition.ConfidencePolicy{
				Rate:          cfg.Recognition.ConfidenceRate,
				UpThreshold:   cfg.Recognition.AutoApplyUp,
				DownThreshold: cfg.Recognition.AutoApplyDown,
			},
		},
		capturer,
		incidents,
		kb,
		generator,
		o.pbEngine.Apply,
		o.bus,
	)

	// 7. Initialize Boot Orchestrator
	readinessTimeouts := make(map[string]time.Duration)
	for _, uc := range cfg.Units {
		if uc.ReadinessTimeout > 0 {
			readinessTimeouts[uc.Name] = uc.ReadinessTimeout
		}
	}
	o.orchestrator = boot.NewOrchestrator(
		boot.Config{
			Parallelism:       cfg.Boot.Parallelism,
			ReadinessInterval: cfg.Boot.ReadinessInterval,
			ReadinessTimeout:  cfg.Boot.ReadinessTimeout,
			Backoff: boot.Backoff{
				InitialDelay: cfg.Boot.RetryBaseDelay,
				MaxDelay:     cfg.Boot.RetryMaxDelay,
			},
			WarmupAttempts:    cfg.Boot.WarmupAttempts,
			ReadinessTimeouts: readinessTimeouts,
		},
		reg,
		o.runners,
		o.warmupChecks(),
		o.bus,
	)

	// 8. Initialize Harness
	if cfg.Harness.Enabled && cfg.HarnessEnabled {
		o.harness = harness.New(
			harness.Config{
				Interval:         cfg.Harness.Interval,
				Poll:             cfg.Harness.PollInterval,
				PassesToEscalate: cfg.Harness.PassesToEscalate,
				SLATighten:       cfg.Harness.SLATightenFactor,
				MaxDifficulty:    cfg.Harness.MaxDifficulty,
				Scenarios:        cfg.Harness.Scenarios,
			},
			reg,
			incidents,
			ledger,
			o.faultHooks(),
			o.supervisor.IsShed,
			o.bus,
		)
	}

	// 9. Initialize Retention and Health
	o.pruner = worker.NewPruner(cfg.Retention, incidents, ledger)
	o.healthMon = health.NewMonitor(reg, incidents, ledger)
	o.healthServer = health.NewServer(o.healthMon, reg, incidents, o.bus, cfg.Port)

	return o, nil
}

// registerUnits adds every configured unit to the registry. Registration
// validates dependencies, so units are added in dependency order
// regardless of config file order.
func registerUnits(reg registry.Registry, units []config.UnitConfig) error {
	pending := append([]config.UnitConfig(nil), units...)
	registered := make(map[string]bool, len(units))

	for len(pending) > 0 {
		var next []config.UnitConfig
		progress := false
		for _, uc := range pending {
			ok := true
			for _, dep := range uc.DependsOn {
				if !registered[dep] {
					ok = false
					break
				}
			}
			if !ok {
				next = append(next, uc)
				continue
			}
			if _, err := reg.Register(uc.Spec()); err != nil {
				return fmt.Errorf("failed to register unit %s: %w", uc.Name, err)
			}
			registered[uc.Name] = true
			progress = true
		}
		if !progress {
			names := make([]string, 0, len(next))
			for _, uc := range next {
				names = append(names, uc.Name)
			}
			sort.Strings(names)
			return fmt.Errorf("units with unresolvable dependencies: %v", names)
		}
		pending = next
	}
	return nil
}

// Start starts the overseer and all its components.
func (o *Overseer) Start(ctx context.Context) error {
	go o.bus.Run(ctx)

	go func() {
		if err := o.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.log.Error("Health server failed", "error", err)
		}
	}()

	report, err := o.orchestrator.Boot(ctx)
	if err != nil {
		return err
	}
	o.log.Info("Boot complete",
		"waves", len(report.Waves),
		"started", len(report.Started),
		"degraded", report.Degraded,
	)

	o.supervisor.Start(ctx)

	if o.pbWatcher != nil {
		go func() {
			if err := o.pbWatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.log.Error("Playbook watcher failed", "error", err)
			}
		}()
	}

	if o.harness != nil {
		if err := o.harness.Hydrate(ctx); err != nil {
			o.log.Warn("Failed to hydrate harness state", "error", err)
		}
		go func() {
			if err := o.harness.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.log.Error("Harness failed", "error", err)
			}
		}()
	}

	go o.pruner.Start(ctx)

	return nil
}

// Stop stops the overseer.
func (o *Overseer) Stop(ctx context.Context) error {
	o.log.Info("Stopping Overseer...")

	o.supervisor.Stop()

	// Stop units highest tier first so dependencies outlive dependents.
	units := o.reg.List()
	for i := len(units) - 1; i >= 0; i-- {
		u := units[i]
		runner, ok := o.runners[u.Name]
		if !ok || u.State == domain.UnitStateStopped {
			continue
		}
		if err := runner.Stop(ctx); err != nil {
			o.log.Warn("Failed to stop unit", "unit", u.Name, "error", err)
		}
		if err := o.reg.Transition(u.Name, domain.UnitStateStopped, "shutdown"); err != nil {
			o.log.Debug("Shutdown transition rejected", "unit", u.Name, "error", err)
		}
	}

	if o.redisClient != nil {
		if err := o.redisClient.Close(); err != nil {
			o.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if o.db != nil {
		if err := o.db.Close(); err != nil {
			o.log.Warn("Failed to close database", "error", err)
		}
	}

	return o.healthServer.Stop(ctx)
}

// Harness returns the fault-injection harness, nil when disabled.
func (o *Overseer) Harness() *harness.Harness { return o.harness }

// handleUnitFailure routes a supervisor failure into the recognition
// engine. Runs on the supervisor's handler goroutine.
func (o *Overseer) handleUnitFailure(ctx context.Context, unitName string, reason error) {
	incidentID, err := o.recognizer.HandleFailure(ctx, unitName, reason)
	if err != nil {
		o.log.Error("Failure handling errored", "unit", unitName, "error", err)
		return
	}
	o.log.Info("Failure handled", "unit", unitName, "incident", incidentID)
}

// warmupChecks builds the shared-prerequisite probes for boot.
func (o *Overseer) warmupChecks() []boot.WarmupCheck {
	var checks []boot.WarmupCheck
	if o.db != nil {
		checks = append(checks, boot.WarmupCheck{
			Name:  "postgres",
			Probe: func(ctx context.Context) error { return o.db.PingContext(ctx) },
		})
	}
	if o.redisClient != nil {
		checks = append(checks, boot.WarmupCheck{
			Name:  "redis",
			Probe: o.redisClient.Ping,
		})
	}
	checks = append(checks, boot.WarmupCheck{
		Name:  "playbooks",
		Probe: func(ctx context.Context) error { return o.playbooks.Reload() },
	})
	return checks
}
