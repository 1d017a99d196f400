// Package wire provides dependency injection for the baton application.
// It creates singleton services with lazy initialization.
package wire

import (
	"log"
	"os"
	"sync"

	"github.com/example/baton/internal/adapters/filesystem"
	"github.com/example/baton/internal/adapters/sqlite"
	"github.com/example/baton/internal/app"
	"github.com/example/baton/internal/config"
	"github.com/example/baton/internal/db"
	"github.com/example/baton/internal/enginelog"
	"github.com/example/baton/internal/policy"
	"github.com/example/baton/internal/ports/primary"
	"github.com/example/baton/internal/ports/secondary"
	"github.com/example/baton/internal/runner"
	"github.com/example/baton/internal/signalspool"
	"github.com/example/baton/internal/tmux"
)

var (
	auditService      primary.AuditService
	runService        primary.RunService
	signalService     primary.SignalService
	complianceService primary.ComplianceService
	projectConfig     *config.Config
	once              sync.Once

	signalOnce sync.Once
)

// AuditService returns the singleton AuditService instance.
func AuditService() primary.AuditService {
	once.Do(initServices)
	return auditService
}

// RunService returns the singleton RunService instance.
func RunService() primary.RunService {
	once.Do(initServices)
	return runService
}

// SignalService returns the singleton SignalService instance. It has
// its own initialization path that never opens the database: it runs
// inside worker sessions and only writes spool files.
func SignalService() primary.SignalService {
	signalOnce.Do(func() {
		workDir, err := os.Getwd()
		if err != nil {
			log.Fatalf("failed to resolve working directory: %v", err)
		}
		signalService = app.NewSignalService(signalspool.Dir(workDir))
	})
	return signalService
}

// ComplianceService returns the singleton ComplianceService instance.
func ComplianceService() primary.ComplianceService {
	once.Do(initServices)
	return complianceService
}

// ProjectConfig returns the resolved .baton/config.json (or defaults).
func ProjectConfig() *config.Config {
	once.Do(initServices)
	return projectConfig
}

// TMuxAdapter returns a new tmux adapter. Each call creates a fresh
// client; adapters are stateless translators.
func TMuxAdapter() (secondary.TMuxAdapter, error) {
	return tmux.NewGotmuxAdapter()
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	workDir, err := os.Getwd()
	if err != nil {
		log.Fatalf("failed to resolve working directory: %v", err)
	}
	projectConfig = config.LoadOrDefault(workDir)

	pol, err := policy.Load(projectConfig.PolicyPath)
	if err != nil {
		log.Fatalf("failed to load policy: %v", err)
	}

	auditService = app.NewAuditService()
	complianceService = app.NewComplianceService(runner.NewGateExecutor(), filesystem.NewWorkspaceInspector(workDir), pol.GateTimeout.Std())

	database, err := db.GetDB()
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	// Repository adapters (secondary ports) with injected DB.
	runRepo := sqlite.NewRunRepository(database)
	execRepo := sqlite.NewPhaseExecutionRepository(database)
	signalRepo := sqlite.NewSignalRepository(database)
	oplog := sqlite.NewOperationLogWriter(database)

	watcher, err := signalspool.NewWatcher(signalspool.Dir(workDir))
	if err != nil {
		log.Fatalf("failed to initialize signal watcher: %v", err)
	}

	elog, err := enginelog.Open(workDir, pol.LogLevel)
	if err != nil {
		// The file log is a convenience; a read-only workspace must not
		// stop the engine.
		log.Printf("engine log unavailable: %v", err)
		elog = enginelog.Discard()
	}

	runService = app.NewRunService(
		runRepo,
		execRepo,
		signalRepo,
		oplog,
		runner.NewSupervisor(),
		auditService,
		complianceService,
		watcher,
		pol,
		elog,
		workDir,
	)
}
