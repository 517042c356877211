package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/huguei/zonemaster-backend/config"
	"github.com/huguei/zonemaster-backend/internal/adapters/devengine"
	redisadapter "github.com/huguei/zonemaster-backend/internal/adapters/redis"
	"github.com/huguei/zonemaster-backend/internal/adapters/testagent"
	"github.com/huguei/zonemaster-backend/internal/core"
	"github.com/huguei/zonemaster-backend/internal/data"
	"github.com/huguei/zonemaster-backend/internal/domain/params"
	"github.com/huguei/zonemaster-backend/internal/observability/statsd"
	"github.com/huguei/zonemaster-backend/internal/rpc"
	"github.com/huguei/zonemaster-backend/internal/service"
)

// ServiceContainer holds the wired application services.
type ServiceContainer struct {
	Repo     *data.TestRepo
	Tests    *service.TestService
	Agent    *testagent.Runner
	Janitor  *service.JanitorService
	Progress core.ProgressSink
	Metrics  *statsd.Client
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger

	// Engine overrides the DNS probing engine. The development engine is
	// used when nil.
	Engine core.Engine
}

// NewServices wires repositories and services from connections and config.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	metricsSink := buildMetricsSink(logger, cfg.Observability.Metrics)

	repo := data.NewTestRepo(deps.DB, data.RepoConfig{
		ReuseWindow: cfg.Backend.ReuseWindow,
		Logger:      logger,
	})

	var progress core.ProgressSink
	if deps.RedisClient != nil {
		progress = redisadapter.NewProgressStore(deps.RedisClient)
	}

	engine := deps.Engine
	if engine == nil {
		engine = &devengine.Engine{}
		if !cfg.IsDev {
			logger.Warn("no probing engine configured; using development engine")
		}
	}

	var agent *testagent.Runner
	if cfg.IsAgentEnabled() {
		var err error
		agent, err = testagent.NewRunner(testagent.RunnerOptions{
			Store:        repo,
			Engine:       engine,
			Defaults:     params.Defaults{Profile: cfg.Backend.DefaultProfile},
			Concurrency:  cfg.Agent.Concurrency,
			PollInterval: cfg.Agent.PollInterval,
			TestTimeout:  cfg.Agent.TestTimeout,
			Progress:     progress,
			Metrics:      metricsSink,
			Logger:       logger,
		})
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("create test agent: %w", err)
		}
	}

	// With an in-process agent, fresh tests get nudged straight to it; in
	// rpc-only deployments pickup happens via LISTEN/NOTIFY or polling.
	var runner core.Runner
	if agent != nil {
		runner = agent
	}

	tests, err := service.NewTestService(service.TestServiceOptions{
		Store:    repo,
		Backend:  cfg.Backend,
		Runner:   runner,
		Progress: progress,
		Metrics:  metricsSink,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create test service: %w", err)
	}

	var janitor *service.JanitorService
	if cfg.IsJanitorEnabled() {
		janitor, err = service.NewJanitorService(service.JanitorServiceOptions{
			Store:         repo,
			Interval:      cfg.Janitor.Interval,
			RunningMaxAge: cfg.Janitor.RunningMaxAge,
			Metrics:       metricsSink,
			Logger:        logger,
		})
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("create janitor: %w", err)
		}
	}

	return ServiceContainer{
		Repo:     repo,
		Tests:    tests,
		Agent:    agent,
		Janitor:  janitor,
		Progress: progress,
		Metrics:  metricsSink,
	}, nil
}

func buildMetricsSink(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// ServiceOrchestrationConfig contains configuration for running services.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown starts all enabled services and blocks until a
// shutdown signal arrives or a service fails. A failing service cancels
// its siblings.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	started := 0

	if cfg.Config.IsRPCEnabled() {
		server, err := rpc.NewServer(rpc.ServerOptions{
			Tests:  cfg.Services.Tests,
			Config: cfg.Config.RPC,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("create rpc server: %w", err)
		}
		started++
		g.Go(func() error {
			if err := server.Run(ctx); err != nil {
				return fmt.Errorf("rpc server failed: %w", err)
			}
			return nil
		})
	}

	if cfg.Config.IsAgentEnabled() && cfg.Services.Agent != nil {
		started++
		agent := cfg.Services.Agent
		g.Go(func() error {
			if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("test agent failed: %w", err)
			}
			return nil
		})
	}

	if cfg.Config.IsJanitorEnabled() && cfg.Services.Janitor != nil {
		started++
		janitor := cfg.Services.Janitor
		g.Go(func() error {
			if err := janitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("janitor failed: %w", err)
			}
			return nil
		})
	}

	if started == 0 {
		return errors.New("no services enabled")
	}

	logger.Info("services running", "services", EnabledServiceNames(cfg.Config))
	err := g.Wait()

	if cfg.Services.Metrics != nil {
		if closeErr := cfg.Services.Metrics.Close(); closeErr != nil {
			logger.Warn("close metrics sink", "error", closeErr)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("services stopped")
	return nil
}
