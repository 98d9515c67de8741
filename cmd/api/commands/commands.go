package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/eventcal/core/internal/adapters/cache"
	"github.com/eventcal/core/internal/adapters/repository"
	"github.com/eventcal/core/internal/adapters/repository/memory"
	"github.com/eventcal/core/internal/application/services"
	"github.com/eventcal/core/internal/infrastructure/config"
	"github.com/eventcal/core/internal/infrastructure/database"
	"github.com/eventcal/core/internal/infrastructure/logger"
	"github.com/eventcal/core/internal/infrastructure/metrics"
	"github.com/eventcal/core/internal/infrastructure/scheduler"
	"github.com/eventcal/core/internal/infrastructure/server"
	"github.com/eventcal/core/internal/ports"
)

// configPath is bound to the persistent --config flag of the root command.
var configPath string

// AddConfigFlag registers --config on the root command.
func AddConfigFlag(root *cobra.Command) {
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: $EVENTCAL_CONFIG)")
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.ConfigPathFromEnv()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// runtime is the storage, cache and service stack built from the config.
type runtime struct {
	db      *database.DB
	events  *services.EventService
	checks  map[string]server.Check
	stats   map[string]server.Stats
	closers []io.Closer
}

func (rt *runtime) Close() error {
	var result *multierror.Error
	for _, c := range rt.closers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func buildRuntime(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*runtime, error) {
	rt := &runtime{checks: map[string]server.Check{}, stats: map[string]server.Stats{}}

	var repo ports.EventRepository
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		rt.db = db
		rt.closers = append(rt.closers, db)
		rt.checks["database"] = db.Ping
		rt.stats["database"] = db.GetConnectionInfo
		repo = repository.NewEventRepository(db, log)
	default:
		repo = memory.New()
	}

	var viewCache ports.ViewCache
	switch cfg.Cache.Driver {
	case config.CacheRedis:
		rc, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:       cfg.Redis.GetAddr(),
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			KeyPrefix:  cfg.Redis.KeyPrefix,
			TTL:        cfg.Cache.TTL,
			MaxRetries: cfg.Redis.MaxRetries,
			RetryDelay: cfg.Redis.RetryDelay,
		}, log)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, rc)
		rt.checks["redis"] = rc.Ping
		viewCache = rc
	case config.CacheMemory:
		mc := cache.NewMemory(cache.Config{
			TTL:             cfg.Cache.TTL,
			MaxEntries:      cfg.Cache.MaxEntries,
			CleanupInterval: cfg.Cache.CleanupInterval,
		})
		rt.closers = append(rt.closers, mc)
		viewCache = mc
	}

	rt.events = services.NewEventService(repo, viewCache, m, log,
		services.WithMaxOccurrences(cfg.Limits.MaxOccurrences))
	return rt, nil
}

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the eventcal API server",
		Long:  "Start the HTTP API with the configured storage, view cache and index resync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), migrateFirst)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before starting (postgres only)")
	return cmd
}

func runServer(ctx context.Context, migrateFirst bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg, appLogger, m)
	if err != nil {
		return err
	}

	if migrateFirst && rt.db != nil {
		if err := migrateUp(rt.db, cfg.Storage.MigrationsPath, appLogger); err != nil {
			_ = rt.Close()
			return err
		}
	}
	if err := rt.events.Reload(ctx); err != nil {
		_ = rt.Close()
		return err
	}

	deps := server.Dependencies{
		Events:  rt.events,
		Metrics: m,
		Checks:  rt.checks,
		Stats:   rt.stats,
		Closers: rt.closers,
	}
	if cfg.Auth.Enabled {
		deps.Auth = services.NewAuthService(cfg.JWT, appLogger)
	}
	srv, err := server.New(cfg, deps, appLogger)
	if err != nil {
		_ = rt.Close()
		return err
	}

	var resync *scheduler.Scheduler
	if cfg.Sync.Enabled {
		if resync, err = scheduler.New(cfg.Sync.Cron, rt.events, m, appLogger); err != nil {
			_ = rt.Close()
			return err
		}
		resync.Start()
	}

	appLogger.Infow("Starting eventcal API server",
		"port", cfg.Server.Port,
		"environment", cfg.App.Environment,
		"storage", cfg.Storage.Driver,
		"cache", cfg.Cache.Driver,
	)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		return srv.Start()
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var result *multierror.Error
		if resync != nil {
			if err := resync.Stop(shutdownCtx); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			result = multierror.Append(result, err)
		}
		return result.ErrorOrNil()
	})

	if err := p.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Errorw("Server stopped with errors", "error", err)
		return err
	}
	appLogger.Infow("Server stopped")
	return nil
}
