package engine

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulsehub/pulse/internal/api"
	"github.com/pulsehub/pulse/internal/bus"
	"github.com/pulsehub/pulse/internal/chat"
	"github.com/pulsehub/pulse/internal/config"
	"github.com/pulsehub/pulse/internal/domain"
	"github.com/pulsehub/pulse/internal/logging"
	"github.com/pulsehub/pulse/internal/metrics"
	"github.com/pulsehub/pulse/internal/notification"
	"github.com/pulsehub/pulse/internal/ops"
	"github.com/pulsehub/pulse/internal/registry"
	"github.com/pulsehub/pulse/internal/storage"
	"github.com/pulsehub/pulse/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Engine wires the event bus, connection registry, delivery engines
// and HTTP surfaces together and manages their lifecycle
type Engine struct {
	config        *config.Config
	bus           *bus.Bus
	registry      *registry.Registry
	store         domain.Store
	notifications *notification.Engine
	chat          *chat.Engine
	api           *api.API
	ops           *ops.Server
	telemetryFn   func(context.Context) error
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

// CreateEngine creates an Engine with all components initialized from
// the config
func CreateEngine(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.New(cfg.ToStorageConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	eventBus := bus.NewBus()
	reg := registry.NewRegistry()

	notifications := notification.NewEngine(cfg.ToNotificationConfig(), eventBus, reg, store)
	chatEngine := chat.NewEngine(cfg.ToChatConfig(), reg, store)

	apiServer := api.NewAPI(cfg.ToAPIConfig(), eventBus, reg, notifications, chatEngine)
	opsServer := ops.NewServer(cfg.ToOpsConfig(), reg)

	return &Engine{
		config:        cfg,
		bus:           eventBus,
		registry:      reg,
		store:         store,
		notifications: notifications,
		chat:          chatEngine,
		api:           apiServer,
		ops:           opsServer,
		logger:        log.With().Str("component", "engine").Logger(),
		metrics:       metrics.GetMetrics(),
	}, nil
}

// Start initializes and runs all components
func (e *Engine) Start(ctx context.Context) error {
	// Set up structured logging before anything else emits
	if err := logging.Setup(e.config.ToLoggingConfig()); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	e.logger = log.With().Str("component", "engine").Logger()
	e.logger.Info().Msg("Starting pulse engine")

	// Set up telemetry
	telShutdown, err := telemetry.Setup(ctx, e.config.ToTelemetryConfig())
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to set up telemetry, continuing without it")
	} else {
		e.telemetryFn = telShutdown
	}

	// Use the provided context or create one with signal handling
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			sig := <-sigCh
			e.logger.Info().Str("signal", sig.String()).Msg("Caught signal, initiating shutdown")
			cancel()
		}()
	}

	g, ctx := errgroup.WithContext(ctx)

	// Storage maintenance
	g.Go(func() error {
		return e.store.Start(ctx)
	})

	// Notification engine (subscribes to the bus)
	g.Go(func() error {
		return e.notifications.Start(ctx)
	})

	// Public API server
	g.Go(func() error {
		return e.api.Start(ctx)
	})

	// Ops server
	g.Go(func() error {
		return e.ops.Start(ctx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return fmt.Errorf("error running engine: %w", err)
	}

	e.logger.Info().Msg("Pulse engine shut down successfully")
	return nil
}

// Shutdown stops all components in dependency order
func (e *Engine) Shutdown(ctx context.Context) error {
	e.logger.Info().Msg("Shutting down pulse engine")

	// Stop accepting new requests and connections first
	if err := e.api.Shutdown(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to shut down API")
	}

	if err := e.ops.Shutdown(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to shut down ops server")
	}

	// Drop all live connections so nothing pushes into a closing store
	e.registry.CloseAll()

	// Storage last
	if err := e.store.Shutdown(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to shut down storage")
		return err
	}

	if e.telemetryFn != nil {
		if err := e.telemetryFn(ctx); err != nil {
			e.logger.Error().Err(err).Msg("Failed to shut down telemetry")
		}
	}

	return nil
}
