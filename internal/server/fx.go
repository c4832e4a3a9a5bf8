// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/scheduled-publisher/internal/api"
	"github.com/JakeFAU/scheduled-publisher/internal/browser"
	"github.com/JakeFAU/scheduled-publisher/internal/config"
	"github.com/JakeFAU/scheduled-publisher/internal/dispatcher"
	"github.com/JakeFAU/scheduled-publisher/internal/failover"
	"github.com/JakeFAU/scheduled-publisher/internal/notify"
	"github.com/JakeFAU/scheduled-publisher/internal/notify/sinks"
	"github.com/JakeFAU/scheduled-publisher/internal/publish"
	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
	"github.com/JakeFAU/scheduled-publisher/internal/scheduler"
	"github.com/JakeFAU/scheduled-publisher/internal/storage"
	"github.com/JakeFAU/scheduled-publisher/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

// Capability is the platform session used for login checks and publishing.
type Capability interface {
	publish.LoginChecker
	publish.Publisher
	Close() error
}

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	hub            *notify.Hub
	controller     *failover.Controller
	capability     Capability
	engine         *scheduler.Engine
	dispatch       *dispatcher.Dispatcher
	apiServer      *api.Server
	tracerShutdown func(context.Context) error
}

// Build creates the application's dependencies. reg receives the notification
// and OpenTelemetry collectors; nil means the default Prometheus registerer.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			if closeErr := app.closeAll(context.WithoutCancel(ctx)); closeErr != nil {
				logger.Warn("cleanup after failed build", zap.Error(closeErr))
			}
		}
	}()

	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.Int("primaries", len(cfg.Database.Primaries)),
		zap.Bool("backup", cfg.Database.Backup != nil),
		zap.Bool("browser", cfg.Browser.Enabled),
	)

	app.tracerShutdown, err = telemetry.Init(ctx, cfg.Telemetry, reg)
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}

	app.hub, err = setupNotifications(ctx, cfg.Notify, logger, reg)
	if err != nil {
		return nil, err
	}

	app.controller, err = OpenController(ctx, cfg.Database, app.hub, logger)
	if err != nil {
		return nil, err
	}

	app.capability, err = setupCapability(cfg.Browser, logger)
	if err != nil {
		return nil, err
	}

	executor := publish.NewExecutor(app.capability, app.capability, cfg.PublishTimeout(), logger)
	app.engine = scheduler.New(app.controller, executor, app.capability, scheduler.Options{
		StartPaused: cfg.Scheduler.StartPaused,
		Notifier:    app.hub,
		Logger:      logger,
	})

	app.dispatch, err = setupDispatcher(cfg, app.engine, app.controller, logger)
	if err != nil {
		return nil, err
	}

	app.apiServer = api.NewServer(app.engine, cfg, logger)
	return app, nil
}

// Engine exposes the scheduler for embedding callers.
func (a *App) Engine() *scheduler.Engine {
	return a.engine
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and runs the periodic duties until ctx is canceled or the
// listener fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.dispatch.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Close(shutdownCtx))
}

// Close waits for an in-flight publish, then releases every dependency.
func (a *App) Close(ctx context.Context) error {
	if a.engine != nil {
		if err := a.engine.Wait(ctx); err != nil {
			a.logger.Warn("publish worker still busy at shutdown", zap.Error(err))
		}
	}
	err := a.closeAll(ctx)
	a.logger.Info("shutdown complete")
	return err
}

func (a *App) closeAll(ctx context.Context) error {
	var errs []error
	if a.capability != nil {
		if err := a.capability.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if a.controller != nil {
		if err := a.controller.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backends: %w", err))
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close notifications: %w", err))
		}
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// OpenController opens the configured backends and reconciles the active
// primary against the backup. A reconciliation failure is logged, not fatal.
func OpenController(ctx context.Context, cfg config.DatabaseConfig, notifier schedule.Notifier, logger *zap.Logger) (*failover.Controller, error) {
	primaries, backup, err := storage.OpenAll(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open backends: %w", err)
	}
	ctrl, err := failover.New(primaries, backup, notifier, logger)
	if err != nil {
		for _, p := range primaries {
			_ = p.Close()
		}
		if backup != nil {
			_ = backup.Close()
		}
		return nil, fmt.Errorf("failover init failed: %w", err)
	}
	if idx, err := ctrl.Reconcile(ctx); err != nil {
		logger.Warn("could not reconcile active primary with backup; using default", zap.Error(err))
	} else {
		logger.Info("active primary selected", zap.Int("index", idx), zap.String("backend", ctrl.ActiveName()))
	}
	return ctrl, nil
}

func setupNotifications(ctx context.Context, cfg config.NotifyConfig, logger *zap.Logger, reg prometheus.Registerer) (*notify.Hub, error) {
	var sinkList []notify.Sink
	if cfg.LogEnabled {
		sinkList = append(sinkList, sinks.NewLogSink(logger.Named("notify_log")))
	}
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, err
	}
	sinkList = append(sinkList, promSink)
	if cfg.WebhookURL != "" {
		webhook, err := sinks.NewWebhookSink(sinks.WebhookConfig{URL: cfg.WebhookURL, RPS: cfg.WebhookRPS})
		if err != nil {
			return nil, fmt.Errorf("webhook sink init failed: %w", err)
		}
		sinkList = append(sinkList, webhook)
		logger.Info("webhook notifications enabled")
	}
	if cfg.PubSubProject != "" && cfg.PubSubTopic != "" {
		ps, err := sinks.NewPubSubSink(ctx, cfg.PubSubProject, cfg.PubSubTopic)
		if err != nil {
			return nil, fmt.Errorf("pubsub sink init failed: %w", err)
		}
		sinkList = append(sinkList, ps)
		logger.Info("Pub/Sub notifications enabled",
			zap.String("project", cfg.PubSubProject),
			zap.String("topic", cfg.PubSubTopic),
		)
	}

	hubCfg := notify.Config{
		BufferSize:   cfg.BufferSize,
		MaxBatchWait: time.Duration(cfg.MaxBatchWaitMs) * time.Millisecond,
		SinkTimeout:  time.Duration(cfg.SinkTimeoutMs) * time.Millisecond,
		BaseContext:  context.WithoutCancel(ctx),
		Logger:       logger.Named("notify_hub"),
	}
	hub := notify.NewHub(hubCfg, sinkList...)
	logger.Info("notification hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return hub, nil
}

func setupCapability(cfg config.BrowserConfig, logger *zap.Logger) (Capability, error) {
	if !cfg.Enabled {
		logger.Warn("browser disabled; every publish attempt will fail")
		return browser.NewNoop(), nil
	}
	session, err := browser.NewSession(browser.FromConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("browser init failed: %w", err)
	}
	logger.Info("browser session configured", zap.Bool("headless", cfg.Headless), zap.String("user_data_dir", cfg.UserDataDir))
	return session, nil
}

func setupDispatcher(cfg config.Config, engine *scheduler.Engine, ctrl *failover.Controller, logger *zap.Logger) (*dispatcher.Dispatcher, error) {
	d := dispatcher.New(logger)
	if err := d.Every(dispatcher.Duty{
		Name:         "scan",
		Interval:     cfg.ScanInterval(),
		InitialDelay: cfg.InitialDelay(),
		Run:          engine.RunScanCycle,
	}); err != nil {
		return nil, err
	}
	if err := d.Every(dispatcher.Duty{
		Name:         "login_check",
		Interval:     cfg.LoginCheckInterval(),
		InitialDelay: cfg.InitialDelay(),
		Run: func(ctx context.Context) {
			// RefreshLogin logs and notifies on its own.
			_, _ = engine.RefreshLogin(ctx)
		},
	}); err != nil {
		return nil, err
	}
	if cfg.Database.Backup != nil && cfg.Database.BackupCron != "" {
		if err := d.Cron(dispatcher.CronDuty{
			Name: "backup",
			Spec: cfg.Database.BackupCron,
			Run: func(ctx context.Context) {
				if err := ctrl.Backup(ctx); err != nil {
					logger.Error("scheduled backup failed", zap.Error(err))
				}
			},
		}); err != nil {
			return nil, fmt.Errorf("backup duty: %w", err)
		}
	}
	return d, nil
}
