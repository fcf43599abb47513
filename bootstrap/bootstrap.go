// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artpar/guardrail/adapters/clock"
	"github.com/artpar/guardrail/adapters/idgen"
	"github.com/artpar/guardrail/adapters/memory"
	"github.com/artpar/guardrail/adapters/metrics"
	"github.com/artpar/guardrail/adapters/sqlite"
	"github.com/artpar/guardrail/app"
	"github.com/artpar/guardrail/config"
	"github.com/artpar/guardrail/core/events"
	"github.com/artpar/guardrail/domain/guardrail"
	"github.com/artpar/guardrail/web"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Holder     *config.Holder
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector
	Bus        *events.Bus

	// Services
	Meter     *app.Meter
	Plans     *app.PlanResolver
	Evaluator *app.Evaluator
	Predictor *app.Predictor
	Analyzer  *app.Analyzer
	Scorer    *app.Scorer
	Alerts    *app.AlertManager
	Costs     *app.CostRecorder

	// Stores needing cleanup
	meterStore *memory.MeterStore
	planStore  *memory.PlanStore

	alertsCancel context.CancelFunc
}

// New creates and initializes the application from a config holder.
func New(holder *config.Holder) (*App, error) {
	cfg := holder.Get()
	logger := setupLogger(cfg.Logging)

	logger.Info().Msg("initializing guardrail engine")

	a := &App{
		Logger: logger,
		Holder: holder,
	}

	if err := a.initDatabase(cfg); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	a.Bus = events.NewBus(logger)

	a.initServices(cfg)
	a.initHTTPServer(cfg)
	a.watchConfig()

	return a, nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func (a *App) initDatabase(cfg *config.Config) error {
	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	a.DB = db
	a.Logger.Info().Str("dsn", cfg.Database.DSN).Msg("database initialized")
	return nil
}

func (a *App) initServices(cfg *config.Config) {
	clk := clock.Real{}
	ids := idgen.UUID{}

	archive := sqlite.NewUsageArchive(a.DB)
	costEvents := sqlite.NewCostEventStore(a.DB)
	alertStore := sqlite.NewAlertStore(a.DB)

	a.planStore = memory.NewPlanStore(cfg.ToPlans())
	accountStore := memory.NewAccountStore(cfg.ToAccounts(clk.Now()), clk)

	a.meterStore = memory.NewMeterStore(memory.MeterStoreConfig{
		Archive: archive,
		OnRollover: func(accountID, fromKey, toKey string) {
			if a.Metrics != nil {
				a.Metrics.PeriodRollovers.Inc()
			}
			a.Logger.Info().
				Str("account_id", accountID).
				Str("from", fromKey).
				Str("to", toKey).
				Msg("billing period rolled over")
		},
	})

	a.Meter = app.NewMeter(app.MeterDeps{
		Store:    a.meterStore,
		Accounts: accountStore,
		Clock:    clk,
		Metrics:  a.Metrics,
		Logger:   a.Logger,
	})

	a.Plans = app.NewPlanResolver(app.PlanResolverDeps{
		Plans:    a.planStore,
		Accounts: accountStore,
		Clock:    clk,
		Bus:      a.Bus,
		Logger:   a.Logger,
	})

	a.Evaluator = app.NewEvaluator(app.EvaluatorDeps{
		Meter: a.Meter,
		Plans: a.Plans,
		Policy: func() guardrail.Policy {
			return a.Holder.Get().ToPolicy()
		},
		Clock:   clk,
		Metrics: a.Metrics,
		Logger:  a.Logger,
	})

	a.Predictor = app.NewPredictor(app.PredictorDeps{
		Meter:   a.Meter,
		Archive: archive,
		Clock:   clk,
		Alpha:   cfg.Trend.Alpha,
	})

	a.Analyzer = app.NewAnalyzer(app.AnalyzerDeps{
		Events:   costEvents,
		Clock:    clk,
		Params:   cfg.ToOptimizationParams(),
		Budget:   cfg.Attribution.Budget,
		CacheTTL: cfg.Attribution.CacheTTL,
		Metrics:  a.Metrics,
		Logger:   a.Logger,
	})

	a.Scorer = app.NewScorer(app.ScorerDeps{
		Analyzer: a.Analyzer,
		Events:   costEvents,
		Clock:    clk,
		Weights:  cfg.Anomaly.Weights,
		Detector: cfg.Anomaly.Detectors,
		Logger:   a.Logger,
	})

	a.Alerts = app.NewAlertManager(app.AlertManagerDeps{
		Alerts:        alertStore,
		Accounts:      accountStore,
		Meter:         a.Meter,
		Plans:         a.Plans,
		Evaluator:     a.Evaluator,
		Scorer:        a.Scorer,
		Bus:           a.Bus,
		Clock:         clk,
		IDs:           ids,
		Cooldown:      cfg.Alerts.Cooldown,
		Interval:      cfg.Alerts.Interval,
		StickyWarning: cfg.Alerts.StickyWarnings,
		Metrics:       a.Metrics,
		Logger:        a.Logger,
	})

	a.Costs = app.NewCostRecorder(app.CostRecorderDeps{
		Events:   costEvents,
		Accounts: accountStore,
		Clock:    clk,
		IDs:      ids,
		Logger:   a.Logger,
	})
}

func (a *App) initHTTPServer(cfg *config.Config) {
	handler := web.NewHandler(web.Deps{
		Meter:     a.Meter,
		Plans:     a.Plans,
		Evaluator: a.Evaluator,
		Predictor: a.Predictor,
		Analyzer:  a.Analyzer,
		Scorer:    a.Scorer,
		Alerts:    a.Alerts,
		Costs:     a.Costs,
		Logger:    a.Logger,
	})

	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// watchConfig reacts to hot reloads: replace plans, drop the limit
// cache, announce on the bus.
func (a *App) watchConfig() {
	a.Holder.OnChange(func(cfg *config.Config) {
		a.planStore.Replace(cfg.ToPlans())
		a.Plans.InvalidateAll()
		a.Bus.Publish(context.Background(), events.Event{Name: events.ConfigReload})
		a.Logger.Info().Int("plans", len(cfg.Plans)).Msg("plans replaced from config")
	})
}

// Run starts the HTTP server and the alert evaluation loop, blocking
// until interrupted.
func (a *App) Run() error {
	alertsCtx, cancel := context.WithCancel(context.Background())
	a.alertsCancel = cancel
	go a.Alerts.Run(alertsCtx)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.alertsCancel != nil {
		a.alertsCancel()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.meterStore != nil {
		a.meterStore.Close()
	}

	if a.Holder != nil {
		a.Holder.Stop()
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}
