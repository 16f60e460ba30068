// Package daemon composes wphookd: the store, ingestion pipeline, status
// simulator, HTTP surface and the local gRPC socket.
package daemon

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wphook/internal/api"
	"github.com/matheus3301/wphook/internal/bus"
	"github.com/matheus3301/wphook/internal/config"
	"github.com/matheus3301/wphook/internal/conversation"
	"github.com/matheus3301/wphook/internal/ingest"
	"github.com/matheus3301/wphook/internal/lock"
	"github.com/matheus3301/wphook/internal/logging"
	"github.com/matheus3301/wphook/internal/simulator"
	"github.com/matheus3301/wphook/internal/store"
	"github.com/matheus3301/wphook/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config *config.Config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			ingest.NewApplier,
			ingest.NewProcessor,
			provideSimulator,
			provideConversationService,
			provideWebhookHandler,
			provideRouter,
			provideEventService,
			NewHTTPServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

// WithZapLogger routes fx's own lifecycle events through the daemon logger.
func WithZapLogger() fx.Option {
	return fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: logger.Named("fx")}
	})
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.Config.Log.Path, p.Config.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	dir := p.Config.Dir()
	logger.Info("acquiring data directory lock", zap.String("dir", dir))
	l, err := lock.Acquire(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("data directory lock acquired", zap.String("path", l.Path()))
	return l, nil
}

// provideStore takes the lock so the database is only opened by its owner.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := p.Config.Store.Path
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideSimulator(p Params, applier *ingest.Applier, b *bus.Bus, logger *zap.Logger) *simulator.Simulator {
	return simulator.New(applier, b, p.Config.Simulator, logger)
}

func provideConversationService(p Params, db *store.DB, b *bus.Bus, sim *simulator.Simulator, logger *zap.Logger) *conversation.Service {
	return conversation.NewService(db, b, sim, p.Config.Account, logger)
}

func provideWebhookHandler(p Params, processor *ingest.Processor, logger *zap.Logger) *webhook.Handler {
	if p.Config.Webhook.VerifyToken == "" {
		logger.Warn("no webhook verify token configured, subscription handshakes will be refused")
	}
	return webhook.NewHandler(processor, p.Config.Webhook, logger)
}

func provideRouter(hook *webhook.Handler, svc *conversation.Service, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	return api.NewRouter(hook, svc, logger)
}

func provideEventService(b *bus.Bus, svc *conversation.Service) *api.EventService {
	return api.NewEventService(b, svc)
}

// registerLifecycle appends one hook per component. fx stops the hooks whose
// OnStart succeeded in reverse order, so a failed HTTP bind still releases
// the store and the lock.
func registerLifecycle(lc fx.Lifecycle, srv *Server, httpSrv *HTTPServer, sim *simulator.Simulator, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})

	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			sim.Start(runCtx)
			logger.Info("status simulator started", zap.Bool("enabled", sim.Enabled()))
			return nil
		},
		OnStop: func(_ context.Context) error {
			sim.Stop()
			cancel()
			return nil
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			return nil
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return httpSrv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return httpSrv.Stop(ctx)
		},
	})
}
