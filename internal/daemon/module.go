package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/config"
	"github.com/matheus3301/chatd/internal/delivery"
	"github.com/matheus3301/chatd/internal/export"
	"github.com/matheus3301/chatd/internal/gateway"
	"github.com/matheus3301/chatd/internal/httpapi"
	"github.com/matheus3301/chatd/internal/keylock"
	"github.com/matheus3301/chatd/internal/lock"
	"github.com/matheus3301/chatd/internal/logging"
	"github.com/matheus3301/chatd/internal/media"
	"github.com/matheus3301/chatd/internal/metrics"
	"github.com/matheus3301/chatd/internal/presence"
	"github.com/matheus3301/chatd/internal/reaction"
	"github.com/matheus3301/chatd/internal/receipt"
	"github.com/matheus3301/chatd/internal/registry"
	"github.com/matheus3301/chatd/internal/statusfeed"
	"github.com/matheus3301/chatd/internal/store"
	"github.com/matheus3301/chatd/internal/typing"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config     *config.Config
	SocketPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideLock,
			provideStore,
			bus.New,
			keylock.New,
			registry.New,
			provideVerifier,
			providePresenceStore,
			provideUploader,
			providePresence,
			provideTyping,
			provideRouter,
			provideReactions,
			provideReceipts,
			provideFeed,
			provideJanitor,
			provideMetrics,
			provideExporter,
			provideGateway,
			provideAPI,
			NewHTTPServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg := p.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath(), cfg.LogLevel)
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data dir lock", zap.String("dir", cfg.DataDir))
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired", zap.String("path", l.Path()))
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	dbPath := cfg.DBPath()
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
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideVerifier(cfg *config.Config) *auth.Verifier {
	return auth.NewVerifier(cfg.Auth.JWTSecret)
}

// providePresenceStore persists presence in SQLite and, when Redis is
// configured, mirrors it there too.
func providePresenceStore(lc fx.Lifecycle, cfg *config.Config, db *store.DB, logger *zap.Logger) presence.Store {
	if cfg.Redis.Addr == "" {
		return db
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				logger.Warn("redis unreachable, presence mirror degraded", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	logger.Info("presence mirrored to redis", zap.String("addr", cfg.Redis.Addr))
	return presence.Tee{
		Primary: db,
		Mirror:  presence.NewRedisStore(client, cfg.Redis.PresenceTTL.Duration),
	}
}

// provideUploader returns nil when no media endpoint is configured; media
// sends then fail as upload errors.
func provideUploader(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (media.Uploader, error) {
	if cfg.Media.Endpoint == "" {
		logger.Info("media uploads disabled")
		return nil, nil
	}
	up, err := media.NewMinIO(media.MinIOConfig{
		Endpoint:  cfg.Media.Endpoint,
		AccessKey: cfg.Media.AccessKey,
		SecretKey: cfg.Media.SecretKey,
		Bucket:    cfg.Media.Bucket,
		UseSSL:    cfg.Media.UseSSL,
		PublicURL: cfg.Media.PublicURL,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := up.EnsureBucket(ctx); err != nil {
				logger.Warn("media bucket check failed", zap.Error(err))
			}
			return nil
		},
	})
	return up, nil
}

// providePresence clears a user's typing indicators when they go offline,
// inside the presence lifecycle lock.
func providePresence(reg *registry.Registry, s presence.Store, locks *keylock.Striped, b *bus.Bus, tracker *typing.Tracker, logger *zap.Logger) *presence.Publisher {
	p := presence.New(reg, s, locks, b, logger.Named("presence"))
	p.OnOffline(tracker.Clear)
	return p
}

func provideTyping(cfg *config.Config, reg *registry.Registry, b *bus.Bus, logger *zap.Logger) *typing.Tracker {
	return typing.New(reg, cfg.Typing.Timeout.Duration, b, logger.Named("typing"))
}

func provideRouter(db *store.DB, reg *registry.Registry, up media.Uploader, b *bus.Bus, logger *zap.Logger) *delivery.Router {
	return delivery.New(db, reg, up, b, logger.Named("delivery"))
}

func provideReactions(db *store.DB, reg *registry.Registry, locks *keylock.Striped, b *bus.Bus, logger *zap.Logger) *reaction.Coordinator {
	return reaction.New(db, reg, locks, b, logger.Named("reaction"))
}

func provideReceipts(db *store.DB, reg *registry.Registry, b *bus.Bus, logger *zap.Logger) *receipt.Synchronizer {
	return receipt.New(db, reg, b, logger.Named("receipt"))
}

func provideFeed(cfg *config.Config, db *store.DB, reg *registry.Registry, up media.Uploader, b *bus.Bus, logger *zap.Logger) *statusfeed.Feed {
	return statusfeed.New(db, reg, up, cfg.Limits.StatusTTL.Duration, b, logger.Named("statusfeed"))
}

func provideJanitor(db *store.DB, logger *zap.Logger) *statusfeed.Janitor {
	return statusfeed.NewJanitor(db, 10*time.Minute, logger.Named("janitor"))
}

func provideMetrics(b *bus.Bus, reg *registry.Registry, gw *gateway.Gateway, tracker *typing.Tracker, logger *zap.Logger) *metrics.Metrics {
	return metrics.New(b, metrics.Gauges{
		OnlineUsers:  func() float64 { return float64(reg.Count()) },
		Sockets:      func() float64 { return float64(gw.Connections()) },
		TypingActive: func() float64 { return float64(tracker.Active()) },
	}, logger.Named("metrics"))
}

// provideExporter returns nil unless Kafka brokers are configured.
func provideExporter(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *export.Exporter {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil
	}
	logger.Info("exporting events to kafka",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
	)
	return export.New(export.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), b, logger.Named("export"))
}

func provideGateway(
	cfg *config.Config,
	verifier *auth.Verifier,
	pub *presence.Publisher,
	tracker *typing.Tracker,
	router *delivery.Router,
	reactions *reaction.Coordinator,
	receipts *receipt.Synchronizer,
	logger *zap.Logger,
) *gateway.Gateway {
	return gateway.New(gateway.Services{
		Presence:  pub,
		Typing:    tracker,
		Router:    router,
		Reactions: reactions,
		Receipts:  receipts,
	}, verifier, gateway.Options{
		SendBuffer:      cfg.Limits.SendBuffer,
		MaxMessageBytes: cfg.Limits.MaxMessageBytes,
		AllowedOrigins:  cfg.AllowedOrigins,
		CookieName:      cfg.Auth.CookieName,
	}, logger.Named("gateway"))
}

func provideAPI(
	cfg *config.Config,
	db *store.DB,
	verifier *auth.Verifier,
	router *delivery.Router,
	receipts *receipt.Synchronizer,
	feed *statusfeed.Feed,
	pub *presence.Publisher,
	logger *zap.Logger,
) *httpapi.API {
	return httpapi.New(httpapi.Services{
		Router:   router,
		Receipts: receipts,
		Feed:     feed,
		Presence: pub,
		Profiles: db,
	}, verifier, httpapi.Options{
		CookieName:     cfg.Auth.CookieName,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxUploadBytes: cfg.Limits.MaxUploadBytes,
	}, logger.Named("http"))
}

type lifecycleParams struct {
	fx.In

	Admin    *Server
	HTTP     *HTTPServer
	Gateway  *gateway.Gateway
	Lock     *lock.Lock
	DB       *store.DB
	Presence *presence.Publisher
	Janitor  *statusfeed.Janitor
	Metrics  *metrics.Metrics
	Exporter *export.Exporter
	Logger   *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, p lifecycleParams) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// No connection survives a restart.
			if err := p.Presence.ResetOnline(ctx); err != nil {
				p.Logger.Warn("reset online flags failed", zap.Error(err))
			}
			p.Metrics.Start(context.Background())
			if p.Exporter != nil {
				p.Exporter.Start(context.Background())
			}
			p.Janitor.Start(context.Background())

			go func() {
				if err := p.Admin.Start(); err != nil {
					p.Logger.Error("admin server error", zap.Error(err))
				}
			}()
			go func() {
				if err := p.HTTP.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.HTTP.Stop(ctx)
			if err := p.Gateway.Shutdown(ctx); err != nil {
				p.Logger.Warn("gateway shutdown incomplete", zap.Error(err))
			}
			p.Admin.Stop(ctx)
			p.Janitor.Stop()
			if p.Exporter != nil {
				if err := p.Exporter.Stop(); err != nil {
					p.Logger.Warn("error closing kafka writer", zap.Error(err))
				}
			}
			p.Metrics.Stop()
			if err := p.DB.Close(); err != nil {
				p.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := p.Lock.Release(); err != nil {
				p.Logger.Warn("error releasing lock", zap.Error(err))
			}
			p.Logger.Info("daemon stopped")
			_ = p.Logger.Sync()
			return nil
		},
	})
}
