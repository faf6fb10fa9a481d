package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
	"github.com/MrSnakeDoc/marks/internal/config"
	"github.com/MrSnakeDoc/marks/internal/httpserver"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/redis"
	"github.com/MrSnakeDoc/marks/internal/scheduler"
	"github.com/MrSnakeDoc/marks/internal/storage/kvfile"
	redisstore "github.com/MrSnakeDoc/marks/internal/store/redis"
	"github.com/MrSnakeDoc/marks/internal/version"
)

// mirrorStatus joins the mirror connection and the syncer state for /readyz.
type mirrorStatus struct {
	*redisstore.Store
	*scheduler.RedisMirror
}

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	loop        *bookmarks.Loop
	store       *bookmarks.Store
	redisClient *goredis.Client
	mirror      *scheduler.RedisMirror
	importer    *scheduler.HomepageImporter

	// ctx is handed to background workers and cancelled last on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

func New() (*App, error) {
	cfg := config.Load()
	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	ctx, cancel := context.WithCancel(context.Background())
	loop := bookmarks.NewLoop()

	store, err := bookmarks.Shared(cfg.BookmarksFile(), kvfile.New(),
		bookmarks.WithLogger(loggerClient.Named("store")),
		bookmarks.WithExecutor(loop))
	if err != nil {
		loop.Stop()
		cancel()
		return nil, fmt.Errorf("failed to open bookmarks: %w", err)
	}

	var count int
	if err := loop.Do(ctx, func() { count = store.Len() }); err == nil {
		loggerClient.Info("bookmarks loaded",
			logger.String("path", store.Path()),
			logger.Int("count", count))
	}

	a := &App{
		cfg:    cfg,
		logger: loggerClient,
		loop:   loop,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
	}

	d := deps.Deps{
		Logger:                loggerClient,
		StartTime:             time.Now(),
		Version:               version.Version,
		Commit:                version.Commit,
		BuildDate:             version.BuildDate,
		GoVersion:             version.GoVersion,
		AllowedHosts:          cfg.AllowedHosts,
		AllowedCIDRS:          cfg.AllowedCIDRS,
		TrustProxy:            cfg.TrustProxy,
		Store:                 store,
		Loop:                  loop,
		ImportBurst:           cfg.ImportBurst,
		ImportRefillPerMinute: cfg.ImportRefillPerMinute,
		MaxImportBytes:        cfg.MaxImportBytes,
	}

	if cfg.MirrorEnabled() {
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		client, err := redis.New(ctx, redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient.Named("redis"))
		if err != nil {
			// The file is the source of truth; run without a mirror.
			loggerClient.Error("redis unavailable, mirror disabled", logger.Error(err))
		} else {
			mirrorStore := redisstore.NewStore(client)
			a.redisClient = client
			a.mirror = scheduler.NewRedisMirror(mirrorStore, store, loop,
				loggerClient.Named("mirror"), cfg.MirrorInterval)
			d.Mirror = mirrorStatus{Store: mirrorStore, RedisMirror: a.mirror}
		}
	} else {
		loggerClient.Info("redis not configured, mirror disabled")
	}

	if cfg.HomepageBookmarks != "" {
		loggerClient.Info("homepage bookmarks configured, initializing importer",
			logger.String("file", cfg.HomepageBookmarks))
		d.ImportTrigger = make(chan struct{}, 1)
		a.importer = scheduler.NewHomepageImporter(
			cfg.HomepageBookmarks,
			store,
			loop,
			loggerClient.Named("import"),
			cfg.ImportInterval,
			cfg.ImportPrune,
			d.ImportTrigger,
		)
	} else {
		loggerClient.Info("homepage bookmarks not configured, import disabled")
	}

	a.server = httpserver.New(cfg, d)
	return a, nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting Marks v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("Marks %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.mirror != nil {
		if err := a.mirror.Start(a.ctx); err != nil {
			return fmt.Errorf("failed to start redis mirror: %w", err)
		}
		a.logger.Info("redis mirror started",
			logger.Duration("interval", a.cfg.MirrorInterval))
	}

	if a.importer != nil {
		a.importer.Start(a.ctx)
		a.logger.Info("homepage importer started",
			logger.Duration("interval", a.cfg.ImportInterval))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-sigCtx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown stops the server first so no request touches the store, then the
// workers, then waits for the last save before stopping the loop.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var err error
	if serr := a.server.Stop(shutdownCtx); serr != nil {
		err = fmt.Errorf("failed to stop server: %w", serr)
	}

	if a.importer != nil {
		a.importer.Stop()
	}
	if a.mirror != nil {
		a.mirror.Stop()
	}

	if ferr := a.loop.Do(shutdownCtx, func() {
		if serr := a.store.Save(); serr != nil {
			a.logger.Error("final bookmarks save failed", logger.Error(serr))
		}
	}); ferr != nil {
		a.logger.Warn("could not run final save", logger.Error(ferr))
	}
	a.store.Wait()
	a.loop.Stop()
	a.cancel()

	if a.redisClient != nil {
		if cerr := a.redisClient.Close(); cerr != nil {
			a.logger.Warnf("failed to close redis: %v", cerr)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ Marks stopped cleanly")
	_ = a.logger.Sync()
	return err
}
