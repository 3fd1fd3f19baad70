package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/keys"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/postgres"
	redisstore "github.com/MrEthical07/authcore/store/redis"
)

const shutdownTimeout = 10 * time.Second

// App owns the engine, its backing store and the HTTP server.
type App struct {
	config  *Config
	engine  *authcore.Engine
	users   *Directory
	limiter *rate.Limiter
	logger  logging.Logger
	slog    *slog.Logger
	closers []io.Closer
}

// NewSlog returns a JSON slog logger at the named level.
func NewSlog(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func NewApp(ctx context.Context, c *Config, l *slog.Logger) (*App, error) {
	if l == nil {
		l = NewSlog(os.Stdout, c.LogLevel)
	}
	app := &App{config: c, slog: l, logger: logging.New(l).With("component", "app")}

	store, err := app.openStore(ctx)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("store init error: %w", err)
	}

	src, err := app.keySource(ctx)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("key source init error: %w", err)
	}

	app.users = NewDirectory(c.Users)

	b := authcore.New().
		WithConfig(c.EngineConfig()).
		WithStore(store).
		WithKeySource(src).
		WithUserProvider(app.users).
		WithLogger(l)
	if c.AuditLog {
		b.WithAuditSink(authcore.NewJSONWriterSink(os.Stdout))
	}

	engine, err := b.Build()
	if err != nil {
		app.close()
		return nil, fmt.Errorf("engine init error: %w", err)
	}
	app.engine = engine
	return app, nil
}

func (app *App) openStore(ctx context.Context) (refresh.Store, error) {
	c := app.config
	switch c.Store {
	case StoreMemory:
		return memory.New(), nil
	case StoreMiniredis:
		mr, err := miniredis.Run()
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, closerFunc(func() error { mr.Close(); return nil }))
		return app.redisStore(ctx, mr.Addr())
	case StoreRedis:
		return app.redisStore(ctx, c.RedisAddr)
	case StorePostgres:
		db, err := postgres.Open(ctx, c.PostgresDSN)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, db)
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		return postgres.New(db), nil
	default:
		return nil, fmt.Errorf("unknown store %q", c.Store)
	}
}

func (app *App) redisStore(ctx context.Context, addr string) (refresh.Store, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	app.closers = append(app.closers, client)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if app.config.RefreshRateLimit > 0 {
		app.limiter = rate.New(client, rate.Config{
			Prefix:      app.config.RedisPrefix,
			MaxAttempts: app.config.RefreshRateLimit,
			Window:      app.config.RefreshRateWindow,
		})
	}
	return redisstore.New(client, app.config.RedisPrefix), nil
}

func (app *App) keySource(ctx context.Context) (keys.Source, error) {
	c := app.config
	if c.S3Bucket == "" {
		return keys.FileSource{Dir: c.KeysDir}, nil
	}
	client, err := keys.NewS3Client(ctx, keys.S3Config{
		Region:          c.S3Region,
		Endpoint:        c.S3Endpoint,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretKey,
	})
	if err != nil {
		return nil, err
	}
	return keys.S3Source{
		Client:     client,
		Bucket:     c.S3Bucket,
		PublicKey:  c.S3PublicObject,
		PrivateKey: c.S3PrivateObject,
	}, nil
}

// Handler returns the HTTP handler of the app.
func (app *App) Handler() http.Handler {
	return NewServer(app.engine, app.users, app.limiter, app.config.Dev, app.logger).
		WithMetricsRole(app.config.MetricsRole).
		Routes()
}

// Run serves HTTP and sweeps expired refresh records until ctx is done.
func (app *App) Run(ctx context.Context) error {
	defer app.close()

	srv := &http.Server{
		Addr:              app.config.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info(ctx, "http server listening", "addr", srv.Addr, "store", app.config.Store, "dev", app.config.Dev)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := app.engine.RunSweeper(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (app *App) close() {
	if app.engine != nil {
		app.engine.Close()
	}
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
	app.closers = nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
