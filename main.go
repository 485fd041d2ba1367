package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/relaybots/relay/backend/go-services/handlers"
	"github.com/relaybots/relay/backend/go-services/internal/accounts"
	"github.com/relaybots/relay/backend/go-services/internal/auth"
	"github.com/relaybots/relay/backend/go-services/internal/backup"
	"github.com/relaybots/relay/backend/go-services/internal/config"
	"github.com/relaybots/relay/backend/go-services/internal/console"
	"github.com/relaybots/relay/backend/go-services/internal/database"
	"github.com/relaybots/relay/backend/go-services/internal/guard"
	"github.com/relaybots/relay/backend/go-services/internal/sessions"
	"github.com/relaybots/relay/backend/go-services/internal/store"
	"github.com/relaybots/relay/backend/go-services/internal/telegram"
	"github.com/relaybots/relay/backend/go-services/pkg/logger"
	"github.com/relaybots/relay/backend/go-services/pkg/metrics"
	"github.com/relaybots/relay/backend/go-services/pkg/middleware"
)

var startTime = time.Now()

// app holds the wired console dependencies.
type app struct {
	cfg      *config.Config
	guard    *guard.Guard
	auth     *auth.Service
	console  *console.Service
	redis    *redis.Client
	sessions string
	closers  []func()
}

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	logger.SetFormat(cfg.Log.Format)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Fatalf("startup failed: %v", err)
	}
	defer a.close()

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r := a.router()
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	logger.Infof("Config summary: store=%s lock_timeout=%s sessions=%s redis=%v backup=%v telegram=%v",
		cfg.Store.Path, cfg.Store.LockTimeout, a.sessions, a.redis != nil, a.console.BackupEnabled(), cfg.Telegram.Token != "")

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting console on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Errorf("server failed: %v", err)
	case <-ctx.Done():
		logger.Infof("shutting down")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("graceful shutdown: %v", err)
	}
}

// newApp wires store, sessions, auth and console from cfg. Optional backends
// that fail to connect are logged and skipped.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	a.guard = guard.New(store.NewFileStore(cfg.Store.Path), cfg.Store.LockTimeout)
	if _, err := a.guard.Snapshot(); err != nil {
		// a corrupt store is reported per request; the console still starts
		logger.Errorf("initial store load: %v", err)
	}

	tbl, err := accounts.Load(cfg.Console.Accounts, cfg.Console.Passwords)
	if err != nil {
		return nil, fmt.Errorf("console accounts: %w", err)
	}
	logger.Infof("console accounts: %v", tbl.Identities())

	secret := []byte(cfg.Console.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}

	if cfg.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			_ = client.Close()
		} else {
			a.redis = client
			a.closers = append(a.closers, func() { _ = client.Close() })
		}
	}

	repo, err := a.sessionRepository(ctx)
	if err != nil {
		return nil, err
	}
	a.auth = auth.NewService(tbl, sessions.NewService(repo), secret, cfg.Console.SessionTTL)

	var opts []console.Option
	if cfg.Telegram.Token != "" {
		client, err := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.APIURL, nil)
		if err != nil {
			return nil, err
		}
		opts = append(opts, console.WithSender(client))
	}
	if cfg.MinIO.Endpoint != "" {
		objs, err := backup.NewMinIOStore(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("snapshot backup disabled: %v", err)
		} else {
			opts = append(opts, console.WithUploader(backup.NewUploader(objs, cfg.Store.Path)))
		}
	}
	a.console = console.NewService(a.guard, opts...)
	return a, nil
}

// sessionRepository prefers Redis, then Mongo, then process memory.
func (a *app) sessionRepository(ctx context.Context) (sessions.Repository, error) {
	if a.redis != nil {
		a.sessions = "redis"
		return sessions.NewRedisRepository(a.redis, ""), nil
	}
	if a.cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, a.cfg.MongoDB.URI, a.cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Warnf("could not connect to MongoDB, using in-memory sessions: %v", err)
		} else {
			a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
			repo := sessions.NewMongoRepository(client.Database(a.cfg.MongoDB.Database).Collection("sessions"))
			if err := repo.EnsureIndexes(ctx); err != nil {
				logger.Warnf("mongo session TTL index: %v", err)
			}
			a.sessions = "mongo"
			return repo, nil
		}
	}
	a.sessions = "memory"
	mem := sessions.NewMemoryRepository()
	go pruneSessions(ctx, mem, 10*time.Minute)
	return mem, nil
}

func pruneSessions(ctx context.Context, mem *sessions.MemoryRepository, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := mem.Prune(now.UTC()); n > 0 {
				logger.Debugf("pruned %d expired sessions", n)
			}
		}
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// router builds the gin engine with every console route except /metrics.
func (a *app) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", a.ready)

	handlers.RegisterSwagger(r)
	// login is limited per client IP; console routes run the limiter after
	// SessionAuth so each identity gets its own bucket
	handlers.NewAuthHandler(a.auth, a.cfg.Server.Environment == "production").Register(r.Group("/"), a.rateLimiter()...)
	handlers.NewConsoleHandler(a.console).Register(r.Group("/"), a.auth, a.rateLimiter()...)
	return r
}

// rateLimiter returns a fresh limiter middleware, or none when disabled.
func (a *app) rateLimiter() []gin.HandlerFunc {
	rl := a.cfg.RateLimit
	if !rl.Enabled {
		return nil
	}
	if rl.UseRedis && a.redis != nil {
		win := time.Duration(rl.WindowSeconds) * time.Second
		return []gin.HandlerFunc{middleware.RedisRateLimitMiddleware(a.redis, rl.RPS, rl.Burst, win)}
	}
	return []gin.HandlerFunc{middleware.RateLimitMiddleware(rl.RPS, rl.Burst)}
}

// ready returns 200 only when the store is readable and Redis (if used) answers.
func (a *app) ready(c *gin.Context) {
	ready := true
	deps := map[string]bool{}

	_, err := a.guard.Snapshot()
	deps["store"] = err == nil
	if err != nil {
		ready = false
	}
	if a.redis != nil {
		deps["redis"] = a.redis.Ping(c.Request.Context()).Err() == nil
		if !deps["redis"] {
			ready = false
		}
	}

	body := gin.H{"deps": deps, "sessions": a.sessions, "uptime": time.Since(startTime).String()}
	if !ready {
		body["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	c.JSON(http.StatusOK, body)
}
