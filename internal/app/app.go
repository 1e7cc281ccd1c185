package app

import (
	"context"
	"crypto/rand"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/food-cart/internal/backend"
	"github.com/xenking/food-cart/internal/domain/cart"
	"github.com/xenking/food-cart/internal/domain/checkout"
	"github.com/xenking/food-cart/internal/handler"
	"github.com/xenking/food-cart/internal/storage/memory"
	"github.com/xenking/food-cart/internal/storage/postgres"
	"github.com/xenking/food-cart/internal/storage/redis"
	"github.com/xenking/food-cart/pkg/health"
	"github.com/xenking/food-cart/pkg/httpmiddleware"
)

// Storage is a cart storage backend that can report its health.
type Storage interface {
	cart.Storage
	health.Pinger
}

// OpenStorage connects the configured cart storage backend. The returned
// close function releases its connections.
func OpenStorage(ctx context.Context, cfg *Config) (Storage, func(), error) {
	switch cfg.Storage {
	case StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "run migrations")
		}
		return postgres.NewKV(pool), pool.Close, nil
	case StorageRedis:
		client, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return redis.NewKV(client, cfg.CartTTL), func() { _ = client.Close() }, nil
	default:
		return memory.NewKV(), func() {}, nil
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
		zap.String("backend", cfg.BackendURL),
	)

	storage, closeStorage, err := OpenStorage(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer closeStorage()

	client, err := backend.New(backend.Config{
		BaseURL:        cfg.BackendURL,
		Timeout:        cfg.BackendTimeout,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create backend client")
	}

	if err := checkDependencies(ctx, lg, storage, client); err != nil {
		return err
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("storage", 5*time.Second, health.PingCheck(storage))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", 5*time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	store, err := cart.NewStore(storage, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create cart store")
	}
	fee, err := cfg.DeliveryFee()
	if err != nil {
		return err
	}
	checkoutSvc := checkout.NewService(checkout.Config{
		DeliveryFee:    fee,
		DefaultAddress: cfg.Checkout.DefaultAddress,
	}, store, client.Orders())

	// HTTP handlers.
	key, err := sessionKey(lg, cfg.Session.Key)
	if err != nil {
		return err
	}
	sessions := handler.NewSessions(handler.SessionConfig{
		Key:    key,
		Secure: cfg.Session.Secure,
		MaxAge: int(cfg.Session.MaxAge.Seconds()),
	})
	h := handler.New(sessions, store, client.Meals(), checkoutSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.BackendTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.SessionOrIP(sessions.VerifiedCartID),
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("food-cart", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// checkDependencies pings storage and the backend in parallel. Storage must
// answer; an unreachable backend only degrades meals and checkout, so it is
// logged and tolerated.
func checkDependencies(ctx context.Context, lg *zap.Logger, storage Storage, client *backend.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := storage.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping storage")
		}
		return nil
	})
	g.Go(func() error {
		if err := client.Ping(ctx); err != nil {
			lg.Warn("Backend not reachable at startup", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

// sessionKey returns the configured cookie key, or a random one that makes
// every restart forget existing cart sessions.
func sessionKey(lg *zap.Logger, configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "generate session key")
	}
	lg.Warn("No session key configured, cart sessions will not survive restarts")
	return key, nil
}
