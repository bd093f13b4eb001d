package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/auth"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/clients"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/storefront-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/session"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("storefront stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	var notifier cart.Notifier
	if cfg.RabbitMQURL != "" {
		conn, err := events.Dial(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		defer conn.Close()

		pub, err := events.NewPublisher(conn, events.PublisherOptions{Sequences: stores.sequences})
		if err != nil {
			return fmt.Errorf("create publisher: %w", err)
		}
		defer pub.Close()
		notifier = pub
		logger.Info("cart events enabled", zap.String("exchange", events.EventsExchange))
	} else {
		logger.Info("cart events disabled: RABBITMQ_URL not set")
	}

	// Base HTTP client (shared); the dispatcher applies the per-request timeout.
	sharedHTTP := &http.Client{
		Timeout: cfg.UpstreamTimeout + time.Second,
	}
	cartBase := clients.NewClient("cart-api", cfg.CartAPIURL, sharedHTTP)

	sessions := session.NewRegistry(stores.tokens, clients.NewCartClient(cartBase), cart.Options{
		Timeout:  cfg.UpstreamTimeout,
		Policy:   cfg.MutationPolicy,
		Pricing:  &cfg.Pricing,
		Notifier: notifier,
	}, logger)
	go sessions.RunEviction(ctx, cfg.SessionEvictEvery, cfg.SessionIdleTimeout)

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:   logger,
		Cfg:      cfg,
		Sessions: sessions,
		HealthProbes: []clients.HealthProbe{
			{Name: "cart-api", Client: cartBase, Path: "/health"},
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("mutation_policy", string(cfg.MutationPolicy)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

// backing holds the session credential store and the event sequence counters.
// Both live in the same backend.
type backing struct {
	tokens    auth.TokenStore
	sequences events.SequenceRepository
	close     func()
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (backing, error) {
	switch cfg.TokenStore {
	case config.TokenStoreRedis:
		rdb, err := auth.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return backing{}, err
		}
		logger.Info("token store: redis", zap.String("addr", cfg.RedisAddr))
		return backing{
			tokens:    auth.NewRedisStore(rdb, cfg.SessionTTL),
			sequences: events.NewRedisSequenceRepository(rdb),
			close:     func() { _ = rdb.Close() },
		}, nil

	case config.TokenStorePostgres:
		if err := db.RunMigrations(cfg.DatabaseURL, logger); err != nil {
			return backing{}, err
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return backing{}, err
		}
		logger.Info("token store: postgres")
		return backing{
			tokens:    auth.NewPostgresStore(pool),
			sequences: events.NewPostgresSequenceRepository(pool),
			close:     pool.Close,
		}, nil

	default:
		logger.Info("token store: memory")
		return backing{
			tokens:    auth.NewMemoryStore(),
			sequences: events.NewMemorySequenceRepository(),
			close:     func() {},
		}, nil
	}
}
