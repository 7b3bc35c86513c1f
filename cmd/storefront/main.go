package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/config"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/publisher"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{
		Service: "storefront",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
	})

	if err := run(cfg, log); err != nil {
		log.Error("storefront stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cartStorage, closeStorage, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	m := metrics.New()
	store := cart.NewStore(cartStorage, cart.WithLogger(log), cart.WithMetrics(m))

	orders := checkout.NewOrderClient(cfg.APIBase, checkout.WithBreaker(circuitbreaker.Settings{
		Name:        "order-api",
		MaxFailures: uint32(min(cfg.BreakerMaxFailures, math.MaxUint32)),
		OpenTimeout: cfg.BreakerOpenTimeout,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}))
	submitter := checkout.NewSubmitter(store, orders,
		checkout.WithLogger(log),
		checkout.WithMetrics(m),
	)
	products := catalog.NewClient(cfg.APIBase, nil)

	g, gctx := errgroup.WithContext(ctx)

	if len(cfg.KafkaBrokers) > 0 {
		events := publisher.NewCartEventPublisher(cfg.KafkaTopic, cfg.StorageKey, log, cfg.KafkaBrokers...)
		unsubscribe := store.Subscribe(events.Listen)
		defer unsubscribe()
		g.Go(func() error {
			events.Run(gctx)
			return nil
		})
		log.Info("publishing cart events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	router := h.NewRouter(h.RouterConfig{
		Store:          store,
		Catalog:        products,
		Submitter:      submitter,
		Metrics:        m,
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     otelhttp.NewHandler(router, "storefront"),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g.Go(func() error {
		log.Info("storefront starting", "addr", srv.Addr, "api_base", cfg.APIBase, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	log.Info("server exited")
	return err
}

// openStorage returns the configured cart backend and a function releasing it.
func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.CartStorage, func(), error) {
	switch cfg.Storage {
	case "memory":
		return storage.NewMemoryStorage(), func() {}, nil

	case "sqlite":
		s, err := storage.NewSQLiteStorage(cfg.SQLitePath, cfg.StorageKey)
		if err != nil {
			return nil, nil, err
		}
		if err := s.RunMigrations(); err != nil {
			s.Close()
			return nil, nil, err
		}
		log.Info("cart storage ready", "backend", "sqlite", "path", cfg.SQLitePath)
		return s, func() { s.Close() }, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		log.Info("cart storage ready", "backend", "redis", "addr", cfg.RedisAddr)
		return storage.NewRedisStorage(client, cfg.StorageKey, cfg.RedisTTL), func() { client.Close() }, nil

	case "mongo":
		db, err := storage.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		s := storage.NewMongoStorage(db, cfg.StorageKey, cfg.MongoTTL)
		if err := s.CreateIndexes(ctx); err != nil {
			log.Warn("failed to create cart indexes", "error", err)
		}
		log.Info("cart storage ready", "backend", "mongo", "db", cfg.MongoDBName, "ttl", cfg.MongoTTL)
		return s, func() { db.Client().Disconnect(context.Background()) }, nil

	default:
		return nil, nil, fmt.Errorf("unknown CART_STORAGE %q", cfg.Storage)
	}
}
