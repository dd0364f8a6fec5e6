// Package app wires the cafe API server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/cafe-orders/internal/domain/notify"
	"github.com/xenking/cafe-orders/internal/domain/offer"
	"github.com/xenking/cafe-orders/internal/domain/order"
	"github.com/xenking/cafe-orders/internal/handler"
	"github.com/xenking/cafe-orders/internal/storage/postgres"
	"github.com/xenking/cafe-orders/internal/storage/rabbitmq"
	"github.com/xenking/cafe-orders/pkg/health"
	"github.com/xenking/cafe-orders/pkg/httpmiddleware"
)

// Run creates all dependencies, serves HTTP and shuts down gracefully when
// ctx is cancelled.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories.
	users := postgres.NewUserRepository(pool)
	items := postgres.NewMenuRepository(pool)
	offers := postgres.NewOfferRepository(pool)
	orders := postgres.NewOrderRepository(pool)
	notifications := postgres.NewNotificationRepository(pool)

	numbers := order.NewNumbers(cfg.Orders.BloomCapacity)
	var known int
	if err := orders.ListNumbers(ctx, func(number string) error {
		numbers.Add(number)
		known++
		return nil
	}); err != nil {
		return errors.Wrap(err, "warm order numbers")
	}
	lg.Info("Order numbers loaded", zap.Int("count", known))

	sinks := []notify.Sink{notifications}
	var publisher *rabbitmq.Publisher
	if cfg.AMQP.URL != "" {
		publisher, err = rabbitmq.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return errors.Wrap(err, "connect amqp")
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("Close amqp publisher", zap.Error(err))
			}
		}()
		sinks = append(sinks, publisher)
	} else {
		lg.Info("AMQP disabled, notifications are stored only")
	}

	// Domain services.
	orderService, err := order.NewService(
		order.Config{
			PaymentURL:    cfg.Payment.GCashBaseURL,
			MeterProvider: m.MeterProvider(),
		},
		postgres.NewTransactor(pool, m.TracerProvider()),
		orders,
		items,
		users,
		notify.NewDispatcher(sinks...),
		numbers,
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	offerService := offer.NewService(offers, orderService)

	// HTTP handlers.
	h := handler.NewHandler(
		handler.HandlerConfig{NotificationLimit: cfg.Orders.NotificationLimit},
		items,
		orderService,
		offerService,
		notifications,
	)
	auth := handler.NewAuthenticator([]byte(cfg.JWTSecret), users)

	// Health checks.
	healthSvc := health.New(health.Options{})
	healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	if publisher != nil {
		healthSvc.Add(health.Readiness, "amqp", time.Second, publisher.Check)
	}
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/api", h.Routes(auth.Middleware))
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument("cafe-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
		),
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
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
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
