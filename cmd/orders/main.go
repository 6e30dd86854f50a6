package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/stockflow/internal/application/orders"
	"github.com/jhoicas/stockflow/internal/application/reporting"
	"github.com/jhoicas/stockflow/internal/infrastructure/cache"
	"github.com/jhoicas/stockflow/internal/infrastructure/interservice"
	"github.com/jhoicas/stockflow/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/stockflow/internal/interfaces/http"
	"github.com/jhoicas/stockflow/pkg/config"
	"github.com/jhoicas/stockflow/pkg/logger"
	"github.com/jhoicas/stockflow/pkg/telemetry"
)

const swaggerFile = "./docs/swagger.json"

func main() {
	cfg, err := config.Load("stockflow-orders", 8082)
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("inventory_url", cfg.Services.InventoryURL).
		Msg("iniciando servicio de pedidos")

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, cfg.App.Name, cfg.Telemetry)
	if err != nil {
		log.Warn().Err(err).Msg("telemetría parcialmente configurada")
	}

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis no disponible, se continúa sin caché")
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}
	responseCache := cache.NewRedisCache(rdb, cfg.Redis.Namespace, log)

	peers := interservice.New(interservice.Config{
		BaseURLs: map[string]string{
			interservice.ServiceInventory: cfg.Services.InventoryURL,
			interservice.ServiceUsers:     cfg.Services.UsersURL,
		},
		InternalKey: cfg.Services.InternalKey,
		Timeout:     cfg.Services.CallTimeout,
		Log:         log,
	})
	directory := interservice.NewDirectory(peers, interservice.ServiceOrders, log)
	stockLedger := interservice.NewInventoryClient(peers)

	orderRepo := postgres.NewOrderRepository(pool)
	outboxRepo := postgres.NewStockOutboxRepository(pool)
	analyticsRepo := postgres.NewAnalyticsRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	relay := orders.NewOutboxRelay(outboxRepo, stockLedger, interservice.ServiceOrders, orders.RelayConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		Lease:        cfg.Outbox.Lease,
	}, log)
	loc := cfg.App.Location()
	orderUC := orders.NewOrderUseCase(txRunner, orderRepo, outboxRepo, relay, directory, responseCache, loc, log)
	reportUC := reporting.NewReportUseCase(analyticsRepo, directory, responseCache, cfg.Cache.VolatileTTL, loc, log)

	relayCtx, stopRelay := context.WithCancel(ctx)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Start(relayCtx)
	}()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())
	app.Use(httpRouter.RequestID())
	app.Use(httpRouter.RequestLogger(log))

	if _, err := os.Stat(swaggerFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: swaggerFile,
			Path:     "docs",
			Title:    "StockFlow Orders API",
		}))
	}

	app.Get("/health", httpRouter.Health(cfg.App.Name))
	httpRouter.OrdersRouter(app,
		httpRouter.NewOrderHandler(orderUC, log),
		httpRouter.NewReportHandler(reportUC, log),
		cfg.JWT.Secret,
	)

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	// Los eventos reservados y no entregados vuelven a estar disponibles al vencer su reserva.
	stopRelay()
	select {
	case <-relayDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("el relay no terminó a tiempo")
	}

	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("cierre de telemetría")
		}
	}

	log.Info().Msg("servicio detenido")
}
