package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/stockflow/internal/infrastructure/cache"
	"github.com/jhoicas/stockflow/internal/infrastructure/interservice"
	httpRouter "github.com/jhoicas/stockflow/internal/interfaces/http"
	"github.com/jhoicas/stockflow/pkg/config"
	"github.com/jhoicas/stockflow/pkg/logger"
	"github.com/jhoicas/stockflow/pkg/telemetry"
)

const swaggerFile = "./docs/swagger.json"

func main() {
	cfg, err := config.Load("stockflow-gateway", 8080)
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
		Dur("ttl_volatile", cfg.Cache.VolatileTTL).
		Dur("ttl_reference", cfg.Cache.ReferenceTTL).
		Msg("iniciando gateway")

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, cfg.App.Name, cfg.Telemetry)
	if err != nil {
		log.Warn().Err(err).Msg("telemetría parcialmente configurada")
	}

	// Sin Redis el gateway sigue funcionando: toda lectura es un miss.
	rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis no disponible, caché deshabilitada")
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	} else {
		log.Info().Msg("caché de respuestas deshabilitada")
	}
	responseCache := cache.NewRedisCache(rdb, cfg.Redis.Namespace, log)

	upstream := interservice.New(interservice.Config{
		BaseURLs: map[string]string{
			interservice.ServiceInventory: cfg.Services.InventoryURL,
			interservice.ServiceOrders:    cfg.Services.OrdersURL,
		},
		InternalKey: cfg.Services.InternalKey,
		Timeout:     cfg.Services.CallTimeout,
		Log:         log,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(httpRouter.RequestID())
	app.Use(httpRouter.RequestLogger(log))

	// Swagger UI en local: http://localhost:8080/docs
	if _, err := os.Stat(swaggerFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: swaggerFile,
			Path:     "docs",
			Title:    "StockFlow API",
		}))
	}

	app.Get("/health", httpRouter.Health(cfg.App.Name))
	httpRouter.GatewayRouter(app,
		httpRouter.NewGatewayHandler(upstream, responseCache, log),
		httpRouter.DefaultRoutes(cfg.Cache.VolatileTTL, cfg.Cache.ReferenceTTL),
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
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("cierre de telemetría")
		}
	}

	log.Info().Msg("gateway detenido")
}
