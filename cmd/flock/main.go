package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/totegamma/flock/internal/config"
	"github.com/totegamma/flock/internal/infra/database"
	"github.com/totegamma/flock/internal/infra/gateway"
	"github.com/totegamma/flock/internal/infra/repository"
	"github.com/totegamma/flock/internal/infra/telemetry"
	"github.com/totegamma/flock/internal/present/rest"
	"github.com/totegamma/flock/internal/present/rest/middleware"
	"github.com/totegamma/flock/internal/service"
	"github.com/totegamma/flock/internal/usecase"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	configPath := os.Getenv("FLOCK_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	conf, err := config.Load(configPath)
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(conf.Server.Environment)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if conf.Server.EnableTrace {
		cleanup, err := telemetry.SetupTraceProvider(conf.Server.TraceEndpoint, "flock", version)
		if err != nil {
			logger.Fatal("failed to setup trace provider", zap.Error(err))
		}
		defer cleanup()
	}

	db, err := database.NewPostgres(conf.Server.PostgresDsn, logger)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	if err := database.MigratePostgres(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	rdb := database.NewRedis(conf.Server.RedisAddr, conf.Server.RedisPassword, conf.Server.RedisDB)
	if err := database.PingRedis(context.Background(), rdb); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	profileRepo := repository.NewProfileRepository(db)
	var grantRepo usecase.GrantRepository = repository.NewGrantRepository(db)
	if mc := database.NewMemcached(conf.Server.MemcachedAddr); mc != nil {
		grantRepo = repository.NewCachedGrantRepository(grantRepo, mc, logger)
	}
	noticeRepo := repository.NewNoticeRepository(db)
	endpointRepo := repository.NewPushEndpointRepository(db)

	signalService := service.NewSignalService(rdb)
	sessionService := service.NewSessionService(conf.Auth.SessionSecret, conf.Auth.SessionIssuer)

	var transport usecase.PushTransport
	if conf.PushEnabled() {
		transport = gateway.NewWebPushGateway(conf.Push, nil, logger)
	} else {
		logger.Warn("vapid keys not configured; push delivery disabled")
	}

	notificationUsecase := usecase.NewNotificationUsecase(
		noticeRepo,
		endpointRepo,
		profileRepo,
		grantRepo,
		transport,
		signalService,
		conf.Notification.MaxParallel,
		logger,
	)
	identityUsecase := usecase.NewIdentityUsecase(profileRepo, notificationUsecase, logger)
	authzUsecase := usecase.NewAuthzUsecase(grantRepo, profileRepo, notificationUsecase, conf.Auth.BootstrapAdmins, logger)

	authMiddleware := middleware.NewAuthMiddleware(sessionService, authzUsecase, logger)
	handler := rest.NewHandler(identityUsecase, authzUsecase, notificationUsecase, authMiddleware, signalService, logger)

	e := echo.New()
	e.HideBanner = true
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware("flock"))
	}
	e.Use(requestLogger(logger))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: conf.Server.AllowOrigins,
	}))
	e.Use(echomiddleware.ContextTimeoutWithConfig(echomiddleware.ContextTimeoutConfig{
		Skipper: func(c echo.Context) bool { return c.IsWebSocket() },
		Timeout: conf.Server.RequestTimeout,
	}))

	handler.RegisterRoutes(e)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("flock started", zap.String("bind", conf.Server.Bind), zap.String("version", version))
		if err := e.Start(conf.Server.Bind); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(environment string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	access := logger.With(zap.String("module", "http"))
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:     true,
		LogMethod:  true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if sc := trace.SpanContextFromContext(c.Request().Context()); sc.HasTraceID() {
				fields = append(fields, zap.String("traceID", sc.TraceID().String()))
			}
			if v.Error != nil {
				access.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			access.Info("request", fields...)
			return nil
		},
	})
}
