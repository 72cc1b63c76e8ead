package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-hub/internal/adapter/gateway"
	adapterhandler "crm-hub/internal/adapter/handler"
	"crm-hub/internal/domain"
	"crm-hub/internal/events"
	infracache "crm-hub/internal/infrastructure/cache"
	infratoken "crm-hub/internal/infrastructure/token"
	"crm-hub/internal/usecase"

	"crm-hub/config"
	appmiddleware "crm-hub/middleware"
	"crm-hub/utils/logger"
	"crm-hub/utils/otel"
	"crm-hub/utils/validator"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const kratosTimeout = 5 * time.Second

func main() {
	// Handle healthcheck subcommand (for Docker healthcheck in distroless image)
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		if err := runHealthcheck(); err != nil {
			fmt.Fprintf(os.Stderr, "Healthcheck failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("crm-hub stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server exited properly")
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Initialize OpenTelemetry
	otelCfg := otel.ConfigFromEnv()
	otelShutdown, err := otel.InitProvider(ctx, otelCfg)
	if err != nil {
		slog.Warn("failed to initialize OpenTelemetry, continuing without tracing", "error", err)
		otelCfg.Enabled = false
		otelShutdown = func(context.Context) error { return nil }
	}

	log := logger.Init(logger.Config{Level: os.Getenv("LOG_LEVEL"), OTel: otelCfg.Enabled})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	log.InfoContext(ctx, "configuration loaded",
		"kratos_url", cfg.KratosURL,
		"port", cfg.Port,
		"redis", cfg.RedisURL != "",
		"session_cache_ttl", cfg.SessionCacheTTL,
		"profile_max_attempts", cfg.Resolve.MaxAttempts,
		"profile_resolve_ceiling", cfg.Resolve.Ceiling)

	g, gCtx := errgroup.WithContext(ctx)

	// Infrastructure
	pool, err := gateway.NewPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	checks := map[string]adapterhandler.HealthCheck{"postgres": pool.Ping}

	var (
		storage gateway.StorageProvider
		bus     domain.AuthEventBus
	)
	if cfg.RedisURL != "" {
		redisStore, err := infracache.NewRedisStoreWithURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		if err := redisStore.Ping(ctx); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}

		redisBus := events.NewRedisBus(redisStore.Client(), events.DefaultChannel, log)
		g.Go(func() error { return redisBus.Run(gCtx) })

		storage, bus = redisStore, redisBus
		checks["redis"] = redisStore.Ping
		log.InfoContext(ctx, "using redis client storage and auth events")
	} else {
		memoryStore := infracache.NewMemoryStore()
		defer memoryStore.Close()

		storage, bus = memoryStore, events.NewMemoryBus()
		log.WarnContext(ctx, "REDIS_URL not set; client state is kept in process memory")
	}

	kratosGateway := gateway.NewKratosGateway(cfg.KratosURL, kratosTimeout)
	profiles := gateway.NewProfileRepository(pool, log)
	backends := gateway.NewBackendFactory(kratosGateway, profiles, bus, storage, cfg.SessionTokenTTL, log)
	jwtIssuer := infratoken.NewJWTIssuer(infratoken.JWTConfig{
		Secret:   cfg.BackendTokenSecret,
		Issuer:   cfg.BackendTokenIssuer,
		Audience: cfg.BackendTokenAudience,
		TTL:      cfg.BackendTokenTTL,
	})

	// Usecases
	resolver := usecase.NewResolveProfile(profiles, cfg.Resolve, log)
	controllerCfg := usecase.ControllerConfig{
		ForcedRedirectDelay: cfg.ForcedRedirectDelay,
		LoginPath:           cfg.LoginPath,
	}
	registry := usecase.NewSessionRegistry(cfg.MaxControllers, cfg.ControllerIdleTTL, func(clientID string) *usecase.SessionController {
		backend := backends.ForClient(clientID)
		return usecase.NewSessionController(clientID, usecase.SessionDeps{
			Backend:  backend,
			Cache:    infracache.NewSessionCache(backend.Storage(), cfg.SessionCacheTTL, infracache.WithLogger(log)),
			Resolver: resolver,
			Storage:  backend.Storage(),
		}, controllerCfg, log)
	}, log)
	defer registry.Close()

	// Handlers
	validate := validator.New()
	cookie := adapterhandler.ClientCookie{Secure: cfg.SecureCookies, MaxAge: cfg.SessionTokenTTL}
	sessionHandler := adapterhandler.NewSessionHandler(registry, jwtIssuer, cookie, cfg.SettleTimeout)
	dashboardHandler := adapterhandler.NewDashboardHandler(registry, cookie, cfg.SettleTimeout)
	signInHandler := adapterhandler.NewSignInHandler(registry, cookie, validate)
	signUpHandler := adapterhandler.NewSignUpHandler(registry, cookie, validate)
	signOutHandler := adapterhandler.NewSignOutHandler(registry, cookie)
	internalHandler := adapterhandler.NewInternalHandler(bus, validate)
	healthHandler := adapterhandler.NewHealthHandler(checks)

	e := newServer(cfg, otelCfg)

	// Rate limiters per endpoint group
	signInRL := appmiddleware.NewRateLimiter(gCtx, appmiddleware.RateLimitConfig{
		Name:  "sign_in",
		Rate:  rate.Limit(cfg.SignInRatePerMinute / 60),
		Burst: cfg.SignInBurst,
	})
	signUpRL := appmiddleware.NewRateLimiter(gCtx, appmiddleware.RateLimitConfig{
		Name:  "sign_up",
		Rate:  rate.Limit(cfg.SignInRatePerMinute / 60),
		Burst: cfg.SignInBurst,
	})
	internalRL := appmiddleware.NewRateLimiter(gCtx, appmiddleware.RateLimitConfig{
		Name:  "internal",
		Rate:  rate.Limit(100.0 / 60.0),
		Burst: 20,
	})

	// Public routes
	e.GET("/session", sessionHandler.Handle)
	e.GET("/dashboard", dashboardHandler.Handle)
	e.POST("/sign-in", signInHandler.Handle, signInRL.Middleware())
	e.POST("/sign-up", signUpHandler.Handle, signUpRL.Middleware())
	e.POST("/sign-out", signOutHandler.Handle)
	e.GET("/health", healthHandler.Handle)
	e.GET("/ready", healthHandler.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Internal routes (protected by shared secret)
	internalGroup := e.Group("/internal", internalRL.Middleware(), appmiddleware.InternalAuth(cfg.AuthSharedSecret))
	internalGroup.POST("/auth-events", internalHandler.HandleAuthEvent)
	if cfg.AuthSharedSecret == "" {
		log.WarnContext(ctx, "AUTH_SHARED_SECRET not set; internal endpoints reject every request")
	}

	address := fmt.Sprintf(":%s", cfg.Port)
	log.InfoContext(ctx, "starting crm-hub server", "address", address)

	g.Go(func() error {
		if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return otelShutdown(shutdownCtx)
	})

	return g.Wait()
}

// newServer configures Echo with the shared middleware stack.
func newServer(cfg *config.Config, otelCfg otel.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(appmiddleware.SecurityHeaders(cfg.SecureCookies))

	if otelCfg.Enabled {
		e.Use(otelecho.Middleware(otelCfg.ServiceName))
		e.Use(appmiddleware.OTelStatusMiddleware())
	}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			switch c.Request().URL.Path {
			case "/health", "/ready", "/metrics":
				return true
			}
			return false
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			rctx := c.Request().Context()
			if v.Error == nil {
				slog.InfoContext(rctx, "request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				slog.ErrorContext(rctx, "request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))
	return e
}

// runHealthcheck performs a health check against the local server.
func runHealthcheck() error {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8890"
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%s/health", port))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned status: %d", resp.StatusCode)
	}
	return nil
}
