package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/masa-finance/bot-guardian/internal/config"
	"github.com/masa-finance/bot-guardian/internal/health"
	"github.com/masa-finance/bot-guardian/internal/lifecycle"
)

// Dependencies are the in-process collaborators the control surface serves.
type Dependencies struct {
	Reporter   *health.Reporter
	Terminator *lifecycle.Terminator
	Registry   *prometheus.Registry
}

// NewServer builds the echo instance with all routes registered.
func NewServer(cfg config.Configuration, deps Dependencies) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	switch strings.ToLower(cfg.GetString("log_level", "info")) {
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
	case "warning", "warn":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	default:
		e.Logger.SetLevel(log.INFO)
	}

	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	if err := health.RegisterMetrics(deps.Registry, deps.Reporter); err != nil {
		return nil, fmt.Errorf("registering health metrics: %w", err)
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		// Pollers hit the probes every minute; keep them out of the access log.
		Skipper: func(c echo.Context) bool {
			return isUnauthenticatedPath(c.Request().URL.Path)
		},
	}))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "guardian",
		Subsystem:  "control",
		Registerer: deps.Registry,
	}))

	// API Key Authentication Middleware
	e.Use(APIKeyAuthMiddleware(cfg))

	// Routes

	// Probes (no auth required)
	e.GET(HealthCheckPath, Healthz())
	e.GET(DetailedHealthCheckPath, HealthDetailed(deps.Reporter))
	e.GET(PingPath, Ping())
	e.GET(MetricsPath, echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: deps.Registry}))

	// Intentional exit. Uptime monitors send either verb.
	e.POST(WebhookRestartPath, WebhookRestart(deps.Terminator))
	e.GET(WebhookRestartPath, WebhookRestart(deps.Terminator))
	e.POST(RefreshPath, Refresh(deps.Terminator))

	if cfg.ProfilingEnabled() {
		enableProfiling(e)
	}

	return e, nil
}

// Start serves the control surface until ctx is done, then shuts the server
// down gracefully so responses already accepted are still delivered.
func Start(ctx context.Context, cfg config.Configuration, deps Dependencies) error {
	e, err := NewServer(cfg, deps)
	if err != nil {
		return err
	}

	listenAddress := cfg.ListenAddress()
	e.Server.ReadTimeout = 5 * time.Second
	e.Server.WriteTimeout = writeTimeout(cfg)

	errCh := make(chan error, 1)
	go func() {
		e.Logger.Info(fmt.Sprintf("Starting control server on %s", listenAddress))
		errCh <- e.Start(listenAddress)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		e.Logger.Error("Control server failed: ", err)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Error("Failed to shut down control server: ", err)
		return err
	}
	e.Logger.Info("Control server stopped")
	return nil
}

// writeTimeout leaves room for /debug/pprof/profile, which samples for 30s
// by default.
func writeTimeout(cfg config.Configuration) time.Duration {
	if cfg.ProfilingEnabled() {
		return 60 * time.Second
	}
	return 5 * time.Second
}

// enableProfiling enables pprof profiling
func enableProfiling(e *echo.Echo) {
	e.Logger.Info("Enabling profiling - this may impact performance")

	// Sample time in nanoseconds, see https://github.com/DataDog/go-profiler-notes/blob/main/block.md#usage
	runtime.SetBlockProfileRate(500)
	// Fraction of contention events that are reported
	runtime.SetMutexProfileFraction(1)

	pprof.Register(e)
}
