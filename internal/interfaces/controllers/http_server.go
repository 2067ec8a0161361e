package controllers

import (
	"context"
	"net/http"

	"github.com/fitlife/fitlife-sync/pkg/auth"
	"github.com/fitlife/fitlife-sync/pkg/config"
	"github.com/fitlife/fitlife-sync/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServer struct {
	echo                   *echo.Echo
	logger                 *logger.Logger
	jwt                    config.JWTConfig
	gatherer               prometheus.Gatherer
	healthController       *HealthController
	subscriptionController *SubscriptionController
	notificationController *NotificationController
	adminController        *AdminController
}

func NewHTTPServer(
	jwtCfg config.JWTConfig,
	logg *logger.Logger,
	gatherer prometheus.Gatherer,
	healthController *HealthController,
	subscriptionController *SubscriptionController,
	notificationController *NotificationController,
	adminController *AdminController,
) *HTTPServer {
	if logg == nil {
		logg = logger.Nop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(logg)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext(logg))
	e.Use(requestLogger(logg))
	e.Use(middleware.CORS())

	server := &HTTPServer{
		echo:                   e,
		logger:                 logg,
		jwt:                    jwtCfg,
		gatherer:               gatherer,
		healthController:       healthController,
		subscriptionController: subscriptionController,
		notificationController: notificationController,
		adminController:        adminController,
	}

	server.setupRoutes()

	return server
}

func (s *HTTPServer) setupRoutes() {
	s.echo.GET("/health", s.healthController.HealthCheck)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	s.echo.GET("/vapid-public-key", s.subscriptionController.GetVAPIDPublicKey)

	// Member routes
	protected := s.echo.Group("", auth.Middleware(s.jwt, s.logger))
	protected.POST("/push/subscribe", s.subscriptionController.Subscribe)
	protected.POST("/push/unsubscribe", s.subscriptionController.Unsubscribe)
	protected.GET("/notifications", s.notificationController.List)
	protected.POST("/notifications/mark-read", s.notificationController.MarkRead)
	protected.POST("/notifications/mark-all-read", s.notificationController.MarkAllRead)
	protected.GET("/notifications/unread-count", s.notificationController.UnreadCount)
	protected.POST("/notifications/test", s.notificationController.SendTest)

	// Staff routes
	admin := protected.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/notifications/send", s.adminController.Send)
	admin.POST("/notifications/deliver-due", s.adminController.DeliverDue)
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

func (s *HTTPServer) Start(address string) error {
	return s.echo.Start(address)
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requestContext(logg *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logg.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func requestLogger(logg *logger.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ctx := logg.WithFields(c.Request().Context(), map[string]any{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
			})
			if v.Error != nil && v.Status >= http.StatusInternalServerError {
				logg.Error(ctx, "request completed with error", v.Error)
				return nil
			}
			logg.Info(ctx, "request completed")
			return nil
		},
	})
}
