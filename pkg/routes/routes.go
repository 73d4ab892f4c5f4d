package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/juniper/pkg/health"
	"github.com/Ramsey-B/juniper/pkg/middleware"
	"github.com/Ramsey-B/juniper/pkg/routes/canonical"
	"github.com/Ramsey-B/juniper/pkg/routes/taxrequest"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

type Service interface {
	canonical.Mapper
	taxrequest.Service
}

type ServerConfig struct {
	ServiceName  string
	AllowOrigins []string
	AllowMethods []string
	BodyLimit    string
}

// NewServer builds the echo instance with middleware and every route mounted.
func NewServer(cfg ServerConfig, service Service, checker *health.Checker, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(otelecho.Middleware(cfg.ServiceName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	if cfg.BodyLimit != "" {
		e.Use(echomiddleware.BodyLimit(cfg.BodyLimit))
	}
	if len(cfg.AllowOrigins) > 0 {
		e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
			AllowOrigins: cfg.AllowOrigins,
			AllowMethods: cfg.AllowMethods,
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID, middleware.HeaderCorporationID},
		}))
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	if checker != nil {
		checker.RegisterRoutes(api)
	}

	v1 := api.Group("/v1")
	canonical.NewHandler(service).RegisterRoutes(v1)
	taxrequest.NewHandler(service).RegisterRoutes(v1)

	return e
}
