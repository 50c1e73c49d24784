package bootstrap

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpecho "github.com/mohammadpnp/book-import/internal/interfaces/http/echo"
)

func NewHTTPServer(c *Container) *echo.Echo {
	server := echo.New()
	server.HideBanner = true
	server.HidePort = true

	server.Use(middleware.Recover())
	server.Use(middleware.RequestID())
	server.Use(middleware.BodyLimit(c.Config.MaxUploadSize))
	server.Use(requestLogger(c.Log))

	importHandler := httpecho.NewImportHandler(c.StartImport)
	progressHandler := httpecho.NewProgressHandler(c.GetProgress, c.ListActive)
	socketHandler := httpecho.NewProgressSocketHandler(c.Broker, c.GetProgress, c.Log.WithField("component", "ws"))

	httpecho.RegisterRoutes(server, importHandler, progressHandler, socketHandler)

	server.GET("/healthz", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	server.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})))

	return server
}
