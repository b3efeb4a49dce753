package httpapi

import (
	"log/slog"
	"net/http"

	"elasticrag/internal/adapter/esstore"
	"elasticrag/internal/infra/logger"
	"elasticrag/internal/usecase"
	"elasticrag/internal/worker"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// NewServer builds the echo instance with all routes registered. The user
// and model surfaces are administrative; collection and document routes run
// behind api-key auth.
func NewServer(client *usecase.Client, jobs *worker.IngestWorker, store *esstore.Client) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(requestLogger())

	handler := NewHandler(client, jobs)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/readyz", func(c echo.Context) error {
		if err := store.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "store down", "error": err.Error()})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	})

	admin := e.Group("/admin")
	admin.POST("/users", handler.RegisterUser)
	admin.GET("/users", handler.ListUsers)
	admin.DELETE("/users/:username", handler.DeleteUser)
	admin.POST("/models", handler.RegisterModel)
	admin.GET("/models", handler.ListModels)
	admin.GET("/models/:model", handler.GetModel)
	admin.DELETE("/models/:model", handler.DeleteModel)

	v1 := e.Group("/v1", APIKeyAuth(client.Users))
	v1.GET("/me", handler.Me)
	v1.GET("/collections", handler.ListCollections)
	v1.DELETE("/collections/:collection", handler.DropCollection)
	v1.POST("/collections/:collection/documents", handler.AddDocument)
	v1.GET("/collections/:collection/documents", handler.ListDocuments)
	v1.GET("/collections/:collection/documents/:document", handler.GetDocument)
	v1.DELETE("/collections/:collection/documents/:document", handler.DeleteDocument)
	v1.POST("/collections/:collection/search", handler.Search)

	return e
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Int64("latency_ms", v.Latency.Milliseconds()),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			slog.LogAttrs(c.Request().Context(), slog.LevelInfo, "http_request", attrs...)
			return nil
		},
	})
}
