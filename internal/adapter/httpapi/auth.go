package httpapi

import (
	"net/http"

	"elasticrag/internal/infra/logger"
	"elasticrag/internal/usecase"

	"github.com/labstack/echo/v4"
)

const (
	usernameHeader = "X-Username"
	apiKeyHeader   = "X-API-Key"

	userContextKey = "authenticated_user"
)

// APIKeyAuth authenticates every request from the credential headers and
// stores the username on the echo context.
func APIKeyAuth(users usecase.UserStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username := c.Request().Header.Get(usernameHeader)
			apiKey := c.Request().Header.Get(apiKeyHeader)
			if username == "" || apiKey == "" {
				return c.JSON(http.StatusUnauthorized, errorBody("missing credentials"))
			}
			if _, err := users.Authenticate(c.Request().Context(), username, apiKey); err != nil {
				return jsonError(c, err)
			}
			c.Set(userContextKey, username)
			c.SetRequest(c.Request().WithContext(
				logger.WithUsername(c.Request().Context(), username),
			))
			return next(c)
		}
	}
}

func authenticatedUser(c echo.Context) string {
	username, _ := c.Get(userContextKey).(string)
	return username
}
