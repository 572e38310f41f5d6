package middleware

import (
	"net/http"
	"strings"

	"storeadmin/internal/common"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuditMiddleware records who changed what in the catalog.
type AuditMiddleware struct {
	logger *zap.SugaredLogger
}

func NewAuditMiddleware(logger *zap.SugaredLogger) *AuditMiddleware {
	return &AuditMiddleware{logger: logger.Named("audit")}
}

// AuditRequest logs every mutating request after it has been handled.
func (m *AuditMiddleware) AuditRequest() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			method := c.Request().Method
			if m.shouldSkipLogging(method, c.Path()) {
				return err
			}

			fields := []interface{}{
				"method", method,
				"path", c.Path(),
				"status", c.Response().Status,
				"ip", c.RealIP(),
			}
			for _, name := range c.ParamNames() {
				fields = append(fields, "param_"+name, c.Param(name))
			}
			if user, ok := common.GetUserFromContext(c.Request().Context()); ok {
				fields = append(fields, "admin", user.Email)
			}

			if err != nil {
				m.logger.Warnw("admin action failed", append(fields, "error", err)...)
			} else {
				m.logger.Infow("admin action", fields...)
			}
			return err
		}
	}
}

func (m *AuditMiddleware) shouldSkipLogging(method, path string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return strings.HasPrefix(path, "/health")
}
