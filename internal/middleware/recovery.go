package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"ctchen222/popug-auth/internal/api/response"

	"github.com/gin-gonic/gin"
)

// Recovery turns a panic into a logged 500 with the standard error envelope.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, rvr any) {
		logger.ErrorContext(c.Request.Context(), "panic recovered",
			slog.String("request.id", GetRequestID(c.Request.Context())),
			slog.Any("panic", rvr),
			slog.String("stack", string(debug.Stack())),
		)
		response.ErrorResponse(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	})
}
