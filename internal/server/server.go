package server

import (
	"log/slog"
	"net/http"

	"ctchen222/popug-auth/internal/api/controller"
	"ctchen222/popug-auth/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options tunes the middleware chain.
type Options struct {
	Logger         *slog.Logger
	IsDevelopment  bool
	MaxRequestBody int64
}

// Server owns the gin engine and its routes.
type Server struct {
	engine *gin.Engine
}

// NewServer wires the middleware chain and registers all routes.
func NewServer(users *controller.UserController, health *controller.HealthController, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxRequestBody <= 0 {
		opts.MaxRequestBody = 1 << 20
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(opts.Logger),
		middleware.Logger(opts.Logger),
		middleware.Security(opts.IsDevelopment),
		middleware.MaxBodySize(opts.MaxRequestBody),
	)

	s := &Server{engine: engine}
	s.registerHandlers(users, health)
	return s
}

func (s *Server) registerHandlers(users *controller.UserController, health *controller.HealthController) {
	s.engine.POST("/register", users.Register)
	s.engine.POST("/login", users.Login)
	s.engine.GET("/protected", users.RequireAuth(), users.Protected)

	s.engine.GET("/healthz", health.Healthz)
	s.engine.GET("/readyz", health.Readyz)
}

// Engine returns the underlying gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler returns the engine wrapped with OpenTelemetry server spans.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.engine, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
