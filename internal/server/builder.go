package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gemini-synapse/internal/auth"
	"gemini-synapse/internal/config"
	"gemini-synapse/internal/constants"
	"gemini-synapse/internal/credential"
	mw "gemini-synapse/internal/middleware"
	"gemini-synapse/internal/proxy"
	"gemini-synapse/internal/scheduler"
	"gemini-synapse/internal/settings"
	"gemini-synapse/internal/store"
	"gemini-synapse/internal/upstream"
)

// Dependencies encapsulates the runtime services the HTTP surface needs.
type Dependencies struct {
	Store     *store.Store
	Settings  *settings.Registry
	Pool      *credential.Pool
	Validator *upstream.Validator
	Engine    *proxy.Engine
	Gate      *auth.Gate
	Scheduler *scheduler.Scheduler
}

// Server binds configuration and dependencies to the gin engine.
type Server struct {
	cfg  *config.Config
	deps Dependencies

	// Login pacing, shortened in tests.
	successDelay   time.Duration
	failurePenalty time.Duration
}

func New(cfg *config.Config, deps Dependencies) *Server {
	return &Server{
		cfg:            cfg,
		deps:           deps,
		successDelay:   constants.LoginSuccessDelay,
		failurePenalty: constants.LoginFailurePenalty,
	}
}

// BuildEngine assembles the gin engine: ambient middleware, the relay
// surface, the login endpoints and the admin plane.
func (s *Server) BuildEngine() *gin.Engine {
	if !s.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		mw.RequestID(),
		mw.RequestLogger(),
		mw.Recovery(),
		mw.Metrics(),
	)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", mw.MetricsHandler)

	engine.POST("/login", mw.LoginRateLimiter(1, 5), s.handleLogin)
	engine.POST("/logout", s.handleLogout)

	relay := engine.Group("/v1beta", s.deps.Gate.RequireAccessKey())
	relayHandler := func(c *gin.Context) {
		s.deps.Engine.Forward(c, "v1beta"+c.Param("path"))
	}
	for _, method := range []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodDelete, http.MethodOptions,
	} {
		relay.Handle(method, "/*path", relayHandler)
	}

	admin := engine.Group("/admin", s.deps.Gate.RequireAdminSession())
	s.registerKeyRoutes(admin)
	s.registerConfigRoutes(admin)
	s.registerLogRoutes(admin)
	s.registerStatsRoutes(admin)

	return engine
}
