package api

import (
	"context"
	"net/http"

	"github.com/evetabi/riskevents/internal/api/handler"
	"github.com/evetabi/riskevents/internal/api/middleware"
	"github.com/evetabi/riskevents/internal/config"
	"github.com/evetabi/riskevents/internal/service"
	"github.com/evetabi/riskevents/internal/ws"
	"github.com/evetabi/riskevents/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	Ctx     context.Context // bounds background goroutines started by middleware
	AuthSvc *service.AuthService
	RiskSvc *service.RiskEventService
	Metrics *metrics.MetricsCollector
	Hub     *ws.Hub
	Cfg     *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, CORS, and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	ctx := deps.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	if deps.Metrics != nil {
		r.Use(middleware.MetricsMiddleware(deps.Metrics))
	}

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Handlers ─────────────────────────────────────────────────────────────
	checkH := handler.NewRiskCheckHandler(deps.RiskSvc)
	marginH := handler.NewMarginHandler(deps.RiskSvc)
	breakerH := handler.NewBreakerHandler(deps.RiskSvc)
	systemH := handler.NewSystemHandler(deps.RiskSvc, deps.Cfg.Server.Version)

	// ── Public ───────────────────────────────────────────────────────────────
	r.GET("/health", systemH.Health)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.GetHandler()))
	}

	// ── JWT middleware (shared) and write limiter ─────────────────────────────
	jwtMW := middleware.JWTMiddleware(deps.AuthSvc)
	writeRL := middleware.RateLimitMiddleware(ctx, deps.Cfg.RateLimit.WriteRPS, deps.Cfg.RateLimit.WriteBurst)
	riskWriter := middleware.RiskWriterMiddleware()
	breakerCtl := middleware.BreakerControllerMiddleware()

	v1 := r.Group("/api/v1")
	v1.Use(jwtMW)
	{
		// Risk checks
		v1.POST("/risk-checks", riskWriter, writeRL, checkH.Record)
		v1.GET("/risk-checks/:id", checkH.GetByID)
		v1.GET("/orders/:orderId/risk-checks", checkH.ListByOrder)

		// Margin
		v1.POST("/margin-calculations", riskWriter, writeRL, marginH.Record)
		v1.GET("/margin-calculations/:id", marginH.GetByID)

		// Circuit breakers ("open" is a static segment, gin prefers it over :id)
		v1.POST("/circuit-breakers", breakerCtl, writeRL, breakerH.Record)
		v1.POST("/circuit-breakers/:id/resolve", breakerCtl, writeRL, breakerH.Resolve)
		v1.GET("/circuit-breakers/open", breakerH.ListOpen)
		v1.GET("/circuit-breakers/:id", breakerH.GetByID)
		v1.GET("/symbols/:symbol/circuit-breakers", breakerH.ListBySymbol)

		// Per-user history
		users := v1.Group("/users/:userId")
		{
			users.GET("/risk-checks", checkH.ListByUser)
			users.GET("/margin-calculations", marginH.ListByUser)
			users.GET("/margin-calculations/latest", marginH.Latest)
			users.GET("/circuit-breakers", breakerH.ListByUser)
		}

		v1.GET("/stats", systemH.Stats)
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware allows any origin outside production; in production only the
// configured WS_ALLOWED_ORIGINS are echoed back.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowed := make(map[string]bool, len(cfg.WS.AllowedOrigins))
	for _, o := range cfg.WS.AllowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
