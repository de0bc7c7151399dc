package backoffice

import (
	"net/http"
	"strings"

	"github.com/evetabi/riskevents/internal/api/middleware"
	"github.com/evetabi/riskevents/internal/backoffice/handler"
	"github.com/evetabi/riskevents/internal/config"
	"github.com/evetabi/riskevents/internal/service"
	"github.com/gin-gonic/gin"
)

// BackofficeDeps bundles every dependency needed for the admin router.
type BackofficeDeps struct {
	AuthSvc *service.AuthService
	RiskSvc *service.RiskEventService
	Hub     handler.ConnCounter // nil when the process does not serve WS
	Cfg     *config.Config
}

// SetupBackofficeRouter creates the read-only admin Gin engine.
func SetupBackofficeRouter(deps BackofficeDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(ipWhitelistMiddleware(deps.Cfg.Server.BackofficeAllowedIPs))

	dashH := handler.NewDashboardHandler(deps.RiskSvc, deps.Hub)
	riskH := handler.NewRiskHandler(deps.RiskSvc, deps.Cfg.Scheduler.BreakerStaleAfter)
	userH := handler.NewUserHistoryHandler(deps.RiskSvc)

	admin := r.Group("/admin")
	admin.Use(middleware.JWTMiddleware(deps.AuthSvc), middleware.OperatorMiddleware())
	{
		admin.GET("/dashboard", dashH.Dashboard)

		// Risk
		risk := admin.Group("/risk")
		{
			risk.GET("/open-breakers", riskH.OpenBreakers)
			risk.GET("/alerts", riskH.Alerts)
		}
		admin.GET("/symbols/:symbol/circuit-breakers", riskH.BySymbol)
		admin.GET("/orders/:orderId/risk-checks", riskH.ByOrder)

		// Users
		u := admin.Group("/users/:id")
		{
			u.GET("", userH.Detail)
			u.GET("/risk-checks", userH.RiskChecks)
			u.GET("/margin-calculations", userH.Margins)
			u.GET("/circuit-breakers", userH.Breakers)
		}
	}

	return r
}

// ── IP whitelist middleware ───────────────────────────────────────────────────

// ipWhitelistMiddleware blocks requests from IPs not in the allowlist.
// allowedIPs is a comma-separated string; empty means allow all.
func ipWhitelistMiddleware(allowedIPs string) gin.HandlerFunc {
	if allowedIPs == "" {
		return func(c *gin.Context) { c.Next() } // dev mode: no restriction
	}

	allowed := make(map[string]bool)
	for _, ip := range strings.Split(allowedIPs, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			allowed[ip] = true
		}
	}

	return func(c *gin.Context) {
		if !allowed[c.ClientIP()] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "access denied: your IP is not whitelisted",
				"code":    "ERR_IP_DENIED",
			})
			return
		}
		c.Next()
	}
}
