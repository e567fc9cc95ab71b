package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"twmailer/backend/internal/health"
	"twmailer/backend/internal/middleware"
	"twmailer/backend/internal/monitoring"
	"twmailer/backend/internal/storage"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Store          storage.MailboxStore
	Health         *health.HealthChecker
	Metrics        *monitoring.Metrics
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter 创建只读运维路由。
//
// 路由:
//
//	GET /health/live, /health/ready
//	GET /metrics
//	GET /api/v1/stats
//	GET /api/v1/mailboxes
//	GET /api/v1/mailboxes/:name
//	GET /api/v1/mailboxes/:name/messages/:ordinal
func NewRouter(deps RouterDependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()

	mm := middleware.NewMonitoringMiddleware(deps.Metrics, logger)
	router.Use(mm.PanicRecovery())
	router.Use(mm.HTTPMetrics())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsConfig := gincors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowAllOrigins = true
			break
		}
	}
	router.Use(gincors.New(corsConfig))
	router.Use(middleware.ReadOnly())

	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	h := NewMailboxHandler(deps.Store, logger)
	v1 := router.Group("/api/v1")
	{
		v1.GET("/stats", h.Stats)
		v1.GET("/mailboxes", h.ListMailboxes)
		v1.GET("/mailboxes/:name", h.GetMailbox)
		v1.GET("/mailboxes/:name/messages/:ordinal", h.GetMessage)
	}

	router.NoRoute(func(c *gin.Context) {
		NotFound(c, http.StatusText(http.StatusNotFound))
	})

	return router
}
