package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"contractanalyzer/internal/handler"
	"contractanalyzer/internal/middleware"
)

// Options configures the engine's global middleware.
type Options struct {
	ServiceName    string
	AllowedOrigins []string
}

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	opts Options,
	log *zap.Logger,
	contractH *handler.ContractHandler,
	exportH *handler.ExportHandler,
	healthH *handler.HealthHandler,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(opts.AllowedOrigins))
	r.Use(otelgin.Middleware(opts.ServiceName))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")

	contracts := v1.Group("/contracts")
	contracts.POST("/upload", contractH.Upload)
	contracts.GET("", contractH.List)
	contracts.GET("/:id", contractH.Get)
	contracts.DELETE("/:id", contractH.Delete)
	contracts.GET("/:id/analysis", contractH.GetAnalysis)
	contracts.POST("/:id/reanalyze", contractH.Reanalyze)
	contracts.POST("/:id/fields", contractH.ExtractFields)

	v1.GET("/fields/:name", contractH.FieldValues)

	exports := v1.Group("/exports")
	exports.GET("/contracts.csv", exportH.CSV)
	exports.GET("/contracts.xlsx", exportH.XLSX)

	return r
}
