package router

import (
	_ "embed"
	"net/http"
	"time"

	"estoque/internal/config"
	"estoque/internal/handler"
	"estoque/internal/infra"
	"estoque/internal/metrics"
	"estoque/internal/middleware"
	"estoque/internal/repository"
	"estoque/internal/service"
	"estoque/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

//go:embed openapi.json
var openAPIDoc []byte

// Deps are the long-lived collaborators shared by the HTTP layer and the
// background workers.
type Deps struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      *redis.Client // optional
	Metrics    *metrics.Metrics
	Dispatcher *worker.Dispatcher // optional
}

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(d.Metrics.Middleware())
	r.Use(middleware.CORS(cfg.CORSOrigin))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(cfg.RateLimitPerMinute, time.Minute))

	// ── Repositories ─────────────────────────────────────────────────────────
	itemRepo := repository.NewItemRepository(d.DB)
	saleRepo := repository.NewSaleRepository(d.DB)
	movementRepo := repository.NewStockMovementRepository(d.DB)

	// ── Services ─────────────────────────────────────────────────────────────
	header := infra.ReceiptHeader{ShopName: cfg.ShopName, Lines: cfg.HeaderLines()}
	var receipts service.ReceiptEnqueuer
	if d.Dispatcher != nil {
		receipts = d.Dispatcher
	}

	authSvc := service.NewAuthService(cfg)
	itemSvc := service.NewItemService(itemRepo, movementRepo, cfg.LowStockThreshold)
	saleSvc := service.NewSaleService(saleRepo, itemRepo, movementRepo, receipts, d.Metrics, header)
	dashSvc := service.NewDashboardService(saleRepo, itemRepo, d.Redis, cfg.DashboardCacheTTL, cfg.DashboardTopN, cfg.LowStockThreshold)

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(authSvc)
	itemsH := handler.NewItemsHandler(itemSvc)
	salesH := handler.NewSalesHandler(saleSvc)
	dashH := handler.NewDashboardHandler(dashSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(d.DB, d.Redis))
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	r.POST("/auth/login", middleware.LoginRateLimiter(), authH.Login)

	// Swagger UI, only enabled outside production
	if cfg.Env != "production" {
		r.GET("/openapi.json", func(c *gin.Context) { c.Data(http.StatusOK, "application/json", openAPIDoc) })
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/openapi.json")))
	}

	api := r.Group("")
	if cfg.AuthEnabled() {
		api.Use(middleware.JWTAuth(cfg.JWTSecret))
	}
	{
		api.POST("/items", itemsH.Create)
		api.GET("/items", itemsH.List)
		api.DELETE("/items", itemsH.Delete)
		api.GET("/items/low-stock", itemsH.LowStock)
		api.GET("/items/:id", itemsH.Get)
		api.PUT("/items/:id", itemsH.Update)
		api.DELETE("/items/:id", itemsH.Delete)
		api.GET("/items/:id/movements", itemsH.Movements)

		api.POST("/sales", salesH.Finalize)
		api.GET("/sales", salesH.List)
		api.GET("/sales/summary", salesH.Summary)
		api.GET("/sales/export", salesH.Export)
		api.GET("/sales/:id", salesH.Get)
		api.GET("/sales/:id/receipt", salesH.Receipt)

		api.GET("/dashboard", dashH.Get)
	}

	return r
}
