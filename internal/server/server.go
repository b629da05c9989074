// Package server assembles the Fiber application: middleware, error
// rendering and every route.
package server

import (
	"log/slog"
	"strings"
	"time"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/audit"
	"gestionmatos-backend/internal/auth"
	"gestionmatos-backend/internal/config"
	"gestionmatos-backend/internal/ledger"
	"gestionmatos-backend/internal/metrics"
	"gestionmatos-backend/internal/models"
	"gestionmatos-backend/internal/qr"
	"gestionmatos-backend/internal/registry"
	"gestionmatos-backend/internal/users"
	"gestionmatos-backend/internal/workflow"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"gorm.io/gorm"
)

type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Log      *slog.Logger
	Revoker  auth.Revoker
	Workflow *workflow.Service
}

func New(d Deps) *fiber.App {
	cfg, db, log := d.Config, d.DB, d.Log
	if d.Workflow == nil {
		d.Workflow = workflow.NewService(db)
	}

	app := fiber.New(fiber.Config{
		AppName:      "gestionmatos",
		ErrorHandler: apperr.ErrorHandler(log),
		BodyLimit:    1 << 20,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(helmet.New())
	app.Use(compress.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.CORSOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	if cfg.MetricsEnabled {
		app.Get("/metrics", metrics.Handler())
	}

	api := app.Group("/api")
	if cfg.RateLimitMax > 0 {
		api.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimitMax,
			Expiration: cfg.RateLimitWindow,
			LimitReached: func(c *fiber.Ctx) error {
				return fiber.NewError(fiber.StatusTooManyRequests, "Too many requests, please try again later")
			},
		}))
	}

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "OK",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Public auth
	api.Post("/auth/register", auth.RegisterHandler(db, cfg))
	api.Post("/auth/login", auth.LoginHandler(db, cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg, d.Revoker))

	managers := auth.RequireRole(auth.Managers...)
	admins := auth.RequireRole(models.RoleAdmin)

	// Materials. Static paths first so they are not taken for an :id.
	protected.Get("/materials/categories/list", registry.ListCategoriesHandler(db))
	protected.Get("/materials/stats/overview", registry.StatsHandler(db))
	protected.Get("/materials", registry.ListMaterialsHandler(db))
	protected.Get("/materials/:id", registry.GetMaterialHandler(db))
	protected.Post("/materials", managers, registry.CreateMaterialHandler(db, log))
	protected.Post("/materials/import", managers, registry.ImportMaterialsHandler(db, log))
	protected.Put("/materials/:id", managers, registry.UpdateMaterialHandler(db, log))
	protected.Delete("/materials/:id", admins, registry.DeleteMaterialHandler(db, log))

	// Movements
	protected.Get("/movements", ledger.ListMovementsHandler(db))
	protected.Get("/movements/stats/overview", ledger.DailyCountsHandler(db))
	protected.Get("/movements/export", managers, ledger.ExportHandler(db))
	protected.Get("/movements/material/:id/history", ledger.MaterialHistoryHandler(db))
	protected.Get("/movements/user/:id/history", ledger.UserHistoryHandler(db))
	protected.Post("/movements/checkout", workflow.CheckoutHandler(d.Workflow))
	protected.Post("/movements/checkin", workflow.CheckinHandler(d.Workflow))

	// QR
	protected.Get("/qr/material/:id", qr.MaterialQRHandler(db))
	protected.Get("/qr/user/:id", qr.UserQRHandler(db))
	protected.Post("/qr/scan", qr.ScanHandler(db))

	// Users
	protected.Get("/users/profile", users.GetProfileHandler(db))
	protected.Put("/users/profile", users.UpdateProfileHandler(db))
	protected.Get("/users", managers, users.ListUsersHandler(db))
	protected.Get("/users/:id", users.GetUserHandler(db))
	protected.Put("/users/:id/role", admins, users.UpdateRoleHandler(db, d.Revoker, log))
	protected.Delete("/users/:id", admins, users.DeleteUserHandler(db, d.Revoker, log))

	// Audit
	protected.Get("/audit-logs", admins, audit.ListAuditLogsHandler(db))

	return app
}
