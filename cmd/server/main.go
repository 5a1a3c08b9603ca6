package main

import (
	"log"
	"strings"
	"time"

	"finops-backend/internal/alerts"
	"finops-backend/internal/audit"
	"finops-backend/internal/auth"
	"finops-backend/internal/budget"
	"finops-backend/internal/company"
	"finops-backend/internal/config"
	"finops-backend/internal/dashboard"
	"finops-backend/internal/database"
	"finops-backend/internal/invoice"
	"finops-backend/internal/models"
	"finops-backend/internal/payment"
	"finops-backend/internal/pod"
	"finops-backend/internal/vendor"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	cfg := config.Load()
	database.Init(cfg)

	app := fiber.New(fiber.Config{
		BodyLimit: 12 << 20, // attachments are capped at 10MB, leave form overhead
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			log.Println("Unexpected error:", err)
			body := fiber.Map{"error": "Unexpected server error"}
			if cfg.Env != "production" {
				body["detail"] = err.Error()
			}
			return c.Status(fiber.StatusInternalServerError).JSON(body)
		},
	})

	app.Use(logger.New())

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	// 100 requests per 15 minutes per IP, loopback exempt
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 15 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			ip := c.IP()
			return ip == "127.0.0.1" || ip == "::1"
		},
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "OK",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	app.Static("/uploads", cfg.UploadPath)

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	// Company management (admin only for writes)
	adminOnly := auth.RequireRole(models.RoleAdmin)
	protected.Post("/companies", adminOnly, company.CreateCompanyHandler())
	protected.Get("/companies", company.ListCompaniesHandler())
	protected.Get("/companies/:id", company.GetCompanyHandler())
	protected.Put("/companies/:id", adminOnly, company.UpdateCompanyHandler())
	protected.Delete("/companies/:id", adminOnly, company.DeleteCompanyHandler())

	// Pods
	protected.Post("/pods", pod.CreatePodHandler())
	protected.Get("/pods", pod.ListPodsHandler())
	protected.Get("/pods/:id", pod.GetPodHandler())
	protected.Put("/pods/:id", pod.UpdatePodHandler())
	protected.Delete("/pods/:id", pod.DeletePodHandler())

	// Budget categories
	protected.Post("/budget-categories", budget.CreateCategoryHandler())
	protected.Get("/budget-categories", budget.ListCategoriesHandler())
	protected.Put("/budget-categories/:id", budget.UpdateCategoryHandler())
	protected.Delete("/budget-categories/:id", budget.DeleteCategoryHandler())

	// Vendors and pod allocations
	protected.Post("/vendors", vendor.CreateVendorHandler())
	protected.Get("/vendors", vendor.ListVendorsHandler())
	protected.Get("/vendors/:id", vendor.GetVendorHandler())
	protected.Put("/vendors/:id", vendor.UpdateVendorHandler())
	protected.Delete("/vendors/:id", adminOnly, vendor.DeleteVendorHandler())
	protected.Post("/vendors/:id/allocations", vendor.CreateAllocationHandler())
	protected.Put("/vendors/:id/allocations/:allocID", vendor.UpdateAllocationHandler())
	protected.Delete("/vendors/:id/allocations/:allocID", vendor.DeleteAllocationHandler())

	// Invoices
	protected.Post("/invoices", invoice.CreateInvoiceHandler())
	protected.Get("/invoices", invoice.ListInvoicesHandler())
	protected.Get("/invoices/export", invoice.ExportInvoicesHandler())
	protected.Get("/invoices/:id", invoice.GetInvoiceHandler())
	protected.Put("/invoices/:id", invoice.UpdateInvoiceHandler())
	protected.Delete("/invoices/:id", invoice.DeleteInvoiceHandler())
	protected.Post("/invoices/:id/attachment", invoice.UploadAttachmentHandler(cfg))

	// Payments
	protected.Post("/payments", payment.CreatePaymentHandler())
	protected.Get("/payments", payment.ListPaymentsHandler())
	protected.Delete("/payments/:id", payment.DeletePaymentHandler())
	protected.Post("/payments/:id/attachment", payment.UploadAttachmentHandler(cfg))

	// Alerts
	protected.Post("/alerts/generate", alerts.GenerateAlertsHandler())
	protected.Get("/alerts", alerts.ListAlertsHandler())
	protected.Post("/alerts", alerts.CreateManualAlertHandler())
	protected.Put("/alerts/:id/acknowledge", alerts.AcknowledgeAlertHandler())
	protected.Put("/alerts/:id/resolve", alerts.ResolveAlertHandler())

	// Dashboard
	protected.Get("/dashboard/overview", dashboard.OverviewHandler())

	// Audit logs
	protected.Get("/audit-logs", audit.ListAuditLogsHandler())
	protected.Post("/audit-logs/:id/undo", audit.UndoAuditLogHandler())

	log.Println("Server listening on port:", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
