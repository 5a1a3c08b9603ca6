package invoice

import (
	"fmt"
	"strings"
	"time"

	"finops-backend/internal/audit"
	"finops-backend/internal/auth"
	"finops-backend/internal/config"
	"finops-backend/internal/database"
	"finops-backend/internal/models"
	"finops-backend/internal/pagination"
	"finops-backend/internal/scope"
	"finops-backend/internal/upload"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateInvoiceRequest struct {
	VendorID      uint    `json:"vendor_id"`
	PodID         uint    `json:"pod_id"`
	CategoryID    *uint   `json:"category_id"`
	InvoiceNumber string  `json:"invoice_number"`
	Amount        float64 `json:"amount"`
	InvoiceDate   string  `json:"invoice_date"` // "2025-12-09"
	DueDate       string  `json:"due_date"`
	Notes         string  `json:"notes"`
}

type UpdateInvoiceRequest struct {
	CategoryID    *uint    `json:"category_id"`
	InvoiceNumber *string  `json:"invoice_number"`
	Amount        *float64 `json:"amount"`
	InvoiceDate   *string  `json:"invoice_date"`
	DueDate       *string  `json:"due_date"`
	Notes         *string  `json:"notes"`
}

type InvoiceResponse struct {
	ID            uint    `json:"id"`
	VendorID      uint    `json:"vendor_id"`
	VendorName    string  `json:"vendor_name"`
	PodID         uint    `json:"pod_id"`
	PodName       string  `json:"pod_name"`
	CategoryID    *uint   `json:"category_id"`
	InvoiceNumber string  `json:"invoice_number"`
	Amount        float64 `json:"amount"`
	InvoiceDate   string  `json:"invoice_date"`
	DueDate       string  `json:"due_date"`
	Status        string  `json:"status"`
	Reminder      string  `json:"reminder"`
	AttachmentURL string  `json:"attachment_url"`
	Notes         string  `json:"notes"`
}

func toResponse(inv *models.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:            inv.ID,
		VendorID:      inv.VendorID,
		VendorName:    inv.Vendor.Name,
		PodID:         inv.PodID,
		PodName:       inv.Pod.Name,
		CategoryID:    inv.CategoryID,
		InvoiceNumber: inv.InvoiceNumber,
		Amount:        inv.Amount,
		InvoiceDate:   inv.InvoiceDate.Format("2006-01-02"),
		DueDate:       inv.DueDate.Format("2006-01-02"),
		Status:        string(inv.Status),
		Reminder:      string(inv.Reminder),
		AttachmentURL: inv.AttachmentURL,
		Notes:         inv.Notes,
	}
}

// POST /api/invoices
// Status and reminder state are derived from the due date at creation. An
// invoice arriving overdue, or due within a week, raises one alert for the
// creating user in the same transaction.
func CreateInvoiceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateInvoiceRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.VendorID == 0 || body.PodID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "vendor_id and pod_id are required")
		}
		if body.Amount <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "amount must be greater than 0")
		}

		invoiceDate, err := time.Parse("2006-01-02", body.InvoiceDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invoice_date must be 'YYYY-MM-DD'")
		}
		dueDate, err := time.Parse("2006-01-02", body.DueDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "due_date must be 'YYYY-MM-DD'")
		}

		var vend models.Vendor
		if err := database.DB.First(&vend, "id = ?", body.VendorID).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Vendor not found")
		}
		var pod models.Pod
		if err := database.DB.First(&pod, "id = ?", body.PodID).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Pod not found")
		}
		if err := scope.EnsureCompanyAccess(c, pod.CompanyID); err != nil {
			return err
		}
		if body.CategoryID != nil {
			var cat models.BudgetCategory
			if err := database.DB.First(&cat, "id = ?", *body.CategoryID).Error; err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Budget category not found")
			}
			if cat.CompanyID != pod.CompanyID {
				return fiber.NewError(fiber.StatusBadRequest, "Budget category belongs to another company")
			}
		}

		userIDVal := c.Locals(auth.CtxUserIDKey)
		userID, _ := userIDVal.(uint)

		now := time.Now()
		status, reminder := Classify(dueDate, now)

		inv := models.Invoice{
			VendorID:      body.VendorID,
			PodID:         body.PodID,
			CategoryID:    body.CategoryID,
			InvoiceNumber: strings.TrimSpace(body.InvoiceNumber),
			Amount:        body.Amount,
			InvoiceDate:   invoiceDate,
			DueDate:       dueDate,
			Status:        status,
			Reminder:      reminder,
			Notes:         body.Notes,
		}

		err = database.WithRetry(database.DB, func(tx *gorm.DB) error {
			if err := tx.Create(&inv).Error; err != nil {
				return err
			}

			days := DaysUntilDue(dueDate, now)
			switch {
			case status == models.InvoiceOverdue:
				alert := models.Alert{
					Type:        models.AlertInvoiceOverdue,
					Severity:    models.SeverityHigh,
					Status:      models.AlertActive,
					Message:     fmt.Sprintf("Invoice from %s for %.2f is overdue by %d days", vend.Name, inv.Amount, -days),
					InvoiceID:   &inv.ID,
					TriggerDate: now,
					SentTo:      userID,
				}
				return tx.Create(&alert).Error
			case reminder == models.ReminderSent:
				alert := models.Alert{
					Type:        models.AlertInvoiceDue,
					Severity:    models.SeverityMedium,
					Status:      models.AlertActive,
					Message:     fmt.Sprintf("Invoice from %s for %.2f is due in %d days", vend.Name, inv.Amount, days),
					InvoiceID:   &inv.ID,
					TriggerDate: now,
					SentTo:      userID,
				}
				return tx.Create(&alert).Error
			}
			return nil
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create invoice")
		}

		writeInvoiceAudit(c, &inv, &pod, models.AuditActionCreate, nil,
			fmt.Sprintf("Invoice created: %s - %.2f (%s)", vend.Name, inv.Amount, inv.Status))

		inv.Vendor = vend
		inv.Pod = pod
		return c.Status(fiber.StatusCreated).JSON(toResponse(&inv))
	}
}

func filteredQuery(c *fiber.Ctx) (*gorm.DB, error) {
	dbq := database.DB.Model(&models.Invoice{}).
		Joins("JOIN pods ON pods.id = invoices.pod_id")

	// Members only see their own company's invoices.
	roleVal := c.Locals(auth.CtxUserRoleKey)
	if role, ok := roleVal.(models.UserRole); ok && role == models.RoleMember {
		cVal := c.Locals(auth.CtxCompanyIDKey)
		cPtr, ok := cVal.(*uint)
		if !ok || cPtr == nil {
			return nil, fiber.NewError(fiber.StatusForbidden, "No company bound to this user")
		}
		dbq = dbq.Where("pods.company_id = ?", *cPtr)
	} else if cidStr := c.Query("company_id"); cidStr != "" {
		var cid uint
		if _, err := fmt.Sscan(cidStr, &cid); err != nil || cid == 0 {
			return nil, fiber.NewError(fiber.StatusBadRequest, "company_id is invalid")
		}
		dbq = dbq.Where("pods.company_id = ?", cid)
	}

	if st := c.Query("status"); st != "" {
		dbq = dbq.Where("invoices.status = ?", st)
	}
	if vidStr := c.Query("vendor_id"); vidStr != "" {
		var vid uint
		if _, err := fmt.Sscan(vidStr, &vid); err != nil || vid == 0 {
			return nil, fiber.NewError(fiber.StatusBadRequest, "vendor_id is invalid")
		}
		dbq = dbq.Where("invoices.vendor_id = ?", vid)
	}
	if pidStr := c.Query("pod_id"); pidStr != "" {
		var pid uint
		if _, err := fmt.Sscan(pidStr, &pid); err != nil || pid == 0 {
			return nil, fiber.NewError(fiber.StatusBadRequest, "pod_id is invalid")
		}
		dbq = dbq.Where("invoices.pod_id = ?", pid)
	}
	if fromStr := c.Query("from"); fromStr != "" {
		from, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "from is invalid")
		}
		dbq = dbq.Where("invoices.invoice_date >= ?", from)
	}
	if toStr := c.Query("to"); toStr != "" {
		to, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "to is invalid")
		}
		dbq = dbq.Where("invoices.invoice_date <= ?", to)
	}

	return dbq, nil
}

// GET /api/invoices?status=Pending&vendor_id=1&pod_id=2&from=...&to=...
func ListInvoicesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq, err := filteredQuery(c)
		if err != nil {
			return err
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not count invoices")
		}

		var invoices []models.Invoice
		if err := dbq.Preload("Vendor").Preload("Pod").
			Order("invoices.due_date asc, invoices.id asc").
			Scopes(pagination.Scope(c)).
			Find(&invoices).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list invoices")
		}

		resp := make([]InvoiceResponse, 0, len(invoices))
		for i := range invoices {
			resp = append(resp, toResponse(&invoices[i]))
		}

		return c.JSON(pagination.Wrap(c, resp, total))
	}
}

// GET /api/invoices/:id
func GetInvoiceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var inv models.Invoice
		if err := database.DB.Preload("Vendor").Preload("Pod").
			First(&inv, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Invoice not found")
		}
		if err := scope.EnsureCompanyAccess(c, inv.Pod.CompanyID); err != nil {
			return err
		}
		return c.JSON(toResponse(&inv))
	}
}

// PUT /api/invoices/:id
// Paid invoices are immutable; delete the payment first. A changed due date
// re-derives status and reminder.
func UpdateInvoiceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var inv models.Invoice
		if err := database.DB.Preload("Vendor").Preload("Pod").
			First(&inv, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Invoice not found")
		}
		if err := scope.EnsureCompanyAccess(c, inv.Pod.CompanyID); err != nil {
			return err
		}
		if inv.Status == models.InvoicePaid {
			return fiber.NewError(fiber.StatusBadRequest, "Paid invoices cannot be edited")
		}
		before := inv

		var body UpdateInvoiceRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.Amount != nil {
			if *body.Amount <= 0 {
				return fiber.NewError(fiber.StatusBadRequest, "amount must be greater than 0")
			}
			inv.Amount = *body.Amount
		}
		if body.InvoiceNumber != nil {
			inv.InvoiceNumber = strings.TrimSpace(*body.InvoiceNumber)
		}
		if body.Notes != nil {
			inv.Notes = *body.Notes
		}
		if body.CategoryID != nil {
			var cat models.BudgetCategory
			if err := database.DB.First(&cat, "id = ?", *body.CategoryID).Error; err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Budget category not found")
			}
			if cat.CompanyID != inv.Pod.CompanyID {
				return fiber.NewError(fiber.StatusBadRequest, "Budget category belongs to another company")
			}
			inv.CategoryID = body.CategoryID
		}
		if body.InvoiceDate != nil {
			d, err := time.Parse("2006-01-02", *body.InvoiceDate)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invoice_date must be 'YYYY-MM-DD'")
			}
			inv.InvoiceDate = d
		}
		if body.DueDate != nil {
			d, err := time.Parse("2006-01-02", *body.DueDate)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "due_date must be 'YYYY-MM-DD'")
			}
			inv.DueDate = d
			inv.Status, inv.Reminder = Classify(d, time.Now())
		}

		if err := database.DB.Save(&inv).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update invoice")
		}

		writeInvoiceAudit(c, &inv, &inv.Pod, models.AuditActionUpdate, &before,
			fmt.Sprintf("Invoice updated: %s - %.2f", inv.Vendor.Name, inv.Amount))

		return c.JSON(toResponse(&inv))
	}
}

// DELETE /api/invoices/:id
// Removes the invoice together with its payment and alerts; the pod's
// derived budget simply stops counting it.
func DeleteInvoiceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var inv models.Invoice
		if err := database.DB.Preload("Vendor").Preload("Pod").
			First(&inv, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Invoice not found")
		}
		if err := scope.EnsureCompanyAccess(c, inv.Pod.CompanyID); err != nil {
			return err
		}

		err := database.WithRetry(database.DB, func(tx *gorm.DB) error {
			if err := tx.Delete(&models.Payment{}, "invoice_id = ?", inv.ID).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.Alert{}, "invoice_id = ?", inv.ID).Error; err != nil {
				return err
			}
			return tx.Delete(&models.Invoice{}, "id = ?", inv.ID).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete invoice")
		}

		writeInvoiceAudit(c, &inv, &inv.Pod, models.AuditActionDelete, &inv,
			fmt.Sprintf("Invoice deleted: %s - %.2f", inv.Vendor.Name, inv.Amount))

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/invoices/:id/attachment (multipart field "file")
func UploadAttachmentHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var inv models.Invoice
		if err := database.DB.Preload("Pod").First(&inv, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Invoice not found")
		}
		if err := scope.EnsureCompanyAccess(c, inv.Pod.CompanyID); err != nil {
			return err
		}

		file, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Multipart field 'file' is required")
		}

		url, err := upload.SaveAttachment(c, file, cfg.UploadPath)
		if err != nil {
			return err
		}

		if err := database.DB.Model(&models.Invoice{}).Where("id = ?", inv.ID).
			Update("attachment_url", url).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not save attachment reference")
		}

		return c.JSON(fiber.Map{"attachment_url": url})
	}
}

func writeInvoiceAudit(c *fiber.Ctx, inv *models.Invoice, pod *models.Pod, action models.AuditAction, before *models.Invoice, desc string) {
	userID, userName, _, err := scope.UserInfo(c)
	if err != nil {
		return
	}

	data := func(i *models.Invoice) map[string]interface{} {
		return map[string]interface{}{
			"id":             i.ID,
			"vendor_id":      i.VendorID,
			"pod_id":         i.PodID,
			"category_id":    i.CategoryID,
			"invoice_number": i.InvoiceNumber,
			"amount":         i.Amount,
			"invoice_date":   i.InvoiceDate.Format("2006-01-02"),
			"due_date":       i.DueDate.Format("2006-01-02"),
			"status":         i.Status,
			"reminder":       i.Reminder,
			"notes":          i.Notes,
		}
	}

	var beforeData any
	if before != nil && action != models.AuditActionCreate {
		beforeData = data(before)
	}
	if logErr := audit.WriteLog(audit.LogOptions{
		CompanyID:   &pod.CompanyID,
		UserID:      userID,
		UserName:    userName,
		EntityType:  "invoice",
		EntityID:    inv.ID,
		Action:      action,
		Description: desc,
		Before:      beforeData,
		After:       data(inv),
	}); logErr != nil {
		fmt.Printf("Could not write audit log: %v\n", logErr)
	}
}
