package payment

import (
	"fmt"
	"strings"
	"time"

	"finops-backend/internal/audit"
	"finops-backend/internal/config"
	"finops-backend/internal/database"
	"finops-backend/internal/models"
	"finops-backend/internal/pagination"
	"finops-backend/internal/scope"
	"finops-backend/internal/upload"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreatePaymentRequest struct {
	InvoiceID   uint    `json:"invoice_id"`
	Amount      float64 `json:"amount"`
	Method      string  `json:"method"`
	PaymentDate string  `json:"payment_date"` // "2025-12-09", defaults to today
	Reference   string  `json:"reference"`
}

type PaymentResponse struct {
	ID            uint    `json:"id"`
	InvoiceID     uint    `json:"invoice_id"`
	VendorName    string  `json:"vendor_name"`
	Amount        float64 `json:"amount"`
	Method        string  `json:"method"`
	PaymentDate   string  `json:"payment_date"`
	Reference     string  `json:"reference"`
	AttachmentURL string  `json:"attachment_url"`
}

func validMethod(m string) bool {
	switch models.PaymentMethod(m) {
	case models.PaymentBankTransfer, models.PaymentUPI, models.PaymentCard,
		models.PaymentCheque, models.PaymentCash:
		return true
	}
	return false
}

func toResponse(p *models.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		InvoiceID:     p.InvoiceID,
		VendorName:    p.Invoice.Vendor.Name,
		Amount:        p.Amount,
		Method:        string(p.Method),
		PaymentDate:   p.PaymentDate.Format("2006-01-02"),
		Reference:     p.Reference,
		AttachmentURL: p.AttachmentURL,
	}
}

// POST /api/payments
// Settles an invoice: one payment per invoice, ever. The invoice flips to
// Paid and any active alert pointing at it is resolved, all in one retried
// transaction. The pod's budget_used needs no bookkeeping, it is derived
// from payments on read.
func CreatePaymentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreatePaymentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.InvoiceID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invoice_id is required")
		}
		if body.Amount <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "amount must be greater than 0")
		}
		if !validMethod(body.Method) {
			return fiber.NewError(fiber.StatusBadRequest, "method must be bank_transfer, upi, card, cheque or cash")
		}

		paymentDate := time.Now()
		if body.PaymentDate != "" {
			d, err := time.Parse("2006-01-02", body.PaymentDate)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "payment_date must be 'YYYY-MM-DD'")
			}
			paymentDate = d
		}

		var inv models.Invoice
		if err := database.DB.Preload("Vendor").Preload("Pod").
			First(&inv, "id = ?", body.InvoiceID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Invoice not found")
		}
		if err := scope.EnsureCompanyAccess(c, inv.Pod.CompanyID); err != nil {
			return err
		}
		if inv.Status == models.InvoicePaid {
			return fiber.NewError(fiber.StatusBadRequest, "Invoice is already paid")
		}

		var existing int64
		database.DB.Model(&models.Payment{}).Where("invoice_id = ?", inv.ID).Count(&existing)
		if existing > 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invoice already has a payment")
		}

		p := models.Payment{
			InvoiceID:   inv.ID,
			Amount:      body.Amount,
			Method:      models.PaymentMethod(body.Method),
			PaymentDate: paymentDate,
			Reference:   strings.TrimSpace(body.Reference),
		}

		err := database.WithRetry(database.DB, func(tx *gorm.DB) error {
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).
				Update("status", models.InvoicePaid).Error; err != nil {
				return err
			}
			return tx.Model(&models.Alert{}).
				Where("invoice_id = ? AND status = ?", inv.ID, models.AlertActive).
				Update("status", models.AlertResolved).Error
		})
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fiber.NewError(fiber.StatusBadRequest, "Invoice already has a payment")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Could not record payment")
		}

		writePaymentAudit(c, &p, &inv, models.AuditActionCreate,
			fmt.Sprintf("Payment recorded: %s - %.2f (%s)", inv.Vendor.Name, p.Amount, p.Method))

		p.Invoice = inv
		return c.Status(fiber.StatusCreated).JSON(toResponse(&p))
	}
}

// GET /api/payments?invoice_id=1&method=upi&from=...&to=...
func ListPaymentsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.Payment{})

		if cid := scope.MemberCompanyID(c); cid != nil {
			dbq = dbq.Joins("JOIN invoices ON invoices.id = payments.invoice_id").
				Joins("JOIN pods ON pods.id = invoices.pod_id").
				Where("pods.company_id = ?", *cid)
		}

		if iidStr := c.Query("invoice_id"); iidStr != "" {
			var iid uint
			if _, err := fmt.Sscan(iidStr, &iid); err != nil || iid == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "invoice_id is invalid")
			}
			dbq = dbq.Where("invoice_id = ?", iid)
		}
		if m := c.Query("method"); m != "" {
			dbq = dbq.Where("method = ?", m)
		}
		if fromStr := c.Query("from"); fromStr != "" {
			from, err := time.Parse("2006-01-02", fromStr)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "from is invalid")
			}
			dbq = dbq.Where("payment_date >= ?", from)
		}
		if toStr := c.Query("to"); toStr != "" {
			to, err := time.Parse("2006-01-02", toStr)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "to is invalid")
			}
			dbq = dbq.Where("payment_date <= ?", to)
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not count payments")
		}

		var payments []models.Payment
		if err := dbq.Preload("Invoice.Vendor").
			Order("payment_date desc, id desc").
			Scopes(pagination.Scope(c)).
			Find(&payments).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list payments")
		}

		resp := make([]PaymentResponse, 0, len(payments))
		for i := range payments {
			resp = append(resp, toResponse(&payments[i]))
		}

		return c.JSON(pagination.Wrap(c, resp, total))
	}
}

// DELETE /api/payments/:id
// Full reversal: the payment goes away, the invoice reverts to Pending and
// its resolved alerts become active again. The derived budget figure drops
// by the payment amount automatically.
func DeletePaymentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var p models.Payment
		if err := database.DB.Preload("Invoice.Vendor").Preload("Invoice.Pod").
			First(&p, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Payment not found")
		}
		if err := scope.EnsureCompanyAccess(c, p.Invoice.Pod.CompanyID); err != nil {
			return err
		}

		err := database.WithRetry(database.DB, func(tx *gorm.DB) error {
			if err := tx.Delete(&models.Payment{}, "id = ?", p.ID).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Invoice{}).Where("id = ?", p.InvoiceID).
				Update("status", models.InvoicePending).Error; err != nil {
				return err
			}
			return tx.Model(&models.Alert{}).
				Where("invoice_id = ? AND status = ?", p.InvoiceID, models.AlertResolved).
				Update("status", models.AlertActive).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete payment")
		}

		writePaymentAudit(c, &p, &p.Invoice, models.AuditActionDelete,
			fmt.Sprintf("Payment deleted: %s - %.2f (invoice back to Pending)", p.Invoice.Vendor.Name, p.Amount))

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/payments/:id/attachment (multipart field "file")
func UploadAttachmentHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var p models.Payment
		if err := database.DB.Preload("Invoice.Pod").
			First(&p, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Payment not found")
		}
		if err := scope.EnsureCompanyAccess(c, p.Invoice.Pod.CompanyID); err != nil {
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

		if err := database.DB.Model(&models.Payment{}).Where("id = ?", p.ID).
			Update("attachment_url", url).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not save attachment reference")
		}

		return c.JSON(fiber.Map{"attachment_url": url})
	}
}

func writePaymentAudit(c *fiber.Ctx, p *models.Payment, inv *models.Invoice, action models.AuditAction, desc string) {
	userID, userName, _, err := scope.UserInfo(c)
	if err != nil {
		return
	}

	data := map[string]interface{}{
		"id":           p.ID,
		"invoice_id":   p.InvoiceID,
		"amount":       p.Amount,
		"method":       p.Method,
		"payment_date": p.PaymentDate.Format("2006-01-02"),
		"reference":    p.Reference,
	}

	var before, after any
	if action == models.AuditActionDelete {
		before = data
	} else {
		after = data
	}
	if logErr := audit.WriteLog(audit.LogOptions{
		CompanyID:   &inv.Pod.CompanyID,
		UserID:      userID,
		UserName:    userName,
		EntityType:  "payment",
		EntityID:    p.ID,
		Action:      action,
		Description: desc,
		Before:      before,
		After:       after,
	}); logErr != nil {
		fmt.Printf("Could not write audit log: %v\n", logErr)
	}
}
