package alerts

import (
	"fmt"
	"strings"
	"time"

	"finops-backend/internal/auth"
	"finops-backend/internal/database"
	"finops-backend/internal/models"
	"finops-backend/internal/pagination"
	"finops-backend/internal/scope"

	"github.com/gofiber/fiber/v2"
)

type AlertResponse struct {
	ID          uint   `json:"id"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	InvoiceID   *uint  `json:"invoice_id"`
	PodID       *uint  `json:"pod_id"`
	TriggerDate string `json:"trigger_date"`
	SentTo      uint   `json:"sent_to"`
}

func toResponse(a *models.Alert) AlertResponse {
	return AlertResponse{
		ID:          a.ID,
		Type:        string(a.Type),
		Severity:    string(a.Severity),
		Status:      string(a.Status),
		Message:     a.Message,
		InvoiceID:   a.InvoiceID,
		PodID:       a.PodID,
		TriggerDate: a.TriggerDate.Format("2006-01-02 15:04:05"),
		SentTo:      a.SentTo,
	}
}

// POST /api/alerts/generate?company_id=1
func GenerateAlertsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userIDVal := c.Locals(auth.CtxUserIDKey)
		userID, ok := userIDVal.(uint)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "Could not read user from token")
		}

		var companyID *uint
		if cidStr := c.Query("company_id"); cidStr != "" {
			var cid uint
			if _, err := fmt.Sscan(cidStr, &cid); err != nil || cid == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "company_id is invalid")
			}
			if err := scope.EnsureCompanyAccess(c, cid); err != nil {
				return err
			}
			companyID = &cid
		} else if cid := scope.MemberCompanyID(c); cid != nil {
			companyID = cid
		}

		res, err := Generate(database.DB, companyID, userID, time.Now())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Alert generation failed")
		}

		return c.JSON(res)
	}
}

// GET /api/alerts?status=Active&type=InvoiceOverdue&severity=High
func ListAlertsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.Alert{})

		// Members see their company's alerts plus their own unattached
		// manual ones.
		if cid := scope.MemberCompanyID(c); cid != nil {
			userID, _ := c.Locals(auth.CtxUserIDKey).(uint)
			podIDs := database.DB.Model(&models.Pod{}).Select("id").
				Where("company_id = ?", *cid)
			invoiceIDs := database.DB.Model(&models.Invoice{}).Select("invoices.id").
				Joins("JOIN pods ON pods.id = invoices.pod_id").
				Where("pods.company_id = ?", *cid)
			dbq = dbq.Where(
				"pod_id IN (?) OR invoice_id IN (?) OR (pod_id IS NULL AND invoice_id IS NULL AND sent_to = ?)",
				podIDs, invoiceIDs, userID)
		}

		if st := c.Query("status"); st != "" {
			dbq = dbq.Where("status = ?", st)
		}
		if t := c.Query("type"); t != "" {
			dbq = dbq.Where("type = ?", t)
		}
		if sev := c.Query("severity"); sev != "" {
			dbq = dbq.Where("severity = ?", sev)
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not count alerts")
		}

		var alerts []models.Alert
		if err := dbq.Order("trigger_date desc, id desc").
			Scopes(pagination.Scope(c)).
			Find(&alerts).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list alerts")
		}

		resp := make([]AlertResponse, 0, len(alerts))
		for i := range alerts {
			resp = append(resp, toResponse(&alerts[i]))
		}

		return c.JSON(pagination.Wrap(c, resp, total))
	}
}

type CreateManualAlertRequest struct {
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	InvoiceID *uint  `json:"invoice_id"`
	PodID     *uint  `json:"pod_id"`
}

// POST /api/alerts (type is always Manual)
func CreateManualAlertHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateManualAlertRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Message = strings.TrimSpace(body.Message)
		if body.Message == "" {
			return fiber.NewError(fiber.StatusBadRequest, "message is required")
		}
		switch models.AlertSeverity(body.Severity) {
		case models.SeverityLow, models.SeverityMedium, models.SeverityHigh:
		default:
			return fiber.NewError(fiber.StatusBadRequest, "severity must be Low, Medium or High")
		}

		if body.PodID != nil {
			var p models.Pod
			if err := database.DB.First(&p, "id = ?", *body.PodID).Error; err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Referenced pod does not exist")
			}
			if err := scope.EnsureCompanyAccess(c, p.CompanyID); err != nil {
				return err
			}
		}
		if body.InvoiceID != nil {
			var inv models.Invoice
			if err := database.DB.Preload("Pod").First(&inv, "id = ?", *body.InvoiceID).Error; err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Referenced invoice does not exist")
			}
			if err := scope.EnsureCompanyAccess(c, inv.Pod.CompanyID); err != nil {
				return err
			}
		}

		userIDVal := c.Locals(auth.CtxUserIDKey)
		userID, _ := userIDVal.(uint)

		a := models.Alert{
			Type:        models.AlertManual,
			Severity:    models.AlertSeverity(body.Severity),
			Status:      models.AlertActive,
			Message:     body.Message,
			InvoiceID:   body.InvoiceID,
			PodID:       body.PodID,
			TriggerDate: time.Now(),
			SentTo:      userID,
		}
		if err := database.DB.Create(&a).Error; err != nil {
			if database.IsForeignKeyViolation(err) {
				return fiber.NewError(fiber.StatusBadRequest, "Referenced invoice or pod does not exist")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create alert")
		}

		return c.Status(fiber.StatusCreated).JSON(toResponse(&a))
	}
}

// PUT /api/alerts/:id/acknowledge
func AcknowledgeAlertHandler() fiber.Handler {
	return transitionHandler(models.AlertActive, models.AlertAcknowledged, "Only active alerts can be acknowledged")
}

// PUT /api/alerts/:id/resolve
func ResolveAlertHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var a models.Alert
		if err := database.DB.First(&a, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Alert not found")
		}
		if err := ensureAlertAccess(c, &a); err != nil {
			return err
		}
		if a.Status == models.AlertResolved {
			return fiber.NewError(fiber.StatusBadRequest, "Alert is already resolved")
		}

		a.Status = models.AlertResolved
		if err := database.DB.Save(&a).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update alert")
		}
		return c.JSON(toResponse(&a))
	}
}

// ensureAlertAccess resolves the company behind an alert through its pod or
// invoice. Unattached manual alerts are only touchable by their recipient
// when the caller is a member.
func ensureAlertAccess(c *fiber.Ctx, a *models.Alert) error {
	switch {
	case a.PodID != nil:
		var p models.Pod
		if err := database.DB.First(&p, "id = ?", *a.PodID).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not resolve the alert's pod")
		}
		return scope.EnsureCompanyAccess(c, p.CompanyID)
	case a.InvoiceID != nil:
		var inv models.Invoice
		if err := database.DB.Preload("Pod").First(&inv, "id = ?", *a.InvoiceID).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not resolve the alert's invoice")
		}
		return scope.EnsureCompanyAccess(c, inv.Pod.CompanyID)
	}

	if scope.MemberCompanyID(c) != nil {
		userID, _ := c.Locals(auth.CtxUserIDKey).(uint)
		if a.SentTo != userID {
			return fiber.NewError(fiber.StatusForbidden, "This alert belongs to another user")
		}
	}
	return nil
}

func transitionHandler(from, to models.AlertStatus, wrongStateMsg string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var a models.Alert
		if err := database.DB.First(&a, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Alert not found")
		}
		if err := ensureAlertAccess(c, &a); err != nil {
			return err
		}
		if a.Status != from {
			return fiber.NewError(fiber.StatusBadRequest, wrongStateMsg)
		}

		a.Status = to
		if err := database.DB.Save(&a).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update alert")
		}
		return c.JSON(toResponse(&a))
	}
}
