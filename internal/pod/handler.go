package pod

import (
	"fmt"
	"strings"
	"time"

	"finops-backend/internal/audit"
	"finops-backend/internal/budget"
	"finops-backend/internal/database"
	"finops-backend/internal/models"
	"finops-backend/internal/pagination"
	"finops-backend/internal/scope"

	"github.com/gofiber/fiber/v2"
)

type CreatePodRequest struct {
	CompanyID      *uint   `json:"company_id"` // optional for members, bound by token
	Name           string  `json:"name"`
	BudgetCeiling  float64 `json:"budget_ceiling"`
	ThresholdAlert float64 `json:"threshold_alert"`
}

type UpdatePodRequest struct {
	Name           *string  `json:"name"`
	BudgetCeiling  *float64 `json:"budget_ceiling"`
	ThresholdAlert *float64 `json:"threshold_alert"`
	Status         *string  `json:"status"`
}

type PodResponse struct {
	ID              uint    `json:"id"`
	CompanyID       uint    `json:"company_id"`
	Name            string  `json:"name"`
	BudgetCeiling   float64 `json:"budget_ceiling"`
	BudgetUsed      float64 `json:"budget_used"`
	BudgetRemaining float64 `json:"budget_remaining"`
	BudgetStatus    string  `json:"budget_status"`
	Utilization     float64 `json:"utilization"`
	ThresholdAlert  float64 `json:"threshold_alert"`
	Status          string  `json:"status"`
}

func toResponse(p *models.Pod, used float64) PodResponse {
	return PodResponse{
		ID:              p.ID,
		CompanyID:       p.CompanyID,
		Name:            p.Name,
		BudgetCeiling:   p.BudgetCeiling,
		BudgetUsed:      used,
		BudgetRemaining: p.BudgetRemaining(used),
		BudgetStatus:    p.BudgetStatus(used),
		Utilization:     budget.Utilization(used, p.BudgetCeiling),
		ThresholdAlert:  p.ThresholdAlert,
		Status:          string(p.Status),
	}
}

// POST /api/pods
func CreatePodHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreatePodRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name is required")
		}
		if body.BudgetCeiling < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "budget_ceiling cannot be negative")
		}
		if body.ThresholdAlert == 0 {
			body.ThresholdAlert = 80
		}
		if body.ThresholdAlert <= 0 || body.ThresholdAlert > 100 {
			return fiber.NewError(fiber.StatusBadRequest, "threshold_alert must be in (0,100]")
		}

		companyID, err := scope.CompanyIDFromBodyOrRole(c, body.CompanyID)
		if err != nil {
			return err
		}

		var co models.Company
		if err := database.DB.First(&co, "id = ?", companyID).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Company not found")
		}
		if co.Status != models.CompanyActive {
			return fiber.NewError(fiber.StatusBadRequest, "Company is not active")
		}

		p := models.Pod{
			CompanyID:      companyID,
			Name:           body.Name,
			BudgetCeiling:  body.BudgetCeiling,
			ThresholdAlert: body.ThresholdAlert,
			Status:         models.PodActive,
		}

		if err := database.DB.Create(&p).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create pod")
		}

		writePodAudit(c, &p, models.AuditActionCreate, nil,
			fmt.Sprintf("Pod created: %s (ceiling %.2f)", p.Name, p.BudgetCeiling))

		return c.Status(fiber.StatusCreated).JSON(toResponse(&p, 0))
	}
}

// GET /api/pods?company_id=1&status=Active&page=1&limit=20
func ListPodsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		companyID, err := scope.CompanyIDFromQueryOrRole(c)
		if err != nil {
			return err
		}

		dbq := database.DB.Model(&models.Pod{}).Where("company_id = ?", companyID)
		if st := c.Query("status"); st != "" {
			dbq = dbq.Where("status = ?", st)
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not count pods")
		}

		var pods []models.Pod
		if err := dbq.Order("name asc").Scopes(pagination.Scope(c)).Find(&pods).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list pods")
		}

		resp := make([]PodResponse, 0, len(pods))
		for i := range pods {
			used, err := budget.PodUsed(database.DB, pods[i].ID, budget.Window{})
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Could not compute pod budget")
			}
			resp = append(resp, toResponse(&pods[i], used))
		}

		return c.JSON(pagination.Wrap(c, resp, total))
	}
}

// GET /api/pods/:id?period=current_month
func GetPodHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var p models.Pod
		if err := database.DB.First(&p, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Pod not found")
		}
		if err := scope.EnsureCompanyAccess(c, p.CompanyID); err != nil {
			return err
		}

		window, err := budget.ParsePeriod(c.Query("period"), time.Now())
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "period is invalid")
		}

		used, err := budget.PodUsed(database.DB, p.ID, window)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not compute pod budget")
		}

		return c.JSON(toResponse(&p, used))
	}
}

// PUT /api/pods/:id
func UpdatePodHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var p models.Pod
		if err := database.DB.First(&p, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Pod not found")
		}
		if err := scope.EnsureCompanyAccess(c, p.CompanyID); err != nil {
			return err
		}
		before := p

		var body UpdatePodRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "name cannot be empty")
			}
			p.Name = name
		}
		if body.BudgetCeiling != nil {
			if *body.BudgetCeiling < 0 {
				return fiber.NewError(fiber.StatusBadRequest, "budget_ceiling cannot be negative")
			}
			p.BudgetCeiling = *body.BudgetCeiling
		}
		if body.ThresholdAlert != nil {
			if *body.ThresholdAlert <= 0 || *body.ThresholdAlert > 100 {
				return fiber.NewError(fiber.StatusBadRequest, "threshold_alert must be in (0,100]")
			}
			p.ThresholdAlert = *body.ThresholdAlert
		}
		if body.Status != nil {
			switch models.PodStatus(*body.Status) {
			case models.PodActive, models.PodArchived:
				p.Status = models.PodStatus(*body.Status)
			default:
				return fiber.NewError(fiber.StatusBadRequest, "status must be Active or Archived")
			}
		}

		if err := database.DB.Save(&p).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update pod")
		}

		writePodAudit(c, &p, models.AuditActionUpdate, &before,
			fmt.Sprintf("Pod updated: %s", p.Name))

		used, err := budget.PodUsed(database.DB, p.ID, budget.Window{})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not compute pod budget")
		}
		return c.JSON(toResponse(&p, used))
	}
}

// DELETE /api/pods/:id
func DeletePodHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var p models.Pod
		if err := database.DB.First(&p, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Pod not found")
		}
		if err := scope.EnsureCompanyAccess(c, p.CompanyID); err != nil {
			return err
		}

		var invoiceCount int64
		database.DB.Model(&models.Invoice{}).Where("pod_id = ?", p.ID).Count(&invoiceCount)
		if invoiceCount > 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Pod has invoices, archive it instead")
		}

		before := p
		if err := database.DB.Delete(&models.Pod{}, "id = ?", p.ID).Error; err != nil {
			if database.IsForeignKeyViolation(err) {
				return fiber.NewError(fiber.StatusBadRequest, "Pod is referenced by other records")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete pod")
		}

		writePodAudit(c, &before, models.AuditActionDelete, &before,
			fmt.Sprintf("Pod deleted: %s", before.Name))

		return c.SendStatus(fiber.StatusNoContent)
	}
}

func writePodAudit(c *fiber.Ctx, p *models.Pod, action models.AuditAction, before *models.Pod, desc string) {
	userID, userName, _, err := scope.UserInfo(c)
	if err != nil {
		return
	}

	var beforeData any
	if before != nil && action != models.AuditActionCreate {
		beforeData = podAuditData(before)
	}
	if logErr := audit.WriteLog(audit.LogOptions{
		CompanyID:   &p.CompanyID,
		UserID:      userID,
		UserName:    userName,
		EntityType:  "pod",
		EntityID:    p.ID,
		Action:      action,
		Description: desc,
		Before:      beforeData,
		After:       podAuditData(p),
	}); logErr != nil {
		fmt.Printf("Could not write audit log: %v\n", logErr)
	}
}

func podAuditData(p *models.Pod) map[string]interface{} {
	return map[string]interface{}{
		"id":              p.ID,
		"company_id":      p.CompanyID,
		"name":            p.Name,
		"budget_ceiling":  p.BudgetCeiling,
		"threshold_alert": p.ThresholdAlert,
		"status":          p.Status,
	}
}
