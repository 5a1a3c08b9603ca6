package dashboard

import (
	"time"

	"finops-backend/internal/budget"
	"finops-backend/internal/database"
	"finops-backend/internal/models"
	"finops-backend/internal/scope"

	"github.com/gofiber/fiber/v2"
)

type PodBreakdown struct {
	PodID        uint    `json:"pod_id"`
	PodName      string  `json:"pod_name"`
	Ceiling      float64 `json:"budget_ceiling"`
	Used         float64 `json:"budget_used"`
	Remaining    float64 `json:"budget_remaining"`
	Utilization  float64 `json:"utilization"`
	BudgetStatus string  `json:"budget_status"`
}

type OverviewResponse struct {
	CompanyID       uint                `json:"company_id"`
	Period          string              `json:"period"`
	AllocatedBudget float64             `json:"allocated_budget"`
	UsedBudget      float64             `json:"used_budget"`
	Utilization     float64             `json:"utilization"`
	InvoiceCounts   budget.StatusCounts `json:"invoice_counts"`
	ActiveAlerts    int64               `json:"active_alerts"`
	Pods            []PodBreakdown      `json:"pods"`
}

// GET /api/dashboard/overview?company_id=1&period=current_month
// Pure read path: every number is recomputed from the ledger tables on
// each call, nothing is cached or stored.
func OverviewHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		companyID, err := scope.CompanyIDFromQueryOrRole(c)
		if err != nil {
			return err
		}

		var co models.Company
		if err := database.DB.First(&co, "id = ?", companyID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Company not found")
		}

		period := c.Query("period")
		window, err := budget.ParsePeriod(period, time.Now())
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "period is invalid")
		}
		if period == "" {
			period = "all_time"
		}

		var pods []models.Pod
		if err := database.DB.Where("company_id = ?", companyID).
			Order("name asc").Find(&pods).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load pods")
		}

		resp := OverviewResponse{
			CompanyID: companyID,
			Period:    period,
			Pods:      make([]PodBreakdown, 0, len(pods)),
		}

		for i := range pods {
			used, err := budget.PodUsed(database.DB, pods[i].ID, window)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Could not compute pod budget")
			}
			resp.AllocatedBudget += pods[i].BudgetCeiling
			resp.UsedBudget += used
			resp.Pods = append(resp.Pods, PodBreakdown{
				PodID:        pods[i].ID,
				PodName:      pods[i].Name,
				Ceiling:      pods[i].BudgetCeiling,
				Used:         used,
				Remaining:    pods[i].BudgetRemaining(used),
				Utilization:  budget.Utilization(used, pods[i].BudgetCeiling),
				BudgetStatus: pods[i].BudgetStatus(used),
			})
		}
		resp.Utilization = budget.Utilization(resp.UsedBudget, resp.AllocatedBudget)

		counts, err := budget.InvoiceCounts(database.DB, companyID, 0, window)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not count invoices")
		}
		resp.InvoiceCounts = counts

		database.DB.Model(&models.Alert{}).
			Where("status = ?", models.AlertActive).
			Where("pod_id IN (?) OR invoice_id IN (?)",
				database.DB.Model(&models.Pod{}).Select("id").Where("company_id = ?", companyID),
				database.DB.Model(&models.Invoice{}).Select("invoices.id").
					Joins("JOIN pods ON pods.id = invoices.pod_id").
					Where("pods.company_id = ?", companyID),
			).
			Count(&resp.ActiveAlerts)

		return c.JSON(resp)
	}
}
