package company

import (
	"fmt"
	"strings"

	"finops-backend/internal/audit"
	"finops-backend/internal/database"
	"finops-backend/internal/models"
	"finops-backend/internal/pagination"
	"finops-backend/internal/scope"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateCompanyRequest struct {
	Name            string  `json:"name"`
	TotalBudget     float64 `json:"total_budget"`
	FinancialPeriod string  `json:"financial_period"`
}

type UpdateCompanyRequest struct {
	Name            *string  `json:"name"`
	TotalBudget     *float64 `json:"total_budget"`
	FinancialPeriod *string  `json:"financial_period"`
	Status          *string  `json:"status"`
}

type CompanyResponse struct {
	ID              uint    `json:"id"`
	Name            string  `json:"name"`
	TotalBudget     float64 `json:"total_budget"`
	FinancialPeriod string  `json:"financial_period"`
	Status          string  `json:"status"`
	PodCount        int64   `json:"pod_count"`
}

func validPeriod(p string) bool {
	switch models.FinancialPeriod(p) {
	case models.PeriodMonthly, models.PeriodQuarterly, models.PeriodYearly:
		return true
	}
	return false
}

func toResponse(co *models.Company, podCount int64) CompanyResponse {
	return CompanyResponse{
		ID:              co.ID,
		Name:            co.Name,
		TotalBudget:     co.TotalBudget,
		FinancialPeriod: string(co.FinancialPeriod),
		Status:          string(co.Status),
		PodCount:        podCount,
	}
}

// POST /api/companies (admin)
func CreateCompanyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateCompanyRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name is required")
		}
		if body.TotalBudget < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "total_budget cannot be negative")
		}
		if body.FinancialPeriod == "" {
			body.FinancialPeriod = string(models.PeriodMonthly)
		}
		if !validPeriod(body.FinancialPeriod) {
			return fiber.NewError(fiber.StatusBadRequest, "financial_period must be Monthly, Quarterly or Yearly")
		}

		co := models.Company{
			Name:            body.Name,
			TotalBudget:     body.TotalBudget,
			FinancialPeriod: models.FinancialPeriod(body.FinancialPeriod),
			Status:          models.CompanyActive,
		}

		if err := database.DB.Create(&co).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return fiber.NewError(fiber.StatusBadRequest, "A company with this name already exists")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create company")
		}

		writeCompanyAudit(c, &co, models.AuditActionCreate, nil,
			fmt.Sprintf("Company created: %s", co.Name))

		return c.Status(fiber.StatusCreated).JSON(toResponse(&co, 0))
	}
}

// GET /api/companies?page=1&limit=20&status=Active
func ListCompaniesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.Company{})
		if cid := scope.MemberCompanyID(c); cid != nil {
			dbq = dbq.Where("id = ?", *cid)
		}
		if st := c.Query("status"); st != "" {
			dbq = dbq.Where("status = ?", st)
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not count companies")
		}

		var companies []models.Company
		if err := dbq.Order("name asc").Scopes(pagination.Scope(c)).Find(&companies).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list companies")
		}

		resp := make([]CompanyResponse, 0, len(companies))
		for i := range companies {
			var podCount int64
			database.DB.Model(&models.Pod{}).Where("company_id = ?", companies[i].ID).Count(&podCount)
			resp = append(resp, toResponse(&companies[i], podCount))
		}

		return c.JSON(pagination.Wrap(c, resp, total))
	}
}

// GET /api/companies/:id
func GetCompanyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var co models.Company
		if err := database.DB.First(&co, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Company not found")
		}
		if err := scope.EnsureCompanyAccess(c, co.ID); err != nil {
			return err
		}

		var podCount int64
		database.DB.Model(&models.Pod{}).Where("company_id = ?", co.ID).Count(&podCount)

		return c.JSON(toResponse(&co, podCount))
	}
}

// PUT /api/companies/:id (admin)
func UpdateCompanyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var co models.Company
		if err := database.DB.First(&co, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Company not found")
		}
		before := co

		var body UpdateCompanyRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "name cannot be empty")
			}
			co.Name = name
		}
		if body.TotalBudget != nil {
			if *body.TotalBudget < 0 {
				return fiber.NewError(fiber.StatusBadRequest, "total_budget cannot be negative")
			}
			co.TotalBudget = *body.TotalBudget
		}
		if body.FinancialPeriod != nil {
			if !validPeriod(*body.FinancialPeriod) {
				return fiber.NewError(fiber.StatusBadRequest, "financial_period must be Monthly, Quarterly or Yearly")
			}
			co.FinancialPeriod = models.FinancialPeriod(*body.FinancialPeriod)
		}
		if body.Status != nil {
			switch models.CompanyStatus(*body.Status) {
			case models.CompanyActive, models.CompanyInactive:
				co.Status = models.CompanyStatus(*body.Status)
			default:
				return fiber.NewError(fiber.StatusBadRequest, "status must be Active or Inactive")
			}
		}

		if err := database.DB.Save(&co).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return fiber.NewError(fiber.StatusBadRequest, "A company with this name already exists")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update company")
		}

		writeCompanyAudit(c, &co, models.AuditActionUpdate, &before,
			fmt.Sprintf("Company updated: %s", co.Name))

		var podCount int64
		database.DB.Model(&models.Pod{}).Where("company_id = ?", co.ID).Count(&podCount)
		return c.JSON(toResponse(&co, podCount))
	}
}

// DELETE /api/companies/:id (admin)
// Soft delete: the company goes Inactive and its pods go Archived.
func DeleteCompanyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var co models.Company
		if err := database.DB.First(&co, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Company not found")
		}
		before := co

		err := database.WithRetry(database.DB, func(tx *gorm.DB) error {
			if err := tx.Model(&models.Company{}).Where("id = ?", co.ID).
				Update("status", models.CompanyInactive).Error; err != nil {
				return err
			}
			return tx.Model(&models.Pod{}).Where("company_id = ?", co.ID).
				Update("status", models.PodArchived).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not deactivate company")
		}

		co.Status = models.CompanyInactive
		writeCompanyAudit(c, &co, models.AuditActionUpdate, &before,
			fmt.Sprintf("Company deactivated: %s (pods archived)", co.Name))

		return c.SendStatus(fiber.StatusNoContent)
	}
}

func writeCompanyAudit(c *fiber.Ctx, co *models.Company, action models.AuditAction, before *models.Company, desc string) {
	userID, userName, _, err := scope.UserInfo(c)
	if err != nil {
		return
	}

	var beforeData any
	if before != nil {
		beforeData = companyAuditData(before)
	}
	if logErr := audit.WriteLog(audit.LogOptions{
		CompanyID:   &co.ID,
		UserID:      userID,
		UserName:    userName,
		EntityType:  "company",
		EntityID:    co.ID,
		Action:      action,
		Description: desc,
		Before:      beforeData,
		After:       companyAuditData(co),
	}); logErr != nil {
		fmt.Printf("Could not write audit log: %v\n", logErr)
	}
}

func companyAuditData(co *models.Company) map[string]interface{} {
	return map[string]interface{}{
		"id":               co.ID,
		"name":             co.Name,
		"total_budget":     co.TotalBudget,
		"financial_period": co.FinancialPeriod,
		"status":           co.Status,
	}
}
