package budget

import (
	"fmt"
	"strings"
	"time"

	"finops-backend/internal/audit"
	"finops-backend/internal/database"
	"finops-backend/internal/models"
	"finops-backend/internal/scope"

	"github.com/gofiber/fiber/v2"
)

type CreateCategoryRequest struct {
	CompanyID       *uint   `json:"company_id"`
	Name            string  `json:"name"`
	AllocatedAmount float64 `json:"allocated_amount"`
}

type UpdateCategoryRequest struct {
	Name            *string  `json:"name"`
	AllocatedAmount *float64 `json:"allocated_amount"`
}

type CategoryResponse struct {
	ID              uint    `json:"id"`
	CompanyID       uint    `json:"company_id"`
	Name            string  `json:"name"`
	AllocatedAmount float64 `json:"allocated_amount"`
	SpentAmount     float64 `json:"spent_amount"`
	RemainingAmount float64 `json:"remaining_amount"`
}

func categoryResponse(cat *models.BudgetCategory, spent float64) CategoryResponse {
	return CategoryResponse{
		ID:              cat.ID,
		CompanyID:       cat.CompanyID,
		Name:            cat.Name,
		AllocatedAmount: cat.AllocatedAmount,
		SpentAmount:     spent,
		RemainingAmount: cat.RemainingAmount(spent),
	}
}

// POST /api/budget-categories
func CreateCategoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateCategoryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name is required")
		}
		if body.AllocatedAmount < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "allocated_amount cannot be negative")
		}

		companyID, err := scope.CompanyIDFromBodyOrRole(c, body.CompanyID)
		if err != nil {
			return err
		}

		var co models.Company
		if err := database.DB.First(&co, "id = ?", companyID).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Company not found")
		}

		cat := models.BudgetCategory{
			CompanyID:       companyID,
			Name:            body.Name,
			AllocatedAmount: body.AllocatedAmount,
		}
		if err := database.DB.Create(&cat).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create budget category")
		}

		writeCategoryAudit(c, &cat, models.AuditActionCreate, nil,
			fmt.Sprintf("Budget category created: %s", cat.Name))

		return c.Status(fiber.StatusCreated).JSON(categoryResponse(&cat, 0))
	}
}

// GET /api/budget-categories?company_id=1&period=current_month
func ListCategoriesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		companyID, err := scope.CompanyIDFromQueryOrRole(c)
		if err != nil {
			return err
		}

		window, err := ParsePeriod(c.Query("period"), time.Now())
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "period is invalid")
		}

		var cats []models.BudgetCategory
		if err := database.DB.Where("company_id = ?", companyID).
			Order("name asc").Find(&cats).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list budget categories")
		}

		resp := make([]CategoryResponse, 0, len(cats))
		for i := range cats {
			spent, err := CategorySpent(database.DB, cats[i].ID, window)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Could not compute category spend")
			}
			resp = append(resp, categoryResponse(&cats[i], spent))
		}

		return c.JSON(resp)
	}
}

// PUT /api/budget-categories/:id
func UpdateCategoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var cat models.BudgetCategory
		if err := database.DB.First(&cat, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Budget category not found")
		}
		if err := scope.EnsureCompanyAccess(c, cat.CompanyID); err != nil {
			return err
		}
		before := cat

		var body UpdateCategoryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "name cannot be empty")
			}
			cat.Name = name
		}
		if body.AllocatedAmount != nil {
			if *body.AllocatedAmount < 0 {
				return fiber.NewError(fiber.StatusBadRequest, "allocated_amount cannot be negative")
			}
			cat.AllocatedAmount = *body.AllocatedAmount
		}

		if err := database.DB.Save(&cat).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update budget category")
		}

		writeCategoryAudit(c, &cat, models.AuditActionUpdate, &before,
			fmt.Sprintf("Budget category updated: %s", cat.Name))

		spent, err := CategorySpent(database.DB, cat.ID, Window{})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not compute category spend")
		}
		return c.JSON(categoryResponse(&cat, spent))
	}
}

// DELETE /api/budget-categories/:id
func DeleteCategoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var cat models.BudgetCategory
		if err := database.DB.First(&cat, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Budget category not found")
		}
		if err := scope.EnsureCompanyAccess(c, cat.CompanyID); err != nil {
			return err
		}

		var invoiceCount int64
		database.DB.Model(&models.Invoice{}).Where("category_id = ?", cat.ID).Count(&invoiceCount)
		if invoiceCount > 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Budget category is used by invoices")
		}

		if err := database.DB.Delete(&models.BudgetCategory{}, "id = ?", cat.ID).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete budget category")
		}

		writeCategoryAudit(c, &cat, models.AuditActionDelete, &cat,
			fmt.Sprintf("Budget category deleted: %s", cat.Name))

		return c.SendStatus(fiber.StatusNoContent)
	}
}

func writeCategoryAudit(c *fiber.Ctx, cat *models.BudgetCategory, action models.AuditAction, before *models.BudgetCategory, desc string) {
	userID, userName, _, err := scope.UserInfo(c)
	if err != nil {
		return
	}

	data := func(b *models.BudgetCategory) map[string]interface{} {
		return map[string]interface{}{
			"id":               b.ID,
			"company_id":       b.CompanyID,
			"name":             b.Name,
			"allocated_amount": b.AllocatedAmount,
		}
	}

	var beforeData any
	if before != nil && action != models.AuditActionCreate {
		beforeData = data(before)
	}
	if logErr := audit.WriteLog(audit.LogOptions{
		CompanyID:   &cat.CompanyID,
		UserID:      userID,
		UserName:    userName,
		EntityType:  "budget_category",
		EntityID:    cat.ID,
		Action:      action,
		Description: desc,
		Before:      beforeData,
		After:       data(cat),
	}); logErr != nil {
		fmt.Printf("Could not write audit log: %v\n", logErr)
	}
}
