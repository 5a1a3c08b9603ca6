// Package scope resolves the acting user and the company a request is
// allowed to touch. Members are pinned to their own company; admins choose
// one explicitly via body or query.
package scope

import (
	"fmt"

	"finops-backend/internal/auth"
	"finops-backend/internal/database"
	"finops-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

func UserInfo(c *fiber.Ctx) (uint, string, *uint, error) {
	userIDVal := c.Locals(auth.CtxUserIDKey)
	userID, ok := userIDVal.(uint)
	if !ok {
		return 0, "", nil, fiber.NewError(fiber.StatusForbidden, "Could not read user from token")
	}

	var user models.User
	if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
		return 0, "", nil, fiber.NewError(fiber.StatusInternalServerError, "User not found")
	}

	var companyID *uint
	cVal := c.Locals(auth.CtxCompanyIDKey)
	if cPtr, ok := cVal.(*uint); ok && cPtr != nil {
		companyID = cPtr
	}

	return userID, user.Name, companyID, nil
}

// EnsureCompanyAccess rejects members touching another company's records.
// Admins pass through; list endpoints scope their queries instead, this is
// for the by-id routes that load a record first.
func EnsureCompanyAccess(c *fiber.Ctx, companyID uint) error {
	roleVal := c.Locals(auth.CtxUserRoleKey)
	role, ok := roleVal.(models.UserRole)
	if !ok {
		return fiber.NewError(fiber.StatusForbidden, "Could not read role from token")
	}
	if role != models.RoleMember {
		return nil
	}

	cVal := c.Locals(auth.CtxCompanyIDKey)
	cPtr, ok := cVal.(*uint)
	if !ok || cPtr == nil {
		return fiber.NewError(fiber.StatusForbidden, "No company bound to this user")
	}
	if *cPtr != companyID {
		return fiber.NewError(fiber.StatusForbidden, "This record belongs to another company")
	}
	return nil
}

// MemberCompanyID returns the bound company for members and nil for admins.
func MemberCompanyID(c *fiber.Ctx) *uint {
	roleVal := c.Locals(auth.CtxUserRoleKey)
	if role, ok := roleVal.(models.UserRole); !ok || role != models.RoleMember {
		return nil
	}
	if cPtr, ok := c.Locals(auth.CtxCompanyIDKey).(*uint); ok {
		return cPtr
	}
	return nil
}

// CompanyIDFromBodyOrRole picks the company from the request body for
// admins, and forces the member's own company otherwise.
func CompanyIDFromBodyOrRole(c *fiber.Ctx, bodyCompanyID *uint) (uint, error) {
	roleVal := c.Locals(auth.CtxUserRoleKey)
	role, ok := roleVal.(models.UserRole)
	if !ok {
		return 0, fiber.NewError(fiber.StatusForbidden, "Could not read role from token")
	}

	if role == models.RoleMember {
		cVal := c.Locals(auth.CtxCompanyIDKey)
		cPtr, ok := cVal.(*uint)
		if !ok || cPtr == nil {
			return 0, fiber.NewError(fiber.StatusForbidden, "No company bound to this user")
		}
		return *cPtr, nil
	}

	if bodyCompanyID == nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "company_id is required")
	}
	return *bodyCompanyID, nil
}

// CompanyIDFromQueryOrRole is the query-parameter variant, used by list and
// rollup endpoints.
func CompanyIDFromQueryOrRole(c *fiber.Ctx) (uint, error) {
	roleVal := c.Locals(auth.CtxUserRoleKey)
	role, ok := roleVal.(models.UserRole)
	if !ok {
		return 0, fiber.NewError(fiber.StatusForbidden, "Could not read role from token")
	}

	if role == models.RoleMember {
		cVal := c.Locals(auth.CtxCompanyIDKey)
		cPtr, ok := cVal.(*uint)
		if !ok || cPtr == nil {
			return 0, fiber.NewError(fiber.StatusForbidden, "No company bound to this user")
		}
		return *cPtr, nil
	}

	cidStr := c.Query("company_id")
	if cidStr == "" {
		return 0, fiber.NewError(fiber.StatusBadRequest, "company_id is required")
	}
	var cid uint
	if _, err := fmt.Sscan(cidStr, &cid); err != nil || cid == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "company_id is invalid")
	}
	return cid, nil
}
