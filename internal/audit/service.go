package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"finops-backend/internal/database"
	"finops-backend/internal/models"
)

type LogOptions struct {
	CompanyID   *uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

func WriteLog(opts LogOptions) error {
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	log := models.AuditLog{
		CompanyID:   opts.CompanyID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  beforeStr,
		AfterData:   afterStr,
		Undone:      false,
		IsUndone:    false,
	}

	if err := database.DB.Create(&log).Error; err != nil {
		return fmt.Errorf("could not write audit log: %w", err)
	}

	return nil
}

// UndoLog reverses a logged operation. Payments are excluded: reversing a
// payment also has to flip the invoice status and alert states, which the
// payment delete endpoint already does properly.
func UndoLog(logID uint, userID uint, userName string) error {
	var log models.AuditLog
	if err := database.DB.First(&log, "id = ?", logID).Error; err != nil {
		return fmt.Errorf("log not found: %w", err)
	}

	if log.IsUndone {
		return fmt.Errorf("this operation was already undone")
	}
	if log.EntityType == "payment" {
		return fmt.Errorf("payments cannot be undone here, delete the payment instead")
	}

	switch log.Action {
	case models.AuditActionCreate:
		if err := deleteEntity(log.EntityType, log.EntityID); err != nil {
			return fmt.Errorf("could not delete entity: %w", err)
		}

	case models.AuditActionUpdate:
		if err := restoreEntity(log.EntityType, log.EntityID, log.BeforeData); err != nil {
			return fmt.Errorf("could not restore entity: %w", err)
		}

	case models.AuditActionDelete:
		if err := recreateEntity(log.EntityType, log.AfterData); err != nil {
			return fmt.Errorf("could not recreate entity: %w", err)
		}

	default:
		return fmt.Errorf("this action cannot be undone")
	}

	now := time.Now()
	log.IsUndone = true
	log.UndoneBy = &userID
	log.UndoneAt = &now

	if err := database.DB.Save(&log).Error; err != nil {
		return fmt.Errorf("could not update log: %w", err)
	}

	undoLog := models.AuditLog{
		CompanyID:   log.CompanyID,
		UserID:      userID,
		UserName:    userName,
		EntityType:  log.EntityType,
		EntityID:    log.EntityID,
		Action:      models.AuditActionUndo,
		Description: fmt.Sprintf("Undone: %s", log.Description),
		BeforeData:  log.AfterData,
		AfterData:   log.BeforeData,
		Undone:      true,
		IsUndone:    false,
	}

	if err := database.DB.Create(&undoLog).Error; err != nil {
		return fmt.Errorf("could not write undo log: %w", err)
	}

	return nil
}

// Snapshots mirror the key sets the handlers write into Before/After data.
// The models themselves carry no json tags, so undo decodes through these.

type companySnapshot struct {
	ID              uint                   `json:"id"`
	Name            string                 `json:"name"`
	TotalBudget     float64                `json:"total_budget"`
	FinancialPeriod models.FinancialPeriod `json:"financial_period"`
	Status          models.CompanyStatus   `json:"status"`
}

type podSnapshot struct {
	ID             uint             `json:"id"`
	CompanyID      uint             `json:"company_id"`
	Name           string           `json:"name"`
	BudgetCeiling  float64          `json:"budget_ceiling"`
	ThresholdAlert float64          `json:"threshold_alert"`
	Status         models.PodStatus `json:"status"`
}

type categorySnapshot struct {
	ID              uint    `json:"id"`
	CompanyID       uint    `json:"company_id"`
	Name            string  `json:"name"`
	AllocatedAmount float64 `json:"allocated_amount"`
}

type vendorSnapshot struct {
	ID           uint                `json:"id"`
	Name         string              `json:"name"`
	Type         models.VendorType   `json:"type"`
	SharedStatus models.SharedStatus `json:"shared_status"`
	ContactEmail string              `json:"contact_email"`
}

type invoiceSnapshot struct {
	ID            uint                 `json:"id"`
	VendorID      uint                 `json:"vendor_id"`
	PodID         uint                 `json:"pod_id"`
	CategoryID    *uint                `json:"category_id"`
	InvoiceNumber string               `json:"invoice_number"`
	Amount        float64              `json:"amount"`
	InvoiceDate   string               `json:"invoice_date"` // "2006-01-02"
	DueDate       string               `json:"due_date"`
	Status        models.InvoiceStatus `json:"status"`
	Reminder      models.ReminderState `json:"reminder"`
	Notes         string               `json:"notes"`
}

func (s *invoiceSnapshot) dates() (invoiceDate, dueDate time.Time, err error) {
	invoiceDate, err = time.Parse("2006-01-02", s.InvoiceDate)
	if err != nil {
		return
	}
	dueDate, err = time.Parse("2006-01-02", s.DueDate)
	return
}

func deleteEntity(entityType string, entityID uint) error {
	switch entityType {
	case "company":
		return database.DB.Delete(&models.Company{}, "id = ?", entityID).Error
	case "pod":
		return database.DB.Delete(&models.Pod{}, "id = ?", entityID).Error
	case "budget_category":
		return database.DB.Delete(&models.BudgetCategory{}, "id = ?", entityID).Error
	case "vendor":
		return database.DB.Delete(&models.Vendor{}, "id = ?", entityID).Error
	case "invoice":
		return database.DB.Delete(&models.Invoice{}, "id = ?", entityID).Error
	default:
		return fmt.Errorf("unknown entity type: %s", entityType)
	}
}

func recreateEntity(entityType string, dataJSON string) error {
	switch entityType {
	case "company":
		var s companySnapshot
		if err := json.Unmarshal([]byte(dataJSON), &s); err != nil {
			return err
		}
		return database.DB.Create(&models.Company{
			Name:            s.Name,
			TotalBudget:     s.TotalBudget,
			FinancialPeriod: s.FinancialPeriod,
			Status:          s.Status,
		}).Error

	case "pod":
		var s podSnapshot
		if err := json.Unmarshal([]byte(dataJSON), &s); err != nil {
			return err
		}
		return database.DB.Create(&models.Pod{
			CompanyID:      s.CompanyID,
			Name:           s.Name,
			BudgetCeiling:  s.BudgetCeiling,
			ThresholdAlert: s.ThresholdAlert,
			Status:         s.Status,
		}).Error

	case "budget_category":
		var s categorySnapshot
		if err := json.Unmarshal([]byte(dataJSON), &s); err != nil {
			return err
		}
		return database.DB.Create(&models.BudgetCategory{
			CompanyID:       s.CompanyID,
			Name:            s.Name,
			AllocatedAmount: s.AllocatedAmount,
		}).Error

	case "vendor":
		var s vendorSnapshot
		if err := json.Unmarshal([]byte(dataJSON), &s); err != nil {
			return err
		}
		return database.DB.Create(&models.Vendor{
			Name:         s.Name,
			Type:         s.Type,
			SharedStatus: s.SharedStatus,
			ContactEmail: s.ContactEmail,
		}).Error

	case "invoice":
		var s invoiceSnapshot
		if err := json.Unmarshal([]byte(dataJSON), &s); err != nil {
			return err
		}
		invoiceDate, dueDate, err := s.dates()
		if err != nil {
			return err
		}
		return database.DB.Create(&models.Invoice{
			VendorID:      s.VendorID,
			PodID:         s.PodID,
			CategoryID:    s.CategoryID,
			InvoiceNumber: s.InvoiceNumber,
			Amount:        s.Amount,
			InvoiceDate:   invoiceDate,
			DueDate:       dueDate,
			Status:        s.Status,
			Reminder:      s.Reminder,
			Notes:         s.Notes,
		}).Error

	default:
		return fmt.Errorf("unknown entity type: %s", entityType)
	}
}

func restoreEntity(entityType string, entityID uint, dataJSON string) error {
	switch entityType {
	case "company":
		var s companySnapshot
		if err := json.Unmarshal([]byte(dataJSON), &s); err != nil {
			return err
		}
		return database.DB.Model(&models.Company{}).Where("id = ?", entityID).Updates(map[string]interface{}{
			"name":             s.Name,
			"total_budget":     s.TotalBudget,
			"financial_period": s.FinancialPeriod,
			"status":           s.Status,
		}).Error

	case "pod":
		var s podSnapshot
		if err := json.Unmarshal([]byte(dataJSON), &s); err != nil {
			return err
		}
		return database.DB.Model(&models.Pod{}).Where("id = ?", entityID).Updates(map[string]interface{}{
			"company_id":      s.CompanyID,
			"name":            s.Name,
			"budget_ceiling":  s.BudgetCeiling,
			"threshold_alert": s.ThresholdAlert,
			"status":          s.Status,
		}).Error

	case "budget_category":
		var s categorySnapshot
		if err := json.Unmarshal([]byte(dataJSON), &s); err != nil {
			return err
		}
		return database.DB.Model(&models.BudgetCategory{}).Where("id = ?", entityID).Updates(map[string]interface{}{
			"company_id":       s.CompanyID,
			"name":             s.Name,
			"allocated_amount": s.AllocatedAmount,
		}).Error

	case "vendor":
		var s vendorSnapshot
		if err := json.Unmarshal([]byte(dataJSON), &s); err != nil {
			return err
		}
		return database.DB.Model(&models.Vendor{}).Where("id = ?", entityID).Updates(map[string]interface{}{
			"name":          s.Name,
			"type":          s.Type,
			"shared_status": s.SharedStatus,
			"contact_email": s.ContactEmail,
		}).Error

	case "invoice":
		var s invoiceSnapshot
		if err := json.Unmarshal([]byte(dataJSON), &s); err != nil {
			return err
		}
		invoiceDate, dueDate, err := s.dates()
		if err != nil {
			return err
		}
		return database.DB.Model(&models.Invoice{}).Where("id = ?", entityID).Updates(map[string]interface{}{
			"vendor_id":      s.VendorID,
			"pod_id":         s.PodID,
			"category_id":    s.CategoryID,
			"invoice_number": s.InvoiceNumber,
			"amount":         s.Amount,
			"invoice_date":   invoiceDate,
			"due_date":       dueDate,
			"status":         s.Status,
			"reminder":       s.Reminder,
			"notes":          s.Notes,
		}).Error

	default:
		return fmt.Errorf("unknown entity type: %s", entityType)
	}
}
