package alerts

import (
	"fmt"
	"time"

	"finops-backend/internal/budget"
	"finops-backend/internal/database"
	"finops-backend/internal/invoice"
	"finops-backend/internal/models"

	"gorm.io/gorm"
)

// Result counts the alerts one generator run produced per condition.
type Result struct {
	DueSoon         int `json:"due_soon"`
	Overdue         int `json:"overdue"`
	BudgetThreshold int `json:"budget_threshold"`
	GeneratedAlerts int `json:"generated_alerts"`
}

// Generate scans invoices and pods for the three alert conditions and
// inserts one alert per fresh candidate, addressed to userID. An invoice or
// pod that already carries an Active alert of the matching type is skipped,
// which makes a back-to-back second run produce zero alerts. companyID
// narrows the scan to one company; nil scans everything.
func Generate(db *gorm.DB, companyID *uint, userID uint, now time.Time) (Result, error) {
	var res Result

	err := database.WithRetry(db, func(tx *gorm.DB) error {
		res = Result{}

		n, err := generateDueSoon(tx, companyID, userID, now)
		if err != nil {
			return err
		}
		res.DueSoon = n

		n, err = generateOverdue(tx, companyID, userID, now)
		if err != nil {
			return err
		}
		res.Overdue = n

		n, err = generateThreshold(tx, companyID, userID, now)
		if err != nil {
			return err
		}
		res.BudgetThreshold = n

		res.GeneratedAlerts = res.DueSoon + res.Overdue + res.BudgetThreshold
		return nil
	})

	return res, err
}

// unpaidQuery selects non-paid invoices that have no Active alert of
// alertType yet (anti-join dedup). Callers add their due-date window.
func unpaidQuery(tx *gorm.DB, companyID *uint, alertType models.AlertType) *gorm.DB {
	existing := tx.Model(&models.Alert{}).
		Select("1").
		Where("alerts.invoice_id = invoices.id").
		Where("alerts.type = ? AND alerts.status = ?", alertType, models.AlertActive)

	q := tx.Model(&models.Invoice{}).
		Joins("JOIN pods ON pods.id = invoices.pod_id").
		Where("invoices.status <> ?", models.InvoicePaid).
		Where("NOT EXISTS (?)", existing)
	if companyID != nil {
		q = q.Where("pods.company_id = ?", *companyID)
	}
	return q
}

func findInvoices(q *gorm.DB) ([]models.Invoice, error) {
	var rows []models.Invoice
	err := q.Preload("Vendor").Order("invoices.due_date asc, invoices.id asc").Find(&rows).Error
	return rows, err
}

func generateDueSoon(tx *gorm.DB, companyID *uint, userID uint, now time.Time) (int, error) {
	// Inclusive upper bound: an invoice due exactly seven days out counts
	// as due-soon, matching the ceil-based day count at creation.
	rows, err := findInvoices(unpaidQuery(tx, companyID, models.AlertInvoiceDue).
		Where("invoices.due_date >= ? AND invoices.due_date <= ?", now, now.Add(7*24*time.Hour)))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, inv := range rows {
		days := invoice.DaysUntilDue(inv.DueDate, now)
		invID := inv.ID
		alert := models.Alert{
			Type:        models.AlertInvoiceDue,
			Severity:    models.SeverityMedium,
			Status:      models.AlertActive,
			Message:     fmt.Sprintf("Invoice from %s for %.2f is due in %d days", inv.Vendor.Name, inv.Amount, days),
			InvoiceID:   &invID,
			TriggerDate: now,
			SentTo:      userID,
		}
		if err := tx.Create(&alert).Error; err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func generateOverdue(tx *gorm.DB, companyID *uint, userID uint, now time.Time) (int, error) {
	rows, err := findInvoices(unpaidQuery(tx, companyID, models.AlertInvoiceOverdue).
		Where("invoices.due_date < ?", now))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, inv := range rows {
		days := -invoice.DaysUntilDue(inv.DueDate, now)
		invID := inv.ID
		alert := models.Alert{
			Type:        models.AlertInvoiceOverdue,
			Severity:    models.SeverityHigh,
			Status:      models.AlertActive,
			Message:     fmt.Sprintf("Invoice from %s for %.2f is overdue by %d days", inv.Vendor.Name, inv.Amount, days),
			InvoiceID:   &invID,
			TriggerDate: now,
			SentTo:      userID,
		}
		if err := tx.Create(&alert).Error; err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func generateThreshold(tx *gorm.DB, companyID *uint, userID uint, now time.Time) (int, error) {
	existing := tx.Model(&models.Alert{}).
		Select("1").
		Where("alerts.pod_id = pods.id").
		Where("alerts.type = ? AND alerts.status = ?", models.AlertBudgetThreshold, models.AlertActive)

	q := tx.Model(&models.Pod{}).
		Where("status = ?", models.PodActive).
		Where("NOT EXISTS (?)", existing)
	if companyID != nil {
		q = q.Where("company_id = ?", *companyID)
	}

	var pods []models.Pod
	if err := q.Order("id asc").Find(&pods).Error; err != nil {
		return 0, err
	}

	count := 0
	for i := range pods {
		used, err := budget.PodUsed(tx, pods[i].ID, budget.Window{})
		if err != nil {
			return count, err
		}
		utilization := budget.Utilization(used, pods[i].BudgetCeiling)
		if utilization < pods[i].ThresholdAlert {
			continue
		}

		podID := pods[i].ID
		alert := models.Alert{
			Type:        models.AlertBudgetThreshold,
			Severity:    models.SeverityMedium,
			Status:      models.AlertActive,
			Message:     fmt.Sprintf("Pod %s has used %.1f%% of its budget (threshold %.0f%%)", pods[i].Name, utilization, pods[i].ThresholdAlert),
			PodID:       &podID,
			TriggerDate: now,
			SentTo:      userID,
		}
		if err := tx.Create(&alert).Error; err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
