package budget

import (
	"fmt"
	"math"
	"time"

	"finops-backend/internal/models"

	"gorm.io/gorm"
)

// A budget window selected by a period token. End is exclusive; a zero
// Start together with a zero End means all time.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) All() bool { return w.Start.IsZero() && w.End.IsZero() }

// ParsePeriod maps a period token to a date window relative to now.
// Unknown tokens are rejected; an empty token means all_time.
func ParsePeriod(token string, now time.Time) (Window, error) {
	y, m, d := now.Date()
	loc := now.Location()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, loc)
	startOfMonth := time.Date(y, m, 1, 0, 0, 0, 0, loc)

	switch token {
	case "", "all_time":
		return Window{}, nil
	case "current_month":
		return Window{Start: startOfMonth, End: startOfMonth.AddDate(0, 1, 0)}, nil
	case "last_month":
		return Window{Start: startOfMonth.AddDate(0, -1, 0), End: startOfMonth}, nil
	case "quarter":
		qm := time.Month((int(m)-1)/3*3 + 1)
		qs := time.Date(y, qm, 1, 0, 0, 0, 0, loc)
		return Window{Start: qs, End: qs.AddDate(0, 3, 0)}, nil
	case "year":
		ys := time.Date(y, 1, 1, 0, 0, 0, 0, loc)
		return Window{Start: ys, End: ys.AddDate(1, 0, 0)}, nil
	case "last_30_days":
		return Window{Start: startOfDay.AddDate(0, 0, -30), End: startOfDay.AddDate(0, 0, 1)}, nil
	default:
		return Window{}, fmt.Errorf("unknown period %q", token)
	}
}

// Utilization returns used/ceiling as a percentage rounded to 2 decimals.
// A zero ceiling yields 0, never NaN or Inf.
func Utilization(used, ceiling float64) float64 {
	if ceiling == 0 {
		return 0
	}
	return math.Round(used/ceiling*10000) / 100
}

// PodUsed derives a pod's spent budget: the sum of payment amounts over its
// paid invoices. Nothing is stored, so the figure can never drift from the
// payment ledger.
func PodUsed(db *gorm.DB, podID uint, w Window) (float64, error) {
	q := db.Model(&models.Payment{}).
		Joins("JOIN invoices ON invoices.id = payments.invoice_id").
		Where("invoices.pod_id = ? AND invoices.status = ?", podID, models.InvoicePaid)
	if !w.All() {
		q = q.Where("payments.payment_date >= ? AND payments.payment_date < ?", w.Start, w.End)
	}
	var total float64
	err := q.Select("COALESCE(SUM(payments.amount), 0)").Scan(&total).Error
	return total, err
}

// CompanyUsed sums PodUsed over every pod of the company in one query.
func CompanyUsed(db *gorm.DB, companyID uint, w Window) (float64, error) {
	q := db.Model(&models.Payment{}).
		Joins("JOIN invoices ON invoices.id = payments.invoice_id").
		Joins("JOIN pods ON pods.id = invoices.pod_id").
		Where("pods.company_id = ? AND invoices.status = ?", companyID, models.InvoicePaid)
	if !w.All() {
		q = q.Where("payments.payment_date >= ? AND payments.payment_date < ?", w.Start, w.End)
	}
	var total float64
	err := q.Select("COALESCE(SUM(payments.amount), 0)").Scan(&total).Error
	return total, err
}

// CategorySpent derives a budget category's spend from paid invoices.
func CategorySpent(db *gorm.DB, categoryID uint, w Window) (float64, error) {
	q := db.Model(&models.Invoice{}).
		Where("category_id = ? AND status = ?", categoryID, models.InvoicePaid)
	if !w.All() {
		q = q.Where("invoice_date >= ? AND invoice_date < ?", w.Start, w.End)
	}
	var total float64
	err := q.Select("COALESCE(SUM(amount), 0)").Scan(&total).Error
	return total, err
}

type StatusCounts struct {
	Pending int64 `json:"pending"`
	Overdue int64 `json:"overdue"`
	Paid    int64 `json:"paid"`
}

// InvoiceCounts groups a pod's or company's invoices by status. Pass podID=0
// to count across the whole company.
func InvoiceCounts(db *gorm.DB, companyID, podID uint, w Window) (StatusCounts, error) {
	type row struct {
		Status models.InvoiceStatus
		N      int64
	}
	q := db.Model(&models.Invoice{}).
		Joins("JOIN pods ON pods.id = invoices.pod_id").
		Where("pods.company_id = ?", companyID)
	if podID != 0 {
		q = q.Where("invoices.pod_id = ?", podID)
	}
	if !w.All() {
		q = q.Where("invoices.invoice_date >= ? AND invoices.invoice_date < ?", w.Start, w.End)
	}

	var rows []row
	if err := q.Select("invoices.status as status, COUNT(*) as n").
		Group("invoices.status").Scan(&rows).Error; err != nil {
		return StatusCounts{}, err
	}

	var counts StatusCounts
	for _, r := range rows {
		switch r.Status {
		case models.InvoicePending:
			counts.Pending = r.N
		case models.InvoiceOverdue:
			counts.Overdue = r.N
		case models.InvoicePaid:
			counts.Paid = r.N
		}
	}
	return counts, nil
}
