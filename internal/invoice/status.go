package invoice

import (
	"math"
	"time"

	"finops-backend/internal/models"
)

// DaysUntilDue counts whole days from now to the due date, rounding partial
// days up. Negative values mean the invoice is already overdue.
func DaysUntilDue(dueDate, now time.Time) int {
	return int(math.Ceil(dueDate.Sub(now).Hours() / 24))
}

// Classify derives the initial status and reminder state of an invoice from
// its due date: overdue invoices escalate immediately, anything due inside a
// week gets a reminder, the rest stays scheduled.
func Classify(dueDate, now time.Time) (models.InvoiceStatus, models.ReminderState) {
	days := DaysUntilDue(dueDate, now)
	switch {
	case days < 0:
		return models.InvoiceOverdue, models.ReminderEscalated
	case days <= 7:
		return models.InvoicePending, models.ReminderSent
	default:
		return models.InvoicePending, models.ReminderScheduled
	}
}
