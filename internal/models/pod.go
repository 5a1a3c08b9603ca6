package models

import "time"

type PodStatus string

const (
	PodActive   PodStatus = "Active"
	PodArchived PodStatus = "Archived" // set when the owning company goes Inactive
)

// Budget posture derived from ceiling vs used, never stored.
const (
	BudgetWithin = "Within Budget"
	BudgetOver   = "Over Budget"
)

type Pod struct {
	ID             uint `gorm:"primaryKey"`
	CompanyID      uint `gorm:"index;not null"`
	Company        Company
	Name           string    `gorm:"size:100;not null"`
	BudgetCeiling  float64   `gorm:"not null;default:0"`  // >= 0
	ThresholdAlert float64   `gorm:"not null;default:80"` // percent, (0,100]
	Status         PodStatus `gorm:"size:20;not null;default:'Active'"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BudgetStatus derives the posture from the ceiling and a used amount
// computed elsewhere (sum of payments on paid invoices).
func (p *Pod) BudgetStatus(used float64) string {
	if used > p.BudgetCeiling {
		return BudgetOver
	}
	return BudgetWithin
}

func (p *Pod) BudgetRemaining(used float64) float64 {
	return p.BudgetCeiling - used
}
