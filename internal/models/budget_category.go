package models

import "time"

// BudgetCategory groups invoices inside a company (Cloud, Travel, Tooling...).
// The remaining amount is derived on read from paid invoice totals.
type BudgetCategory struct {
	ID              uint `gorm:"primaryKey"`
	CompanyID       uint `gorm:"index;not null"`
	Company         Company
	Name            string  `gorm:"size:100;not null"`
	AllocatedAmount float64 `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (bc *BudgetCategory) RemainingAmount(spent float64) float64 {
	return bc.AllocatedAmount - spent
}
