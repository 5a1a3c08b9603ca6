package models

import "time"

type FinancialPeriod string

const (
	PeriodMonthly   FinancialPeriod = "Monthly"
	PeriodQuarterly FinancialPeriod = "Quarterly"
	PeriodYearly    FinancialPeriod = "Yearly"
)

type CompanyStatus string

const (
	CompanyActive   CompanyStatus = "Active"
	CompanyInactive CompanyStatus = "Inactive"
)

type Company struct {
	ID              uint            `gorm:"primaryKey"`
	Name            string          `gorm:"size:100;not null;unique"`
	TotalBudget     float64         `gorm:"not null;default:0"` // >= 0
	FinancialPeriod FinancialPeriod `gorm:"size:20;not null;default:'Monthly'"`
	Status          CompanyStatus   `gorm:"size:20;not null;default:'Active'"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Pods []Pod
}
