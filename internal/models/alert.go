package models

import "time"

type AlertType string

const (
	AlertInvoiceDue      AlertType = "InvoiceDue"
	AlertInvoiceOverdue  AlertType = "InvoiceOverdue"
	AlertBudgetThreshold AlertType = "BudgetThreshold"
	AlertManual          AlertType = "Manual"
)

type AlertSeverity string

const (
	SeverityLow    AlertSeverity = "Low"
	SeverityMedium AlertSeverity = "Medium"
	SeverityHigh   AlertSeverity = "High"
)

type AlertStatus string

const (
	AlertActive       AlertStatus = "Active"
	AlertAcknowledged AlertStatus = "Acknowledged"
	AlertResolved     AlertStatus = "Resolved"
)

type Alert struct {
	ID          uint          `gorm:"primaryKey"`
	Type        AlertType     `gorm:"size:30;index;not null"`
	Severity    AlertSeverity `gorm:"size:10;not null"`
	Status      AlertStatus   `gorm:"size:20;index;not null;default:'Active'"`
	Message     string        `gorm:"size:255;not null"`
	InvoiceID   *uint         `gorm:"index"` // set for due/overdue alerts
	Invoice     *Invoice
	PodID       *uint `gorm:"index"` // set for threshold alerts
	Pod         *Pod
	TriggerDate time.Time `gorm:"not null"`
	SentTo      uint      `gorm:"not null"` // user the alert is addressed to
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
