package models

import "time"

type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "Pending"
	InvoiceOverdue InvoiceStatus = "Overdue"
	InvoicePaid    InvoiceStatus = "Paid"
)

type ReminderState string

const (
	ReminderScheduled ReminderState = "Scheduled"
	ReminderSent      ReminderState = "Sent"      // due within 7 days
	ReminderEscalated ReminderState = "Escalated" // already overdue at creation
)

type Invoice struct {
	ID            uint `gorm:"primaryKey"`
	VendorID      uint `gorm:"index;not null"`
	Vendor        Vendor
	PodID         uint `gorm:"index;not null"`
	Pod           Pod
	CategoryID    *uint `gorm:"index"`
	Category      *BudgetCategory
	InvoiceNumber string        `gorm:"size:50"`
	Amount        float64       `gorm:"not null"` // > 0
	InvoiceDate   time.Time     `gorm:"not null"`
	DueDate       time.Time     `gorm:"index;not null"`
	Status        InvoiceStatus `gorm:"size:20;index;not null;default:'Pending'"`
	Reminder      ReminderState `gorm:"size:20;not null;default:'Scheduled'"`
	AttachmentURL string        `gorm:"size:255"`
	Notes         string        `gorm:"size:255"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
