package models

import "time"

type PaymentMethod string

const (
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentUPI          PaymentMethod = "upi"
	PaymentCard         PaymentMethod = "card"
	PaymentCheque       PaymentMethod = "cheque"
	PaymentCash         PaymentMethod = "cash"
)

// Payment settles an invoice. At most one payment per invoice.
type Payment struct {
	ID            uint `gorm:"primaryKey"`
	InvoiceID     uint `gorm:"uniqueIndex;not null"`
	Invoice       Invoice
	Amount        float64       `gorm:"not null"` // > 0
	Method        PaymentMethod `gorm:"size:20;not null"`
	PaymentDate   time.Time     `gorm:"not null"`
	Reference     string        `gorm:"size:100"` // transaction id / cheque number
	AttachmentURL string        `gorm:"size:255"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
