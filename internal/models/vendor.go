package models

import "time"

type VendorType string

const (
	VendorCloud    VendorType = "Cloud"
	VendorSaaS     VendorType = "SaaS"
	VendorStaffAug VendorType = "StaffAug"
	VendorOther    VendorType = "Other"
)

type SharedStatus string

const (
	VendorExclusive SharedStatus = "Exclusive"
	VendorShared    SharedStatus = "Shared" // must keep at least one pod allocation
)

type Vendor struct {
	ID           uint         `gorm:"primaryKey"`
	Name         string       `gorm:"size:100;not null;unique"`
	Type         VendorType   `gorm:"size:20;not null"`
	SharedStatus SharedStatus `gorm:"size:20;not null;default:'Exclusive'"`
	ContactEmail string       `gorm:"size:100"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Allocations []VendorPodAllocation
}

// VendorPodAllocation splits a shared vendor's cost across pods.
// Percentages are informational and are not required to sum to 100.
type VendorPodAllocation struct {
	ID         uint `gorm:"primaryKey"`
	VendorID   uint `gorm:"not null;uniqueIndex:idx_vendor_pod"`
	Vendor     Vendor
	PodID      uint `gorm:"not null;uniqueIndex:idx_vendor_pod"`
	Pod        Pod
	Percentage float64 `gorm:"not null"` // (0,100]
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
