package audit

import (
	"testing"
	"time"

	"finops-backend/internal/database"
	"finops-backend/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	prev := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = prev })
	return db
}

func podData(p *models.Pod) map[string]interface{} {
	return map[string]interface{}{
		"id":              p.ID,
		"company_id":      p.CompanyID,
		"name":            p.Name,
		"budget_ceiling":  p.BudgetCeiling,
		"threshold_alert": p.ThresholdAlert,
		"status":          p.Status,
	}
}

func TestUndoRestoresPodUpdate(t *testing.T) {
	db := openTestDB(t)

	co := models.Company{Name: "Acme", FinancialPeriod: models.PeriodMonthly, Status: models.CompanyActive}
	if err := db.Create(&co).Error; err != nil {
		t.Fatalf("seed company: %v", err)
	}
	p := models.Pod{CompanyID: co.ID, Name: "Platform", BudgetCeiling: 200000, ThresholdAlert: 80, Status: models.PodActive}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed pod: %v", err)
	}
	before := p

	p.Name = "Renamed"
	p.BudgetCeiling = 100000
	p.ThresholdAlert = 90
	if err := db.Save(&p).Error; err != nil {
		t.Fatalf("edit pod: %v", err)
	}
	if err := WriteLog(LogOptions{
		CompanyID:   &co.ID,
		UserID:      1,
		UserName:    "Ops",
		EntityType:  "pod",
		EntityID:    p.ID,
		Action:      models.AuditActionUpdate,
		Description: "Pod updated: Renamed",
		Before:      podData(&before),
		After:       podData(&p),
	}); err != nil {
		t.Fatalf("WriteLog: %v", err)
	}

	var entry models.AuditLog
	if err := db.Last(&entry).Error; err != nil {
		t.Fatalf("load log: %v", err)
	}
	if err := UndoLog(entry.ID, 1, "Ops"); err != nil {
		t.Fatalf("UndoLog: %v", err)
	}

	var restored models.Pod
	if err := db.First(&restored, p.ID).Error; err != nil {
		t.Fatalf("reload pod: %v", err)
	}
	if restored.CompanyID != co.ID || restored.BudgetCeiling != 200000 || restored.ThresholdAlert != 80 {
		t.Fatalf("restored pod = company_id=%d budget_ceiling=%v threshold_alert=%v, want %d/200000/80",
			restored.CompanyID, restored.BudgetCeiling, restored.ThresholdAlert, co.ID)
	}
	if restored.Name != "Platform" || restored.Status != models.PodActive {
		t.Fatalf("restored pod name/status = %s/%s", restored.Name, restored.Status)
	}

	// an undone log cannot be undone twice
	if err := UndoLog(entry.ID, 1, "Ops"); err == nil {
		t.Fatal("second undo should be rejected")
	}
}

func TestUndoRecreatesDeletedPod(t *testing.T) {
	db := openTestDB(t)

	co := models.Company{Name: "Acme", FinancialPeriod: models.PeriodMonthly, Status: models.CompanyActive}
	if err := db.Create(&co).Error; err != nil {
		t.Fatalf("seed company: %v", err)
	}
	p := models.Pod{CompanyID: co.ID, Name: "Platform", BudgetCeiling: 200000, ThresholdAlert: 80, Status: models.PodActive}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed pod: %v", err)
	}

	if err := db.Delete(&models.Pod{}, "id = ?", p.ID).Error; err != nil {
		t.Fatalf("delete pod: %v", err)
	}
	if err := WriteLog(LogOptions{
		CompanyID:   &co.ID,
		UserID:      1,
		UserName:    "Ops",
		EntityType:  "pod",
		EntityID:    p.ID,
		Action:      models.AuditActionDelete,
		Description: "Pod deleted: Platform",
		Before:      podData(&p),
		After:       podData(&p),
	}); err != nil {
		t.Fatalf("WriteLog: %v", err)
	}

	var entry models.AuditLog
	if err := db.Last(&entry).Error; err != nil {
		t.Fatalf("load log: %v", err)
	}
	if err := UndoLog(entry.ID, 1, "Ops"); err != nil {
		t.Fatalf("UndoLog: %v", err)
	}

	var restored models.Pod
	if err := db.First(&restored, "name = ?", "Platform").Error; err != nil {
		t.Fatalf("recreated pod missing: %v", err)
	}
	if restored.CompanyID != co.ID || restored.BudgetCeiling != 200000 || restored.ThresholdAlert != 80 || restored.Status != models.PodActive {
		t.Fatalf("recreated pod = %+v, want original fields back", restored)
	}
}

func TestUndoRecreatesDeletedInvoice(t *testing.T) {
	db := openTestDB(t)

	co := models.Company{Name: "Acme", FinancialPeriod: models.PeriodMonthly, Status: models.CompanyActive}
	if err := db.Create(&co).Error; err != nil {
		t.Fatalf("seed company: %v", err)
	}
	p := models.Pod{CompanyID: co.ID, Name: "Platform", BudgetCeiling: 200000, ThresholdAlert: 80, Status: models.PodActive}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed pod: %v", err)
	}
	v := models.Vendor{Name: "CloudCo", Type: models.VendorCloud, SharedStatus: models.VendorExclusive}
	if err := db.Create(&v).Error; err != nil {
		t.Fatalf("seed vendor: %v", err)
	}

	if err := WriteLog(LogOptions{
		CompanyID:   &co.ID,
		UserID:      1,
		UserName:    "Ops",
		EntityType:  "invoice",
		EntityID:    42,
		Action:      models.AuditActionDelete,
		Description: "Invoice deleted: CloudCo - 9000.00",
		After: map[string]interface{}{
			"id":             42,
			"vendor_id":      v.ID,
			"pod_id":         p.ID,
			"category_id":    nil,
			"invoice_number": "INV-7",
			"amount":         9000.0,
			"invoice_date":   "2025-07-01",
			"due_date":       "2025-07-15",
			"status":         models.InvoicePending,
			"reminder":       models.ReminderScheduled,
			"notes":          "quarterly",
		},
	}); err != nil {
		t.Fatalf("WriteLog: %v", err)
	}

	var entry models.AuditLog
	if err := db.Last(&entry).Error; err != nil {
		t.Fatalf("load log: %v", err)
	}
	if err := UndoLog(entry.ID, 1, "Ops"); err != nil {
		t.Fatalf("UndoLog: %v", err)
	}

	var inv models.Invoice
	if err := db.First(&inv, "invoice_number = ?", "INV-7").Error; err != nil {
		t.Fatalf("recreated invoice missing: %v", err)
	}
	if inv.VendorID != v.ID || inv.PodID != p.ID || inv.Amount != 9000 {
		t.Fatalf("recreated invoice = vendor=%d pod=%d amount=%v", inv.VendorID, inv.PodID, inv.Amount)
	}
	wantDue := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	if !inv.DueDate.Equal(wantDue) {
		t.Fatalf("recreated due date = %v, want %v", inv.DueDate, wantDue)
	}
	if inv.Status != models.InvoicePending || inv.Reminder != models.ReminderScheduled || inv.Notes != "quarterly" {
		t.Fatalf("recreated invoice state = %s/%s/%q", inv.Status, inv.Reminder, inv.Notes)
	}
}

func TestUndoRejectsPayments(t *testing.T) {
	db := openTestDB(t)

	if err := WriteLog(LogOptions{
		UserID:      1,
		UserName:    "Ops",
		EntityType:  "payment",
		EntityID:    1,
		Action:      models.AuditActionCreate,
		Description: "Payment recorded",
	}); err != nil {
		t.Fatalf("WriteLog: %v", err)
	}
	var entry models.AuditLog
	if err := db.Last(&entry).Error; err != nil {
		t.Fatalf("load log: %v", err)
	}
	if err := UndoLog(entry.ID, 1, "Ops"); err == nil {
		t.Fatal("payment undo should be rejected")
	}
}
