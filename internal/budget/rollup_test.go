package budget

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
	// a single connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func TestUtilization(t *testing.T) {
	if got := Utilization(164000, 200000); got != 82.0 {
		t.Fatalf("Utilization(164000, 200000) = %v, want 82.0", got)
	}
	if got := Utilization(1, 3); got != 33.33 {
		t.Fatalf("Utilization(1, 3) = %v, want 33.33", got)
	}
	if got := Utilization(50, 0); got != 0 {
		t.Fatalf("Utilization with zero ceiling = %v, want 0", got)
	}
	if got := Utilization(0, 0); got != 0 {
		t.Fatalf("Utilization(0, 0) = %v, want 0", got)
	}
	if got := Utilization(300, 200); got != 150.0 {
		t.Fatalf("Utilization(300, 200) = %v, want 150.0", got)
	}
}

func TestParsePeriod(t *testing.T) {
	now := time.Date(2025, time.August, 14, 10, 30, 0, 0, time.UTC)

	w, err := ParsePeriod("current_month", now)
	if err != nil {
		t.Fatalf("current_month: %v", err)
	}
	if !w.Start.Equal(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("current_month start = %v", w.Start)
	}
	if !w.End.Equal(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("current_month end = %v", w.End)
	}

	w, err = ParsePeriod("last_month", now)
	if err != nil {
		t.Fatalf("last_month: %v", err)
	}
	if !w.Start.Equal(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)) || !w.End.Equal(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("last_month window = [%v, %v)", w.Start, w.End)
	}

	w, err = ParsePeriod("quarter", now)
	if err != nil {
		t.Fatalf("quarter: %v", err)
	}
	if !w.Start.Equal(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)) || !w.End.Equal(time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("quarter window = [%v, %v)", w.Start, w.End)
	}

	w, err = ParsePeriod("year", now)
	if err != nil {
		t.Fatalf("year: %v", err)
	}
	if !w.Start.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("year start = %v", w.Start)
	}

	w, err = ParsePeriod("all_time", now)
	if err != nil {
		t.Fatalf("all_time: %v", err)
	}
	if !w.All() {
		t.Fatal("all_time should be an unbounded window")
	}

	w, err = ParsePeriod("", now)
	if err != nil || !w.All() {
		t.Fatalf("empty token should mean all_time, got window=%+v err=%v", w, err)
	}

	w, err = ParsePeriod("last_30_days", now)
	if err != nil {
		t.Fatalf("last_30_days: %v", err)
	}
	if !w.Start.Equal(time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("last_30_days start = %v", w.Start)
	}

	if _, err := ParsePeriod("fortnight", now); err == nil {
		t.Fatal("unknown period token should be rejected")
	}
}

func TestPodUsedDerivation(t *testing.T) {
	db := openTestDB(t)

	co := models.Company{Name: "Acme", FinancialPeriod: models.PeriodMonthly, Status: models.CompanyActive}
	if err := db.Create(&co).Error; err != nil {
		t.Fatalf("seed company: %v", err)
	}
	p := models.Pod{CompanyID: co.ID, Name: "Platform", BudgetCeiling: 100000, ThresholdAlert: 80, Status: models.PodActive}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed pod: %v", err)
	}
	v := models.Vendor{Name: "CloudCo", Type: models.VendorCloud, SharedStatus: models.VendorExclusive}
	if err := db.Create(&v).Error; err != nil {
		t.Fatalf("seed vendor: %v", err)
	}

	now := time.Now()
	paid := models.Invoice{VendorID: v.ID, PodID: p.ID, Amount: 40000, InvoiceDate: now, DueDate: now, Status: models.InvoicePaid, Reminder: models.ReminderScheduled}
	pending := models.Invoice{VendorID: v.ID, PodID: p.ID, Amount: 25000, InvoiceDate: now, DueDate: now, Status: models.InvoicePending, Reminder: models.ReminderScheduled}
	if err := db.Create(&paid).Error; err != nil {
		t.Fatalf("seed paid invoice: %v", err)
	}
	if err := db.Create(&pending).Error; err != nil {
		t.Fatalf("seed pending invoice: %v", err)
	}
	pay := models.Payment{InvoiceID: paid.ID, Amount: 40000, Method: models.PaymentBankTransfer, PaymentDate: now}
	if err := db.Create(&pay).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	used, err := PodUsed(db, p.ID, Window{})
	if err != nil {
		t.Fatalf("PodUsed: %v", err)
	}
	// only the paid invoice's payment counts
	if used != 40000 {
		t.Fatalf("PodUsed = %v, want 40000", used)
	}

	companyUsed, err := CompanyUsed(db, co.ID, Window{})
	if err != nil {
		t.Fatalf("CompanyUsed: %v", err)
	}
	if companyUsed != 40000 {
		t.Fatalf("CompanyUsed = %v, want 40000", companyUsed)
	}

	counts, err := InvoiceCounts(db, co.ID, 0, Window{})
	if err != nil {
		t.Fatalf("InvoiceCounts: %v", err)
	}
	if counts.Paid != 1 || counts.Pending != 1 || counts.Overdue != 0 {
		t.Fatalf("InvoiceCounts = %+v, want 1 paid, 1 pending", counts)
	}

	// a pod with no payments derives to zero, not an error
	empty := models.Pod{CompanyID: co.ID, Name: "Idle", BudgetCeiling: 0, ThresholdAlert: 80, Status: models.PodActive}
	if err := db.Create(&empty).Error; err != nil {
		t.Fatalf("seed empty pod: %v", err)
	}
	used, err = PodUsed(db, empty.ID, Window{})
	if err != nil {
		t.Fatalf("PodUsed empty: %v", err)
	}
	if used != 0 {
		t.Fatalf("PodUsed on empty pod = %v, want 0", used)
	}
	if got := Utilization(used, empty.BudgetCeiling); got != 0 {
		t.Fatalf("utilization of empty pod = %v, want 0", got)
	}
}
