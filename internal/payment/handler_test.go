package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"finops-backend/internal/auth"
	"finops-backend/internal/budget"
	"finops-backend/internal/database"
	"finops-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type fixture struct {
	company models.Company
	user    models.User
	vendor  models.Vendor
	pod     models.Pod
}

// setupApp swaps the package-global DB for an in-memory one and wires the
// payment routes behind a stub of the auth middleware.
func setupApp(t *testing.T) (*fiber.App, fixture) {
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

	f := fixture{
		company: models.Company{Name: "Acme", FinancialPeriod: models.PeriodMonthly, Status: models.CompanyActive},
		vendor:  models.Vendor{Name: "CloudCo", Type: models.VendorCloud, SharedStatus: models.VendorExclusive},
	}
	if err := db.Create(&f.company).Error; err != nil {
		t.Fatalf("seed company: %v", err)
	}
	f.user = models.User{CompanyID: &f.company.ID, Name: "Ops", Email: "ops@acme.test", PasswordHash: "x", Role: models.RoleAdmin}
	if err := db.Create(&f.user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := db.Create(&f.vendor).Error; err != nil {
		t.Fatalf("seed vendor: %v", err)
	}
	f.pod = models.Pod{CompanyID: f.company.ID, Name: "Platform", BudgetCeiling: 100000, ThresholdAlert: 80, Status: models.PodActive}
	if err := db.Create(&f.pod).Error; err != nil {
		t.Fatalf("seed pod: %v", err)
	}

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, f.user.ID)
		c.Locals(auth.CtxUserRoleKey, f.user.Role)
		c.Locals(auth.CtxCompanyIDKey, f.user.CompanyID)
		return c.Next()
	})
	app.Post("/api/payments", CreatePaymentHandler())
	app.Get("/api/payments", ListPaymentsHandler())
	app.Delete("/api/payments/:id", DeletePaymentHandler())

	return app, f
}

func addInvoice(t *testing.T, f fixture, amount float64, status models.InvoiceStatus) models.Invoice {
	t.Helper()
	now := time.Now()
	inv := models.Invoice{
		VendorID:    f.vendor.ID,
		PodID:       f.pod.ID,
		Amount:      amount,
		InvoiceDate: now.AddDate(0, 0, -14),
		DueDate:     now.AddDate(0, 0, 7),
		Status:      status,
		Reminder:    models.ReminderSent,
	}
	if err := database.DB.Create(&inv).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return inv
}

func postPayment(t *testing.T, app *fiber.App, body CreatePaymentRequest) int {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest("POST", "/api/payments", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func podUsed(t *testing.T, podID uint) float64 {
	t.Helper()
	used, err := budget.PodUsed(database.DB, podID, budget.Window{})
	if err != nil {
		t.Fatalf("PodUsed: %v", err)
	}
	return used
}

func TestPaymentSettlesInvoice(t *testing.T) {
	app, f := setupApp(t)

	paid := addInvoice(t, f, 70000, models.InvoicePaid)
	if err := database.DB.Create(&models.Payment{InvoiceID: paid.ID, Amount: 70000, Method: models.PaymentBankTransfer, PaymentDate: time.Now()}).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	open := addInvoice(t, f, 50000, models.InvoicePending)
	alert := models.Alert{
		Type: models.AlertInvoiceDue, Severity: models.SeverityMedium, Status: models.AlertActive,
		Message: "Invoice from CloudCo for 50000.00 is due in 7 days",
		InvoiceID: &open.ID, TriggerDate: time.Now(), SentTo: f.user.ID,
	}
	if err := database.DB.Create(&alert).Error; err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	if got := podUsed(t, f.pod.ID); got != 70000 {
		t.Fatalf("used before payment = %v, want 70000", got)
	}

	code := postPayment(t, app, CreatePaymentRequest{
		InvoiceID: open.ID, Amount: 50000, Method: "upi", PaymentDate: "2025-08-14", Reference: "TXN-1",
	})
	if code != fiber.StatusCreated {
		t.Fatalf("create payment status = %d, want 201", code)
	}

	var inv models.Invoice
	if err := database.DB.First(&inv, open.ID).Error; err != nil {
		t.Fatalf("reload invoice: %v", err)
	}
	if inv.Status != models.InvoicePaid {
		t.Fatalf("invoice status = %s, want Paid", inv.Status)
	}
	if err := database.DB.First(&alert, alert.ID).Error; err != nil {
		t.Fatalf("reload alert: %v", err)
	}
	if alert.Status != models.AlertResolved {
		t.Fatalf("alert status = %s, want Resolved", alert.Status)
	}
	if got := podUsed(t, f.pod.ID); got != 120000 {
		t.Fatalf("used after payment = %v, want 120000", got)
	}

	// invariant: a paid invoice cannot take a second payment
	code = postPayment(t, app, CreatePaymentRequest{InvoiceID: open.ID, Amount: 50000, Method: "upi"})
	if code != fiber.StatusBadRequest {
		t.Fatalf("double payment status = %d, want 400", code)
	}
}

func TestMemberCannotPayOtherCompanyInvoice(t *testing.T) {
	_, f := setupApp(t)

	globex := models.Company{Name: "Globex", FinancialPeriod: models.PeriodMonthly, Status: models.CompanyActive}
	if err := database.DB.Create(&globex).Error; err != nil {
		t.Fatalf("seed company: %v", err)
	}
	member := models.User{CompanyID: &globex.ID, Name: "Visitor", Email: "visitor@globex.test", PasswordHash: "x", Role: models.RoleMember}
	if err := database.DB.Create(&member).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	inv := addInvoice(t, f, 50000, models.InvoicePending)

	memberApp := fiber.New()
	memberApp.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, member.ID)
		c.Locals(auth.CtxUserRoleKey, member.Role)
		c.Locals(auth.CtxCompanyIDKey, member.CompanyID)
		return c.Next()
	})
	memberApp.Post("/api/payments", CreatePaymentHandler())
	memberApp.Get("/api/payments", ListPaymentsHandler())

	code := postPayment(t, memberApp, CreatePaymentRequest{InvoiceID: inv.ID, Amount: 50000, Method: "upi"})
	if code != fiber.StatusForbidden {
		t.Fatalf("cross-company payment status = %d, want 403", code)
	}
	var reloaded models.Invoice
	if err := database.DB.First(&reloaded, inv.ID).Error; err != nil {
		t.Fatalf("reload invoice: %v", err)
	}
	if reloaded.Status != models.InvoicePending {
		t.Fatalf("invoice status = %s, want still Pending", reloaded.Status)
	}

	// the other company's settled payments stay out of the member's listing
	paid := addInvoice(t, f, 70000, models.InvoicePaid)
	if err := database.DB.Create(&models.Payment{InvoiceID: paid.ID, Amount: 70000, Method: models.PaymentBankTransfer, PaymentDate: time.Now()}).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	req := httptest.NewRequest("GET", "/api/payments", nil)
	resp, err := memberApp.Test(req, -1)
	if err != nil {
		t.Fatalf("list request: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Data []models.Payment `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(out.Data) != 0 {
		t.Fatalf("member sees %d foreign payments, want 0", len(out.Data))
	}
}

func TestPaymentValidation(t *testing.T) {
	app, f := setupApp(t)
	inv := addInvoice(t, f, 50000, models.InvoicePending)

	if code := postPayment(t, app, CreatePaymentRequest{InvoiceID: 999, Amount: 10, Method: "upi"}); code != fiber.StatusNotFound {
		t.Fatalf("missing invoice status = %d, want 404", code)
	}
	if code := postPayment(t, app, CreatePaymentRequest{InvoiceID: inv.ID, Amount: 0, Method: "upi"}); code != fiber.StatusBadRequest {
		t.Fatalf("zero amount status = %d, want 400", code)
	}
	if code := postPayment(t, app, CreatePaymentRequest{InvoiceID: inv.ID, Amount: 10, Method: "paypal"}); code != fiber.StatusBadRequest {
		t.Fatalf("bad method status = %d, want 400", code)
	}
	if code := postPayment(t, app, CreatePaymentRequest{InvoiceID: inv.ID, Amount: 10, Method: "upi", PaymentDate: "14-08-2025"}); code != fiber.StatusBadRequest {
		t.Fatalf("bad date status = %d, want 400", code)
	}
}

func TestDeletePaymentReversesSettlement(t *testing.T) {
	app, f := setupApp(t)

	paid := addInvoice(t, f, 70000, models.InvoicePaid)
	if err := database.DB.Create(&models.Payment{InvoiceID: paid.ID, Amount: 70000, Method: models.PaymentBankTransfer, PaymentDate: time.Now()}).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	open := addInvoice(t, f, 50000, models.InvoicePending)
	if code := postPayment(t, app, CreatePaymentRequest{InvoiceID: open.ID, Amount: 50000, Method: "card"}); code != fiber.StatusCreated {
		t.Fatalf("create payment status = %d, want 201", code)
	}
	if got := podUsed(t, f.pod.ID); got != 120000 {
		t.Fatalf("used after payment = %v, want 120000", got)
	}

	var p models.Payment
	if err := database.DB.First(&p, "invoice_id = ?", open.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	req := httptest.NewRequest("DELETE", fmt.Sprintf("/api/payments/%d", p.ID), nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("delete request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}

	var inv models.Invoice
	if err := database.DB.First(&inv, open.ID).Error; err != nil {
		t.Fatalf("reload invoice: %v", err)
	}
	if inv.Status != models.InvoicePending {
		t.Fatalf("invoice status = %s, want Pending after reversal", inv.Status)
	}
	if got := podUsed(t, f.pod.ID); got != 70000 {
		t.Fatalf("used after reversal = %v, want 70000", got)
	}

	req = httptest.NewRequest("DELETE", "/api/payments/999", nil)
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("delete request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("delete missing status = %d, want 404", resp.StatusCode)
	}
}
