package pod

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"finops-backend/internal/auth"
	"finops-backend/internal/database"
	"finops-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type fixture struct {
	acme    models.Company
	globex  models.Company
	acmePod models.Pod
	other   models.Pod
	caller  models.User
}

// setupApp swaps the package-global DB for an in-memory one, seeds two
// companies with a pod each, and wires the pod routes behind a stub of the
// auth middleware that reads the caller from the fixture.
func setupApp(t *testing.T) (*fiber.App, *fixture) {
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

	f := &fixture{
		acme:   models.Company{Name: "Acme", FinancialPeriod: models.PeriodMonthly, Status: models.CompanyActive},
		globex: models.Company{Name: "Globex", FinancialPeriod: models.PeriodMonthly, Status: models.CompanyActive},
	}
	for _, co := range []*models.Company{&f.acme, &f.globex} {
		if err := db.Create(co).Error; err != nil {
			t.Fatalf("seed company: %v", err)
		}
	}
	f.acmePod = models.Pod{CompanyID: f.acme.ID, Name: "Platform", BudgetCeiling: 200000, ThresholdAlert: 80, Status: models.PodActive}
	f.other = models.Pod{CompanyID: f.globex.ID, Name: "Research", BudgetCeiling: 150000, ThresholdAlert: 80, Status: models.PodActive}
	for _, p := range []*models.Pod{&f.acmePod, &f.other} {
		if err := db.Create(p).Error; err != nil {
			t.Fatalf("seed pod: %v", err)
		}
	}
	f.caller = models.User{CompanyID: &f.acme.ID, Name: "Ops", Email: "ops@acme.test", PasswordHash: "x", Role: models.RoleMember}
	if err := db.Create(&f.caller).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, f.caller.ID)
		c.Locals(auth.CtxUserRoleKey, f.caller.Role)
		c.Locals(auth.CtxCompanyIDKey, f.caller.CompanyID)
		return c.Next()
	})
	app.Get("/api/pods/:id", GetPodHandler())
	app.Put("/api/pods/:id", UpdatePodHandler())
	app.Delete("/api/pods/:id", DeletePodHandler())

	return app, f
}

func request(t *testing.T, app *fiber.App, method string, podID uint, body string) int {
	t.Helper()
	r := httptest.NewRequest(method, fmt.Sprintf("/api/pods/%d", podID), strings.NewReader(body))
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(r, -1)
	if err != nil {
		t.Fatalf("%s request: %v", method, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestMemberCannotTouchOtherCompanyPod(t *testing.T) {
	app, f := setupApp(t)

	if code := request(t, app, "GET", f.other.ID, ""); code != fiber.StatusForbidden {
		t.Fatalf("cross-company GET status = %d, want 403", code)
	}
	if code := request(t, app, "PUT", f.other.ID, `{"name":"Hijacked"}`); code != fiber.StatusForbidden {
		t.Fatalf("cross-company PUT status = %d, want 403", code)
	}
	if code := request(t, app, "DELETE", f.other.ID, ""); code != fiber.StatusForbidden {
		t.Fatalf("cross-company DELETE status = %d, want 403", code)
	}

	var p models.Pod
	if err := database.DB.First(&p, f.other.ID).Error; err != nil {
		t.Fatalf("other company's pod should survive: %v", err)
	}
	if p.Name != "Research" {
		t.Fatalf("other company's pod name = %q, want untouched", p.Name)
	}
}

func TestMemberCanTouchOwnPod(t *testing.T) {
	app, f := setupApp(t)

	if code := request(t, app, "GET", f.acmePod.ID, ""); code != fiber.StatusOK {
		t.Fatalf("own GET status = %d, want 200", code)
	}
	if code := request(t, app, "PUT", f.acmePod.ID, `{"name":"Platform Eng"}`); code != fiber.StatusOK {
		t.Fatalf("own PUT status = %d, want 200", code)
	}
	if code := request(t, app, "DELETE", f.acmePod.ID, ""); code != fiber.StatusNoContent {
		t.Fatalf("own DELETE status = %d, want 204", code)
	}
}

func TestAdminTouchesAnyPod(t *testing.T) {
	app, f := setupApp(t)
	f.caller.Role = models.RoleAdmin
	f.caller.CompanyID = nil

	if code := request(t, app, "GET", f.other.ID, ""); code != fiber.StatusOK {
		t.Fatalf("admin GET status = %d, want 200", code)
	}
	if code := request(t, app, "PUT", f.other.ID, `{"budget_ceiling":175000}`); code != fiber.StatusOK {
		t.Fatalf("admin PUT status = %d, want 200", code)
	}
}
