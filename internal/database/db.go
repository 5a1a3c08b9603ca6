package database

import (
	"log"

	"finops-backend/internal/config"
	"finops-backend/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	// Single-file database. SQLite allows one writer at a time; the busy
	// timeout plus WithRetry serialize competing writes.
	dsn := cfg.DatabasePath + "?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	DB, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Could not open database: %v", err)
	}

	if err := Migrate(DB); err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	log.Println("Database ready. Migration complete.")
}

// Migrate creates/updates the schema. Exposed separately so tests can run
// it against their own in-memory databases.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Company{},
		&models.User{},
		&models.Pod{},
		&models.BudgetCategory{},
		&models.Vendor{},
		&models.VendorPodAllocation{},
		&models.Invoice{},
		&models.Payment{},
		&models.Alert{},
		&models.AuditLog{},
	)
}
