package database

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gestionmatos-backend/internal/config"
	"gestionmatos-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Open connects to the configured store and applies migrations.
func Open(cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
	level := logger.Warn
	if !cfg.IsDevelopment() {
		level = logger.Error
	}

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		dialector = postgres.Open(cfg.DatabaseDSN)
	}

	db, err := OpenDialector(dialector, level)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("database connected and migrated", "driver", cfg.DBDriver)
	return db, nil
}

// OpenDialector opens a connection without migrating. SQLite is limited to a
// single connection so writers queue instead of failing with SQLITE_BUSY.
func OpenDialector(dialector gorm.Dialector, level logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		// movements keep their user_id after the user row is gone;
		// material deletion cascades explicitly inside a transaction
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

var defaultCategories = []models.Category{
	{Name: "Informatique", Description: "Ordinateurs, tablettes, accessoires", Color: "#3B82F6"},
	{Name: "Audiovisuel", Description: "Caméras, micros, éclairage", Color: "#10B981"},
	{Name: "Mobilier", Description: "Tables, chaises, rangements", Color: "#F59E0B"},
	{Name: "Outils", Description: "Outillage divers", Color: "#EF4444"},
	{Name: "Véhicules", Description: "Voitures, vélos, trottinettes", Color: "#8B5CF6"},
	{Name: "Sport", Description: "Équipements sportifs", Color: "#06B6D4"},
	{Name: "Autre", Description: "Matériel non catégorisé", Color: "#6B7280"},
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Material{},
		&models.Movement{},
		&models.AuditLog{},
	); err != nil {
		return err
	}

	// At most one open checkout per material.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS movements_one_open_out_per_material
		ON movements (material_id)
		WHERE movement_type = 'out' AND actual_return_date IS NULL
	`).Error; err != nil {
		return err
	}

	// Checkin lookup: latest open "out" for a (material, user) pair.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS movements_open_by_pair
		ON movements (material_id, user_id, movement_date DESC)
		WHERE actual_return_date IS NULL
	`).Error; err != nil {
		return err
	}

	seed := make([]models.Category, len(defaultCategories))
	copy(seed, defaultCategories)
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error
}

// IsUniqueViolation reports whether err comes from a unique constraint on
// either supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsNotFound reports whether err is gorm's missing-record error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
