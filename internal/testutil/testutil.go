// Package testutil builds throwaway in-memory stores for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gestionmatos-backend/internal/database"
	"gestionmatos-backend/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// DryRunPostgres returns a Postgres handle that renders SQL without ever
// connecting, for asserting on dialect-specific clauses SQLite drops.
func DryRunPostgres(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=gestionmatos dbname=gestionmatos sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true, Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open dry-run postgres: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// OpenDB returns a migrated in-memory SQLite database closed at test end.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.OpenDialector(sqlite.Open(":memory:"), logger.Silent)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func CreateUser(t testing.TB, db *gorm.DB, username string, role models.UserRole) *models.User {
	t.Helper()
	n := seq.Add(1)
	u := &models.User{
		Username:     username,
		Email:        fmt.Sprintf("%s@example.test", username),
		PasswordHash: "x",
		Role:         role,
		QRCode:       fmt.Sprintf("USER_test_%d", n),
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func CreateMaterial(t testing.TB, db *gorm.DB, name string) *models.Material {
	t.Helper()
	n := seq.Add(1)
	m := &models.Material{
		Name:     name,
		Category: "Outils",
		QRCode:   fmt.Sprintf("MAT_test_%d", n),
		Status:   models.StatusAvailable,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("create material %s: %v", name, err)
	}
	return m
}

func SetStatus(t testing.TB, db *gorm.DB, id uint, status models.MaterialStatus) {
	t.Helper()
	if err := db.Model(&models.Material{}).Where("id = ?", id).Update("status", status).Error; err != nil {
		t.Fatalf("set status: %v", err)
	}
}

func CountMovements(t testing.TB, db *gorm.DB, materialID uint) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.Movement{}).Where("material_id = ?", materialID).Count(&n).Error; err != nil {
		t.Fatalf("count movements: %v", err)
	}
	return n
}

func ReloadMaterial(t testing.TB, db *gorm.DB, id uint) *models.Material {
	t.Helper()
	var m models.Material
	if err := db.First(&m, id).Error; err != nil {
		t.Fatalf("reload material %d: %v", id, err)
	}
	return &m
}
