// Package users is the user directory: profiles, listing, role changes and
// removal. Registration and login live in the auth package.
package users

import (
	"context"
	"fmt"
	"strings"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/database"
	"gestionmatos-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUserNotFound = apperr.NotFound("User not found")

type ProfileInput struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

func load(tx *gorm.DB, id uint) (*models.User, error) {
	var u models.User
	if err := tx.First(&u, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, apperr.Internal(err, "Database error")
	}
	return &u, nil
}

func Get(ctx context.Context, db *gorm.DB, id uint) (*models.User, error) {
	return load(db.WithContext(ctx), id)
}

func List(ctx context.Context, db *gorm.DB) ([]models.User, error) {
	var out []models.User
	if err := db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, apperr.Internal(err, "Could not list users")
	}
	return out, nil
}

func UpdateProfile(ctx context.Context, db *gorm.DB, id uint, in ProfileInput) (*models.User, error) {
	changes := map[string]interface{}{}
	if in.FirstName != nil {
		changes["first_name"] = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		changes["last_name"] = strings.TrimSpace(*in.LastName)
	}

	dbq := db.WithContext(ctx)
	if len(changes) > 0 {
		res := dbq.Model(&models.User{}).Where("id = ?", id).Updates(changes)
		if res.Error != nil {
			return nil, apperr.Internal(res.Error, "Could not update profile")
		}
		if res.RowsAffected == 0 {
			return nil, ErrUserNotFound
		}
	}
	return load(dbq, id)
}

// SetRole changes a user's role and returns the user before and after.
func SetRole(ctx context.Context, db *gorm.DB, id uint, role models.UserRole) (before, after *models.User, err error) {
	if !role.Valid() {
		return nil, nil, apperr.Validation(fmt.Sprintf("Invalid role %q", role))
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lerr error
		if before, lerr = load(tx, id); lerr != nil {
			return lerr
		}
		if err := tx.Model(&models.User{}).Where("id = ?", id).Update("role", role).Error; err != nil {
			return apperr.Internal(err, "Could not update role")
		}
		after, lerr = load(tx, id)
		return lerr
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// lockForDelete holds the user row against concurrent checkouts, which read
// it FOR SHARE, until the open-movement count and the delete are done.
func lockForDelete(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Delete removes a user who holds no borrowed material. Their movements are
// kept so material history stays complete.
func Delete(ctx context.Context, db *gorm.DB, id uint) (*models.User, error) {
	var deleted *models.User
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := load(lockForDelete(tx), id)
		if err != nil {
			return err
		}

		var open int64
		if err := tx.Model(&models.Movement{}).
			Where("user_id = ? AND movement_type = ? AND actual_return_date IS NULL", id, models.MovementOut).
			Count(&open).Error; err != nil {
			return apperr.Internal(err, "Database error")
		}
		if open > 0 {
			return apperr.InvalidState(fmt.Sprintf("User still holds %d borrowed item(s)", open))
		}

		if err := tx.Delete(&models.User{}, id).Error; err != nil {
			return apperr.Internal(err, "Could not delete user")
		}
		deleted = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
