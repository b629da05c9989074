// Package workflow moves materials between available and borrowed. Each
// transition writes the ledger and the material status in one transaction.
package workflow

import (
	"context"
	"errors"
	"time"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/database"
	"gestionmatos-backend/internal/ledger"
	"gestionmatos-backend/internal/metrics"
	"gestionmatos-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrMaterialUnavailable = apperr.InvalidState("Material unavailable or nonexistent")
	ErrNoOpenCheckout      = apperr.New(apperr.KindNoOpenCheckout, "No open checkout found for this material and user")
	ErrUserNotFound        = apperr.NotFound("User not found")
)

type CheckoutInput struct {
	MaterialID         uint
	UserID             uint
	ExpectedReturnDate *time.Time
	Notes              string
	ActingUserID       uint
}

type CheckinInput struct {
	MaterialID   uint
	UserID       uint
	Notes        string
	ActingUserID uint
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func processedBy(id uint) *uint {
	if id == 0 {
		return nil
	}
	return &id
}

func reject(reason string, err error) error {
	metrics.WorkflowRejections.WithLabelValues(reason).Inc()
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrMaterialUnavailable):
		return "material_unavailable"
	case errors.Is(err, ErrNoOpenCheckout):
		return "no_open_checkout"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	default:
		return "storage_error"
	}
}

// borrowerRow reads the borrowing user under a shared row lock. A user
// delete locks the same row for update, so it either waits for this checkout
// to commit or leaves it reading no row.
func borrowerRow(tx *gorm.DB, userID uint) *gorm.DB {
	return tx.Model(&models.User{}).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Select("id").
		Where("id = ?", userID)
}

// Checkout lends an available material to a user and returns the id of the
// new "out" movement.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (uint, error) {
	if in.MaterialID == 0 || in.UserID == 0 {
		return 0, reject("validation", apperr.Validation("Material ID and user ID are required"))
	}

	now := s.now()
	mv := models.Movement{
		MaterialID:         in.MaterialID,
		UserID:             in.UserID,
		Type:               models.MovementOut,
		MovementDate:       now,
		ExpectedReturnDate: in.ExpectedReturnDate,
		Notes:              in.Notes,
		ProcessedBy:        processedBy(in.ActingUserID),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var borrower models.User
		if err := borrowerRow(tx, in.UserID).Take(&borrower).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrUserNotFound
			}
			return err
		}

		// The status predicate is the availability check: of two concurrent
		// checkouts only one can match it.
		res := tx.Model(&models.Material{}).
			Where("id = ? AND status = ?", in.MaterialID, models.StatusAvailable).
			Update("status", models.StatusBorrowed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrMaterialUnavailable
		}

		if err := ledger.Append(tx, &mv); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrMaterialUnavailable
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, s.fail(err, "Could not record checkout")
	}

	metrics.Movements.WithLabelValues(string(models.MovementOut)).Inc()
	return mv.ID, nil
}

// Checkin closes the user's most recent open checkout of the material and
// returns the id of the new "in" movement.
func (s *Service) Checkin(ctx context.Context, in CheckinInput) (uint, error) {
	if in.MaterialID == 0 || in.UserID == 0 {
		return 0, reject("validation", apperr.Validation("Material ID and user ID are required"))
	}

	now := s.now()
	mv := models.Movement{
		MaterialID:   in.MaterialID,
		UserID:       in.UserID,
		Type:         models.MovementIn,
		MovementDate: now,
		Notes:        in.Notes,
		ProcessedBy:  processedBy(in.ActingUserID),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := ledger.LatestOpenOut(tx, in.MaterialID, in.UserID)
		if err != nil {
			return err
		}
		if open == nil {
			return ErrNoOpenCheckout
		}

		closed, err := ledger.CloseOpen(tx, open.ID, now)
		if err != nil {
			return err
		}
		if !closed {
			return ErrNoOpenCheckout
		}

		if err := ledger.Append(tx, &mv); err != nil {
			return err
		}

		return tx.Model(&models.Material{}).
			Where("id = ?", in.MaterialID).
			Update("status", models.StatusAvailable).Error
	})
	if err != nil {
		return 0, s.fail(err, "Could not record checkin")
	}

	metrics.Movements.WithLabelValues(string(models.MovementIn)).Inc()
	return mv.ID, nil
}

func (s *Service) fail(err error, msg string) error {
	reason := rejectionReason(err)
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		err = apperr.Internal(err, msg)
	}
	return reject(reason, err)
}
