// Package ledger is the append-only movement log. Append and CloseOpen are
// only called from inside a workflow transaction; everything else is a read.
package ledger

import (
	"context"
	"fmt"
	"time"

	"gestionmatos-backend/internal/models"

	"gorm.io/gorm"
)

const (
	DefaultLimit   = 50
	MaxLimit       = 500
	MaxDailyCounts = 30
)

type Filter struct {
	MaterialID uint
	UserID     uint
	Type       models.MovementType
	Limit      int
}

// MovementResponse is a movement joined with the names a client displays.
type MovementResponse struct {
	ID                  uint                `json:"id"`
	MaterialID          uint                `json:"material_id"`
	UserID              uint                `json:"user_id"`
	MovementType        models.MovementType `json:"movement_type"`
	MovementDate        time.Time           `json:"movement_date"`
	ExpectedReturnDate  *time.Time          `json:"expected_return_date"`
	ActualReturnDate    *time.Time          `json:"actual_return_date"`
	Notes               string              `json:"notes"`
	ProcessedBy         *uint               `json:"processed_by"`
	CreatedAt           time.Time           `json:"created_at"`
	MaterialName        string              `json:"material_name"`
	MaterialQR          string              `json:"material_qr"`
	UserUsername        string              `json:"user_username"`
	FirstName           string              `json:"first_name"`
	LastName            string              `json:"last_name"`
	ProcessedByUsername string              `json:"processed_by_username"`
}

type DailyCount struct {
	Date         string              `json:"date"`
	MovementType models.MovementType `json:"movement_type"`
	Count        int64               `json:"count"`
}

func toResponse(m *models.Movement) MovementResponse {
	r := MovementResponse{
		ID:                 m.ID,
		MaterialID:         m.MaterialID,
		UserID:             m.UserID,
		MovementType:       m.Type,
		MovementDate:       m.MovementDate,
		ExpectedReturnDate: m.ExpectedReturnDate,
		ActualReturnDate:   m.ActualReturnDate,
		Notes:              m.Notes,
		ProcessedBy:        m.ProcessedBy,
		CreatedAt:          m.CreatedAt,
	}
	if m.Material != nil {
		r.MaterialName = m.Material.Name
		r.MaterialQR = m.Material.QRCode
	}
	// the borrower may have been deleted since; the movement stays
	if m.User != nil {
		r.UserUsername = m.User.Username
		r.FirstName = m.User.FirstName
		r.LastName = m.User.LastName
	}
	if m.Processor != nil {
		r.ProcessedByUsername = m.Processor.Username
	}
	return r
}

// Append inserts m. tx must be the caller's transaction.
func Append(tx *gorm.DB, m *models.Movement) error {
	if err := tx.Create(m).Error; err != nil {
		return fmt.Errorf("append movement: %w", err)
	}
	return nil
}

// CloseOpen stamps the return date on an open "out" movement. It reports
// false when the movement was already closed, e.g. by a concurrent checkin.
func CloseOpen(tx *gorm.DB, movementID uint, at time.Time) (bool, error) {
	res := tx.Model(&models.Movement{}).
		Where("id = ? AND movement_type = ? AND actual_return_date IS NULL", movementID, models.MovementOut).
		Update("actual_return_date", at)
	if res.Error != nil {
		return false, fmt.Errorf("close movement %d: %w", movementID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// LatestOpenOut returns the most recent unreturned checkout of a material by
// a user, or nil when there is none.
func LatestOpenOut(tx *gorm.DB, materialID, userID uint) (*models.Movement, error) {
	var rows []models.Movement
	err := tx.
		Where("material_id = ? AND user_id = ? AND movement_type = ? AND actual_return_date IS NULL",
			materialID, userID, models.MovementOut).
		Order("movement_date DESC").Order("id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find open checkout: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func withNames(db *gorm.DB) *gorm.DB {
	return db.Preload("Material").Preload("User").Preload("Processor").
		Order("movement_date DESC").Order("id DESC")
}

func collect(rows []models.Movement) []MovementResponse {
	out := make([]MovementResponse, 0, len(rows))
	for i := range rows {
		out = append(out, toResponse(&rows[i]))
	}
	return out
}

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	return min(n, MaxLimit)
}

func List(ctx context.Context, db *gorm.DB, f Filter) ([]MovementResponse, error) {
	q := db.WithContext(ctx).Model(&models.Movement{})
	if f.MaterialID != 0 {
		q = q.Where("material_id = ?", f.MaterialID)
	}
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Type != "" {
		q = q.Where("movement_type = ?", f.Type)
	}

	var rows []models.Movement
	if err := withNames(q).Limit(clampLimit(f.Limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return collect(rows), nil
}

func MaterialHistory(ctx context.Context, db *gorm.DB, materialID uint) ([]MovementResponse, error) {
	var rows []models.Movement
	if err := withNames(db.WithContext(ctx).Where("material_id = ?", materialID)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("material history: %w", err)
	}
	return collect(rows), nil
}

func UserHistory(ctx context.Context, db *gorm.DB, userID uint) ([]MovementResponse, error) {
	var rows []models.Movement
	if err := withNames(db.WithContext(ctx).Where("user_id = ?", userID)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("user history: %w", err)
	}
	return collect(rows), nil
}

// dayExpr buckets movement_date by UTC calendar day whatever the session
// time zone.
func dayExpr(dialect string) string {
	if dialect == "postgres" {
		return "to_char(movement_date AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
	}
	return "strftime('%Y-%m-%d', movement_date)"
}

// DailyCounts groups movements by calendar day (UTC) and type, newest day
// first. The range is applied only when both bounds are set; to is inclusive
// of its whole day.
func DailyCounts(ctx context.Context, db *gorm.DB, from, to *time.Time) ([]DailyCount, error) {
	day := dayExpr(db.Dialector.Name())
	q := db.WithContext(ctx).Model(&models.Movement{}).
		Select(day + " AS date, movement_type, COUNT(*) AS count")
	if from != nil && to != nil {
		start := from.UTC().Truncate(24 * time.Hour)
		end := to.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
		q = q.Where("movement_date >= ? AND movement_date < ?", start, end)
	}

	var out []DailyCount
	err := q.Group(day).Group("movement_type").
		Order("date DESC").Order("movement_type").
		Limit(MaxDailyCounts).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("daily counts: %w", err)
	}
	if out == nil {
		out = []DailyCount{}
	}
	return out, nil
}
