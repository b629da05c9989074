// Package registry owns material records. Status moves between available and
// borrowed only through the workflow package; here it may only be set among
// the out-of-band states.
package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/database"
	"gestionmatos-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status   models.MaterialStatus
	Category string
	Search   string
}

// MaterialInput is both the create body and the partial update body. A nil
// field is left untouched on update.
type MaterialInput struct {
	Name          *string                `json:"name"`
	Description   *string                `json:"description"`
	Category      *string                `json:"category"`
	SerialNumber  *string                `json:"serialNumber"`
	Status        *models.MaterialStatus `json:"status"`
	Location      *string                `json:"location"`
	PurchaseDate  *string                `json:"purchaseDate"`
	PurchasePrice *float64               `json:"purchasePrice"`
}

type MaterialResponse struct {
	models.Material
	CategoryName      string `json:"category_name"`
	CategoryColor     string `json:"category_color"`
	CreatedByUsername string `json:"created_by_username"`
}

type StatusCounts struct {
	Total       int64 `json:"total"`
	Available   int64 `json:"available"`
	Borrowed    int64 `json:"borrowed"`
	Maintenance int64 `json:"maintenance"`
	Lost        int64 `json:"lost"`
}

type CategoryStats struct {
	Category string `json:"category"`
	StatusCounts
}

type Overview struct {
	Totals     StatusCounts    `json:"totals"`
	ByCategory []CategoryStats `json:"by_category"`
}

var (
	ErrMaterialNotFound = apperr.NotFound("Material not found")
	ErrDuplicateSerial  = apperr.Conflict("Serial number already in use")
)

func NewMaterialQRCode() string { return "MAT_" + uuid.NewString() }

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// nullable maps a blank string to NULL so unset serial numbers never collide.
func nullable(s *string) *string {
	v := trimmed(s)
	if v == "" {
		return nil
	}
	return &v
}

func parseDate(raw *string) (*time.Time, error) {
	v := trimmed(raw)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apperr.Validation("purchaseDate must be YYYY-MM-DD")
	}
	t = t.UTC()
	return &t, nil
}

func storageErr(err error, msg string) error {
	if database.IsUniqueViolation(err) {
		return ErrDuplicateSerial
	}
	return apperr.Internal(err, msg)
}

func decorate(ctx context.Context, db *gorm.DB, mats []models.Material) ([]MaterialResponse, error) {
	out := make([]MaterialResponse, 0, len(mats))
	if len(mats) == 0 {
		return out, nil
	}

	var cats []models.Category
	if err := db.WithContext(ctx).Find(&cats).Error; err != nil {
		return nil, err
	}
	byName := make(map[string]models.Category, len(cats))
	for _, c := range cats {
		byName[c.Name] = c
	}

	creatorIDs := make([]uint, 0)
	for _, m := range mats {
		if m.CreatedBy != nil {
			creatorIDs = append(creatorIDs, *m.CreatedBy)
		}
	}
	usernames := map[uint]string{}
	if len(creatorIDs) > 0 {
		var users []models.User
		if err := db.WithContext(ctx).Select("id", "username").Where("id IN ?", creatorIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			usernames[u.ID] = u.Username
		}
	}

	for _, m := range mats {
		r := MaterialResponse{Material: m}
		if c, ok := byName[m.Category]; ok {
			r.CategoryName = c.Name
			r.CategoryColor = c.Color
		}
		if m.CreatedBy != nil {
			r.CreatedByUsername = usernames[*m.CreatedBy]
		}
		out = append(out, r)
	}
	return out, nil
}

func List(ctx context.Context, db *gorm.DB, f ListFilter) ([]MaterialResponse, error) {
	q := db.WithContext(ctx).Model(&models.Material{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(COALESCE(serial_number, '')) LIKE ?", like, like, like)
	}

	var mats []models.Material
	if err := q.Order("created_at DESC").Order("id DESC").Find(&mats).Error; err != nil {
		return nil, apperr.Internal(err, "Could not list materials")
	}
	out, err := decorate(ctx, db, mats)
	if err != nil {
		return nil, apperr.Internal(err, "Could not list materials")
	}
	return out, nil
}

func load(tx *gorm.DB, id uint) (*models.Material, error) {
	var m models.Material
	if err := tx.First(&m, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrMaterialNotFound
		}
		return nil, apperr.Internal(err, "Could not load material")
	}
	return &m, nil
}

func Get(ctx context.Context, db *gorm.DB, id uint) (*MaterialResponse, error) {
	m, err := load(db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	out, err := decorate(ctx, db, []models.Material{*m})
	if err != nil {
		return nil, apperr.Internal(err, "Could not load material")
	}
	return &out[0], nil
}

// Create registers a new available material with a fresh QR token. Any
// status in the input is ignored.
func Create(ctx context.Context, db *gorm.DB, in MaterialInput, actorID uint) (*models.Material, error) {
	name := trimmed(in.Name)
	if name == "" {
		return nil, apperr.Validation("Material name is required")
	}
	purchaseDate, err := parseDate(in.PurchaseDate)
	if err != nil {
		return nil, err
	}
	if in.PurchasePrice != nil && *in.PurchasePrice < 0 {
		return nil, apperr.Validation("purchasePrice cannot be negative")
	}

	m := models.Material{
		Name:          name,
		Description:   trimmed(in.Description),
		Category:      trimmed(in.Category),
		SerialNumber:  nullable(in.SerialNumber),
		QRCode:        NewMaterialQRCode(),
		Status:        models.StatusAvailable,
		Location:      trimmed(in.Location),
		PurchaseDate:  purchaseDate,
		PurchasePrice: in.PurchasePrice,
	}
	if actorID != 0 {
		m.CreatedBy = &actorID
	}

	if err := db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, storageErr(err, "Could not create material")
	}
	return &m, nil
}

func checkStatusChange(current models.MaterialStatus, next models.MaterialStatus) error {
	if !next.Valid() {
		return apperr.Validation(fmt.Sprintf("Invalid status %q", next))
	}
	if next == current {
		return nil
	}
	if next == models.StatusBorrowed {
		return apperr.Validation("Status 'borrowed' is only set by a checkout")
	}
	if current == models.StatusBorrowed {
		return apperr.InvalidState("Material is checked out; check it in before changing its status")
	}
	return nil
}

// Update applies the non-nil fields of in and returns the material before and
// after the change.
func Update(ctx context.Context, db *gorm.DB, id uint, in MaterialInput) (before, after *models.Material, err error) {
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lerr error
		before, lerr = load(tx, id)
		if lerr != nil {
			return lerr
		}

		changes := map[string]interface{}{}
		if in.Name != nil {
			name := trimmed(in.Name)
			if name == "" {
				return apperr.Validation("Material name cannot be empty")
			}
			changes["name"] = name
		}
		if in.Description != nil {
			changes["description"] = trimmed(in.Description)
		}
		if in.Category != nil {
			changes["category"] = trimmed(in.Category)
		}
		if in.SerialNumber != nil {
			changes["serial_number"] = nullable(in.SerialNumber)
		}
		if in.Location != nil {
			changes["location"] = trimmed(in.Location)
		}
		if in.PurchaseDate != nil {
			d, perr := parseDate(in.PurchaseDate)
			if perr != nil {
				return perr
			}
			changes["purchase_date"] = d
		}
		if in.PurchasePrice != nil {
			if *in.PurchasePrice < 0 {
				return apperr.Validation("purchasePrice cannot be negative")
			}
			changes["purchase_price"] = *in.PurchasePrice
		}

		q := tx.Model(&models.Material{}).Where("id = ?", id)
		if in.Status != nil && *in.Status != before.Status {
			if serr := checkStatusChange(before.Status, *in.Status); serr != nil {
				return serr
			}
			changes["status"] = *in.Status
			// a checkout may have landed since the read
			q = q.Where("status = ?", before.Status)
		}

		if len(changes) > 0 {
			res := q.Updates(changes)
			if res.Error != nil {
				return storageErr(res.Error, "Could not update material")
			}
			if res.RowsAffected == 0 {
				return apperr.InvalidState("Material status changed concurrently")
			}
		}

		after, lerr = load(tx, id)
		return lerr
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// Delete removes a material together with its movement history.
func Delete(ctx context.Context, db *gorm.DB, id uint) (*models.Material, error) {
	var deleted *models.Material
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := load(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Where("material_id = ?", id).Delete(&models.Movement{}).Error; err != nil {
			return apperr.Internal(err, "Could not delete material history")
		}
		if err := tx.Delete(&models.Material{}, id).Error; err != nil {
			return apperr.Internal(err, "Could not delete material")
		}
		deleted = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func Categories(ctx context.Context, db *gorm.DB) ([]models.Category, error) {
	var cats []models.Category
	if err := db.WithContext(ctx).Order("name ASC").Find(&cats).Error; err != nil {
		return nil, apperr.Internal(err, "Could not list categories")
	}
	return cats, nil
}

const statusSums = `COUNT(*) AS total,
	SUM(CASE WHEN status = 'available' THEN 1 ELSE 0 END) AS available,
	SUM(CASE WHEN status = 'borrowed' THEN 1 ELSE 0 END) AS borrowed,
	SUM(CASE WHEN status = 'maintenance' THEN 1 ELSE 0 END) AS maintenance,
	SUM(CASE WHEN status = 'lost' THEN 1 ELSE 0 END) AS lost`

func Stats(ctx context.Context, db *gorm.DB) (*Overview, error) {
	var rows []CategoryStats
	err := db.WithContext(ctx).Model(&models.Material{}).
		Select("category, " + statusSums).
		Group("category").
		Order("category ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err, "Could not compute material stats")
	}

	out := &Overview{ByCategory: make([]CategoryStats, 0, len(rows))}
	for _, r := range rows {
		out.Totals.Total += r.Total
		out.Totals.Available += r.Available
		out.Totals.Borrowed += r.Borrowed
		out.Totals.Maintenance += r.Maintenance
		out.Totals.Lost += r.Lost
		out.ByCategory = append(out.ByCategory, r)
	}
	return out, nil
}
