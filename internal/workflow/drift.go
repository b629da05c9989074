package workflow

import (
	"context"
	"fmt"

	"gestionmatos-backend/internal/models"
)

// DriftEntry is a material whose status disagrees with its ledger.
type DriftEntry struct {
	MaterialID    uint                  `json:"material_id"`
	Name          string                `json:"name"`
	Status        models.MaterialStatus `json:"status"`
	OpenCheckouts int64                 `json:"open_checkouts"`
}

const openOutSubquery = `SELECT COUNT(*) FROM movements mv
	WHERE mv.material_id = materials.id
	AND mv.movement_type = 'out'
	AND mv.actual_return_date IS NULL`

// Drift lists materials marked borrowed with no open checkout, and
// materials with an open checkout that are not marked borrowed.
func (s *Service) Drift(ctx context.Context) ([]DriftEntry, error) {
	var out []DriftEntry
	err := s.db.WithContext(ctx).Model(&models.Material{}).
		Select("materials.id AS material_id, materials.name, materials.status, (" + openOutSubquery + ") AS open_checkouts").
		Where("(materials.status = ? AND ("+openOutSubquery+") = 0) OR (materials.status <> ? AND ("+openOutSubquery+") > 0)",
			models.StatusBorrowed, models.StatusBorrowed).
		Order("materials.id").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("drift check: %w", err)
	}
	return out, nil
}
