package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"gestionmatos-backend/internal/models"

	"gorm.io/gorm"
)

const (
	EntityMaterial = "material"
	EntityUser     = "user"
)

type LogOptions struct {
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

func snapshot(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// Write appends one entry. db may be a transaction handle.
func Write(ctx context.Context, db *gorm.DB, opts LogOptions) error {
	entry := models.AuditLog{
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  snapshot(opts.Before),
		AfterData:   snapshot(opts.After),
	}
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// Record writes an entry after a mutation has already succeeded. A failure
// is logged and swallowed so the client still sees the mutation's result.
func Record(ctx context.Context, db *gorm.DB, log *slog.Logger, opts LogOptions) {
	if err := Write(ctx, db, opts); err != nil {
		log.Warn("audit log not written",
			"entity_type", opts.EntityType,
			"entity_id", opts.EntityID,
			"action", opts.Action,
			"err", err,
		)
	}
}
