package models

import "time"

type MovementType string

const (
	MovementOut MovementType = "out"
	MovementIn  MovementType = "in"
)

// Movement is one ledger entry. Only ActualReturnDate changes after insert,
// and only on "out" rows.
type Movement struct {
	ID                 uint         `gorm:"primaryKey" json:"id"`
	MaterialID         uint         `gorm:"index;not null" json:"material_id"`
	Material           *Material    `json:"-"`
	UserID             uint         `gorm:"index;not null" json:"user_id"`
	User               *User        `json:"-"`
	Type               MovementType `gorm:"column:movement_type;size:3;not null" json:"movement_type"`
	MovementDate       time.Time    `gorm:"index;not null" json:"movement_date"`
	ExpectedReturnDate *time.Time   `json:"expected_return_date"`
	ActualReturnDate   *time.Time   `json:"actual_return_date"`
	Notes              string       `gorm:"type:text" json:"notes"`
	ProcessedBy        *uint        `json:"processed_by"`
	Processor          *User        `gorm:"foreignKey:ProcessedBy" json:"-"`
	CreatedAt          time.Time    `json:"created_at"`
}
