package models

import "time"

type MaterialStatus string

const (
	StatusAvailable   MaterialStatus = "available"
	StatusBorrowed    MaterialStatus = "borrowed"
	StatusMaintenance MaterialStatus = "maintenance"
	StatusLost        MaterialStatus = "lost"
)

func (s MaterialStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusBorrowed, StatusMaintenance, StatusLost:
		return true
	}
	return false
}

type Material struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Name          string         `gorm:"size:200;not null" json:"name"`
	Description   string         `gorm:"type:text" json:"description"`
	Category      string         `gorm:"size:100;index" json:"category"`
	SerialNumber  *string        `gorm:"size:120;uniqueIndex" json:"serial_number"` // NULL when unknown, so several materials may lack one
	QRCode        string         `gorm:"column:qr_code;size:64;uniqueIndex;not null" json:"qr_code"`
	Status        MaterialStatus `gorm:"size:20;not null;default:'available';index" json:"status"`
	Location      string         `gorm:"size:200" json:"location"`
	PurchaseDate  *time.Time     `json:"purchase_date"`
	PurchasePrice *float64       `json:"purchase_price"`
	CreatedBy     *uint          `json:"created_by"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
