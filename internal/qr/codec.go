// Package qr builds the JSON payloads printed on material and user labels and
// renders them as PNG data URLs.
package qr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/models"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	TypeMaterial = "material"
	TypeUser     = "user"

	ImageSize = 300
)

type materialPayload struct {
	Type   string `json:"type"`
	ID     uint   `json:"id"`
	QRCode string `json:"qrCode"`
	Name   string `json:"name"`
}

type userPayload struct {
	Type     string `json:"type"`
	ID       uint   `json:"id"`
	QRCode   string `json:"qrCode"`
	Username string `json:"username"`
}

// Scanned is what a decoded label carries. Lookups go by QRCode; ID and the
// display name are informational.
type Scanned struct {
	Type     string `json:"type"`
	ID       uint   `json:"id"`
	QRCode   string `json:"qrCode"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

func MaterialData(m *models.Material) (string, error) {
	b, err := json.Marshal(materialPayload{Type: TypeMaterial, ID: m.ID, QRCode: m.QRCode, Name: m.Name})
	return string(b), err
}

func UserData(u *models.User) (string, error) {
	b, err := json.Marshal(userPayload{Type: TypeUser, ID: u.ID, QRCode: u.QRCode, Username: u.Username})
	return string(b), err
}

// Decode parses scanned label text.
func Decode(raw string) (*Scanned, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.Validation("QR data is required")
	}
	var s Scanned
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, apperr.Validation("Invalid QR code format")
	}
	if s.Type != TypeMaterial && s.Type != TypeUser {
		return nil, apperr.Validation("Unrecognized QR code type")
	}
	if s.QRCode == "" {
		return nil, apperr.Validation("QR code token is missing")
	}
	return &s, nil
}

// DataURL renders content as a PNG with medium error correction.
func DataURL(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, ImageSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
