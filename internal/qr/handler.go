package qr

import (
	"strconv"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/auth"
	"gestionmatos-backend/internal/database"
	"gestionmatos-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ScanRequest struct {
	QRData string `json:"qrData"`
}

// ScannedUser is what any authenticated caller learns from a user badge.
type ScannedUser struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	QRCode    string `gorm:"column:qr_code" json:"qr_code"`
}

func pathID(c *fiber.Ctx) (uint, error) {
	n, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || n == 0 {
		return 0, apperr.Validation("Invalid id")
	}
	return uint(n), nil
}

func render(c *fiber.Ctx, data string, key string, entity any) error {
	img, err := DataURL(data)
	if err != nil {
		return apperr.Internal(err, "Could not generate QR code")
	}
	return c.JSON(fiber.Map{
		"qrCode": img,
		"data":   data,
		key:      entity,
	})
}

// GET /api/qr/material/:id
func MaterialQRHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := pathID(c)
		if err != nil {
			return err
		}

		var m models.Material
		if err := db.WithContext(c.UserContext()).First(&m, id).Error; err != nil {
			if database.IsNotFound(err) {
				return apperr.NotFound("Material not found")
			}
			return apperr.Internal(err, "Database error")
		}

		data, err := MaterialData(&m)
		if err != nil {
			return apperr.Internal(err, "Could not encode QR data")
		}
		return render(c, data, "material", m)
	}
}

// GET /api/qr/user/:id (self or manager/admin)
func UserQRHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.CurrentClaims(c)
		if err != nil {
			return err
		}
		id, err := pathID(c)
		if err != nil {
			return err
		}
		if err := auth.RequireSelfOrRole(claims, id, auth.Managers...); err != nil {
			return err
		}

		var u models.User
		if err := db.WithContext(c.UserContext()).First(&u, id).Error; err != nil {
			if database.IsNotFound(err) {
				return apperr.NotFound("User not found")
			}
			return apperr.Internal(err, "Database error")
		}

		data, err := UserData(&u)
		if err != nil {
			return apperr.Internal(err, "Could not encode QR data")
		}
		return render(c, data, "user", u)
	}
}

// POST /api/qr/scan
func ScanHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ScanRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("Invalid request body")
		}

		scanned, err := Decode(body.QRData)
		if err != nil {
			return err
		}

		dbq := db.WithContext(c.UserContext())
		switch scanned.Type {
		case TypeMaterial:
			var m models.Material
			if err := dbq.Where("qr_code = ?", scanned.QRCode).First(&m).Error; err != nil {
				if database.IsNotFound(err) {
					return apperr.NotFound("Material not found")
				}
				return apperr.Internal(err, "Database error")
			}
			return c.JSON(fiber.Map{"type": TypeMaterial, "data": m})
		default:
			var u ScannedUser
			if err := dbq.Model(&models.User{}).
				Select("id", "username", "first_name", "last_name", "qr_code").
				Where("qr_code = ?", scanned.QRCode).
				First(&u).Error; err != nil {
				if database.IsNotFound(err) {
					return apperr.NotFound("User not found")
				}
				return apperr.Internal(err, "Database error")
			}
			return c.JSON(fiber.Map{"type": TypeUser, "data": u})
		}
	}
}
