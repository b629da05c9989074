package registry

import (
	"fmt"
	"log/slog"
	"strconv"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/audit"
	"gestionmatos-backend/internal/auth"
	"gestionmatos-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func materialID(c *fiber.Ctx) (uint, error) {
	n, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || n == 0 {
		return 0, apperr.Validation("Invalid material id")
	}
	return uint(n), nil
}

// GET /api/materials?status=&category=&search=
func ListMaterialsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := ListFilter{
			Status:   models.MaterialStatus(c.Query("status")),
			Category: c.Query("category"),
			Search:   c.Query("search"),
		}
		if f.Status != "" && !f.Status.Valid() {
			return apperr.Validation("Invalid status filter")
		}
		mats, err := List(c.UserContext(), db, f)
		if err != nil {
			return err
		}
		return c.JSON(mats)
	}
}

// GET /api/materials/:id
func GetMaterialHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := materialID(c)
		if err != nil {
			return err
		}
		m, err := Get(c.UserContext(), db, id)
		if err != nil {
			return err
		}
		return c.JSON(m)
	}
}

// POST /api/materials (manager/admin)
func CreateMaterialHandler(db *gorm.DB, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.CurrentClaims(c)
		if err != nil {
			return err
		}

		var body MaterialInput
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("Invalid request body")
		}

		m, err := Create(c.UserContext(), db, body, claims.UserID)
		if err != nil {
			return err
		}

		audit.Record(c.UserContext(), db, log, audit.LogOptions{
			UserID:      claims.UserID,
			UserName:    claims.Username,
			EntityType:  audit.EntityMaterial,
			EntityID:    m.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Material %q created", m.Name),
			After:       m,
		})

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message":  "Material created",
			"material": m,
		})
	}
}

// PUT /api/materials/:id (manager/admin)
func UpdateMaterialHandler(db *gorm.DB, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.CurrentClaims(c)
		if err != nil {
			return err
		}
		id, err := materialID(c)
		if err != nil {
			return err
		}

		var body MaterialInput
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("Invalid request body")
		}

		before, after, err := Update(c.UserContext(), db, id, body)
		if err != nil {
			return err
		}

		audit.Record(c.UserContext(), db, log, audit.LogOptions{
			UserID:      claims.UserID,
			UserName:    claims.Username,
			EntityType:  audit.EntityMaterial,
			EntityID:    id,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Material %q updated", after.Name),
			Before:      before,
			After:       after,
		})

		return c.JSON(fiber.Map{
			"message":  "Material updated",
			"material": after,
		})
	}
}

// DELETE /api/materials/:id (admin)
func DeleteMaterialHandler(db *gorm.DB, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.CurrentClaims(c)
		if err != nil {
			return err
		}
		id, err := materialID(c)
		if err != nil {
			return err
		}

		m, err := Delete(c.UserContext(), db, id)
		if err != nil {
			return err
		}

		audit.Record(c.UserContext(), db, log, audit.LogOptions{
			UserID:      claims.UserID,
			UserName:    claims.Username,
			EntityType:  audit.EntityMaterial,
			EntityID:    id,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Material %q deleted with its history", m.Name),
			Before:      m,
		})

		return c.JSON(fiber.Map{"message": "Material deleted"})
	}
}

// GET /api/materials/categories/list
func ListCategoriesHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cats, err := Categories(c.UserContext(), db)
		if err != nil {
			return err
		}
		return c.JSON(cats)
	}
}

// GET /api/materials/stats/overview
func StatsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := Stats(c.UserContext(), db)
		if err != nil {
			return err
		}
		return c.JSON(s)
	}
}
