package users

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/audit"
	"gestionmatos-backend/internal/auth"
	"gestionmatos-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type RoleRequest struct {
	Role models.UserRole `json:"role"`
}

func userID(c *fiber.Ctx) (uint, error) {
	n, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || n == 0 {
		return 0, apperr.Validation("Invalid user id")
	}
	return uint(n), nil
}

// GET /api/users/profile
func GetProfileHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.CurrentClaims(c)
		if err != nil {
			return err
		}
		u, err := Get(c.UserContext(), db, claims.UserID)
		if err != nil {
			return err
		}
		return c.JSON(u)
	}
}

// PUT /api/users/profile
func UpdateProfileHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.CurrentClaims(c)
		if err != nil {
			return err
		}
		var body ProfileInput
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("Invalid request body")
		}
		u, err := UpdateProfile(c.UserContext(), db, claims.UserID, body)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Profile updated", "user": u})
	}
}

// GET /api/users (manager/admin)
func ListUsersHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		out, err := List(c.UserContext(), db)
		if err != nil {
			return err
		}
		return c.JSON(out)
	}
}

// GET /api/users/:id (self or manager/admin)
func GetUserHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.CurrentClaims(c)
		if err != nil {
			return err
		}
		id, err := userID(c)
		if err != nil {
			return err
		}
		if err := auth.RequireSelfOrRole(claims, id, auth.Managers...); err != nil {
			return err
		}
		u, err := Get(c.UserContext(), db, id)
		if err != nil {
			return err
		}
		return c.JSON(u)
	}
}

// PUT /api/users/:id/role (admin)
func UpdateRoleHandler(db *gorm.DB, revoker auth.Revoker, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.CurrentClaims(c)
		if err != nil {
			return err
		}
		id, err := userID(c)
		if err != nil {
			return err
		}
		var body RoleRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("Invalid request body")
		}

		before, after, err := SetRole(c.UserContext(), db, id, body.Role)
		if err != nil {
			return err
		}

		// tokens still carry the old role
		if err := revoker.Revoke(c.UserContext(), id, time.Now()); err != nil {
			log.Error("token revocation failed", "user_id", id, "err", err)
		}

		audit.Record(c.UserContext(), db, log, audit.LogOptions{
			UserID:      claims.UserID,
			UserName:    claims.Username,
			EntityType:  audit.EntityUser,
			EntityID:    id,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Role of %q changed from %s to %s", after.Username, before.Role, after.Role),
			Before:      fiber.Map{"role": before.Role},
			After:       fiber.Map{"role": after.Role},
		})

		return c.JSON(fiber.Map{"message": "Role updated", "user": after})
	}
}

// DELETE /api/users/:id (admin)
func DeleteUserHandler(db *gorm.DB, revoker auth.Revoker, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.CurrentClaims(c)
		if err != nil {
			return err
		}
		id, err := userID(c)
		if err != nil {
			return err
		}
		if id == claims.UserID {
			return apperr.Validation("You cannot delete your own account")
		}

		u, err := Delete(c.UserContext(), db, id)
		if err != nil {
			return err
		}

		if err := revoker.Revoke(c.UserContext(), id, time.Now()); err != nil {
			log.Error("token revocation failed", "user_id", id, "err", err)
		}

		audit.Record(c.UserContext(), db, log, audit.LogOptions{
			UserID:      claims.UserID,
			UserName:    claims.Username,
			EntityType:  audit.EntityUser,
			EntityID:    id,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("User %q deleted", u.Username),
			Before:      u,
		})

		return c.JSON(fiber.Map{"message": "User deleted"})
	}
}
