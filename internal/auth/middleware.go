package auth

import (
	"strings"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/config"
	"gestionmatos-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	CtxClaimsKey   = "claims"
	CtxUserIDKey   = "user_id"
	CtxUserRoleKey = "user_role"
)

// Managers may create and edit materials and see every user.
var Managers = []models.UserRole{models.RoleManager, models.RoleAdmin}

func JWTMiddleware(cfg *config.Config, revoker Revoker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return apperr.Authentication("Authorization header missing")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return apperr.Authentication("Authorization format must be 'Bearer <token>'")
		}

		claims, err := ParseToken(cfg.JWTSecret, strings.TrimSpace(parts[1]))
		if err != nil {
			return apperr.Authentication("Invalid or expired token")
		}

		if claims.IssuedAt != nil {
			revoked, err := IsRevoked(c.UserContext(), revoker, claims.UserID, claims.IssuedAt.Time)
			if err != nil {
				return apperr.Internal(err, "Could not verify token")
			}
			if revoked {
				return apperr.Authentication("Token has been revoked")
			}
		}

		c.Locals(CtxClaimsKey, claims)
		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserRoleKey, claims.Role)

		return c.Next()
	}
}

// CurrentClaims returns the claims stored by JWTMiddleware.
func CurrentClaims(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals(CtxClaimsKey).(*Claims)
	if !ok || claims == nil {
		return nil, apperr.Authentication("Not authenticated")
	}
	return claims, nil
}

// Allowed is the single capability check: role must be one of required.
func Allowed(role models.UserRole, required ...models.UserRole) bool {
	for _, r := range required {
		if r == role {
			return true
		}
	}
	return false
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := CurrentClaims(c)
		if err != nil {
			return err
		}
		if !Allowed(claims.Role, allowedRoles...) {
			return apperr.Authorization("Insufficient permissions")
		}
		return c.Next()
	}
}

// RequireSelfOrRole lets a user act on their own record, or anyone holding
// one of roles act on any record.
func RequireSelfOrRole(claims *Claims, targetID uint, roles ...models.UserRole) error {
	if claims.UserID == targetID || Allowed(claims.Role, roles...) {
		return nil
	}
	return apperr.Authorization("Insufficient permissions")
}
