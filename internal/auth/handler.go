package auth

import (
	"strings"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/config"
	"gestionmatos-backend/internal/database"
	"gestionmatos-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 6

type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type LoginRequest struct {
	Username string `json:"username"` // username or email
	Password string `json:"password"`
}

type TokenResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    *models.User `json:"user"`
}

func NewUserQRCode() string { return "USER_" + uuid.NewString() }

// POST /api/auth/register
// The first account ever created becomes admin; every later one is a plain
// user. The role is never read from the request.
func RegisterHandler(db *gorm.DB, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("Invalid request body")
		}

		body.Username = strings.TrimSpace(body.Username)
		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		body.FirstName = strings.TrimSpace(body.FirstName)
		body.LastName = strings.TrimSpace(body.LastName)

		if body.Username == "" || body.Email == "" || body.Password == "" {
			return apperr.Validation("Username, email and password are required")
		}
		if len(body.Password) < minPasswordLength {
			return apperr.Validation("Password must be at least 6 characters")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return apperr.Internal(err, "Could not hash password")
		}

		user := models.User{
			Username:     body.Username,
			Email:        body.Email,
			PasswordHash: string(hash),
			FirstName:    body.FirstName,
			LastName:     body.LastName,
			Role:         models.RoleUser,
			QRCode:       NewUserQRCode(),
		}

		err = db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			var existing int64
			if err := tx.Model(&models.User{}).
				Where("username = ? OR email = ?", body.Username, body.Email).
				Count(&existing).Error; err != nil {
				return apperr.Internal(err, "Database error")
			}
			if existing > 0 {
				return apperr.Conflict("Username or email already in use")
			}

			var total int64
			if err := tx.Model(&models.User{}).Count(&total).Error; err != nil {
				return apperr.Internal(err, "Database error")
			}
			if total == 0 {
				user.Role = models.RoleAdmin
			}

			if err := tx.Create(&user).Error; err != nil {
				if database.IsUniqueViolation(err) {
					return apperr.Conflict("Username or email already in use")
				}
				return apperr.Internal(err, "Could not create user")
			}
			return nil
		})
		if err != nil {
			return err
		}

		token, err := GenerateToken(cfg.JWTSecret, cfg.JWTTTL, &user)
		if err != nil {
			return apperr.Internal(err, "Could not create token")
		}

		return c.Status(fiber.StatusCreated).JSON(TokenResponse{
			Message: "User created",
			Token:   token,
			User:    &user,
		})
	}
}

// POST /api/auth/login
func LoginHandler(db *gorm.DB, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("Invalid request body")
		}

		body.Username = strings.TrimSpace(body.Username)
		if body.Username == "" || body.Password == "" {
			return apperr.Validation("Username and password are required")
		}

		var user models.User
		err := db.WithContext(c.UserContext()).
			Where("username = ? OR email = ?", body.Username, strings.ToLower(body.Username)).
			First(&user).Error
		if err != nil {
			if database.IsNotFound(err) {
				return apperr.Authentication("Invalid credentials")
			}
			return apperr.Internal(err, "Database error")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return apperr.Authentication("Invalid credentials")
		}

		token, err := GenerateToken(cfg.JWTSecret, cfg.JWTTTL, &user)
		if err != nil {
			return apperr.Internal(err, "Could not create token")
		}

		return c.JSON(TokenResponse{
			Message: "Logged in",
			Token:   token,
			User:    &user,
		})
	}
}
