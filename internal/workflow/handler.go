package workflow

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

// flexID accepts an id sent either as a JSON number or as a numeric string,
// which is what HTML form selects produce.
type flexID uint

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		b = []byte(s)
	}
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return err
	}
	*f = flexID(n)
	return nil
}

type CheckoutRequest struct {
	MaterialID         flexID `json:"materialId"`
	UserID             flexID `json:"userId"`
	ExpectedReturnDate string `json:"expectedReturnDate"`
	Notes              string `json:"notes"`
}

type CheckinRequest struct {
	MaterialID flexID `json:"materialId"`
	UserID     flexID `json:"userId"`
	Notes      string `json:"notes"`
}

type MovementCreatedResponse struct {
	Message    string `json:"message"`
	MovementID uint   `json:"movementId"`
}

// ParseReturnDate accepts "2006-01-02" or RFC 3339. Empty means no date.
func ParseReturnDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.Validation("expectedReturnDate must be YYYY-MM-DD or RFC 3339")
	}
	t = t.UTC()
	return &t, nil
}

// POST /api/movements/checkout
func CheckoutHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.CurrentClaims(c)
		if err != nil {
			return err
		}

		var body CheckoutRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("Invalid request body")
		}

		expected, err := ParseReturnDate(body.ExpectedReturnDate)
		if err != nil {
			return err
		}

		id, err := svc.Checkout(c.UserContext(), CheckoutInput{
			MaterialID:         uint(body.MaterialID),
			UserID:             uint(body.UserID),
			ExpectedReturnDate: expected,
			Notes:              strings.TrimSpace(body.Notes),
			ActingUserID:       claims.UserID,
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(MovementCreatedResponse{
			Message:    "Checkout recorded",
			MovementID: id,
		})
	}
}

// POST /api/movements/checkin
func CheckinHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.CurrentClaims(c)
		if err != nil {
			return err
		}

		var body CheckinRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("Invalid request body")
		}

		id, err := svc.Checkin(c.UserContext(), CheckinInput{
			MaterialID:   uint(body.MaterialID),
			UserID:       uint(body.UserID),
			Notes:        strings.TrimSpace(body.Notes),
			ActingUserID: claims.UserID,
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(MovementCreatedResponse{
			Message:    "Checkin recorded",
			MovementID: id,
		})
	}
}
