package ledger

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func parseID(raw string) (uint, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, apperr.Validation("Invalid id")
	}
	return uint(n), nil
}

func optionalID(c *fiber.Ctx, key string) (uint, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	id, err := parseID(raw)
	if err != nil {
		return 0, apperr.Validation(fmt.Sprintf("Invalid %s", key))
	}
	return id, nil
}

func filterFromQuery(c *fiber.Ctx) (Filter, error) {
	var f Filter
	var err error
	if f.MaterialID, err = optionalID(c, "materialId"); err != nil {
		return f, err
	}
	if f.UserID, err = optionalID(c, "userId"); err != nil {
		return f, err
	}
	if t := models.MovementType(c.Query("type")); t != "" {
		if t != models.MovementOut && t != models.MovementIn {
			return f, apperr.Validation("type must be 'out' or 'in'")
		}
		f.Type = t
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, apperr.Validation("Invalid limit")
		}
		f.Limit = n
	}
	return f, nil
}

// GET /api/movements?materialId=&userId=&type=&limit=
func ListMovementsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := filterFromQuery(c)
		if err != nil {
			return err
		}
		rows, err := List(c.UserContext(), db, f)
		if err != nil {
			return apperr.Internal(err, "Could not list movements")
		}
		return c.JSON(rows)
	}
}

// GET /api/movements/material/:id/history
func MaterialHistoryHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c.Params("id"))
		if err != nil {
			return err
		}
		rows, err := MaterialHistory(c.UserContext(), db, id)
		if err != nil {
			return apperr.Internal(err, "Could not load material history")
		}
		return c.JSON(rows)
	}
}

// GET /api/movements/user/:id/history
func UserHistoryHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c.Params("id"))
		if err != nil {
			return err
		}
		rows, err := UserHistory(c.UserContext(), db, id)
		if err != nil {
			return apperr.Internal(err, "Could not load user history")
		}
		return c.JSON(rows)
	}
}

func parseDay(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, raw); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// GET /api/movements/stats/overview?startDate=2026-01-01&endDate=2026-01-31
func DailyCountsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, err := parseDay(c.Query("startDate"))
		if err != nil {
			return apperr.Validation("Invalid startDate")
		}
		to, err := parseDay(c.Query("endDate"))
		if err != nil {
			return apperr.Validation("Invalid endDate")
		}
		rows, err := DailyCounts(c.UserContext(), db, from, to)
		if err != nil {
			return apperr.Internal(err, "Could not compute movement stats")
		}
		return c.JSON(rows)
	}
}

// GET /api/movements/export (manager/admin), same filters as the list
func ExportHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := filterFromQuery(c)
		if err != nil {
			return err
		}
		if f.Limit == 0 {
			f.Limit = MaxLimit
		}
		rows, err := List(c.UserContext(), db, f)
		if err != nil {
			return apperr.Internal(err, "Could not list movements")
		}

		buf := &bytes.Buffer{}
		if err := WriteWorkbook(buf, rows); err != nil {
			return apperr.Internal(err, "Could not build workbook")
		}

		fileName := fmt.Sprintf("movements_%s.xlsx", time.Now().Format("20060102_150405"))
		c.Set(fiber.HeaderContentType, xlsxContentType)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, fileName))
		return c.Send(buf.Bytes())
	}
}
