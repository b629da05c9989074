package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/audit"
	"gestionmatos-backend/internal/auth"
	"gestionmatos-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const maxImportRows = 1000

// importColumns is the expected column order when the sheet has no header.
var importColumns = []string{"name", "category", "serial_number", "location", "description", "purchase_date", "purchase_price"}

var headerAliases = map[string]string{
	"name":           "name",
	"nom":            "name",
	"category":       "category",
	"categorie":      "category",
	"catégorie":      "category",
	"serial":         "serial_number",
	"serial_number":  "serial_number",
	"serialnumber":   "serial_number",
	"location":       "location",
	"emplacement":    "location",
	"description":    "description",
	"purchase_date":  "purchase_date",
	"purchasedate":   "purchase_date",
	"purchase_price": "purchase_price",
	"purchaseprice":  "purchase_price",
	"prix":           "purchase_price",
}

type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type ImportResult struct {
	Created []models.Material `json:"created"`
	Skipped []ImportRowError  `json:"skipped"`
}

// columnIndex maps a recognised header row to field positions. It returns
// nil when the first row is data.
func columnIndex(header []string) map[string]int {
	idx := map[string]int{}
	for i, cell := range header {
		key := strings.ToLower(strings.TrimSpace(cell))
		key = strings.ReplaceAll(key, " ", "_")
		if field, ok := headerAliases[key]; ok {
			idx[field] = i
		}
	}
	if _, ok := idx["name"]; !ok {
		return nil
	}
	return idx
}

func cell(row []string, idx map[string]int, field string) *string {
	i, ok := idx[field]
	if !ok || i >= len(row) {
		return nil
	}
	v := strings.TrimSpace(row[i])
	if v == "" {
		return nil
	}
	return &v
}

// Import creates one material per non-empty row of the first sheet. Rows
// that fail validation are reported and skipped; the others are kept.
func Import(ctx context.Context, db *gorm.DB, r io.Reader, actorID uint) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Validation("Could not read spreadsheet")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Validation("Spreadsheet has no sheet")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Validation("Could not read sheet")
	}
	if len(rows) == 0 {
		return nil, apperr.Validation("Spreadsheet is empty")
	}

	start := 0
	idx := columnIndex(rows[0])
	if idx != nil {
		start = 1
	} else {
		idx = make(map[string]int, len(importColumns))
		for i, name := range importColumns {
			idx[name] = i
		}
	}
	if len(rows)-start > maxImportRows {
		return nil, apperr.Validation(fmt.Sprintf("At most %d rows can be imported at once", maxImportRows))
	}

	res := &ImportResult{Created: []models.Material{}, Skipped: []ImportRowError{}}
	for i := start; i < len(rows); i++ {
		row := rows[i]
		line := i + 1
		if len(strings.Join(row, "")) == 0 {
			continue
		}

		in := MaterialInput{
			Name:         cell(row, idx, "name"),
			Category:     cell(row, idx, "category"),
			SerialNumber: cell(row, idx, "serial_number"),
			Location:     cell(row, idx, "location"),
			Description:  cell(row, idx, "description"),
			PurchaseDate: cell(row, idx, "purchase_date"),
		}
		if raw := cell(row, idx, "purchase_price"); raw != nil {
			price, perr := strconv.ParseFloat(strings.ReplaceAll(*raw, ",", "."), 64)
			if perr != nil {
				res.Skipped = append(res.Skipped, ImportRowError{Row: line, Error: "Invalid purchase price"})
				continue
			}
			in.PurchasePrice = &price
		}

		m, cerr := Create(ctx, db, in, actorID)
		if cerr != nil {
			if apperr.KindOf(cerr) == apperr.KindInternal {
				return nil, cerr
			}
			msg := cerr.Error()
			var ae *apperr.Error
			if errors.As(cerr, &ae) {
				msg = ae.Message
			}
			res.Skipped = append(res.Skipped, ImportRowError{Row: line, Error: msg})
			continue
		}
		res.Created = append(res.Created, *m)
	}
	return res, nil
}

// POST /api/materials/import (manager/admin), multipart field "file"
func ImportMaterialsHandler(db *gorm.DB, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.CurrentClaims(c)
		if err != nil {
			return err
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return apperr.Validation("File upload is required")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return apperr.Validation("Only .xlsx files can be imported")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return apperr.Internal(err, "Could not open upload")
		}
		defer file.Close()

		res, err := Import(c.UserContext(), db, file, claims.UserID)
		if err != nil {
			return err
		}

		for i := range res.Created {
			m := &res.Created[i]
			audit.Record(c.UserContext(), db, log, audit.LogOptions{
				UserID:      claims.UserID,
				UserName:    claims.Username,
				EntityType:  audit.EntityMaterial,
				EntityID:    m.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Material %q imported from %s", m.Name, fileHeader.Filename),
				After:       m,
			})
		}

		log.Info("materials imported",
			"file", fileHeader.Filename,
			"created", len(res.Created),
			"skipped", len(res.Skipped),
		)
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}
