package ledger

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportDateLayout = "2006-01-02 15:04"

var exportHeader = []interface{}{
	"id",
	"date",
	"type",
	"material_id",
	"material",
	"material_qr",
	"user_id",
	"username",
	"first_name",
	"last_name",
	"expected_return",
	"actual_return",
	"processed_by",
	"notes",
}

// WriteWorkbook renders rows as a single-sheet xlsx workbook.
func WriteWorkbook(w io.Writer, rows []MovementResponse) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range rows {
		expected, actual := "", ""
		if r.ExpectedReturnDate != nil {
			expected = r.ExpectedReturnDate.Format(exportDateLayout)
		}
		if r.ActualReturnDate != nil {
			actual = r.ActualReturnDate.Format(exportDateLayout)
		}

		excelRow := []interface{}{
			r.ID,
			r.MovementDate.Format(exportDateLayout),
			string(r.MovementType),
			r.MaterialID,
			r.MaterialName,
			r.MaterialQR,
			r.UserID,
			r.UserUsername,
			r.FirstName,
			r.LastName,
			expected,
			actual,
			r.ProcessedByUsername,
			r.Notes,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &excelRow); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	return f.Write(w)
}
