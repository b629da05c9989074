package ledger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/ledger"
	"gestionmatos-backend/internal/logger"
	"gestionmatos-backend/internal/models"
	"gestionmatos-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

func addMovement(t *testing.T, db *gorm.DB, m models.Movement) *models.Movement {
	t.Helper()
	if err := ledger.Append(db, &m); err != nil {
		t.Fatalf("append: %v", err)
	}
	return &m
}

func day(d int, hour int) time.Time {
	return time.Date(2026, 10, d, hour, 0, 0, 0, time.UTC)
}

type fixture struct {
	db        *gorm.DB
	alice     *models.User
	bob       *models.User
	clerk     *models.User
	drill     *models.Material
	saw       *models.Material
	movements []*models.Movement
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	f := &fixture{
		db:    db,
		alice: testutil.CreateUser(t, db, "alice", models.RoleUser),
		bob:   testutil.CreateUser(t, db, "bob", models.RoleUser),
		clerk: testutil.CreateUser(t, db, "clerk", models.RoleManager),
		drill: testutil.CreateMaterial(t, db, "Drill"),
		saw:   testutil.CreateMaterial(t, db, "Saw"),
	}
	clerkID := f.clerk.ID
	returned := day(11, 9)
	f.movements = []*models.Movement{
		addMovement(t, db, models.Movement{MaterialID: f.drill.ID, UserID: f.alice.ID, Type: models.MovementOut, MovementDate: day(10, 9), ActualReturnDate: &returned, ProcessedBy: &clerkID}),
		addMovement(t, db, models.Movement{MaterialID: f.drill.ID, UserID: f.alice.ID, Type: models.MovementIn, MovementDate: day(11, 9), ProcessedBy: &clerkID}),
		addMovement(t, db, models.Movement{MaterialID: f.saw.ID, UserID: f.bob.ID, Type: models.MovementOut, MovementDate: day(11, 15)}),
		addMovement(t, db, models.Movement{MaterialID: f.drill.ID, UserID: f.bob.ID, Type: models.MovementOut, MovementDate: day(12, 8)}),
	}
	return f
}

func TestListFiltersAndNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	all, err := ledger.List(ctx, f.db, ledger.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(all))
	}
	if all[0].ID != f.movements[3].ID {
		t.Fatalf("expected newest first, got id %d", all[0].ID)
	}
	last := all[3]
	if last.MaterialName != "Drill" || last.UserUsername != "alice" || last.ProcessedByUsername != "clerk" {
		t.Fatalf("missing joined names: %+v", last)
	}
	if last.MaterialQR != f.drill.QRCode {
		t.Fatalf("expected material qr %q, got %q", f.drill.QRCode, last.MaterialQR)
	}

	rows, err := ledger.List(ctx, f.db, ledger.Filter{MaterialID: f.drill.ID, Type: models.MovementOut})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 drill checkouts, got %d", len(rows))
	}

	rows, err = ledger.List(ctx, f.db, ledger.Filter{UserID: f.bob.ID, Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(rows) != 1 || rows[0].UserID != f.bob.ID {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestHistories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hist, err := ledger.MaterialHistory(ctx, f.db, f.drill.ID)
	if err != nil {
		t.Fatalf("material history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 drill movements, got %d", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].MovementDate.After(hist[i-1].MovementDate) {
			t.Fatalf("history not newest first")
		}
	}

	hist, err = ledger.UserHistory(ctx, f.db, f.bob.ID)
	if err != nil {
		t.Fatalf("user history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 movements for bob, got %d", len(hist))
	}

	hist, err = ledger.UserHistory(ctx, f.db, 9999)
	if err != nil || len(hist) != 0 {
		t.Fatalf("expected empty history, got %v %v", hist, err)
	}
}

func TestHistoryOutlivesUser(t *testing.T) {
	f := newFixture(t)
	if err := f.db.Delete(&models.User{}, f.bob.ID).Error; err != nil {
		t.Fatalf("delete user: %v", err)
	}
	hist, err := ledger.MaterialHistory(context.Background(), f.db, f.saw.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].UserID != f.bob.ID || hist[0].UserUsername != "" {
		t.Fatalf("unexpected history %+v", hist)
	}
}

func TestLatestOpenOutAndCloseOpen(t *testing.T) {
	f := newFixture(t)

	open, err := ledger.LatestOpenOut(f.db, f.drill.ID, f.bob.ID)
	if err != nil {
		t.Fatalf("latest open: %v", err)
	}
	if open == nil || open.ID != f.movements[3].ID {
		t.Fatalf("expected movement %d, got %+v", f.movements[3].ID, open)
	}

	none, err := ledger.LatestOpenOut(f.db, f.drill.ID, f.alice.ID)
	if err != nil || none != nil {
		t.Fatalf("alice has no open checkout, got %+v %v", none, err)
	}

	ok, err := ledger.CloseOpen(f.db, open.ID, day(13, 10))
	if err != nil || !ok {
		t.Fatalf("close: %v %v", ok, err)
	}
	ok, err = ledger.CloseOpen(f.db, open.ID, day(14, 10))
	if err != nil || ok {
		t.Fatalf("second close must be a no-op: %v %v", ok, err)
	}
	ok, err = ledger.CloseOpen(f.db, f.movements[1].ID, day(14, 10))
	if err != nil || ok {
		t.Fatalf("closing an 'in' movement must be a no-op: %v %v", ok, err)
	}
}

func TestDailyCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rows, err := ledger.DailyCounts(ctx, f.db, nil, nil)
	if err != nil {
		t.Fatalf("daily counts: %v", err)
	}
	want := []ledger.DailyCount{
		{Date: "2026-10-12", MovementType: models.MovementOut, Count: 1},
		{Date: "2026-10-11", MovementType: models.MovementIn, Count: 1},
		{Date: "2026-10-11", MovementType: models.MovementOut, Count: 1},
		{Date: "2026-10-10", MovementType: models.MovementOut, Count: 1},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %+v", len(want), rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Fatalf("row %d: expected %+v, got %+v", i, want[i], rows[i])
		}
	}

	from, to := day(11, 0), day(11, 0)
	rows, err = ledger.DailyCounts(ctx, f.db, &from, &to)
	if err != nil {
		t.Fatalf("bounded: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected the two rows of the 11th, got %+v", rows)
	}

	rows, err = ledger.DailyCounts(ctx, f.db, &from, nil)
	if err != nil {
		t.Fatalf("half bounded: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("a single bound is ignored, got %+v", rows)
	}
}

func TestWriteWorkbook(t *testing.T) {
	f := newFixture(t)
	rows, err := ledger.List(context.Background(), f.db, ledger.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	buf := &bytes.Buffer{}
	if err := ledger.WriteWorkbook(buf, rows); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = wb.Close() }()

	sheetRows, err := wb.GetRows(wb.GetSheetName(wb.GetActiveSheetIndex()))
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(sheetRows) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d", len(sheetRows))
	}
	if sheetRows[0][0] != "id" || sheetRows[1][4] != "Drill" {
		t.Fatalf("unexpected content %v", sheetRows[:2])
	}
}

func TestHandlers(t *testing.T) {
	f := newFixture(t)
	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler(logger.Discard())})
	app.Get("/movements", ledger.ListMovementsHandler(f.db))
	app.Get("/movements/export", ledger.ExportHandler(f.db))
	app.Get("/movements/stats/overview", ledger.DailyCountsHandler(f.db))
	app.Get("/movements/material/:id/history", ledger.MaterialHistoryHandler(f.db))

	get := func(path string) (int, []byte, string) {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, body, resp.Header.Get("Content-Type")
	}

	code, body, _ := get("/movements?type=out&limit=2")
	if code != 200 {
		t.Fatalf("list: expected 200, got %d", code)
	}
	var rows []ledger.MovementResponse
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) != 2 {
		t.Fatalf("list: expected 2 rows, got %s", body)
	}

	if code, _, _ := get("/movements?type=sideways"); code != 400 {
		t.Fatalf("bad type: expected 400, got %d", code)
	}
	if code, _, _ := get("/movements?materialId=x"); code != 400 {
		t.Fatalf("bad material id: expected 400, got %d", code)
	}
	if code, _, _ := get("/movements/material/abc/history"); code != 400 {
		t.Fatalf("bad history id: expected 400, got %d", code)
	}

	code, body, _ = get("/movements/stats/overview?startDate=2026-10-10&endDate=2026-10-10")
	var counts []ledger.DailyCount
	if code != 200 || json.Unmarshal(body, &counts) != nil || len(counts) != 1 {
		t.Fatalf("stats: got %d %s", code, body)
	}
	if code, _, _ := get("/movements/stats/overview?startDate=yesterday&endDate=2026-10-10"); code != 400 {
		t.Fatalf("bad startDate: expected 400, got %d", code)
	}

	code, body, ctype := get("/movements/export")
	if code != 200 || len(body) == 0 {
		t.Fatalf("export: got %d with %d bytes", code, len(body))
	}
	if ctype != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("export: unexpected content type %q", ctype)
	}
}
