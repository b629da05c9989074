package registry_test

import (
	"bytes"
	"context"
	"testing"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/models"
	"gestionmatos-backend/internal/registry"
	"gestionmatos-backend/internal/testutil"

	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return &buf
}

func TestImportWithHeader(t *testing.T) {
	db := testutil.OpenDB(t)
	mgr := testutil.CreateUser(t, db, "mgr", models.RoleManager)

	buf := workbook(t, [][]any{
		{"Nom", "Catégorie", "Serial", "Emplacement", "Prix"},
		{"Projector", "Audiovisuel", "PJ-1", "Room A", "350,5"},
		{"", "", "", "", ""},
		{"", "Outils", "", "", ""},
		{"Tripod", "Audiovisuel", "", "Room B", "abc"},
		{"Camera", "Audiovisuel", "PJ-1", "", ""},
		{"Ladder", "Outils", "", "Shed", ""},
	})

	res, err := registry.Import(context.Background(), db, buf, mgr.ID)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(res.Created) != 2 {
		t.Fatalf("expected 2 created, got %+v", res.Created)
	}
	if res.Created[0].Name != "Projector" || res.Created[0].PurchasePrice == nil || *res.Created[0].PurchasePrice != 350.5 {
		t.Fatalf("unexpected first material %+v", res.Created[0])
	}
	if res.Created[0].Status != models.StatusAvailable || res.Created[0].CreatedBy == nil {
		t.Fatalf("imported material must be available with a creator: %+v", res.Created[0])
	}
	if res.Created[1].Name != "Ladder" || res.Created[1].Location != "Shed" {
		t.Fatalf("unexpected second material %+v", res.Created[1])
	}

	wantRows := []int{4, 5, 6}
	if len(res.Skipped) != len(wantRows) {
		t.Fatalf("expected %d skipped rows, got %+v", len(wantRows), res.Skipped)
	}
	for i, row := range wantRows {
		if res.Skipped[i].Row != row || res.Skipped[i].Error == "" {
			t.Fatalf("skipped[%d]: expected row %d, got %+v", i, row, res.Skipped[i])
		}
	}
	if res.Skipped[2].Error != "Serial number already in use" {
		t.Fatalf("expected duplicate serial message, got %q", res.Skipped[2].Error)
	}
}

func TestImportWithoutHeaderUsesDefaultColumns(t *testing.T) {
	db := testutil.OpenDB(t)

	buf := workbook(t, [][]any{
		{"Drill", "Outils", "DR-9", "Workshop", "Cordless", "2025-01-02", "89"},
	})
	res, err := registry.Import(context.Background(), db, buf, 0)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(res.Created) != 1 || len(res.Skipped) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	m := res.Created[0]
	if m.Category != "Outils" || m.SerialNumber == nil || *m.SerialNumber != "DR-9" || m.Description != "Cordless" {
		t.Fatalf("unexpected material %+v", m)
	}
	if m.PurchaseDate == nil || m.PurchaseDate.Format("2006-01-02") != "2025-01-02" {
		t.Fatalf("unexpected purchase date %v", m.PurchaseDate)
	}
}

func TestImportRejectsUnreadableInput(t *testing.T) {
	db := testutil.OpenDB(t)
	_, err := registry.Import(context.Background(), db, bytes.NewBufferString("not a workbook"), 0)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
