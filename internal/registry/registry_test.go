package registry_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"gestionmatos-backend/internal/apperr"
	"gestionmatos-backend/internal/models"
	"gestionmatos-backend/internal/registry"
	"gestionmatos-backend/internal/testutil"
)

func str(s string) *string { return &s }

func status(s models.MaterialStatus) *models.MaterialStatus { return &s }

func TestCreate(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	mgr := testutil.CreateUser(t, db, "mgr", models.RoleManager)

	price := 499.9
	m, err := registry.Create(ctx, db, registry.MaterialInput{
		Name:          str("  Laptop  "),
		Category:      str("Informatique"),
		SerialNumber:  str("SN-1"),
		Status:        status(models.StatusLost),
		PurchaseDate:  str("2025-03-14"),
		PurchasePrice: &price,
	}, mgr.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.Name != "Laptop" || m.Status != models.StatusAvailable {
		t.Fatalf("unexpected material %+v", m)
	}
	if !strings.HasPrefix(m.QRCode, "MAT_") {
		t.Fatalf("unexpected qr code %q", m.QRCode)
	}
	if m.CreatedBy == nil || *m.CreatedBy != mgr.ID {
		t.Fatalf("expected created_by %d", mgr.ID)
	}
	if m.PurchaseDate == nil || !m.PurchaseDate.Equal(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected purchase date %v", m.PurchaseDate)
	}

	if _, err := registry.Create(ctx, db, registry.MaterialInput{Name: str("Other"), SerialNumber: str("SN-1")}, mgr.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("duplicate serial: expected conflict, got %v", err)
	}
	if _, err := registry.Create(ctx, db, registry.MaterialInput{Name: str("   ")}, mgr.ID); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("blank name: expected validation, got %v", err)
	}
	if _, err := registry.Create(ctx, db, registry.MaterialInput{Name: str("Dated"), PurchaseDate: str("14/03/2025")}, mgr.ID); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("bad date: expected validation, got %v", err)
	}

	// materials without serial numbers never collide
	for i := 0; i < 2; i++ {
		if _, err := registry.Create(ctx, db, registry.MaterialInput{Name: str("Chair"), SerialNumber: str("")}, mgr.ID); err != nil {
			t.Fatalf("create without serial %d: %v", i, err)
		}
	}
}

func TestListFilters(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	mgr := testutil.CreateUser(t, db, "mgr", models.RoleManager)

	mk := func(name, category, serial, desc string) *models.Material {
		m, err := registry.Create(ctx, db, registry.MaterialInput{
			Name: str(name), Category: str(category), SerialNumber: str(serial), Description: str(desc),
		}, mgr.ID)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		return m
	}
	cam := mk("Camera", "Audiovisuel", "CAM-01", "4K body")
	mk("Tripod", "Audiovisuel", "", "carbon legs for camera")
	laptop := mk("Laptop", "Informatique", "LT-77", "")
	testutil.SetStatus(t, db, laptop.ID, models.StatusMaintenance)

	all, err := registry.List(ctx, db, registry.ListFilter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 materials, got %d %v", len(all), err)
	}
	if all[0].CreatedByUsername != "mgr" {
		t.Fatalf("expected creator username, got %q", all[0].CreatedByUsername)
	}

	got, _ := registry.List(ctx, db, registry.ListFilter{Search: "CAMERA"})
	if len(got) != 2 {
		t.Fatalf("search should match name and description case-insensitively, got %d", len(got))
	}
	got, _ = registry.List(ctx, db, registry.ListFilter{Search: "lt-7"})
	if len(got) != 1 || got[0].ID != laptop.ID {
		t.Fatalf("search should match serial numbers, got %+v", got)
	}
	got, _ = registry.List(ctx, db, registry.ListFilter{Category: "Audiovisuel"})
	if len(got) != 2 || got[0].CategoryColor == "" {
		t.Fatalf("category filter: got %+v", got)
	}
	got, _ = registry.List(ctx, db, registry.ListFilter{Status: models.StatusMaintenance})
	if len(got) != 1 || got[0].ID != laptop.ID {
		t.Fatalf("status filter: got %+v", got)
	}

	one, err := registry.Get(ctx, db, cam.ID)
	if err != nil || one.Name != "Camera" || one.CategoryName != "Audiovisuel" {
		t.Fatalf("get: %+v %v", one, err)
	}
	if _, err := registry.Get(ctx, db, 9999); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("missing: expected not found, got %v", err)
	}
}

func TestUpdateStatusRules(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	m := testutil.CreateMaterial(t, db, "Generator")

	before, after, err := registry.Update(ctx, db, m.ID, registry.MaterialInput{
		Status:   status(models.StatusMaintenance),
		Location: str("Workshop"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if before.Status != models.StatusAvailable || after.Status != models.StatusMaintenance || after.Location != "Workshop" {
		t.Fatalf("unexpected before/after %+v %+v", before, after)
	}
	if after.Name != "Generator" {
		t.Fatalf("unset fields must be kept, got name %q", after.Name)
	}

	if _, _, err := registry.Update(ctx, db, m.ID, registry.MaterialInput{Status: status(models.StatusLost)}); err != nil {
		t.Fatalf("maintenance -> lost: %v", err)
	}
	if _, _, err := registry.Update(ctx, db, m.ID, registry.MaterialInput{Status: status(models.StatusBorrowed)}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("manual borrowed: expected validation, got %v", err)
	}
	if _, _, err := registry.Update(ctx, db, m.ID, registry.MaterialInput{Status: status("broken")}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("unknown status: expected validation, got %v", err)
	}

	testutil.SetStatus(t, db, m.ID, models.StatusBorrowed)
	if _, _, err := registry.Update(ctx, db, m.ID, registry.MaterialInput{Status: status(models.StatusAvailable)}); !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("borrowed -> available: expected invalid state, got %v", err)
	}
	if _, _, err := registry.Update(ctx, db, m.ID, registry.MaterialInput{Location: str("Van")}); err != nil {
		t.Fatalf("descriptive edit of a borrowed material: %v", err)
	}
	if got := testutil.ReloadMaterial(t, db, m.ID).Status; got != models.StatusBorrowed {
		t.Fatalf("status must stay borrowed, got %s", got)
	}

	if _, _, err := registry.Update(ctx, db, 9999, registry.MaterialInput{Name: str("x")}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("missing: expected not found, got %v", err)
	}
	if _, _, err := registry.Update(ctx, db, m.ID, registry.MaterialInput{Name: str("")}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("empty name: expected validation, got %v", err)
	}
}

func TestUpdateDuplicateSerial(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	a, err := registry.Create(ctx, db, registry.MaterialInput{Name: str("A"), SerialNumber: str("S-A")}, 0)
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := registry.Create(ctx, db, registry.MaterialInput{Name: str("B")}, 0)
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, _, err := registry.Update(ctx, db, b.ID, registry.MaterialInput{SerialNumber: str("S-A")}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, _, err := registry.Update(ctx, db, a.ID, registry.MaterialInput{SerialNumber: str("")}); err != nil {
		t.Fatalf("clearing a serial: %v", err)
	}
	if _, _, err := registry.Update(ctx, db, b.ID, registry.MaterialInput{SerialNumber: str("S-A")}); err != nil {
		t.Fatalf("serial should be free again: %v", err)
	}
}

func TestDeleteCascadesMovements(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, "user", models.RoleUser)
	m := testutil.CreateMaterial(t, db, "Kayak")
	other := testutil.CreateMaterial(t, db, "Paddle")

	for _, id := range []uint{m.ID, other.ID} {
		if err := db.Create(&models.Movement{MaterialID: id, UserID: u.ID, Type: models.MovementOut, MovementDate: time.Now().UTC()}).Error; err != nil {
			t.Fatalf("seed movement: %v", err)
		}
	}

	deleted, err := registry.Delete(ctx, db, m.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.Name != "Kayak" {
		t.Fatalf("unexpected deleted material %+v", deleted)
	}
	if n := testutil.CountMovements(t, db, m.ID); n != 0 {
		t.Fatalf("expected history to be removed, got %d", n)
	}
	if n := testutil.CountMovements(t, db, other.ID); n != 1 {
		t.Fatalf("other history must be kept, got %d", n)
	}
	if _, err := registry.Delete(ctx, db, m.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
}

func TestCategoriesAndStats(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()

	cats, err := registry.Categories(ctx, db)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(cats) != 7 || cats[0].Name != "Audiovisuel" {
		t.Fatalf("expected 7 sorted categories, got %+v", cats)
	}

	a := testutil.CreateMaterial(t, db, "Hammer")
	testutil.CreateMaterial(t, db, "Wrench")
	testutil.SetStatus(t, db, a.ID, models.StatusBorrowed)
	if _, err := registry.Create(ctx, db, registry.MaterialInput{Name: str("Screen"), Category: str("Informatique")}, 0); err != nil {
		t.Fatalf("create: %v", err)
	}

	s, err := registry.Stats(ctx, db)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := registry.StatusCounts{Total: 3, Available: 2, Borrowed: 1}
	if s.Totals != want {
		t.Fatalf("expected totals %+v, got %+v", want, s.Totals)
	}
	if len(s.ByCategory) != 2 {
		t.Fatalf("expected 2 categories, got %+v", s.ByCategory)
	}
	if s.ByCategory[1].Category != "Outils" || s.ByCategory[1].Borrowed != 1 || s.ByCategory[1].Total != 2 {
		t.Fatalf("unexpected Outils stats %+v", s.ByCategory[1])
	}
}
