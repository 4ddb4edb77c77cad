package localstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/Hocaabinn/sampah-keren-sub001/internal/model"
)

func openArchive(t *testing.T) *Archive {
	t.Helper()
	archive, err := Open(filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { archive.Close() })
	return archive
}

func sampleReport(id string, at time.Time) model.WasteReport {
	return model.WasteReport{
		ID:          id,
		UserID:      "user-1",
		Location:    &model.Location{Latitude: -7.15, Longitude: 112.65, Address: "Jl. Veteran 12"},
		Category:    model.WasteHousehold,
		Description: "Large pile of waste",
		Urgency:     model.UrgencyMedium,
		Contact:     model.Contact{Name: "Budi", Email: "budi@example.id"},
		Status:      model.ReportPending,
		SubmittedAt: at,
	}
}

var ignorePhotoBytes = cmpopts.IgnoreFields(model.Photo{}, "Data", "Thumbnail")

func TestAddPrependsAndRoundTrips(t *testing.T) {
	archive := openArchive(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	first := sampleReport("GRSK-1", base)
	second := sampleReport("GRSK-2", base.Add(time.Hour))

	if _, err := archive.Add(ctx, first); err != nil {
		t.Fatalf("add: %v", err)
	}
	list, err := archive.Add(ctx, second)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if list[0].ID != "GRSK-2" || list[1].ID != "GRSK-1" {
		t.Fatalf("expected most-recent-first, got %s, %s", list[0].ID, list[1].ID)
	}

	// Simulated reload: a fresh read must yield the same ordered list
	// with identical field values.
	reread, err := archive.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(list, reread, ignorePhotoBytes); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	archive := openArchive(t)
	ctx := context.Background()

	record := sampleReport("GRSK-1", time.Now().UTC())
	if _, err := archive.Add(ctx, record); err != nil {
		t.Fatalf("add: %v", err)
	}

	list, removed, err := archive.Delete(ctx, "user-1", "GRSK-missing")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed {
		t.Fatalf("expected no removal for absent id")
	}
	if len(list) != 1 {
		t.Fatalf("expected list unchanged, got %d entries", len(list))
	}

	list, removed, err = archive.Delete(ctx, "user-1", "GRSK-1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !removed || len(list) != 0 {
		t.Fatalf("expected report removed")
	}
}

func TestPhotoStorage(t *testing.T) {
	archive := openArchive(t)
	ctx := context.Background()

	record := sampleReport("GRSK-1", time.Now().UTC())
	record.Photos = []model.Photo{{
		FileName:    "pile.jpg",
		ContentType: "image/jpeg",
		Size:        4,
		Data:        []byte{0xff, 0xd8, 0xff, 0xd9},
	}}
	if _, err := archive.Add(ctx, record); err != nil {
		t.Fatalf("add: %v", err)
	}

	photo, err := archive.GetPhoto(ctx, "GRSK-1", 0)
	if err != nil {
		t.Fatalf("get photo: %v", err)
	}
	if photo.FileName != "pile.jpg" || len(photo.Data) != 4 {
		t.Fatalf("unexpected photo %+v", photo)
	}
	if _, err := archive.GetPhoto(ctx, "GRSK-1", 3); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAllOrdersMixedPrecisionTimestamps(t *testing.T) {
	archive := openArchive(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	// Whole-second and fractional timestamps must still compare
	// correctly as stored text.
	older := sampleReport("GRSK-older", base)
	older.UserID = "user-a"
	newer := sampleReport("GRSK-newer", base.Add(500*time.Millisecond))
	newer.UserID = "user-b"

	if _, err := archive.Add(ctx, older); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := archive.Add(ctx, newer); err != nil {
		t.Fatalf("add: %v", err)
	}

	all, err := archive.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[0].ID != "GRSK-newer" || all[1].ID != "GRSK-older" {
		t.Fatalf("expected newest first, got %+v", []string{all[0].ID, all[1].ID})
	}
}

func TestUpdateStatusAppendsLog(t *testing.T) {
	archive := openArchive(t)
	ctx := context.Background()

	if _, err := archive.Add(ctx, sampleReport("GRSK-1", time.Now().UTC())); err != nil {
		t.Fatalf("add: %v", err)
	}

	at := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	updated, err := archive.UpdateStatus(ctx, "GRSK-1", model.ReportInProgress, "crew dispatched", at)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != model.ReportInProgress {
		t.Fatalf("expected in-progress, got %s", updated.Status)
	}
	if len(updated.StatusLog) != 1 || updated.StatusLog[0].Note != "crew dispatched" {
		t.Fatalf("expected status log entry, got %+v", updated.StatusLog)
	}

	stored, err := archive.Get(ctx, "user-1", "GRSK-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != model.ReportInProgress {
		t.Fatalf("expected persisted status update")
	}

	if _, err := archive.UpdateStatus(ctx, "GRSK-nope", model.ReportResolved, "", at); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
