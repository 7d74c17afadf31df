package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"bookenrich/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	year := 2005
	rec := models.Record{
		ISBN13:      "9780141439808",
		Title:       "Example Book",
		Author:      "A. Author",
		PublishYear: &year,
		Source:      "openlibrary",
	}
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	got, err := s.GetByISBN(ctx, "9780141439808")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Title != "Example Book" {
		t.Fatalf("stored record = %+v", got)
	}

	rec.Description = "added later"
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err = s.GetByISBN(ctx, "9780141439808")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Description != "added later" {
		t.Fatalf("description = %q", got.Description)
	}
}

func TestUpsertIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rating := 4.1
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := models.Record{
		ISBN10:       "0141439807",
		ISBN13:       "9780141439808",
		Title:        "Example Book",
		Rating:       &rating,
		WantToRead:   12,
		LastEnriched: &at,
		Source:       "openlibrary",
	}

	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	first, err := s.GetByISBN(ctx, "0141439807")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	second, err := s.GetByISBN(ctx, "0141439807")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("stored state changed on identical re-run:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestUpsertMatchesEitherIdentifier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, models.Record{ISBN10: "0141439807", ISBN13: "9780141439808", Title: "One"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.GetByISBN(ctx, "9780141439808")
	if err != nil || got == nil {
		t.Fatalf("lookup by isbn13 failed: %v / %v", got, err)
	}
	got, err = s.GetByISBN(ctx, "0141439807")
	if err != nil || got == nil {
		t.Fatalf("lookup by isbn10 failed: %v / %v", got, err)
	}
}

func TestUpsertUpdatesRowGainingIdentifier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertBare(ctx, "", "9780316769488"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// The run learned the ISBN-10 for a row that was seeded under its
	// ISBN-13 only. This must update in place, not collide on insert.
	rec := models.Record{
		ISBN10: "0316769487",
		ISBN13: "9780316769488",
		Title:  "The Catcher in the Rye",
	}
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert with gained identifier: %v", err)
	}

	got, err := s.GetByISBN(ctx, "0316769487")
	if err != nil || got == nil {
		t.Fatalf("lookup by gained isbn10: %v / %v", got, err)
	}
	if got.Title != "The Catcher in the Rye" {
		t.Fatalf("title = %q", got.Title)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM book_records").Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("row count = %d, want 1", count)
	}
}

func TestUpsertRequiresIdentifier(t *testing.T) {
	s := newTestStore(t)
	if err := s.Upsert(context.Background(), models.Record{Title: "nameless"}); err == nil {
		t.Fatalf("expected error for record without identifier")
	}
}

func TestGetByISBNMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetByISBN(context.Background(), "9999999999999")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing record, got %+v", got)
	}
}

func TestInsertBareSkipsExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.InsertBare(ctx, "0141439807", "9780141439808")
	if err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}
	created, err = s.InsertBare(ctx, "0141439807", "")
	if err != nil || created {
		t.Fatalf("duplicate insert should be skipped: created=%v err=%v", created, err)
	}
}

func TestListPendingAndSetEnriched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, isbn := range []string{"9780000000001", "9780000000002", "9780000000003"} {
		if _, err := s.InsertBare(ctx, "", isbn); err != nil {
			t.Fatalf("seed %s: %v", isbn, err)
		}
	}

	pending, err := s.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 3 || pending[0] != "9780000000001" {
		t.Fatalf("pending = %v", pending)
	}

	if err := s.SetEnriched(ctx, "9780000000002", time.Now(), "openlibrary"); err != nil {
		t.Fatalf("set enriched: %v", err)
	}
	pending, err = s.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending after enrich = %v", pending)
	}

	rec, err := s.GetByISBN(ctx, "9780000000002")
	if err != nil || rec == nil {
		t.Fatalf("get enriched: %v / %v", rec, err)
	}
	if rec.LastEnriched == nil || rec.Source != "openlibrary" {
		t.Fatalf("enrichment marker not stored: %+v", rec)
	}
}

func TestListPendingHonorsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, isbn := range []string{"9780000000001", "9780000000002", "9780000000003"} {
		if _, err := s.InsertBare(ctx, "", isbn); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	pending, err := s.ListPending(ctx, 2)
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending = %v err = %v", pending, err)
	}
}

func TestMarkAttemptedNoOpForMissingRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.MarkAttempted(ctx, "9999999999999", time.Now()); err != nil {
		t.Fatalf("mark attempted on missing record should not error: %v", err)
	}
	got, err := s.GetByISBN(ctx, "9999999999999")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("attempt must not create a record, got %+v", got)
	}
}

func TestMarkAttemptedTouchesOnlyTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, models.Record{ISBN13: "9780141439808", Title: "Kept"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	at := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	if err := s.MarkAttempted(ctx, "9780141439808", at); err != nil {
		t.Fatalf("mark attempted: %v", err)
	}

	rec, err := s.GetByISBN(ctx, "9780141439808")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Title != "Kept" {
		t.Fatalf("title changed: %q", rec.Title)
	}
	if rec.AttemptedAt == nil || !rec.AttemptedAt.Equal(at) {
		t.Fatalf("attempted_at = %v, want %v", rec.AttemptedAt, at)
	}
	if rec.LastEnriched != nil {
		t.Fatalf("attempt must not set last_enriched")
	}
}

func TestSetCover(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, models.Record{ISBN13: "9780141439808"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.SetCover(ctx, "9780141439808", "9/7/8/9780141439808.jpg", "http://c/l.jpg"); err != nil {
		t.Fatalf("set cover: %v", err)
	}

	rec, err := s.GetByISBN(ctx, "9780141439808")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.CoverPath != "9/7/8/9780141439808.jpg" || rec.CoverURL != "http://c/l.jpg" {
		t.Fatalf("cover fields = %q / %q", rec.CoverPath, rec.CoverURL)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "catalog.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = s.Close()

	if _, err := Open(dbPath); err == nil {
		t.Fatalf("expected schema mismatch error")
	}
}
