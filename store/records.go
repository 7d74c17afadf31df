package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookenrich/models"
)

const recordColumns = `isbn10, isbn13, title, author, publisher, publish_year, publish_date,
	pages, language, subjects, description, asin, work_key,
	rating, want_to_read, currently_reading, already_read,
	cover_path, cover_url, last_enriched, attempted_at, source`

// identifierClause matches a record by either identifier column. An empty
// column never matches anything.
const identifierClause = `((isbn10 != '' AND isbn10 = ?) OR (isbn13 != '' AND isbn13 = ?))`

// GetByISBN fetches the record matching the identifier, or nil when no
// record exists.
func (s *Store) GetByISBN(ctx context.Context, isbn string) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM book_records WHERE `+identifierClause, isbn, isbn)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// Upsert writes the full record keyed by its identifiers: insert when no
// matching row exists, update in place otherwise. Running it twice with the
// same record leaves the same stored state.
func (s *Store) Upsert(ctx context.Context, rec models.Record) error {
	if rec.ISBN10 == "" && rec.ISBN13 == "" {
		return fmt.Errorf("upsert: record has no identifier")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Bind both identifiers: a row seeded under one identifier must still be
	// found when the record gains the other during a run.
	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM book_records WHERE `+identifierClause,
		rec.ISBN10, rec.ISBN13,
	).Scan(&id)

	args := []any{
		rec.ISBN10, rec.ISBN13, rec.Title, rec.Author, rec.Publisher,
		nullableInt(rec.PublishYear), rec.PublishDate,
		nullableInt(rec.Pages), rec.Language, rec.Subjects, rec.Description,
		rec.ASIN, rec.WorkKey,
		nullableFloat(rec.Rating), rec.WantToRead, rec.CurrentlyReading, rec.AlreadyRead,
		rec.CoverPath, rec.CoverURL,
		nullableTime(rec.LastEnriched), nullableTime(rec.AttemptedAt), rec.Source,
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
		_, err = tx.ExecContext(ctx,
			`INSERT INTO book_records (`+recordColumns+`, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			args...)
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	case err != nil:
		return fmt.Errorf("find record: %w", err)
	default:
		args = append(args, id)
		_, err = tx.ExecContext(ctx,
			`UPDATE book_records SET
				isbn10 = ?, isbn13 = ?, title = ?, author = ?, publisher = ?,
				publish_year = ?, publish_date = ?, pages = ?, language = ?,
				subjects = ?, description = ?, asin = ?, work_key = ?,
				rating = ?, want_to_read = ?, currently_reading = ?, already_read = ?,
				cover_path = ?, cover_url = ?, last_enriched = ?, attempted_at = ?, source = ?
			 WHERE id = ?`,
			args...)
		if err != nil {
			return fmt.Errorf("update record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// InsertBare seeds a record holding only identifiers, as catalog ingestion
// does. Returns false without writing when a matching record already exists.
func (s *Store) InsertBare(ctx context.Context, isbn10, isbn13 string) (bool, error) {
	if isbn10 == "" && isbn13 == "" {
		return false, fmt.Errorf("insert bare: no identifier")
	}
	key := isbn10
	if key == "" {
		key = isbn13
	}

	existing, err := s.GetByISBN(ctx, key)
	if err != nil {
		return false, err
	}
	if existing == nil && isbn13 != "" && isbn10 != "" {
		// The row may be keyed by the other identifier.
		existing, err = s.GetByISBN(ctx, isbn13)
		if err != nil {
			return false, err
		}
	}
	if existing != nil {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO book_records (isbn10, isbn13, created_at) VALUES (?, ?, ?)`,
		isbn10, isbn13, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("insert bare record: %w", err)
	}
	return true, nil
}

// ListPending returns up to limit identifiers whose records have never been
// fully enriched, in stable order.
func (s *Store) ListPending(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT CASE WHEN isbn13 != '' THEN isbn13 ELSE isbn10 END
		 FROM book_records
		 WHERE last_enriched IS NULL
		 ORDER BY isbn13, isbn10
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var isbns []string
	for rows.Next() {
		var isbn string
		if err := rows.Scan(&isbn); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		isbns = append(isbns, isbn)
	}
	return isbns, rows.Err()
}

// MarkAttempted stamps attempted_at on the matching record. A missing
// record is a no-op: attempts never create rows.
func (s *Store) MarkAttempted(ctx context.Context, isbn string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE book_records SET attempted_at = ? WHERE `+identifierClause,
		at.UTC().Format(time.RFC3339Nano), isbn, isbn)
	if err != nil {
		return fmt.Errorf("mark attempted: %w", err)
	}
	return nil
}

// SetEnriched commits the enrichment marker. This is the only write that
// sets last_enriched.
func (s *Store) SetEnriched(ctx context.Context, isbn string, at time.Time, sourceName string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE book_records SET last_enriched = ?, source = ? WHERE `+identifierClause,
		at.UTC().Format(time.RFC3339Nano), sourceName, isbn, isbn)
	if err != nil {
		return fmt.Errorf("set enriched: %w", err)
	}
	return nil
}

// SetCover records the stored asset path and the upstream URL it came from.
func (s *Store) SetCover(ctx context.Context, isbn, coverPath, coverURL string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE book_records SET cover_path = ?, cover_url = ? WHERE `+identifierClause,
		coverPath, coverURL, isbn, isbn)
	if err != nil {
		return fmt.Errorf("set cover: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec          models.Record
		publishYear  sql.NullInt64
		pages        sql.NullInt64
		rating       sql.NullFloat64
		lastEnriched sql.NullString
		attemptedAt  sql.NullString
	)
	err := row.Scan(
		&rec.ISBN10, &rec.ISBN13, &rec.Title, &rec.Author, &rec.Publisher,
		&publishYear, &rec.PublishDate, &pages, &rec.Language, &rec.Subjects,
		&rec.Description, &rec.ASIN, &rec.WorkKey,
		&rating, &rec.WantToRead, &rec.CurrentlyReading, &rec.AlreadyRead,
		&rec.CoverPath, &rec.CoverURL, &lastEnriched, &attemptedAt, &rec.Source,
	)
	if err != nil {
		return nil, err
	}

	if publishYear.Valid {
		v := int(publishYear.Int64)
		rec.PublishYear = &v
	}
	if pages.Valid {
		v := int(pages.Int64)
		rec.Pages = &v
	}
	if rating.Valid {
		v := rating.Float64
		rec.Rating = &v
	}
	if rec.LastEnriched, err = parseNullTime(lastEnriched); err != nil {
		return nil, fmt.Errorf("parse last_enriched: %w", err)
	}
	if rec.AttemptedAt, err = parseNullTime(attemptedAt); err != nil {
		return nil, fmt.Errorf("parse attempted_at: %w", err)
	}
	return &rec, nil
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(time.RFC3339Nano)
}
