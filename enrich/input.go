package enrich

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"bookenrich/models"
)

// IdentifierPair is one catalog row from an ingestion file. Either field may
// be empty, never both.
type IdentifierPair struct {
	ISBN10 string
	ISBN13 string
}

// Preferred returns the identifier the pipeline should enqueue, the 13-digit
// form when both are present.
func (p IdentifierPair) Preferred() string {
	if p.ISBN13 != "" {
		return p.ISBN13
	}
	return p.ISBN10
}

// LoadIdentifiers reads a catalog CSV with a header row. The isbn13 and
// isbn10 columns are located by name, case-insensitively; rows with neither
// populated are dropped. Identifiers are returned raw, validation happens
// per item at enrichment time.
func LoadIdentifiers(path string) ([]IdentifierPair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()
	return parseIdentifiers(f)
}

func parseIdentifiers(r io.Reader) ([]IdentifierPair, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read input header: %w", err)
	}

	col10, col13 := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "isbn10", "isbn_10":
			col10 = i
		case "isbn13", "isbn_13", "isbn":
			col13 = i
		}
	}
	if col10 == -1 && col13 == -1 {
		return nil, fmt.Errorf("input file has no isbn10 or isbn13 column, header: %v", header)
	}

	var pairs []IdentifierPair
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read input row: %w", err)
		}

		var pair IdentifierPair
		if col10 >= 0 && col10 < len(row) {
			pair.ISBN10 = strings.TrimSpace(row[col10])
		}
		if col13 >= 0 && col13 < len(row) {
			pair.ISBN13 = strings.TrimSpace(row[col13])
		}
		if pair.ISBN10 == "" && pair.ISBN13 == "" {
			continue
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// BareInserter seeds identifier-only records.
type BareInserter interface {
	InsertBare(ctx context.Context, isbn10, isbn13 string) (bool, error)
}

// Seed inserts each pair as a bare record, skipping rows whose preferred
// identifier is invalid or already stored. Returns the number of new records.
func Seed(ctx context.Context, inserter BareInserter, pairs []IdentifierPair) (int, error) {
	created := 0
	for _, pair := range pairs {
		if err := models.ValidateIdentifier(pair.Preferred()); err != nil {
			continue
		}
		ok, err := inserter.InsertBare(ctx, pair.ISBN10, pair.ISBN13)
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", pair.Preferred(), err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}
