// Package models defines the canonical book record and the merge rules
// applied when new upstream data arrives.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Record is the storage-resident representation of a book. A record starts
// as a bare identifier and is filled in by enrichment runs.
type Record struct {
	ISBN10 string `json:"isbn10"`
	ISBN13 string `json:"isbn13"`

	Title       string `json:"title"`
	Author      string `json:"author"`
	Publisher   string `json:"publisher"`
	PublishYear *int   `json:"publish_year"`
	PublishDate string `json:"publish_date"`
	Pages       *int   `json:"pages"`
	Language    string `json:"language"`
	Subjects    string `json:"subjects"`
	Description string `json:"description"`
	ASIN        string `json:"asin"`
	WorkKey     string `json:"work_key"`

	// Social counters are refreshed wholesale whenever a run obtains them.
	// Rating stays nil until a source reports one; nil and zero mean
	// different things.
	Rating           *float64 `json:"rating"`
	WantToRead       int      `json:"want_to_read"`
	CurrentlyReading int      `json:"currently_reading"`
	AlreadyRead      int      `json:"already_read"`

	CoverPath string `json:"cover_path"`
	CoverURL  string `json:"cover_url"`

	LastEnriched *time.Time `json:"last_enriched"`
	AttemptedAt  *time.Time `json:"attempted_at"`
	Source       string     `json:"source"`
}

// PrimaryIdentifier returns the identifier used for cover partitioning and
// logging: ISBN-10 when present, else ISBN-13.
func (r *Record) PrimaryIdentifier() string {
	if r.ISBN10 != "" {
		return r.ISBN10
	}
	return r.ISBN13
}

// SocialStats is the counter group measured together by the social source.
type SocialStats struct {
	Rating           *float64
	WantToRead       int
	CurrentlyReading int
	AlreadyRead      int
}

// Partial is the normalized field set produced by one enrichment run before
// it is merged into the stored record. Empty strings and nil pointers mean
// the run did not learn that field.
type Partial struct {
	ISBN10      string
	ISBN13      string
	Title       string
	Author      string
	Publisher   string
	PublishYear *int
	PublishDate string
	Pages       *int
	Language    string
	Subjects    string
	Description string
	ASIN        string
	WorkKey     string

	// Social is nil when the run obtained no social data; the stored
	// counters are then left alone.
	Social *SocialStats

	CoverURL string
	Source   string
}

// Merge combines the stored record with the field set from one run.
// Scalar fields coalesce: a populated stored value is never replaced by an
// empty incoming one. The social counter group is replaced wholesale when
// the run measured it. Identifiers are immutable once set.
func Merge(existing *Record, in Partial) Record {
	var out Record
	if existing != nil {
		out = *existing
	}

	if out.ISBN10 == "" {
		out.ISBN10 = in.ISBN10
	}
	if out.ISBN13 == "" {
		out.ISBN13 = in.ISBN13
	}

	out.Title = coalesce(in.Title, out.Title)
	out.Author = coalesce(in.Author, out.Author)
	out.Publisher = coalesce(in.Publisher, out.Publisher)
	out.PublishDate = coalesce(in.PublishDate, out.PublishDate)
	out.Language = coalesce(in.Language, out.Language)
	out.Subjects = coalesce(in.Subjects, out.Subjects)
	out.Description = coalesce(in.Description, out.Description)
	out.ASIN = coalesce(in.ASIN, out.ASIN)
	out.WorkKey = coalesce(in.WorkKey, out.WorkKey)
	out.CoverURL = coalesce(in.CoverURL, out.CoverURL)
	out.Source = coalesce(in.Source, out.Source)

	if in.PublishYear != nil {
		out.PublishYear = in.PublishYear
	}
	if in.Pages != nil {
		out.Pages = in.Pages
	}

	if in.Social != nil {
		out.Rating = in.Social.Rating
		out.WantToRead = in.Social.WantToRead
		out.CurrentlyReading = in.Social.CurrentlyReading
		out.AlreadyRead = in.Social.AlreadyRead
	}

	return out
}

func coalesce(incoming, existing string) string {
	if strings.TrimSpace(incoming) != "" {
		return incoming
	}
	return existing
}

// ValidateIdentifier rejects identifiers that cannot name an edition before
// any network call is made.
func ValidateIdentifier(isbn string) error {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return fmt.Errorf("identifier is empty")
	}
	if len(isbn) != 10 && len(isbn) != 13 {
		return fmt.Errorf("identifier %q has length %d, want 10 or 13", isbn, len(isbn))
	}
	for i, c := range isbn {
		if c >= '0' && c <= '9' {
			continue
		}
		// ISBN-10 check digit may be X.
		if len(isbn) == 10 && i == 9 && (c == 'X' || c == 'x') {
			continue
		}
		return fmt.Errorf("identifier %q contains %q", isbn, c)
	}
	return nil
}
