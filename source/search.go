package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"bookenrich/models"
	"bookenrich/ratelimit"
)

// Social queries the Open Library search API for reader statistics and the
// work reference behind an edition.
type Social struct {
	client
	base string
}

// NewSocial builds the social statistics source adapter.
func NewSocial(baseURL, ua string, timeout time.Duration, limiter ratelimit.Limiter, retries int) *Social {
	return &Social{
		client: newClient(baseURL, ua, timeout, limiter, retries),
		base:   strings.TrimRight(baseURL, "/"),
	}
}

// SocialResult is the top search match for an ISBN: the aggregate counters
// measured together, plus the work key the description endpoint accepts.
type SocialResult struct {
	WorkKey string
	Stats   models.SocialStats
}

// QueryMatch resolves a free-text query back to edition identifiers.
type QueryMatch struct {
	ISBN10  string
	ISBN13  string
	WorkKey string
}

type searchResponse struct {
	NumFound int         `json:"numFound"`
	Docs     []searchDoc `json:"docs"`
}

type searchDoc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	ISBN             []string `json:"isbn"`
	RatingsAverage   *float64 `json:"ratings_average"`
	WantToRead       int      `json:"want_to_read_count"`
	CurrentlyReading int      `json:"currently_reading_count"`
	AlreadyRead      int      `json:"already_read_count"`
}

// FetchStats searches by ISBN; the first document is authoritative. No
// matching document is NotFound, which callers treat as empty social data.
func (s *Social) FetchStats(ctx context.Context, isbn string) (SocialResult, error) {
	endpoint := fmt.Sprintf(
		"%s/search.json?q=%s&fields=key,ratings_average,want_to_read_count,currently_reading_count,already_read_count&limit=1",
		s.base, url.QueryEscape(isbn))

	resp, err := s.search(ctx, endpoint)
	if err != nil {
		return SocialResult{}, err
	}
	if len(resp.Docs) == 0 {
		return SocialResult{}, NotFoundError{Key: isbn}
	}

	doc := resp.Docs[0]
	return SocialResult{
		WorkKey: doc.Key,
		Stats: models.SocialStats{
			Rating:           doc.RatingsAverage,
			WantToRead:       doc.WantToRead,
			CurrentlyReading: doc.CurrentlyReading,
			AlreadyRead:      doc.AlreadyRead,
		},
	}, nil
}

// LookupByQuery resolves a title/author query to edition identifiers. The
// first document carrying any ISBN wins; none is NotFound.
func (s *Social) LookupByQuery(ctx context.Context, query string) (QueryMatch, error) {
	endpoint := fmt.Sprintf("%s/search.json?q=%s&fields=key,title,author_name,isbn&limit=5",
		s.base, url.QueryEscape(query))

	resp, err := s.search(ctx, endpoint)
	if err != nil {
		return QueryMatch{}, err
	}

	for _, doc := range resp.Docs {
		match := QueryMatch{WorkKey: doc.Key}
		for _, isbn := range doc.ISBN {
			switch len(isbn) {
			case 10:
				if match.ISBN10 == "" {
					match.ISBN10 = isbn
				}
			case 13:
				if match.ISBN13 == "" {
					match.ISBN13 = isbn
				}
			}
		}
		if match.ISBN10 != "" || match.ISBN13 != "" {
			return match, nil
		}
	}
	return QueryMatch{}, NotFoundError{Key: query}
}

func (s *Social) search(ctx context.Context, endpoint string) (searchResponse, error) {
	body, err := s.getBody(ctx, endpoint)
	if err != nil {
		return searchResponse{}, err
	}
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return searchResponse{}, TransientError{Err: fmt.Errorf("decode search payload: %w", err)}
	}
	return resp, nil
}
