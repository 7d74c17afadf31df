package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"bookenrich/models"
	"bookenrich/normalize"
	"bookenrich/ratelimit"
)

// Primary fetches structured book metadata from the Open Library books API,
// keyed by ISBN.
type Primary struct {
	client
	base string
}

// NewPrimary builds the primary bibliographic source adapter.
func NewPrimary(baseURL, ua string, timeout time.Duration, limiter ratelimit.Limiter, retries int) *Primary {
	return &Primary{
		client: newClient(baseURL, ua, timeout, limiter, retries),
		base:   strings.TrimRight(baseURL, "/"),
	}
}

// bookPayload mirrors the per-ISBN object of api/books?jscmd=data.
type bookPayload struct {
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Publishers []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	PublishDate   string `json:"publish_date"`
	NumberOfPages *int   `json:"number_of_pages"`
	Languages     []struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"languages"`
	Identifiers struct {
		Amazon []string `json:"amazon"`
	} `json:"identifiers"`
	Cover struct {
		Small  string `json:"small"`
		Medium string `json:"medium"`
		Large  string `json:"large"`
	} `json:"cover"`
	Subjects []struct {
		Name string `json:"name"`
	} `json:"subjects"`
}

// FetchByISBN requests one ISBN and returns the normalized field set.
// An empty response map is NotFound; a 200 with a non-JSON body (the
// upstream occasionally serves HTML) is transient.
func (p *Primary) FetchByISBN(ctx context.Context, isbn string) (models.Partial, error) {
	bibkey := "ISBN:" + isbn
	endpoint := fmt.Sprintf("%s/api/books?bibkeys=%s&format=json&jscmd=data",
		p.base, url.QueryEscape(bibkey))

	body, err := p.getBody(ctx, endpoint)
	if err != nil {
		return models.Partial{}, err
	}

	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return models.Partial{}, TransientError{Err: fmt.Errorf("non-JSON body from books API")}
	}

	var payload map[string]bookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Partial{}, TransientError{Err: fmt.Errorf("decode books payload: %w", err)}
	}

	raw, ok := payload[bibkey]
	if !ok {
		return models.Partial{}, NotFoundError{Key: bibkey}
	}

	return p.normalizeBook(isbn, raw), nil
}

func (p *Primary) normalizeBook(isbn string, raw bookPayload) models.Partial {
	authorNames := make([]string, 0, len(raw.Authors))
	for _, a := range raw.Authors {
		authorNames = append(authorNames, a.Name)
	}
	publisherNames := make([]string, 0, len(raw.Publishers))
	for _, pub := range raw.Publishers {
		publisherNames = append(publisherNames, pub.Name)
	}
	languageKeys := make([]string, 0, len(raw.Languages))
	for _, l := range raw.Languages {
		if l.Key != "" {
			languageKeys = append(languageKeys, l.Key)
		} else {
			languageKeys = append(languageKeys, l.Name)
		}
	}
	subjectNames := make([]string, 0, len(raw.Subjects))
	for _, s := range raw.Subjects {
		subjectNames = append(subjectNames, s.Name)
	}

	out := models.Partial{
		Title:       strings.TrimSpace(raw.Title),
		Author:      normalize.Authors(authorNames),
		Publisher:   normalize.Publisher(publisherNames),
		PublishYear: normalize.Year(raw.PublishDate),
		PublishDate: raw.PublishDate,
		Pages:       raw.NumberOfPages,
		Language:    normalize.Language(languageKeys),
		Subjects:    normalize.Subjects(subjectNames),
		CoverURL:    normalize.CoverURL(raw.Cover.Large, raw.Cover.Medium, raw.Cover.Small),
		Source:      "openlibrary",
	}
	if len(raw.Identifiers.Amazon) > 0 {
		out.ASIN = raw.Identifiers.Amazon[0]
	}
	if len(isbn) == 13 {
		out.ISBN13 = isbn
	} else {
		out.ISBN10 = isbn
	}
	return out
}
