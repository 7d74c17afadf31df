package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"bookenrich/ratelimit"
)

var asinRE = regexp.MustCompile(`/dp/([A-Z0-9]{10})`)

// bindingLabels are the small text labels on a result block that name the
// format, not the author.
var bindingLabels = map[string]struct{}{
	"paperback":             {},
	"hardcover":             {},
	"kindle":                {},
	"kindle edition":        {},
	"audiobook":             {},
	"audible audiobook":     {},
	"mass market paperback": {},
	"board book":            {},
}

// FallbackItem is one result block scraped from the marketplace listing.
type FallbackItem struct {
	Rank   int
	ASIN   string
	Title  string
	Author string
	URL    string
}

// Fallback scrapes a marketplace listing page when the primary source has no
// entry for an identifier. The host aggressively rejects bursty clients, so
// every visit waits on a wide randomized limiter and a CAPTCHA marker or
// rate-limit status aborts the whole run.
type Fallback struct {
	base      string
	host      string
	ua        string
	timeout   time.Duration
	maxItems  int
	limiter   ratelimit.Limiter
	transport http.RoundTripper
}

// NewFallback builds the secondary fallback source adapter.
func NewFallback(baseURL, ua string, timeout time.Duration, maxItems int, limiter ratelimit.Limiter) (*Fallback, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse fallback base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("fallback base url must include a host")
	}
	return &Fallback{
		base:     strings.TrimRight(baseURL, "/"),
		host:     parsed.Host,
		ua:       ua,
		timeout:  timeout,
		maxItems: maxItems,
		limiter:  limiter,
	}, nil
}

// SetTransport overrides the HTTP transport. Tests install a mock here.
func (f *Fallback) SetTransport(rt http.RoundTripper) {
	f.transport = rt
}

// Fetch scrapes the listing for query and returns a bounded number of result
// blocks. Each block yields a detail link (the vendor item id is extracted
// from it), a title from the image alternate text, and an author from the
// small text labels, skipping binding labels like "Paperback".
func (f *Fallback) Fetch(ctx context.Context, query string) ([]FallbackItem, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, TransientError{Err: err}
		}
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(f.host),
		colly.UserAgent(f.ua),
	)
	collector.SetRequestTimeout(f.timeout)
	collector.IgnoreRobotsTxt = true
	if f.transport != nil {
		collector.WithTransport(f.transport)
	}

	var (
		items    []FallbackItem
		fetchErr error
	)

	collector.OnResponse(func(r *colly.Response) {
		if strings.Contains(strings.ToLower(string(r.Body)), "captcha") {
			fetchErr = BlockedError{Host: f.host, Err: fmt.Errorf("captcha challenge served")}
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = Classify(f.host, err, statusCode)
	})

	collector.OnHTML("div.zg-grid-general-faceout", func(e *colly.HTMLElement) {
		if fetchErr != nil || len(items) >= f.maxItems {
			return
		}
		item, ok := f.extractItem(e)
		if !ok {
			return
		}
		item.Rank = len(items) + 1
		items = append(items, item)
	})

	listURL := fmt.Sprintf("%s/s?k=%s", f.base, url.QueryEscape(query))
	if err := collector.Visit(listURL); err != nil {
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, Classify(f.host, err, 0)
	}
	collector.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if len(items) == 0 {
		return nil, NotFoundError{Key: query}
	}
	return items, nil
}

func (f *Fallback) extractItem(e *colly.HTMLElement) (FallbackItem, bool) {
	href := e.ChildAttr(`a[href*="/dp/"]`, "href")
	match := asinRE.FindStringSubmatch(href)
	if match == nil {
		return FallbackItem{}, false
	}

	title := strings.TrimSpace(e.ChildAttr("img", "alt"))
	if title == "" {
		return FallbackItem{}, false
	}

	author := ""
	for _, text := range e.ChildTexts("span.a-size-small, div.a-size-small") {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if _, binding := bindingLabels[strings.ToLower(text)]; binding {
			continue
		}
		author = text
		break
	}
	if author == "" {
		return FallbackItem{}, false
	}

	detail := f.base + strings.SplitN(href, "?", 2)[0]
	return FallbackItem{
		ASIN:   match[1],
		Title:  title,
		Author: author,
		URL:    detail,
	}, true
}
