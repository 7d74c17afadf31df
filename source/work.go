package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"bookenrich/normalize"
	"bookenrich/ratelimit"
)

const workCacheSize = 1024

// Descriptions fetches long-form description text keyed by a work reference.
// Many editions share one work, so successful lookups are cached; a batch of
// related ISBNs then costs one request per work instead of one per edition.
type Descriptions struct {
	client
	base  string
	cache *lru.Cache[string, string]
}

// NewDescriptions builds the description source adapter.
func NewDescriptions(baseURL, ua string, timeout time.Duration, limiter ratelimit.Limiter, retries int) (*Descriptions, error) {
	cache, err := lru.New[string, string](workCacheSize)
	if err != nil {
		return nil, fmt.Errorf("build work cache: %w", err)
	}
	return &Descriptions{
		client: newClient(baseURL, ua, timeout, limiter, retries),
		base:   strings.TrimRight(baseURL, "/"),
		cache:  cache,
	}, nil
}

type workPayload struct {
	Description json.RawMessage `json:"description"`
}

// FetchDescription returns the description for a work key such as
// "/works/OL66554W". The upstream serves it as a plain string or as
// {"value": ...}; both normalize to a plain string. A work without a
// description yields "", not an error.
func (d *Descriptions) FetchDescription(ctx context.Context, workKey string) (string, error) {
	key := strings.TrimPrefix(strings.TrimSpace(workKey), "/works/")
	if key == "" {
		return "", NotFoundError{Key: workKey}
	}

	if cached, ok := d.cache.Get(key); ok {
		return cached, nil
	}

	endpoint := fmt.Sprintf("%s/works/%s.json", d.base, key)
	body, err := d.getBody(ctx, endpoint)
	if err != nil {
		return "", err
	}

	var payload workPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", TransientError{Err: fmt.Errorf("decode work payload: %w", err)}
	}

	desc := normalize.Description(payload.Description)
	d.cache.Add(key, desc)
	return desc, nil
}
