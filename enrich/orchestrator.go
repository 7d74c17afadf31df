// Package enrich drives identifiers through the enrichment pipeline:
// primary fetch, fallback chaining, social and description lookups, coalesce
// merge, cover fetch, and the final enrichment marker.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bookenrich/covers"
	"bookenrich/models"
	"bookenrich/source"
)

// Step names recorded in outcomes and logs.
const (
	StepValidate    = "validate"
	StepAttempt     = "attempt"
	StepPrimary     = "primary"
	StepFallback    = "fallback"
	StepSocial      = "social"
	StepDescription = "description"
	StepMerge       = "merge"
	StepCover       = "cover"
	StepCommit      = "commit"
)

// PrimarySource fetches structured metadata keyed by ISBN.
type PrimarySource interface {
	FetchByISBN(ctx context.Context, isbn string) (models.Partial, error)
}

// SocialSource returns aggregate reader statistics and a work reference.
type SocialSource interface {
	FetchStats(ctx context.Context, isbn string) (source.SocialResult, error)
}

// Resolver maps a free-text query back to edition identifiers.
type Resolver interface {
	LookupByQuery(ctx context.Context, query string) (source.QueryMatch, error)
}

// DescriptionSource fetches long-form text keyed by a work reference.
type DescriptionSource interface {
	FetchDescription(ctx context.Context, workKey string) (string, error)
}

// FallbackSource scrapes a listing when the primary source has no entry.
type FallbackSource interface {
	Fetch(ctx context.Context, query string) ([]source.FallbackItem, error)
}

// RecordStore is the durable storage the pipeline writes through.
type RecordStore interface {
	GetByISBN(ctx context.Context, isbn string) (*models.Record, error)
	Upsert(ctx context.Context, rec models.Record) error
	MarkAttempted(ctx context.Context, isbn string, at time.Time) error
	SetEnriched(ctx context.Context, isbn string, at time.Time, sourceName string) error
	SetCover(ctx context.Context, isbn, coverPath, coverURL string) error
}

// CoverFetcher downloads and stores a cover asset.
type CoverFetcher interface {
	Fetch(ctx context.Context, identifier, url string) (string, error)
}

// Orchestrator runs one identifier through the full enrichment unit of work.
type Orchestrator struct {
	primary      PrimarySource
	social       SocialSource
	resolver     Resolver
	descriptions DescriptionSource
	fallback     FallbackSource
	store        RecordStore
	covers       CoverFetcher
	metrics      *Metrics
	now          func() time.Time
}

// NewOrchestrator wires the pipeline components. fallback may be nil, in
// which case a primary miss fails the item directly.
func NewOrchestrator(
	primary PrimarySource,
	social SocialSource,
	resolver Resolver,
	descriptions DescriptionSource,
	fallback FallbackSource,
	recordStore RecordStore,
	coverFetcher CoverFetcher,
	metrics *Metrics,
) *Orchestrator {
	return &Orchestrator{
		primary:      primary,
		social:       social,
		resolver:     resolver,
		descriptions: descriptions,
		fallback:     fallback,
		store:        recordStore,
		covers:       coverFetcher,
		metrics:      metrics,
		now:          time.Now,
	}
}

// SetClock overrides the time source. Tests pin the run timestamp here.
func (o *Orchestrator) SetClock(now func() time.Time) {
	if now != nil {
		o.now = now
	}
}

// EnrichOne drives a single identifier through the state machine. The
// returned error is non-nil only for signals that must stop the whole
// batch: an upstream block or a canceled context. Every other failure is
// folded into the outcome.
func (o *Orchestrator) EnrichOne(ctx context.Context, isbn string) (models.ItemOutcome, error) {
	attemptedAt := o.now()
	outcome := models.ItemOutcome{ISBN: isbn, AttemptedAt: attemptedAt}

	if err := models.ValidateIdentifier(isbn); err != nil {
		invalid := source.InvalidInputError{Input: isbn, Err: err}
		return o.fail(outcome, StepValidate, invalid), nil
	}

	if err := o.store.MarkAttempted(ctx, isbn, attemptedAt); err != nil {
		return o.fail(outcome, StepAttempt, fmt.Errorf("mark attempted: %w", err)), nil
	}

	partial, step, err := o.fetchPrimary(ctx, isbn)
	if err != nil {
		if source.IsBlocked(err) {
			outcome.State = models.StateBlocked
			outcome.Step = step
			outcome.Err = err.Error()
			return outcome, err
		}
		return o.fail(outcome, step, err), ctx.Err()
	}

	// Social lookup is best-effort: a miss yields empty counters, not a
	// failed item.
	social, err := o.timedStats(ctx, isbn)
	switch {
	case err == nil:
		partial.Social = &social.Stats
		if partial.WorkKey == "" {
			partial.WorkKey = social.WorkKey
		}
	case source.IsBlocked(err):
		outcome.State = models.StateBlocked
		outcome.Step = StepSocial
		outcome.Err = err.Error()
		return outcome, err
	default:
		slog.Debug("social lookup yielded no data",
			slog.String("isbn", isbn),
			slog.String("outcome", source.OutcomeLabel(err)),
		)
	}

	// Description needs a work reference; without one the description
	// simply stays empty.
	if partial.WorkKey != "" {
		desc, err := o.timedDescription(ctx, partial.WorkKey)
		switch {
		case err == nil:
			partial.Description = desc
		case source.IsBlocked(err):
			outcome.State = models.StateBlocked
			outcome.Step = StepDescription
			outcome.Err = err.Error()
			return outcome, err
		default:
			slog.Debug("description lookup yielded no data",
				slog.String("isbn", isbn),
				slog.String("work_key", partial.WorkKey),
				slog.String("outcome", source.OutcomeLabel(err)),
			)
		}
	}

	existing, err := o.store.GetByISBN(ctx, isbn)
	if err != nil {
		return o.fail(outcome, StepMerge, fmt.Errorf("load existing record: %w", err)), ctx.Err()
	}
	merged := models.Merge(existing, partial)
	merged.AttemptedAt = &attemptedAt

	if err := o.store.Upsert(ctx, merged); err != nil {
		return o.fail(outcome, StepMerge, fmt.Errorf("upsert record: %w", err)), ctx.Err()
	}

	// Cover fetch is best-effort; only a block signal can escalate.
	if blockedErr := o.resolveCover(ctx, isbn, &merged); blockedErr != nil {
		outcome.State = models.StateBlocked
		outcome.Step = StepCover
		outcome.Err = blockedErr.Error()
		return outcome, blockedErr
	}

	if err := o.store.SetEnriched(ctx, isbn, o.now(), merged.Source); err != nil {
		return o.fail(outcome, StepCommit, fmt.Errorf("set enriched: %w", err)), ctx.Err()
	}

	outcome.State = models.StateEnriched
	o.metrics.IncItem(models.StateEnriched)
	return outcome, nil
}

// fetchPrimary tries the primary source, then chains to the fallback when
// the primary has no entry.
func (o *Orchestrator) fetchPrimary(ctx context.Context, isbn string) (models.Partial, string, error) {
	start := o.now()
	partial, err := o.primary.FetchByISBN(ctx, isbn)
	o.metrics.ObserveFetch("primary", source.OutcomeLabel(err), time.Since(start))

	if err == nil {
		return partial, StepPrimary, nil
	}
	if !source.IsNotFound(err) {
		return models.Partial{}, StepPrimary, err
	}
	if o.fallback == nil {
		return models.Partial{}, StepPrimary, err
	}
	return o.fetchViaFallback(ctx, isbn)
}

// fetchViaFallback scrapes the listing for the identifier and resolves the
// top result back to edition data through the search source.
func (o *Orchestrator) fetchViaFallback(ctx context.Context, isbn string) (models.Partial, string, error) {
	start := o.now()
	items, err := o.fallback.Fetch(ctx, isbn)
	o.metrics.ObserveFetch("fallback", source.OutcomeLabel(err), time.Since(start))
	if err != nil {
		return models.Partial{}, StepFallback, err
	}

	item := items[0]
	partial := models.Partial{
		Title:  item.Title,
		Author: item.Author,
		ASIN:   item.ASIN,
		Source: "fallback",
	}

	if o.resolver != nil {
		match, err := o.resolver.LookupByQuery(ctx, item.Title+" "+item.Author)
		if err == nil {
			// Adopt resolved identifiers only when the match confirms
			// the edition we were asked about.
			if match.ISBN10 == isbn || match.ISBN13 == isbn {
				partial.ISBN10 = match.ISBN10
				partial.ISBN13 = match.ISBN13
			}
			partial.WorkKey = match.WorkKey
		} else if source.IsBlocked(err) {
			return models.Partial{}, StepFallback, err
		}
	}

	if len(isbn) == 13 {
		partial.ISBN13 = isbn
	} else {
		partial.ISBN10 = isbn
	}
	return partial, StepFallback, nil
}

func (o *Orchestrator) timedStats(ctx context.Context, isbn string) (source.SocialResult, error) {
	start := o.now()
	result, err := o.social.FetchStats(ctx, isbn)
	o.metrics.ObserveFetch("social", source.OutcomeLabel(err), time.Since(start))
	return result, err
}

func (o *Orchestrator) timedDescription(ctx context.Context, workKey string) (string, error) {
	start := o.now()
	desc, err := o.descriptions.FetchDescription(ctx, workKey)
	o.metrics.ObserveFetch("description", source.OutcomeLabel(err), time.Since(start))
	return desc, err
}

// resolveCover downloads the cover candidate if one exists. Every outcome
// except a block signal leaves the item on its path to Enriched.
func (o *Orchestrator) resolveCover(ctx context.Context, isbn string, merged *models.Record) error {
	if merged.CoverURL == "" || merged.CoverPath != "" {
		o.metrics.IncCover("skipped")
		return nil
	}

	path, err := o.covers.Fetch(ctx, merged.PrimaryIdentifier(), merged.CoverURL)
	if err != nil {
		if source.IsBlocked(err) {
			return err
		}
		var tooLarge covers.TooLargeError
		label := source.OutcomeLabel(err)
		if errors.As(err, &tooLarge) {
			label = "too_large"
		}
		o.metrics.IncCover(label)
		slog.Warn("cover fetch skipped",
			slog.String("isbn", isbn),
			slog.String("url", merged.CoverURL),
			slog.String("outcome", label),
		)
		return nil
	}

	o.metrics.IncCover("ok")
	if err := o.store.SetCover(ctx, isbn, path, merged.CoverURL); err != nil {
		slog.Warn("cover path not recorded", slog.String("isbn", isbn), slog.Any("error", err))
	}
	merged.CoverPath = path
	return nil
}

func (o *Orchestrator) fail(outcome models.ItemOutcome, step string, err error) models.ItemOutcome {
	outcome.State = models.StateFailed
	outcome.Step = step
	outcome.Err = err.Error()
	o.metrics.IncItem(models.StateFailed)
	slog.Error("enrichment failed",
		slog.String("isbn", outcome.ISBN),
		slog.String("step", step),
		slog.Any("error", err),
	)
	return outcome
}
