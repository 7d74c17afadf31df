package enrich

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"bookenrich/models"
	"bookenrich/ratelimit"
	"bookenrich/report"
	"bookenrich/source"
)

// Stop reasons recorded on a run summary.
const (
	StopCompleted = "completed"
	StopBlocked   = "blocked"
	StopCanceled  = "canceled"
)

// ItemEnricher processes one identifier end to end.
type ItemEnricher interface {
	EnrichOne(ctx context.Context, isbn string) (models.ItemOutcome, error)
}

// RecordReader is the read side of the store the runner consults before
// spending network budget on an identifier.
type RecordReader interface {
	GetByISBN(ctx context.Context, isbn string) (*models.Record, error)
}

// Runner walks a batch of identifiers sequentially. One item in flight at a
// time keeps the pacing contract with upstream hosts honest; a block signal
// from any item aborts the rest of the batch.
type Runner struct {
	enricher ItemEnricher
	reader   RecordReader
	pacer    ratelimit.Limiter
	writer   report.Writer
	metrics  *Metrics
	now      func() time.Time
}

// NewRunner wires a batch runner. writer may be nil when no report file was
// requested; pacer may be nil to disable inter-item pacing.
func NewRunner(enricher ItemEnricher, reader RecordReader, pacer ratelimit.Limiter, writer report.Writer, metrics *Metrics) *Runner {
	if writer == nil {
		writer = report.Discard{}
	}
	return &Runner{
		enricher: enricher,
		reader:   reader,
		pacer:    pacer,
		writer:   writer,
		metrics:  metrics,
		now:      time.Now,
	}
}

// SetClock overrides the time source for tests.
func (r *Runner) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Run processes the identifiers in order and returns the summary. Processed
// counts only items that ran to a terminal state; an item that triggered a
// batch abort is reported but not counted as processed. The returned error
// is the abort cause, nil when the batch ran to the end.
func (r *Runner) Run(ctx context.Context, isbns []string) (models.RunSummary, error) {
	summary := models.RunSummary{
		StartTime:  r.now(),
		StopReason: StopCompleted,
	}
	var runErr error

	seen := make(map[string]struct{}, len(isbns))

	for _, raw := range isbns {
		isbn := strings.TrimSpace(raw)
		if isbn == "" {
			continue
		}
		if _, dup := seen[isbn]; dup {
			continue
		}
		seen[isbn] = struct{}{}

		if err := ctx.Err(); err != nil {
			summary.StopReason = StopCanceled
			runErr = err
			break
		}

		// Already-enriched records are skipped without touching the
		// network, so re-running a batch converges instead of re-fetching.
		existing, err := r.reader.GetByISBN(ctx, isbn)
		if err == nil && existing != nil && existing.LastEnriched != nil {
			outcome := models.ItemOutcome{
				ISBN:        isbn,
				State:       models.StateSkipped,
				AttemptedAt: r.now(),
			}
			r.record(&summary, outcome)
			r.metrics.IncItem(models.StateSkipped)
			continue
		}

		if r.pacer != nil {
			if err := r.pacer.Wait(ctx); err != nil {
				summary.StopReason = StopCanceled
				runErr = err
				break
			}
		}

		outcome, err := r.enricher.EnrichOne(ctx, isbn)
		if err != nil {
			// The aborting item is reported but never counted as
			// processed.
			summary.Outcomes = append(summary.Outcomes, outcome)
			r.writeOutcome(outcome)
			if source.IsBlocked(err) {
				summary.StopReason = StopBlocked
				r.metrics.IncItem(models.StateBlocked)
				r.metrics.IncAbort()
				slog.Warn("batch aborted by upstream block",
					slog.String("isbn", isbn),
					slog.String("step", outcome.Step),
					slog.Int("processed", summary.Processed),
				)
			} else {
				summary.StopReason = StopCanceled
			}
			runErr = err
			break
		}
		r.record(&summary, outcome)
	}

	summary.EndTime = r.now()
	slog.Info("batch run finished",
		slog.Int("processed", summary.Processed),
		slog.Int("enriched", summary.Enriched),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
		slog.String("stop_reason", summary.StopReason),
		slog.Duration("elapsed", summary.EndTime.Sub(summary.StartTime)),
	)
	return summary, runErr
}

func (r *Runner) record(summary *models.RunSummary, outcome models.ItemOutcome) {
	summary.Outcomes = append(summary.Outcomes, outcome)
	summary.Processed++
	switch outcome.State {
	case models.StateEnriched:
		summary.Enriched++
	case models.StateFailed:
		summary.Failed++
	case models.StateSkipped:
		summary.Skipped++
	}
	r.writeOutcome(outcome)
}

func (r *Runner) writeOutcome(outcome models.ItemOutcome) {
	if err := r.writer.Write(outcome); err != nil {
		slog.Warn("report write failed",
			slog.String("isbn", outcome.ISBN),
			slog.Any("error", err),
		)
	}
}
