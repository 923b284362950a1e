package changeset

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Sternrassler/whatdidyoudo/pkg/osm"
	"github.com/rs/zerolog"
)

// DiffSource downloads a changeset's diff.
type DiffSource interface {
	Diff(ctx context.Context, id string, cacheResult bool) (*osm.Diff, error)
}

// Source is the OSM API surface the aggregation pipeline needs.
type Source interface {
	ChangesetSource
	DiffSource
}

// AggregatorConfig holds aggregation settings.
type AggregatorConfig struct {
	// DiffWorkers is the number of diffs fetched in parallel; 1 fetches
	// them one after another
	DiffWorkers int
}

// DefaultAggregatorConfig returns sequential diff fetching.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{DiffWorkers: 1}
}

// Result is one user's aggregation.
type Result struct {
	User    string  `json:"user"`
	Window  Window  `json:"window"`
	Editors Editors `json:"editors"`

	// ChangesetIDs lists the contributing changesets in listing order.
	ChangesetIDs []string `json:"changeset_ids"`

	// Message is set when the result may be incomplete.
	Message string `json:"message,omitempty"`

	// SkippedDiffs lists changesets whose diff could not be fetched; they
	// count towards Changesets but not Changes.
	SkippedDiffs []string `json:"skipped_diffs,omitempty"`
}

// Aggregator tallies per-editor changes of a user.
type Aggregator struct {
	paginator *Paginator
	diffs     DiffSource
	config    AggregatorConfig
	logger    zerolog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(paginator *Paginator, diffs DiffSource, config AggregatorConfig, logger zerolog.Logger) *Aggregator {
	if config.DiffWorkers <= 0 {
		config.DiffWorkers = 1
	}

	return &Aggregator{
		paginator: paginator,
		diffs:     diffs,
		config:    config,
		logger:    logger,
	}
}

// Aggregate lists user's changesets inside w and counts, per editor, the
// changesets and the element edits in their diffs.
//
// A listing failure is returned as an error. A diff that cannot be fetched
// is skipped: its changeset still counts for the editor but adds no edits.
func (a *Aggregator) Aggregate(ctx context.Context, user string, w Window) (*Result, error) {
	startTime := time.Now()
	defer func() {
		aggregationDuration.Observe(time.Since(startTime).Seconds())
	}()

	changesets, warning, err := a.paginator.List(ctx, user, w.Start, w.End)
	if err != nil {
		aggregationsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	result := &Result{
		User:         user,
		Window:       w,
		Editors:      Editors{},
		ChangesetIDs: make([]string, 0, len(changesets)),
		Message:      warning,
	}

	for _, cs := range changesets {
		result.ChangesetIDs = append(result.ChangesetIDs, cs.ID)
		result.Editors.Get(cs.Editor()).Changesets++
	}

	var skipped []int
	for outcome := range a.fetchDiffs(ctx, changesets) {
		cs := changesets[outcome.index]

		if outcome.err != nil {
			if ctx.Err() != nil {
				continue
			}
			class := osm.Classify(outcome.err)
			if class == "" {
				class = "unknown"
			}
			diffFailuresTotal.WithLabelValues(string(class)).Inc()
			a.logger.Warn().
				Err(outcome.err).
				Str("user", user).
				Str("changeset", cs.ID).
				Msg("Skipping changeset diff")
			skipped = append(skipped, outcome.index)
			continue
		}

		result.Editors.Get(cs.Editor()).Changes += outcome.count
	}

	if err := ctx.Err(); err != nil {
		aggregationsTotal.WithLabelValues("cancelled").Inc()
		return nil, fmt.Errorf("aggregate changes of %s: %w", user, err)
	}

	sort.Ints(skipped)
	for _, i := range skipped {
		result.SkippedDiffs = append(result.SkippedDiffs, changesets[i].ID)
	}

	outcomeLabel := "complete"
	if result.Message != "" || len(result.SkippedDiffs) > 0 {
		outcomeLabel = "partial"
	}
	aggregationsTotal.WithLabelValues(outcomeLabel).Inc()

	total := result.Editors.Total()
	a.logger.Info().
		Str("user", user).
		Str("window", w.String()).
		Int("changesets", total.Changesets).
		Int("changes", total.Changes).
		Int("skipped_diffs", len(result.SkippedDiffs)).
		Dur("duration", time.Since(startTime)).
		Msg("Aggregation complete")

	return result, nil
}
