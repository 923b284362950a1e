package changeset

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/whatdidyoudo/pkg/osm"
	"github.com/rs/zerolog"
)

const (
	// DefaultPageSize is the OSM API cap on /changesets results.
	DefaultPageSize = 100

	// DefaultMaxDepth bounds the number of pages fetched per listing.
	DefaultMaxDepth = 50
)

// ChangesetSource lists a user's changesets in a window, newest first, at
// most one page per call.
type ChangesetSource interface {
	Changesets(ctx context.Context, user string, start, end time.Time, cacheResult bool) (*osm.ChangesetList, error)
}

// PaginatorConfig holds the pagination limits.
type PaginatorConfig struct {
	// PageSize is the number of results at which a page counts as full
	PageSize int

	// MaxDepth is the maximum number of pages fetched for one listing
	MaxDepth int
}

// DefaultPaginatorConfig returns the limits of the public OSM API.
func DefaultPaginatorConfig() PaginatorConfig {
	return PaginatorConfig{
		PageSize: DefaultPageSize,
		MaxDepth: DefaultMaxDepth,
	}
}

// Paginator lists all changesets of a user inside a window.
type Paginator struct {
	source ChangesetSource
	config PaginatorConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewPaginator creates a paginator over source.
func NewPaginator(source ChangesetSource, config PaginatorConfig, logger zerolog.Logger) *Paginator {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = DefaultMaxDepth
	}

	return &Paginator{
		source: source,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// List returns user's changesets created inside [start, end), newest first,
// and a non-empty warning if the listing stopped at the depth cap.
//
// A full page means the window is not exhausted: the next page is queried
// with the end moved to one second before the oldest changeset received.
// A query is cacheable only if its end lies in the past. Any fetch error
// aborts the listing.
func (p *Paginator) List(ctx context.Context, user string, start, end time.Time) ([]osm.Changeset, string, error) {
	changesets, warning, pages, err := p.list(ctx, user, start, end, 0)
	if err != nil {
		return nil, "", err
	}

	paginationPages.Observe(float64(pages))
	p.logger.Debug().
		Str("user", user).
		Int("pages", pages).
		Int("changesets", len(changesets)).
		Msg("Listed changesets")

	return changesets, warning, nil
}

func (p *Paginator) list(ctx context.Context, user string, start, end time.Time, depth int) ([]osm.Changeset, string, int, error) {
	cacheResult := Window{Start: start, End: end}.EndsBefore(p.now())

	page, err := p.source.Changesets(ctx, user, start, end, cacheResult)
	if err != nil {
		return nil, "", depth + 1, fmt.Errorf("list changesets of %s (page %d): %w", user, depth+1, err)
	}

	changesets := page.Changesets
	if len(changesets) < p.config.PageSize {
		return changesets, "", depth + 1, nil
	}

	if depth+1 >= p.config.MaxDepth {
		paginationTruncatedTotal.Inc()
		p.logger.Warn().
			Str("user", user).
			Int("pages", depth+1).
			Time("reached", changesets[len(changesets)-1].CreatedAt).
			Msg("Pagination depth cap reached - results incomplete")

		warning := fmt.Sprintf("Results may be incomplete: stopped after %d pages of %d changesets "+
			"(reached %s); try a shorter time range.",
			depth+1, p.config.PageSize, changesets[len(changesets)-1].CreatedAt.UTC().Format(time.RFC3339))
		return changesets, warning, depth + 1, nil
	}

	nextEnd := changesets[len(changesets)-1].CreatedAt.Add(-time.Second)
	if nextEnd.Before(start) {
		return changesets, "", depth + 1, nil
	}

	p.logger.Debug().
		Str("user", user).
		Int("page", depth+1).
		Time("next_end", nextEnd).
		Msg("Page full, continuing with earlier window")

	tail, warning, pages, err := p.list(ctx, user, start, nextEnd, depth+1)
	if err != nil {
		return nil, "", pages, err
	}

	return append(changesets, tail...), warning, pages, nil
}
