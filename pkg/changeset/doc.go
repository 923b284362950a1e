// Package changeset answers "what did user U change during window W?".
//
// The Paginator lists every changeset of a user inside a window. The OSM API
// returns at most 100 changesets per call, newest first, so a full page is
// followed by another query whose end is one second before the oldest
// changeset seen so far. The walk stops after a bounded number of pages and
// reports a warning instead of failing.
//
// The Aggregator downloads each changeset's diff and tallies, per editor
// (the created_by tag), how many changesets and element edits it produced.
// A diff that cannot be fetched only loses that changeset's edit count.
//
// Example usage:
//
//	w, err := changeset.NormalizeWindow("2026-01-02", "", time.Now())
//	paginator := changeset.NewPaginator(osmClient, changeset.DefaultPaginatorConfig(), logger)
//	aggregator := changeset.NewAggregator(paginator, osmClient, changeset.DefaultAggregatorConfig(), logger)
//	result, err := aggregator.Aggregate(ctx, "rompe", w)
package changeset
