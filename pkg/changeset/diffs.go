package changeset

import (
	"context"
	"sync"

	"github.com/Sternrassler/whatdidyoudo/pkg/osm"
)

// diffOutcome is the result of fetching one changeset's diff.
type diffOutcome struct {
	index int
	count int
	err   error
}

// fetchDiffs downloads the diffs of changesets with a pool of DiffWorkers
// workers. The returned channel yields one outcome per changeset that was
// attempted and is closed when all workers are done. With one worker the
// outcomes arrive in listing order.
func (a *Aggregator) fetchDiffs(ctx context.Context, changesets []osm.Changeset) <-chan diffOutcome {
	workers := a.config.DiffWorkers
	if workers > len(changesets) {
		workers = len(changesets)
	}

	queue := make(chan int)
	outcomes := make(chan diffOutcome, workers)

	go func() {
		defer close(queue)
		for i := range changesets {
			select {
			case queue <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			a.diffWorker(ctx, changesets, queue, outcomes, workerID)
		}(w)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	return outcomes
}

// diffWorker processes changeset indexes from the queue.
func (a *Aggregator) diffWorker(ctx context.Context, changesets []osm.Changeset, queue <-chan int, outcomes chan<- diffOutcome, workerID int) {
	processed := 0

	for i := range queue {
		cs := changesets[i]

		// Diffs of open changesets can still grow and are never cached.
		diff, err := a.diffs.Diff(ctx, cs.ID, cs.Closed())

		outcome := diffOutcome{index: i, err: err}
		if err == nil {
			outcome.count = diff.ElementCount()
		}

		select {
		case outcomes <- outcome:
		case <-ctx.Done():
			a.logger.Debug().
				Int("worker_id", workerID).
				Int("diffs_processed", processed).
				Msg("Diff worker stopping (context cancelled)")
			return
		}
		processed++
	}

	if processed > 0 {
		a.logger.Debug().
			Int("worker_id", workerID).
			Int("diffs_processed", processed).
			Msg("Diff worker completed")
	}
}
