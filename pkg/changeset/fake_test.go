package changeset

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/whatdidyoudo/pkg/osm"
)

type listCall struct {
	start, end  time.Time
	cacheResult bool
}

// fakeSource serves an in-memory changeset history with the OSM paging
// rules: newest first, at most pageSize per call, both bounds inclusive.
type fakeSource struct {
	mu         sync.Mutex
	changesets []osm.Changeset
	pageSize   int
	calls      []listCall
	failOnCall int // 1-based; 0 never fails
	failWith   error

	diffs      map[string]int
	diffErrs   map[string]error
	diffCached map[string]bool
}

func newFakeSource(pageSize int) *fakeSource {
	return &fakeSource{
		pageSize:   pageSize,
		diffs:      make(map[string]int),
		diffErrs:   make(map[string]error),
		diffCached: make(map[string]bool),
	}
}

// addHistory adds n closed changesets created step apart from start.
func (f *fakeSource) addHistory(editor string, start time.Time, n int, step time.Duration, changes int) {
	for i := 0; i < n; i++ {
		f.add(editor, start.Add(time.Duration(i)*step), true, changes)
	}
}

func (f *fakeSource) add(editor string, created time.Time, closed bool, changes int) osm.Changeset {
	cs := osm.Changeset{
		ID:        fmt.Sprintf("%d", 1000+len(f.changesets)),
		CreatedAt: created,
	}
	if closed {
		closedAt := created.Add(time.Minute)
		cs.ClosedAt = &closedAt
	}
	if editor != "" {
		cs.Tags = []osm.Tag{{Key: "created_by", Value: editor}}
	}
	f.changesets = append(f.changesets, cs)
	f.diffs[cs.ID] = changes
	return cs
}

func (f *fakeSource) Changesets(_ context.Context, _ string, start, end time.Time, cacheResult bool) (*osm.ChangesetList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, listCall{start: start, end: end, cacheResult: cacheResult})
	if f.failOnCall > 0 && len(f.calls) == f.failOnCall {
		return nil, f.failWith
	}

	var matched []osm.Changeset
	for _, cs := range f.changesets {
		if !cs.CreatedAt.Before(start) && !cs.CreatedAt.After(end) {
			matched = append(matched, cs)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if len(matched) > f.pageSize {
		matched = matched[:f.pageSize]
	}
	return &osm.ChangesetList{Changesets: matched}, nil
}

func (f *fakeSource) Diff(ctx context.Context, id string, cacheResult bool) (*osm.Diff, error) {
	if err := ctx.Err(); err != nil {
		return nil, &osm.TransportError{URL: id, Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.diffCached[id] = cacheResult
	if err := f.diffErrs[id]; err != nil {
		return nil, err
	}

	action := osm.DiffAction{}
	for i := 0; i < f.diffs[id]; i++ {
		action.Elements = append(action.Elements, osm.DiffElement{ID: fmt.Sprintf("%d", i)})
	}
	return &osm.Diff{Actions: []osm.DiffAction{action}}, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
