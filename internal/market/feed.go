// Package market holds the application controllers of the client: the
// market listing with debounced search, the per-market panel, the
// leaderboard and a user's forecast history.
package market

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/acbmarket/feedctl/internal/clock"
	"github.com/acbmarket/feedctl/internal/feed"
)

// ErrNotAuthenticated is returned by actions that need a session.
var ErrNotAuthenticated = errors.New("login required")

// Options are shared by every controller.
type Options struct {
	PageSize  int
	Precision int
	Launcher  feed.Launcher
	Clock     clock.Clock
	Logger    *slog.Logger
	Context   context.Context

	// SearchDebounce is the quiet period of free-text search.
	SearchDebounce time.Duration
	// RefreshAfter makes reselecting a stale panel tab refresh it.
	RefreshAfter time.Duration
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) sequencer(pageSize int) feed.SequencerOptions {
	if o.PageSize > 0 {
		pageSize = o.PageSize
	}
	return feed.SequencerOptions{
		PageSize: pageSize,
		Launcher: o.Launcher,
		Logger:   o.Logger,
		Context:  o.Context,
	}
}

// singleFeed is one sequencer plus the filters it is driven with. Callers
// subscribed to its sequencer must not change its filters from the
// callback.
type singleFeed struct {
	seq *feed.Sequencer

	// resetMu spans a filter update and the Reset that applies it.
	resetMu sync.Mutex

	mu      sync.Mutex
	filters feed.Filters
	opened  bool
}

func newSingleFeed(src feed.Source, filters feed.Filters, opts feed.SequencerOptions) *singleFeed {
	return &singleFeed{seq: feed.NewSequencer(src, opts), filters: filters}
}

// Open loads the first page under the current filters.
func (f *singleFeed) Open() {
	f.update(func(feed.Filters) (feed.Filters, bool) { return feed.Filters{}, false }, true)
}

// change applies patch and resets when the filters actually changed and
// the feed is open.
func (f *singleFeed) change(patch feed.FilterPatch) bool {
	return f.update(func(cur feed.Filters) (feed.Filters, bool) {
		next := cur.With(patch)
		return next, !next.Equal(cur)
	}, false)
}

func (f *singleFeed) replace(filters feed.Filters) bool {
	return f.update(func(cur feed.Filters) (feed.Filters, bool) {
		return filters, !filters.Equal(cur)
	}, false)
}

// update stores the filters computed by next and resets the sequencer
// with them before another update can run. open forces a reset with the
// current filters and marks the feed opened.
func (f *singleFeed) update(next func(feed.Filters) (feed.Filters, bool), open bool) bool {
	f.resetMu.Lock()
	defer f.resetMu.Unlock()

	f.mu.Lock()
	filters, changed := next(f.filters)
	if changed {
		f.filters = filters
	}
	if open {
		f.opened = true
	}
	filters, opened := f.filters, f.opened
	f.mu.Unlock()

	if open || (changed && opened) {
		f.seq.Reset(filters)
	}
	return changed
}

// Filters returns the current filters.
func (f *singleFeed) Filters() feed.Filters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters
}

// Query encodes the filters for a URL.
func (f *singleFeed) Query() url.Values { return f.Filters().Values() }

func (f *singleFeed) State() feed.LoadState          { return f.seq.State() }
func (f *singleFeed) LoadMore() bool                 { return f.seq.LoadMore() }
func (f *singleFeed) Retry() bool                    { return f.seq.Retry() }
func (f *singleFeed) Wait(ctx context.Context) error { return f.seq.Wait(ctx) }
func (f *singleFeed) Sequencer() *feed.Sequencer     { return f.seq }

// Refresh reloads page 1 in the background when idle.
func (f *singleFeed) Refresh() bool {
	if !f.seq.Started() || f.seq.State().Loading() {
		return false
	}
	f.seq.Refresh()
	return true
}
