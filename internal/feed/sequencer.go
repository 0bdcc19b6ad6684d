package feed

import (
	"context"
	"log/slog"
	"sync"
)

// Launcher dispatches a fetch. The default runs each fetch on its own
// goroutine; tests substitute a queue to control arrival order.
type Launcher func(fetch func())

// SequencerOptions configures a Sequencer.
type SequencerOptions struct {
	PageSize int
	Launcher Launcher
	Logger   *slog.Logger
	// Context is the parent of every request context. Defaults to
	// context.Background().
	Context context.Context
}

// Sequencer owns the paginated state of one source. Every Reset starts a
// new generation; responses tagged with an older generation are dropped.
// Page fetches within a generation are serialized.
type Sequencer struct {
	src      Source
	pageSize int
	launch   Launcher
	logger   *slog.Logger
	parent   context.Context

	mu      sync.Mutex
	state   LoadState
	started bool
	applied map[int]bool
	seen    map[string]bool
	genCtx  context.Context
	cancel  context.CancelFunc

	// pending counts launched fetches of any generation that have not
	// reported back yet; idle is closed when it drops to zero.
	pending int
	idle    chan struct{}

	subs    map[int]func(LoadState)
	nextSub int
}

// NewSequencer returns a Sequencer for src. It panics if src is nil.
func NewSequencer(src Source, opts SequencerOptions) *Sequencer {
	if src == nil {
		panic("feed: NewSequencer with nil source")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Launcher == nil {
		opts.Launcher = func(fetch func()) { go fetch() }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	return &Sequencer{
		src:      src,
		pageSize: opts.PageSize,
		launch:   opts.Launcher,
		logger:   opts.Logger.With("source", string(src.ID())),
		parent:   opts.Context,
		state:    LoadState{Source: src.ID(), Items: []Item{}},
		applied:  map[int]bool{},
		seen:     map[string]bool{},
		subs:     map[int]func(LoadState){},
	}
}

// Source returns the sequencer's source.
func (s *Sequencer) Source() Source { return s.src }

// PageSize returns the configured page size.
func (s *Sequencer) PageSize() int { return s.pageSize }

// Started reports whether Reset has been called at least once.
func (s *Sequencer) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Reset discards all items, starts a new generation under filters and
// requests page 1. The previous generation's request is cancelled on a
// best-effort basis; its response is discarded either way.
func (s *Sequencer) Reset(filters Filters) uint64 {
	s.mu.Lock()
	s.started = true
	gen := s.state.Generation + 1
	s.state = LoadState{
		Source:           s.src.ID(),
		Items:            []Item{},
		IsLoadingInitial: true,
		Generation:       gen,
		Filters:          filters,
	}
	s.applied = map[int]bool{}
	s.seen = map[string]bool{}
	ctx := s.renewContextLocked()
	fetch := s.prepareLocked(ctx, gen, 1, filters)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("feed reset", "generation", gen, "filters", filters.String())
	s.notify(snap)
	s.launch(fetch)
	return gen
}

// Refresh starts a new generation at page 1 under the current filters
// while leaving the current items visible. It returns 0 if the sequencer
// was never reset.
func (s *Sequencer) Refresh() uint64 {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return 0
	}
	gen := s.state.Generation + 1
	s.state.Generation = gen
	s.state.IsLoadingInitial = false
	s.state.IsLoadingMore = false
	s.state.IsRefreshing = true
	s.state.Err = nil
	s.applied = map[int]bool{}
	filters := s.state.Filters
	ctx := s.renewContextLocked()
	fetch := s.prepareLocked(ctx, gen, 1, filters)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("feed refresh", "generation", gen)
	s.notify(snap)
	s.launch(fetch)
	return gen
}

// LoadMore requests the next page. It does nothing and returns false when
// there is nothing more to load, when the feed was never reset, or when a
// fetch for the current generation is still in flight.
func (s *Sequencer) LoadMore() bool {
	s.mu.Lock()
	if !s.started || !s.state.HasMore || s.state.Loading() {
		s.mu.Unlock()
		return false
	}
	page := s.state.Page + 1
	s.state.IsLoadingMore = true
	s.state.Err = nil
	fetch := s.prepareLocked(s.genCtx, s.state.Generation, page, s.state.Filters)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	s.launch(fetch)
	return true
}

// Retry re-issues the page whose fetch failed last. It returns false if
// the feed is not in an error state or is loading.
func (s *Sequencer) Retry() bool {
	s.mu.Lock()
	errInfo := s.state.Err
	if errInfo == nil || s.state.Loading() {
		s.mu.Unlock()
		return false
	}
	filters := s.state.Filters
	hasItems := len(s.state.Items) > 0
	s.mu.Unlock()

	switch {
	case errInfo.Page > 1:
		return s.LoadMore()
	case hasItems:
		s.Refresh()
	default:
		s.Reset(filters)
	}
	return true
}

// OnPageArrived applies a fetched page. Responses from an older generation
// are dropped. Page 1 replaces the items; later pages append, skipping IDs
// already present. A page number already applied is ignored.
func (s *Sequencer) OnPageArrived(gen uint64, page int, items []Item, total int) {
	s.applyPage(gen, page, Page{Items: items, TotalCount: total})
}

func (s *Sequencer) applyPage(gen uint64, page int, p Page) {
	items, total := p.Items, p.TotalCount
	s.mu.Lock()
	if gen != s.state.Generation {
		current := s.state.Generation
		s.mu.Unlock()
		s.logger.Debug("discarding stale page", "generation", gen, "current", current, "page", page)
		return
	}
	if s.applied[page] {
		s.mu.Unlock()
		s.logger.Debug("page already applied", "generation", gen, "page", page)
		return
	}

	if page <= 1 {
		s.applied = map[int]bool{}
		s.seen = map[string]bool{}
		s.state.Items = []Item{}
	}
	s.applied[page] = true
	for _, it := range items {
		if s.seen[it.ID] {
			continue
		}
		s.seen[it.ID] = true
		s.state.Items = append(s.state.Items, it)
	}
	if page > s.state.Page || page <= 1 {
		s.state.Page = page
	}
	if page <= 1 || p.Meta != nil {
		s.state.Meta = p.Meta
	}
	s.state.TotalCount = total
	s.state.HasMore = len(s.state.Items) < total && len(items) > 0
	s.state.IsLoadingInitial = false
	s.state.IsLoadingMore = false
	s.state.IsRefreshing = false
	s.state.Err = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// OnPageFailed records a fetch failure for the current generation. Items
// already shown are kept.
func (s *Sequencer) OnPageFailed(gen uint64, page int, err error) {
	s.mu.Lock()
	if gen != s.state.Generation {
		s.mu.Unlock()
		s.logger.Debug("discarding stale failure", "generation", gen, "page", page, "error", err)
		return
	}
	s.state.Err = newErrorInfo(page, err)
	s.state.IsLoadingInitial = false
	s.state.IsLoadingMore = false
	s.state.IsRefreshing = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Warn("page fetch failed", "generation", gen, "page", page, "error", err)
	s.notify(snap)
}

// State returns a snapshot of the feed. The returned slices are copies.
func (s *Sequencer) State() LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every state change.
// Callbacks run outside the sequencer's lock.
func (s *Sequencer) Subscribe(fn func(LoadState)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Wait blocks until no fetch of any generation is in flight.
func (s *Sequencer) Wait(ctx context.Context) error {
	s.mu.Lock()
	if s.pending == 0 {
		s.mu.Unlock()
		return nil
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels any in-flight request.
func (s *Sequencer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Sequencer) renewContextLocked() context.Context {
	if s.cancel != nil {
		s.cancel()
	}
	// The generation's context lives until the next reset or refresh.
	s.genCtx, s.cancel = context.WithCancel(s.parent)
	return s.genCtx
}

func (s *Sequencer) prepareLocked(ctx context.Context, gen uint64, page int, filters Filters) func() {
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
	return func() {
		defer s.done()
		p, err := s.src.FetchPage(ctx, filters, page, s.pageSize)
		if err != nil {
			s.OnPageFailed(gen, page, err)
			return
		}
		s.applyPage(gen, page, p)
	}
}

func (s *Sequencer) done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	if s.pending == 0 && s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
}

func (s *Sequencer) snapshotLocked() LoadState {
	snap := s.state
	snap.Items = make([]Item, len(s.state.Items))
	copy(snap.Items, s.state.Items)
	snap.Filters.Toggles = append([]string(nil), s.state.Filters.Toggles...)
	if s.state.Err != nil {
		errCopy := *s.state.Err
		snap.Err = &errCopy
	}
	return snap
}

func (s *Sequencer) notify(snap LoadState) {
	s.mu.Lock()
	fns := make([]func(LoadState), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
