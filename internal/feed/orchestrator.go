package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/acbmarket/feedctl/internal/clock"
)

// TabID names a tab of an Orchestrator.
type TabID string

// Tab declares one tab: its source and initial filters.
type Tab struct {
	ID      TabID
	Source  Source
	Filters Filters
}

// OrchestratorOptions configures an Orchestrator. Sequencer fields apply to
// every tab.
type OrchestratorOptions struct {
	PageSize int
	Launcher Launcher
	Logger   *slog.Logger
	Context  context.Context
	Clock    clock.Clock

	// RefreshAfter, when positive, makes selecting a tab that was loaded
	// longer ago than this issue a background refresh.
	RefreshAfter time.Duration
}

type tabState struct {
	seq *Sequencer
	// resetMu is held from the filter decision through the Reset that
	// applies it, so concurrent changes reach the sequencer in order.
	resetMu sync.Mutex

	filters  Filters
	started  bool
	dirty    bool
	loadedAt time.Time
}

// Orchestrator keeps several independently paginated tabs. Each tab owns a
// Sequencer; nothing done to one tab touches another. Switching tabs never
// cancels a request.
type Orchestrator struct {
	clock        clock.Clock
	refreshAfter time.Duration
	logger       *slog.Logger
	order        []TabID

	mu     sync.Mutex
	tabs   map[TabID]*tabState
	active TabID
}

// NewOrchestrator builds an orchestrator over tabs. It panics on zero tabs
// or duplicate ids.
func NewOrchestrator(opts OrchestratorOptions, tabs ...Tab) *Orchestrator {
	if len(tabs) == 0 {
		panic("feed: NewOrchestrator with no tabs")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	o := &Orchestrator{
		clock:        opts.Clock,
		refreshAfter: opts.RefreshAfter,
		logger:       opts.Logger,
		tabs:         make(map[TabID]*tabState, len(tabs)),
	}
	for _, t := range tabs {
		if _, dup := o.tabs[t.ID]; dup {
			panic(fmt.Sprintf("feed: duplicate tab %q", t.ID))
		}
		o.order = append(o.order, t.ID)
		o.tabs[t.ID] = &tabState{
			seq: NewSequencer(t.Source, SequencerOptions{
				PageSize: opts.PageSize,
				Launcher: opts.Launcher,
				Logger:   opts.Logger.With("tab", string(t.ID)),
				Context:  opts.Context,
			}),
			filters: t.Filters,
		}
	}
	return o
}

// Tabs lists tab ids in declaration order.
func (o *Orchestrator) Tabs() []TabID {
	return append([]TabID(nil), o.order...)
}

// Active returns the selected tab, or "" before the first selection.
func (o *Orchestrator) Active() TabID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// SelectTab makes id the active tab. A tab selected for the first time, or
// whose filters changed since it last loaded, is reset. A loaded tab is
// shown as is unless it went stale.
func (o *Orchestrator) SelectTab(id TabID) error {
	err := o.update(id, func(t *tabState) func() {
		o.active = id
		now := o.clock.Now()
		switch {
		case !t.started || t.dirty:
			return o.resetLocked(t, now)
		case o.refreshAfter > 0 && now.Sub(t.loadedAt) >= o.refreshAfter && !t.seq.State().Loading():
			t.loadedAt = now
			return func() { t.seq.Refresh() }
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("selecting %q: %w", id, ErrUnknownTab)
	}
	return nil
}

// State returns the snapshot of tab id.
func (o *Orchestrator) State(id TabID) (LoadState, error) {
	t, err := o.tab(id)
	if err != nil {
		return LoadState{}, err
	}
	return t.seq.State(), nil
}

// Filters returns the filters tab id will be, or is, loaded with.
func (o *Orchestrator) Filters(id TabID) (Filters, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tabs[id]
	if !ok {
		return Filters{}, fmt.Errorf("tab %q: %w", id, ErrUnknownTab)
	}
	return t.filters, nil
}

// Sequencer returns the sequencer of tab id.
func (o *Orchestrator) Sequencer(id TabID) (*Sequencer, error) {
	t, err := o.tab(id)
	if err != nil {
		return nil, err
	}
	return t.seq, nil
}

// ChangeFilters applies patch to tab id. A patch that leaves the filters
// equal does nothing. The active tab resets immediately; any other tab
// resets the next time it is selected. It reports whether the filters
// changed.
func (o *Orchestrator) ChangeFilters(id TabID, patch FilterPatch) (bool, error) {
	var (
		changed bool
		next    Filters
	)
	err := o.update(id, func(t *tabState) func() {
		next = t.filters.With(patch)
		if next.Equal(t.filters) {
			return nil
		}
		changed = true
		t.filters = next
		return o.resetOrMarkLocked(id, t)
	})
	if err != nil {
		return false, fmt.Errorf("changing filters of %q: %w", id, ErrUnknownTab)
	}
	if changed {
		o.logger.Debug("tab filters changed", "tab", string(id), "filters", next.String())
	}
	return changed, nil
}

// Invalidate discards what tab id has loaded. The active tab resets now;
// any other tab resets on its next selection.
func (o *Orchestrator) Invalidate(id TabID) error {
	err := o.update(id, func(t *tabState) func() {
		return o.resetOrMarkLocked(id, t)
	})
	if err != nil {
		return fmt.Errorf("invalidating %q: %w", id, ErrUnknownTab)
	}
	return nil
}

// LoadMore requests the next page of the active tab.
func (o *Orchestrator) LoadMore() bool {
	t := o.activeTab()
	if t == nil {
		return false
	}
	return t.seq.LoadMore()
}

// Retry re-issues the failed fetch of the active tab.
func (o *Orchestrator) Retry() bool {
	t := o.activeTab()
	if t == nil {
		return false
	}
	return t.seq.Retry()
}

// Refresh reloads page 1 of the active tab in the background, keeping its
// items visible. It does nothing if the tab never loaded or is loading.
func (o *Orchestrator) Refresh() bool {
	o.mu.Lock()
	t := o.tabs[o.active]
	if t == nil || !t.started || t.seq.State().Loading() {
		o.mu.Unlock()
		return false
	}
	t.loadedAt = o.clock.Now()
	o.mu.Unlock()

	t.seq.Refresh()
	return true
}

// Wait blocks until no tab has a fetch in flight.
func (o *Orchestrator) Wait(ctx context.Context) error {
	for _, id := range o.order {
		if err := o.tabs[id].seq.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close cancels in-flight requests of every tab.
func (o *Orchestrator) Close() {
	for _, id := range o.order {
		o.tabs[id].seq.Close()
	}
}

// update runs decide on tab id under o.mu, then runs the action it returns
// while still holding the tab's resetMu. Subscribers of a tab must not
// change that tab's filters from their callback.
func (o *Orchestrator) update(id TabID, decide func(t *tabState) func()) error {
	t, err := o.tab(id)
	if err != nil {
		return err
	}
	t.resetMu.Lock()
	defer t.resetMu.Unlock()

	o.mu.Lock()
	action := decide(t)
	o.mu.Unlock()

	if action != nil {
		action()
	}
	return nil
}

func (o *Orchestrator) resetOrMarkLocked(id TabID, t *tabState) func() {
	if id == o.active && t.started {
		return o.resetLocked(t, o.clock.Now())
	}
	t.dirty = true
	return nil
}

func (o *Orchestrator) resetLocked(t *tabState, now time.Time) func() {
	t.started = true
	t.dirty = false
	t.loadedAt = now
	filters := t.filters
	return func() { t.seq.Reset(filters) }
}

func (o *Orchestrator) tab(id TabID) (*tabState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tabs[id]
	if !ok {
		return nil, fmt.Errorf("tab %q: %w", id, ErrUnknownTab)
	}
	return t, nil
}

func (o *Orchestrator) activeTab() *tabState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tabs[o.active]
}
