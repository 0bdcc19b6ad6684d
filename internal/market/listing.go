package market

import (
	"net/url"

	"github.com/acbmarket/feedctl/internal/debounce"
	"github.com/acbmarket/feedctl/internal/feed"
)

// Listing is the market list: a single feed driven by debounced free-text
// search and by structured filters that apply immediately.
type Listing struct {
	*singleFeed
	search *debounce.Emitter
	opts   Options
}

// NewListing builds a listing over src with initial filters.
func NewListing(src feed.Source, filters feed.Filters, opts Options) *Listing {
	opts = opts.withDefaults()
	l := &Listing{
		singleFeed: newSingleFeed(src, filters, opts.sequencer(feed.DefaultPageSize)),
		opts:       opts,
	}
	l.search = debounce.New(opts.Clock, opts.SearchDebounce, l.applySearch)
	return l
}

// Type feeds one keystroke's worth of search text. The query runs once
// typing pauses.
func (l *Listing) Type(text string) {
	l.search.Submit(text)
}

// SubmitSearch runs the pending search now, as pressing Enter does. It
// reports whether something was pending.
func (l *Listing) SubmitSearch() bool {
	return l.search.Flush()
}

// ClearSearch drops any pending keystrokes and clears the search
// immediately.
func (l *Listing) ClearSearch() {
	l.search.CancelPending()
	l.applySearch("")
}

// PendingSearch returns the text waiting for the quiet period, if any.
func (l *Listing) PendingSearch() (string, bool) {
	return l.search.Pending()
}

func (l *Listing) applySearch(text string) {
	if l.change(feed.FilterPatch{Search: &text}) {
		l.opts.Logger.Debug("search applied", "search", text)
	}
}

// SetCategory filters by category; "all" or "" shows every category.
func (l *Listing) SetCategory(category string) bool {
	return l.change(feed.FilterPatch{Category: &category})
}

// SetSort orders the list: volume, newest or ending.
func (l *Listing) SetSort(sort string) bool {
	return l.change(feed.FilterPatch{Sort: &sort})
}

// SetToggle turns a boolean filter such as hide_sports on or off.
func (l *Listing) SetToggle(name string, on bool) bool {
	return l.change(feed.FilterPatch{Toggles: map[string]bool{name: on}})
}

// ApplyQuery replaces the filters with those encoded in a URL query. A
// pending search is dropped since the query carries its own.
func (l *Listing) ApplyQuery(v url.Values) bool {
	l.search.CancelPending()
	return l.replace(feed.ParseFilters(v))
}

// Close stops the search debouncer and cancels in-flight requests.
func (l *Listing) Close() {
	l.search.Close()
	l.seq.Close()
}
