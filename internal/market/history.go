package market

import (
	"github.com/acbmarket/feedctl/internal/feed"
	"github.com/acbmarket/feedctl/internal/remote"
)

// History is a user's forecast history.
type History struct {
	*singleFeed
}

// NewHistory builds the forecast history of userID showing every status.
func NewHistory(client *remote.Client, userID string, opts Options) *History {
	opts = opts.withDefaults()
	src := remote.NewForecastsSource(client, userID)
	return &History{singleFeed: newSingleFeed(src, feed.NewFilters("", "all", ""), opts.sequencer(feed.DefaultPageSize))}
}

// SetStatus filters by all, pending, won or lost.
func (h *History) SetStatus(status string) bool {
	return h.change(feed.FilterPatch{Category: &status})
}
