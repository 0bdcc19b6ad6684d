package market

import (
	"github.com/acbmarket/feedctl/internal/feed"
	"github.com/acbmarket/feedctl/internal/remote"
)

// LeaderboardPageSize is the leaderboard's page size.
const LeaderboardPageSize = 50

// Leaderboard is the ranked user list filtered by period and category.
type Leaderboard struct {
	*singleFeed
}

// NewLeaderboard builds a leaderboard starting at the global period over
// all categories. Its page size is always LeaderboardPageSize.
func NewLeaderboard(client *remote.Client, opts Options) *Leaderboard {
	opts = opts.withDefaults()
	opts.PageSize = LeaderboardPageSize
	src := remote.NewLeaderboardSource(client)
	return &Leaderboard{
		singleFeed: newSingleFeed(src, feed.NewFilters("", "all", "global"), opts.sequencer(LeaderboardPageSize)),
	}
}

// SetPeriod selects global, weekly or monthly rankings.
func (l *Leaderboard) SetPeriod(period string) bool {
	return l.change(feed.FilterPatch{Sort: &period})
}

// SetCategory restricts rankings to one market category.
func (l *Leaderboard) SetCategory(category string) bool {
	return l.change(feed.FilterPatch{Category: &category})
}

// UserRank returns the caller's own row, shown apart from the list. It
// comes from the response the feed currently shows, never a stale one.
func (l *Leaderboard) UserRank() (remote.LeaderboardEntry, bool) {
	return remote.UserRank(l.State())
}
