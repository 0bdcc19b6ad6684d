package market

import (
	"github.com/acbmarket/feedctl/internal/feed"
	"github.com/acbmarket/feedctl/internal/remote"
)

// Thread pages through the replies of one comment, oldest first.
type Thread struct {
	*singleFeed
	ParentID string
}

// Thread builds the reply feed of commentID. Call Open to load it.
func (p *Panel) Thread(commentID string) *Thread {
	src := remote.NewRepliesSource(p.client, p.marketID, commentID)
	return &Thread{
		singleFeed: newSingleFeed(src, feed.NewFilters("", "", "oldest"), p.opts.sequencer(feed.DefaultPageSize)),
		ParentID:   commentID,
	}
}

// Close cancels in-flight requests.
func (t *Thread) Close() { t.seq.Close() }
