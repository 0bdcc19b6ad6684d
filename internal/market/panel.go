package market

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/acbmarket/feedctl/internal/derive"
	"github.com/acbmarket/feedctl/internal/feed"
	"github.com/acbmarket/feedctl/internal/remote"
)

// Panel tabs.
const (
	TabComments feed.TabID = "comments"
	TabHolders  feed.TabID = "holders"
	TabActivity feed.TabID = "activity"
)

// Panel is a single market's page: its outcome shares, the comment count,
// and three independently paginated tabs.
type Panel struct {
	*feed.Orchestrator

	client    *remote.Client
	marketID  string
	precision int
	opts      Options

	mu           sync.Mutex
	market       remote.Market
	shares       []derive.Share
	commentCount int
}

// NewPanel builds the panel of marketID. Comments start sorted newest
// first.
func NewPanel(client *remote.Client, marketID string, opts Options) *Panel {
	opts = opts.withDefaults()
	orchOpts := feed.OrchestratorOptions{
		PageSize:     opts.PageSize,
		Launcher:     opts.Launcher,
		Logger:       opts.Logger.With("market", marketID),
		Context:      opts.Context,
		Clock:        opts.Clock,
		RefreshAfter: opts.RefreshAfter,
	}
	orch := feed.NewOrchestrator(orchOpts,
		feed.Tab{ID: TabComments, Source: remote.NewCommentsSource(client, marketID), Filters: feed.NewFilters("", "", "newest")},
		feed.Tab{ID: TabHolders, Source: remote.NewHoldersSource(client, marketID)},
		feed.Tab{ID: TabActivity, Source: remote.NewActivitySource(client, marketID)},
	)
	return &Panel{
		Orchestrator: orch,
		client:       client,
		marketID:     marketID,
		precision:    opts.Precision,
		opts:         opts,
	}
}

// Open fetches the market and its comment count concurrently, then shows
// the comments tab.
func (p *Panel) Open(ctx context.Context) error {
	var (
		m     remote.Market
		count int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		m, err = p.client.Market(gctx, p.marketID)
		return err
	})
	g.Go(func() error {
		var err error
		count, err = p.client.CommentCount(gctx, p.marketID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("opening market %s: %w", p.marketID, err)
	}

	p.mu.Lock()
	p.market = m
	p.shares = derive.Percentages(remote.MarketTallies(m), p.precision)
	p.commentCount = count
	p.mu.Unlock()

	return p.SelectTab(TabComments)
}

// Market returns the market loaded by Open with its outcome shares.
func (p *Panel) Market() (remote.Market, []derive.Share) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.market, append([]derive.Share(nil), p.shares...)
}

// CommentCount returns the last known number of comments.
func (p *Panel) CommentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commentCount
}

// SetCommentSort orders the comments tab: newest or oldest.
func (p *Panel) SetCommentSort(sort string) error {
	_, err := p.ChangeFilters(TabComments, feed.FilterPatch{Sort: &sort})
	return err
}

// SetHoldersOnly restricts comments to users holding a position.
func (p *Panel) SetHoldersOnly(on bool) error {
	_, err := p.ChangeFilters(TabComments, feed.FilterPatch{Toggles: map[string]bool{remote.ToggleHoldersOnly: on}})
	return err
}

// PostComment posts a comment, or a reply when parentID is set, then
// reloads the comments tab and the count.
func (p *Panel) PostComment(ctx context.Context, content, parentID string) (remote.Comment, error) {
	if !p.client.IsAuthenticated() {
		return remote.Comment{}, ErrNotAuthenticated
	}
	c, err := p.client.PostComment(ctx, p.marketID, content, parentID)
	if err != nil {
		return remote.Comment{}, err
	}
	if err := p.Invalidate(TabComments); err != nil {
		return c, err
	}

	count, err := p.client.CommentCount(ctx, p.marketID)
	if err != nil {
		p.opts.Logger.Warn("refreshing comment count", "market", p.marketID, "error", err)
		return c, nil
	}
	p.mu.Lock()
	p.commentCount = count
	p.mu.Unlock()
	return c, nil
}
