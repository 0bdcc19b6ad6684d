package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/acbmarket/feedctl/internal/derive"
	"github.com/acbmarket/feedctl/internal/feed"
	"github.com/acbmarket/feedctl/internal/remote"
)

// pager is a feed a one-shot command can page through.
type pager interface {
	State() feed.LoadState
	LoadMore() bool
	Wait(ctx context.Context) error
}

// loadPages waits for the first page, then loads up to pages pages in
// total. A failed fetch ends paging; the error stays in the state.
func loadPages(ctx context.Context, p pager, pages int) (feed.LoadState, error) {
	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	if err := p.Wait(ctx); err != nil {
		return p.State(), fmt.Errorf("waiting for page: %w", err)
	}
	for i := 1; i < pages; i++ {
		if !p.LoadMore() {
			break
		}
		if err := p.Wait(ctx); err != nil {
			return p.State(), fmt.Errorf("waiting for page: %w", err)
		}
		if p.State().Err != nil {
			break
		}
	}
	return p.State(), nil
}

// tabPager pages one tab of an orchestrator-backed controller.
type tabPager struct {
	tabs interface {
		State(id feed.TabID) (feed.LoadState, error)
		LoadMore() bool
		Wait(ctx context.Context) error
	}
	id feed.TabID
}

func (t tabPager) State() feed.LoadState {
	st, _ := t.tabs.State(t.id)
	return st
}

func (t tabPager) LoadMore() bool                 { return t.tabs.LoadMore() }
func (t tabPager) Wait(ctx context.Context) error { return t.tabs.Wait(ctx) }

func printFeed(w io.Writer, st feed.LoadState) {
	if len(st.Items) == 0 && st.Err == nil {
		fmt.Fprintln(w, "No results.")
	}
	for _, it := range st.Items {
		fmt.Fprintln(w, renderItem(it))
	}
	if len(st.Items) > 0 {
		more := ""
		if st.HasMore {
			more = ", more available"
		}
		fmt.Fprintf(w, "%s\n", stepColor.Sprintf("showing %d of %d (page %d%s)", len(st.Items), st.TotalCount, st.Page, more))
	}
	if st.Err != nil {
		fmt.Fprintln(w, errorColor.Sprintf("error loading page %d: %s", st.Err.Page, st.Err.Message))
	}
}

func renderItem(it feed.Item) string {
	switch v := it.Payload.(type) {
	case remote.Market:
		return fmt.Sprintf("%s  %s [%s]  %s", boldColor.Sprint(v.ID), v.Title, v.Category, formatShares(it.Shares))
	case remote.Comment:
		return renderComment(v, 0)
	case remote.Holder:
		return fmt.Sprintf("%-24s %-12s %10.0f pts", v.DisplayName, v.OutcomeName, v.Points)
	case remote.Activity:
		who := v.UserDisplayName
		if who == "" {
			who = v.UserID
		}
		return fmt.Sprintf("%s  %-10s %s", v.CreatedAt, v.ActivityType, who)
	case remote.LeaderboardEntry:
		return formatRank(v)
	case remote.Forecast:
		title := v.MarketTitle
		if title == "" {
			title = v.MarketID
		}
		return fmt.Sprintf("%-8s %s  %s  %.0f pts", v.Status, title, v.OutcomeName, v.Points)
	default:
		return it.ID
	}
}

// renderComment prints c and its nested replies, two spaces further in per
// level.
func renderComment(c remote.Comment, depth int) string {
	indent := strings.Repeat("  ", depth)
	text := c.Text
	if text == "" {
		text = c.Content
	}
	line := fmt.Sprintf("%s%s  %s: %s", indent, c.CreatedAt, boldColor.Sprint(c.User.DisplayName), truncate(text, 200))
	if c.LikeCount > 0 {
		line += fmt.Sprintf(" (%d likes)", c.LikeCount)
	}
	if len(c.Links) > 0 {
		line += "\n" + indent + "    " + warningColor.Sprintf("external links: %s", strings.Join(c.Links, " "))
	}
	for _, r := range c.Replies {
		line += "\n" + renderComment(r, depth+1)
	}
	if len(c.Replies) < c.ReplyCount {
		line += "\n" + indent + "  " + stepColor.Sprintf("%d replies: feedctl market %s --thread %s", c.ReplyCount, c.MarketID, c.ID)
	}
	return line
}

func formatRank(e remote.LeaderboardEntry) string {
	return fmt.Sprintf("#%-4d %-24s %8.1f", e.Rank, e.DisplayName, e.RankScore)
}

func formatShares(shares []derive.Share) string {
	parts := make([]string, 0, len(shares))
	for _, s := range shares {
		parts = append(parts, fmt.Sprintf("%s %s%%", s.Label, formatPercent(s.Percent)))
	}
	return strings.Join(parts, " · ")
}

func formatPercent(p float64) string {
	s := fmt.Sprintf("%.6f", p)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
