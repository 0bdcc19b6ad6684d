package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acbmarket/feedctl/internal/derive"
	"github.com/acbmarket/feedctl/internal/feed"
	"github.com/acbmarket/feedctl/internal/market"
	"github.com/acbmarket/feedctl/internal/remote"
)

// --- markets ---

var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "List markets",
	Long: `List markets, newest filters first.

Examples:
  feedctl markets --search bitcoin --sort volume
  feedctl markets --category crypto --toggle hide_sports --pages 3
  feedctl markets --query 'search=election&hide_politics=true'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		category, _ := cmd.Flags().GetString("category")
		sort, _ := cmd.Flags().GetString("sort")
		toggles, _ := cmd.Flags().GetStringSlice("toggle")
		query, _ := cmd.Flags().GetString("query")
		pages, _ := cmd.Flags().GetInt("pages")

		filters := feed.NewFilters(search, category, sort, toggles...)
		if query != "" {
			v, err := url.ParseQuery(strings.TrimPrefix(query, "?"))
			if err != nil {
				return fmt.Errorf("parsing --query: %w", err)
			}
			filters = feed.ParseFilters(v)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		l := market.NewListing(remote.NewMarketsSource(a.client, a.cfg.Derive.Precision), filters, a.marketOptions(ctx))
		defer l.Close()

		l.Open()
		st, err := loadPages(ctx, l, pages)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, st, func(w io.Writer) { printFeed(w, st) })
	},
}

func init() {
	marketsCmd.Flags().String("search", "", "free-text search")
	marketsCmd.Flags().String("category", "", "category filter (all for every category)")
	marketsCmd.Flags().String("sort", "", "sort order: volume, newest or ending")
	marketsCmd.Flags().StringSlice("toggle", nil, "boolean filter to enable (hide_sports, hide_politics)")
	marketsCmd.Flags().String("query", "", "filters as a URL query string")
	marketsCmd.Flags().Int("pages", 1, "number of pages to load")
}

// --- market ---

type marketView struct {
	Market       remote.Market  `json:"market" yaml:"market"`
	Shares       []derive.Share `json:"shares" yaml:"shares"`
	CommentCount int            `json:"comment_count" yaml:"comment_count"`
	Tab          feed.TabID     `json:"tab" yaml:"tab"`
	State        feed.LoadState `json:"state" yaml:"state"`
}

var marketCmd = &cobra.Command{
	Use:   "market <id>",
	Short: "Show a market with its comments, holders or activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tab, _ := cmd.Flags().GetString("tab")
		sort, _ := cmd.Flags().GetString("sort")
		holdersOnly, _ := cmd.Flags().GetBool("holders-only")
		pages, _ := cmd.Flags().GetInt("pages")
		threadID, _ := cmd.Flags().GetString("thread")

		a, err := newApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		p := market.NewPanel(a.client, args[0], a.marketOptions(ctx))
		defer p.Close()

		if err := p.Open(ctx); err != nil {
			return err
		}
		if threadID != "" {
			return showThread(cmd, p, threadID, pages)
		}
		if sort != "" {
			if err := p.SetCommentSort(sort); err != nil {
				return err
			}
		}
		if holdersOnly {
			if err := p.SetHoldersOnly(true); err != nil {
				return err
			}
		}
		id := feed.TabID(tab)
		if err := p.SelectTab(id); err != nil {
			return err
		}

		st, err := loadPages(ctx, tabPager{tabs: p, id: id}, pages)
		if err != nil {
			return err
		}
		m, shares := p.Market()
		view := marketView{Market: m, Shares: shares, CommentCount: p.CommentCount(), Tab: id, State: st}
		return writeOutput(cmd.OutOrStdout(), outputFormat, view, func(w io.Writer) { printMarket(w, view) })
	},
}

func showThread(cmd *cobra.Command, p *market.Panel, commentID string, pages int) error {
	th := p.Thread(commentID)
	defer th.Close()
	th.Open()

	st, err := loadPages(cmd.Context(), th, pages)
	if err != nil {
		return err
	}
	m, shares := p.Market()
	view := marketView{Market: m, Shares: shares, CommentCount: p.CommentCount(), Tab: feed.TabID(remote.SourceReplies), State: st}
	return writeOutput(cmd.OutOrStdout(), outputFormat, view, func(w io.Writer) { printMarket(w, view) })
}

func printMarket(w io.Writer, v marketView) {
	fmt.Fprintf(w, "%s\n", boldColor.Sprint(v.Market.Title))
	if v.Market.Category != "" || v.Market.Status != "" {
		fmt.Fprintf(w, "  %s · %s\n", v.Market.Category, v.Market.Status)
	}
	fmt.Fprintf(w, "  %s\n", formatShares(v.Shares))
	fmt.Fprintf(w, "  %d comments\n\n", v.CommentCount)
	fmt.Fprintf(w, "%s\n", boldColor.Sprint(strings.ToUpper(string(v.Tab))))
	printFeed(w, v.State)
}

func init() {
	marketCmd.Flags().String("tab", string(market.TabComments), "tab to show: comments, holders or activity")
	marketCmd.Flags().String("sort", "", "comment order: newest or oldest")
	marketCmd.Flags().Bool("holders-only", false, "only show comments from users holding a position")
	marketCmd.Flags().Int("pages", 1, "number of pages to load")
	marketCmd.Flags().String("thread", "", "show the replies of this comment instead of a tab")
}

// --- comment ---

var commentCmd = &cobra.Command{
	Use:   "comment <market-id> <text>",
	Short: "Post a comment on a market",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		replyTo, _ := cmd.Flags().GetString("reply-to")

		a, err := newApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		p := market.NewPanel(a.client, args[0], a.marketOptions(ctx))
		defer p.Close()

		if err := p.Open(ctx); err != nil {
			return err
		}
		c, err := p.PostComment(ctx, strings.Join(args[1:], " "), replyTo)
		if err != nil {
			return err
		}
		printSuccess("Posted comment %s (%d comments)", c.ID, p.CommentCount())
		return nil
	},
}

func init() {
	commentCmd.Flags().String("reply-to", "", "id of the comment to reply to")
}

// --- leaderboard ---

type leaderboardView struct {
	State    feed.LoadState           `json:"state" yaml:"state"`
	UserRank *remote.LeaderboardEntry `json:"user_rank,omitempty" yaml:"user_rank,omitempty"`
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the reputation leaderboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		period, _ := cmd.Flags().GetString("period")
		category, _ := cmd.Flags().GetString("category")
		pages, _ := cmd.Flags().GetInt("pages")

		a, err := newApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		lb := market.NewLeaderboard(a.client, a.marketOptions(ctx))
		defer lb.Sequencer().Close()

		lb.SetPeriod(period)
		lb.SetCategory(category)
		lb.Open()

		st, err := loadPages(ctx, lb, pages)
		if err != nil {
			return err
		}
		view := leaderboardView{State: st}
		if e, ok := lb.UserRank(); ok {
			view.UserRank = &e
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, view, func(w io.Writer) {
			printFeed(w, view.State)
			if view.UserRank != nil {
				fmt.Fprintf(w, "\n%s %s\n", boldColor.Sprint("You:"), formatRank(*view.UserRank))
			}
		})
	},
}

func init() {
	leaderboardCmd.Flags().String("period", "global", "ranking period: global, weekly or monthly")
	leaderboardCmd.Flags().String("category", "all", "market category")
	leaderboardCmd.Flags().Int("pages", 1, "number of pages to load")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history <user-id>",
	Short: "Show a user's forecast history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		pages, _ := cmd.Flags().GetInt("pages")

		a, err := newApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		h := market.NewHistory(a.client, args[0], a.marketOptions(ctx))
		defer h.Sequencer().Close()

		h.SetStatus(status)
		h.Open()

		st, err := loadPages(ctx, h, pages)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, st, func(w io.Writer) { printFeed(w, st) })
	},
}

func init() {
	historyCmd.Flags().String("status", "all", "forecast status: all, pending, won or lost")
	historyCmd.Flags().Int("pages", 1, "number of pages to load")
}
