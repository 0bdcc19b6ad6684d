package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/acbmarket/feedctl/internal/feed"
	"github.com/acbmarket/feedctl/internal/market"
	"github.com/acbmarket/feedctl/internal/remote"
)

const browseHelp = `commands:
  type <text>          search as you type (runs once typing pauses)
  enter                run the pending search now
  clear                clear the search
  category <name>      filter by category (all for every category)
  sort <order>         volume, newest or ending
  toggle <name> on|off hide_sports, hide_politics
  open <query>         apply filters from a URL query string
  url                  print the filters as a URL query string
  more | retry | refresh
  show                 print the current results
  quit`

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Interactively browse the market list",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		opts := a.marketOptions(ctx)

		l := market.NewListing(remote.NewMarketsSource(a.client, a.cfg.Derive.Precision), feed.Filters{}, opts)
		defer l.Close()
		lb := market.NewLeaderboard(a.client, opts)
		defer lb.Sequencer().Close()

		if err := prefetch(ctx, l, lb); err != nil {
			return err
		}
		b := newBrowser(l, cmd.OutOrStdout())
		defer b.close()

		b.printLeaders(lb.State(), 5)
		b.show()
		return b.run(ctx, cmd.InOrStdin())
	},
}

// prefetch loads the first market page and the leaderboard together.
func prefetch(ctx context.Context, l *market.Listing, lb *market.Leaderboard) error {
	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.Open()
		return l.Wait(gctx)
	})
	g.Go(func() error {
		lb.Open()
		return lb.Wait(gctx)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("loading: %w", err)
	}
	return nil
}

type browser struct {
	listing *market.Listing
	unsub   func()

	mu      sync.Mutex
	out     io.Writer
	lastGen uint64
}

// newBrowser reports every generation that finishes loading after the
// one currently shown.
func newBrowser(l *market.Listing, out io.Writer) *browser {
	b := &browser{listing: l, out: out, lastGen: l.State().Generation}
	b.unsub = l.Sequencer().Subscribe(b.onState)
	return b
}

func (b *browser) onState(st feed.LoadState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st.Loading() || st.Generation <= b.lastGen {
		return
	}
	b.lastGen = st.Generation
	fmt.Fprintf(b.out, "%s\n", stepColor.Sprintf("results updated: %d of %d for %s", len(st.Items), st.TotalCount, describeFilters(st.Filters)))
}

func (b *browser) close() { b.unsub() }

func (b *browser) printf(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.out, format, args...)
}

func (b *browser) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	b.printf("> ")
	for sc.Scan() {
		quit, err := b.exec(ctx, sc.Text())
		if err != nil {
			b.printf("%s\n", errorColor.Sprint(err.Error()))
		}
		if quit {
			return nil
		}
		b.printf("> ")
	}
	return sc.Err()
}

// exec runs one REPL line and reports whether the session should end.
func (b *browser) exec(ctx context.Context, line string) (bool, error) {
	verb, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	l := b.listing

	switch verb {
	case "":
	case "quit", "exit":
		return true, nil
	case "help":
		b.printf("%s\n", browseHelp)
	case "type":
		l.Type(arg)
	case "enter":
		if !l.SubmitSearch() {
			b.printf("no pending search\n")
		}
	case "clear":
		l.ClearSearch()
	case "category":
		l.SetCategory(arg)
	case "sort":
		l.SetSort(arg)
	case "toggle":
		name, state, _ := strings.Cut(arg, " ")
		l.SetToggle(name, state != "off")
	case "open":
		v, err := url.ParseQuery(strings.TrimPrefix(arg, "?"))
		if err != nil {
			return false, fmt.Errorf("bad query: %w", err)
		}
		l.ApplyQuery(v)
	case "url":
		b.printf("?%s\n", l.Query().Encode())
	case "more":
		if !l.LoadMore() {
			b.printf("nothing more to load\n")
		}
	case "retry":
		if !l.Retry() {
			b.printf("nothing to retry\n")
		}
	case "refresh":
		l.Refresh()
	case "show":
		wctx, cancel := context.WithTimeout(ctx, waitTimeout)
		defer cancel()
		if err := l.Wait(wctx); err != nil {
			return false, err
		}
		b.show()
	default:
		return false, fmt.Errorf("unknown command %q (try help)", verb)
	}
	return false, nil
}

func (b *browser) show() {
	st := b.listing.State()
	b.mu.Lock()
	defer b.mu.Unlock()
	if text, ok := b.listing.PendingSearch(); ok {
		fmt.Fprintf(b.out, "%s\n", warningColor.Sprintf("search %q pending", text))
	}
	printFeed(b.out, st)
}

func (b *browser) printLeaders(st feed.LoadState, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(st.Items) == 0 {
		return
	}
	fmt.Fprintln(b.out, boldColor.Sprint("Top forecasters"))
	for _, it := range st.Items[:min(n, len(st.Items))] {
		fmt.Fprintf(b.out, "  %s\n", renderItem(it))
	}
	fmt.Fprintln(b.out)
}

func describeFilters(f feed.Filters) string {
	if s := f.String(); s != "" {
		return s
	}
	return "all markets"
}
