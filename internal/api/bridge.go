// Package api is the local HTTP bridge between feed controllers and a
// presentation layer. Views read snapshots and post user actions; every
// route except /health needs the bearer token.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/acbmarket/feedctl/internal/clock"
	"github.com/acbmarket/feedctl/internal/debounce"
	"github.com/acbmarket/feedctl/internal/feed"
	"github.com/acbmarket/feedctl/internal/verify"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Tabs is the tab controller surface the bridge drives. *feed.Orchestrator
// and market.Panel satisfy it.
type Tabs interface {
	Tabs() []feed.TabID
	Active() feed.TabID
	SelectTab(id feed.TabID) error
	State(id feed.TabID) (feed.LoadState, error)
	ChangeFilters(id feed.TabID, patch feed.FilterPatch) (bool, error)
	LoadMore() bool
	Retry() bool
}

type Deps struct {
	Tabs Tabs
	// SearchTab receives debounced search text. Empty disables /search.
	SearchTab      feed.TabID
	SearchDebounce time.Duration
	// Gate is optional; without it /verify answers 404.
	Gate      *verify.Gate
	Precision int
	Token     string
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Bridge is the bridge's http.Handler. Close it to stop the search
// debounce timer.
type Bridge struct {
	http.Handler
	deps   Deps
	search *debounce.Emitter
}

func NewBridge(deps Deps) *Bridge {
	if deps.Tabs == nil {
		panic("api: NewBridge without Tabs")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	b := &Bridge{deps: deps}
	b.search = debounce.New(deps.Clock, deps.SearchDebounce, b.applySearch)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/tabs", b.handleListTabs)
		r.Get("/state/{tab}", b.handleState)
		r.Post("/tabs/{tab}/select", b.handleSelect)
		r.Post("/tabs/{tab}/more", b.handleMore)
		r.Post("/tabs/{tab}/retry", b.handleRetry)
		r.Patch("/tabs/{tab}/filters", b.handleFilters)

		r.Post("/search", b.handleSearch)
		r.Post("/search/clear", b.handleSearchClear)

		r.Get("/verify", b.handleVerifyStatus)
		r.Post("/verify", b.handleVerifyConfirm)
		r.Delete("/verify", b.handleVerifyClear)
		r.Post("/verify/check", b.handleVerifyCheck)

		r.Post("/derive", b.handleDerive)
	})

	b.Handler = r
	return b
}

// Close cancels any pending search.
func (b *Bridge) Close() {
	b.search.Close()
}

func (b *Bridge) applySearch(text string) {
	changed, err := b.deps.Tabs.ChangeFilters(b.deps.SearchTab, feed.FilterPatch{Search: &text})
	if err != nil {
		b.deps.Logger.Warn("search not applied", "tab", b.deps.SearchTab, "error", err)
		return
	}
	if changed {
		b.deps.Logger.Debug("search applied", "tab", b.deps.SearchTab, "search", text)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
