package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/acbmarket/feedctl/internal/feed"
)

type tabsResponse struct {
	Tabs   []feed.TabID `json:"tabs"`
	Active feed.TabID   `json:"active"`
}

type actionResponse struct {
	Started bool           `json:"started"`
	State   feed.LoadState `json:"state"`
}

type filtersRequest struct {
	Search   *string         `json:"search"`
	Category *string         `json:"category"`
	Sort     *string         `json:"sort"`
	Toggles  map[string]bool `json:"toggles"`
}

type searchRequest struct {
	Text string `json:"text"`
}

func (b *Bridge) handleListTabs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, tabsResponse{Tabs: b.deps.Tabs.Tabs(), Active: b.deps.Tabs.Active()})
}

func (b *Bridge) handleState(w http.ResponseWriter, r *http.Request) {
	state, ok := b.state(w, tabParam(r))
	if !ok {
		return
	}
	writeJSON(w, state)
}

func (b *Bridge) handleSelect(w http.ResponseWriter, r *http.Request) {
	id := tabParam(r)
	if err := b.deps.Tabs.SelectTab(id); err != nil {
		tabError(w, id, err)
		return
	}
	b.respondState(w, id, true)
}

func (b *Bridge) handleMore(w http.ResponseWriter, r *http.Request) {
	id := tabParam(r)
	if !b.requireActive(w, id) {
		return
	}
	b.respondState(w, id, b.deps.Tabs.LoadMore())
}

func (b *Bridge) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := tabParam(r)
	if !b.requireActive(w, id) {
		return
	}
	b.respondState(w, id, b.deps.Tabs.Retry())
}

func (b *Bridge) handleFilters(w http.ResponseWriter, r *http.Request) {
	id := tabParam(r)
	var req filtersRequest
	if !decodeBody(w, r, &req) {
		return
	}
	changed, err := b.deps.Tabs.ChangeFilters(id, feed.FilterPatch{
		Search:   req.Search,
		Category: req.Category,
		Sort:     req.Sort,
		Toggles:  req.Toggles,
	})
	if err != nil {
		tabError(w, id, err)
		return
	}
	b.respondState(w, id, changed)
}

func (b *Bridge) handleSearch(w http.ResponseWriter, r *http.Request) {
	if b.deps.SearchTab == "" {
		httpError(w, http.StatusNotFound, "not_found", "search is not enabled")
		return
	}
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	b.search.Submit(req.Text)
	writeJSON(w, map[string]string{"status": "pending", "text": req.Text})
}

func (b *Bridge) handleSearchClear(w http.ResponseWriter, r *http.Request) {
	if b.deps.SearchTab == "" {
		httpError(w, http.StatusNotFound, "not_found", "search is not enabled")
		return
	}
	b.search.CancelPending()
	empty := ""
	changed, err := b.deps.Tabs.ChangeFilters(b.deps.SearchTab, feed.FilterPatch{Search: &empty})
	if err != nil {
		tabError(w, b.deps.SearchTab, err)
		return
	}
	b.respondState(w, b.deps.SearchTab, changed)
}

func (b *Bridge) state(w http.ResponseWriter, id feed.TabID) (feed.LoadState, bool) {
	state, err := b.deps.Tabs.State(id)
	if err != nil {
		tabError(w, id, err)
		return feed.LoadState{}, false
	}
	return state, true
}

func (b *Bridge) respondState(w http.ResponseWriter, id feed.TabID, started bool) {
	state, ok := b.state(w, id)
	if !ok {
		return
	}
	writeJSON(w, actionResponse{Started: started, State: state})
}

// requireActive rejects actions aimed at a tab the user is not looking at.
func (b *Bridge) requireActive(w http.ResponseWriter, id feed.TabID) bool {
	if _, err := b.deps.Tabs.State(id); err != nil {
		tabError(w, id, err)
		return false
	}
	if active := b.deps.Tabs.Active(); active != id {
		httpError(w, http.StatusConflict, "conflict", "tab %q is not active (active: %q)", id, active)
		return false
	}
	return true
}

func tabParam(r *http.Request) feed.TabID {
	return feed.TabID(chi.URLParam(r, "tab"))
}

func tabError(w http.ResponseWriter, id feed.TabID, err error) {
	if errors.Is(err, feed.ErrUnknownTab) {
		httpError(w, http.StatusNotFound, "not_found", "unknown tab %q", id)
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "tab %q: %v", id, err)
}
