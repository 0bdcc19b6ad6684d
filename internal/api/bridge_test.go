package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/acbmarket/feedctl/internal/clock"
	"github.com/acbmarket/feedctl/internal/feed"
	"github.com/acbmarket/feedctl/internal/verify"
)

const testToken = "test-token-12345"

// stubSource serves total items with ids "<source>:<search>:<n>".
type stubSource struct {
	id    feed.SourceID
	total int
}

func (s stubSource) ID() feed.SourceID { return s.id }

func (s stubSource) FetchPage(ctx context.Context, filters feed.Filters, page, pageSize int) (feed.Page, error) {
	start := (page - 1) * pageSize
	end := min(start+pageSize, s.total)
	var items []feed.Item
	for i := start; i < end; i++ {
		items = append(items, feed.Item{ID: fmt.Sprintf("%s:%s:%d", s.id, filters.Search, i)})
	}
	return feed.Page{Items: items, TotalCount: s.total}, nil
}

type secretConfirmer struct{ secret string }

func (c secretConfirmer) ConfirmSecret(ctx context.Context, secret string) error {
	if secret != c.secret {
		return fmt.Errorf("server said no: %w", verify.ErrWrongSecret)
	}
	return nil
}

func syncLaunch(fetch func()) { fetch() }

type fixture struct {
	handler http.Handler
	clock   *clock.FakeClock
	tabs    *feed.Orchestrator
}

func setupBridge(t *testing.T, withGate bool) fixture {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tabs := feed.NewOrchestrator(feed.OrchestratorOptions{Launcher: syncLaunch, Clock: clk},
		feed.Tab{ID: "markets", Source: stubSource{id: "markets", total: 45}},
		feed.Tab{ID: "leaderboard", Source: stubSource{id: "leaderboard", total: 5}},
	)
	t.Cleanup(tabs.Close)

	deps := Deps{
		Tabs:           tabs,
		SearchTab:      "markets",
		SearchDebounce: 500 * time.Millisecond,
		Token:          testToken,
		Clock:          clk,
	}
	if withGate {
		deps.Gate = verify.NewGate(verify.GateOptions{
			Confirmer: secretConfirmer{secret: "hunter2"},
			Clock:     clk,
		})
	}
	b := NewBridge(deps)
	t.Cleanup(b.Close)
	return fixture{handler: b, clock: clk, tabs: tabs}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func do(t *testing.T, h http.Handler, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(method, url, body, testToken))
	return rr
}

func decodeAction(t *testing.T, rr *httptest.ResponseRecorder) actionResponse {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}
	var resp actionResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestHealth_NoAuthRequired(t *testing.T) {
	f := setupBridge(t, false)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestAuth_RejectsMissingOrWrongToken(t *testing.T) {
	f := setupBridge(t, false)
	for _, token := range []string{"", "wrong"} {
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, authReq(http.MethodGet, "/state/markets", "", token))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rr.Code)
		}
	}
}

func TestAuth_EmptyConfiguredTokenRejectsEverything(t *testing.T) {
	h := BearerAuth("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without a configured token")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/", "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestListTabs(t *testing.T) {
	f := setupBridge(t, false)
	rr := do(t, f.handler, http.MethodGet, "/tabs", "")
	var resp tabsResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.Tabs) != 2 || resp.Tabs[0] != "markets" || resp.Active != "" {
		t.Errorf("tabs = %+v", resp)
	}
}

func TestSelectLoadsFirstPage(t *testing.T) {
	f := setupBridge(t, false)
	resp := decodeAction(t, do(t, f.handler, http.MethodPost, "/tabs/markets/select", ""))

	if len(resp.State.Items) != 20 || !resp.State.HasMore || resp.State.TotalCount != 45 {
		t.Errorf("state = items %d has_more %v total %d", len(resp.State.Items), resp.State.HasMore, resp.State.TotalCount)
	}
	if f.tabs.Active() != "markets" {
		t.Errorf("active = %q", f.tabs.Active())
	}
}

func TestMoreAppendsToActiveTab(t *testing.T) {
	f := setupBridge(t, false)
	do(t, f.handler, http.MethodPost, "/tabs/markets/select", "")

	resp := decodeAction(t, do(t, f.handler, http.MethodPost, "/tabs/markets/more", ""))
	if !resp.Started || len(resp.State.Items) != 40 || resp.State.Page != 2 {
		t.Errorf("started %v items %d page %d", resp.Started, len(resp.State.Items), resp.State.Page)
	}
	resp = decodeAction(t, do(t, f.handler, http.MethodPost, "/tabs/markets/more", ""))
	if len(resp.State.Items) != 45 || resp.State.HasMore {
		t.Errorf("items %d has_more %v", len(resp.State.Items), resp.State.HasMore)
	}
	resp = decodeAction(t, do(t, f.handler, http.MethodPost, "/tabs/markets/more", ""))
	if resp.Started {
		t.Error("load more past the end should not start a fetch")
	}
}

func TestMoreOnInactiveTabConflicts(t *testing.T) {
	f := setupBridge(t, false)
	do(t, f.handler, http.MethodPost, "/tabs/markets/select", "")

	for _, path := range []string{"/tabs/leaderboard/more", "/tabs/leaderboard/retry"} {
		rr := do(t, f.handler, http.MethodPost, path, "")
		if rr.Code != http.StatusConflict {
			t.Errorf("%s: status = %d, want 409", path, rr.Code)
		}
	}
}

func TestUnknownTabIsNotFound(t *testing.T) {
	f := setupBridge(t, false)
	cases := []struct{ method, path, body string }{
		{http.MethodGet, "/state/nope", ""},
		{http.MethodPost, "/tabs/nope/select", ""},
		{http.MethodPost, "/tabs/nope/more", ""},
		{http.MethodPatch, "/tabs/nope/filters", `{"sort":"newest"}`},
	}
	for _, tc := range cases {
		rr := do(t, f.handler, tc.method, tc.path, tc.body)
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s %s: status = %d, want 404", tc.method, tc.path, rr.Code)
		}
	}
}

func TestFiltersPatchResetsActiveTab(t *testing.T) {
	f := setupBridge(t, false)
	first := decodeAction(t, do(t, f.handler, http.MethodPost, "/tabs/markets/select", ""))

	resp := decodeAction(t, do(t, f.handler, http.MethodPatch, "/tabs/markets/filters", `{"category":"crypto","toggles":{"hide_sports":true}}`))
	if !resp.Started {
		t.Fatal("changed filters should report started")
	}
	if resp.State.Generation <= first.State.Generation {
		t.Errorf("generation = %d, want > %d", resp.State.Generation, first.State.Generation)
	}
	if resp.State.Filters.Category != "crypto" || !resp.State.Filters.Has("hide_sports") {
		t.Errorf("filters = %+v", resp.State.Filters)
	}

	again := decodeAction(t, do(t, f.handler, http.MethodPatch, "/tabs/markets/filters", `{"category":"crypto"}`))
	if again.Started || again.State.Generation != resp.State.Generation {
		t.Error("identical patch should be a no-op")
	}
}

func TestFiltersPatchRejectsBadBody(t *testing.T) {
	f := setupBridge(t, false)
	rr := do(t, f.handler, http.MethodPatch, "/tabs/markets/filters", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestSearchIsDebounced(t *testing.T) {
	f := setupBridge(t, false)
	do(t, f.handler, http.MethodPost, "/tabs/markets/select", "")

	do(t, f.handler, http.MethodPost, "/search", `{"text":"bt"}`)
	f.clock.Advance(200 * time.Millisecond)
	rr := do(t, f.handler, http.MethodPost, "/search", `{"text":"btc"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	state, _ := f.tabs.State("markets")
	if state.Filters.Search != "" {
		t.Fatalf("search applied before quiet period: %q", state.Filters.Search)
	}

	f.clock.Advance(500 * time.Millisecond)
	state, _ = f.tabs.State("markets")
	if state.Filters.Search != "btc" {
		t.Errorf("search = %q, want btc", state.Filters.Search)
	}
	if len(state.Items) == 0 || state.Items[0].ID != "markets:btc:0" {
		t.Errorf("items not reloaded for the search: %+v", state.Items)
	}
}

func TestSearchClearCancelsPending(t *testing.T) {
	f := setupBridge(t, false)
	do(t, f.handler, http.MethodPost, "/tabs/markets/select", "")
	do(t, f.handler, http.MethodPost, "/search", `{"text":"eth"}`)
	f.clock.Advance(time.Second)

	do(t, f.handler, http.MethodPost, "/search", `{"text":"ethe"}`)
	resp := decodeAction(t, do(t, f.handler, http.MethodPost, "/search/clear", ""))
	if resp.State.Filters.Search != "" {
		t.Errorf("search = %q after clear", resp.State.Filters.Search)
	}

	f.clock.Advance(time.Second)
	state, _ := f.tabs.State("markets")
	if state.Filters.Search != "" {
		t.Errorf("cancelled search fired: %q", state.Filters.Search)
	}
}

func TestSearchDisabledWithoutTab(t *testing.T) {
	tabs := feed.NewOrchestrator(feed.OrchestratorOptions{Launcher: syncLaunch},
		feed.Tab{ID: "markets", Source: stubSource{id: "markets", total: 1}})
	b := NewBridge(Deps{Tabs: tabs, Token: testToken})
	defer b.Close()

	rr := do(t, b, http.MethodPost, "/search", `{"text":"x"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func decodeVerify(t *testing.T, rr *httptest.ResponseRecorder) verifyStatus {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var raw struct {
		Action      string `json:"action"`
		State       string `json:"state"`
		CanProceed  bool   `json:"can_proceed"`
		RemainingMS int64  `json:"remaining_ms"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	st := verifyStatus{Action: raw.Action, CanProceed: raw.CanProceed, RemainingMS: raw.RemainingMS}
	switch raw.State {
	case "verified":
		st.State = verify.Verified
	case "expired":
		st.State = verify.Expired
	case "unverified":
		st.State = verify.Unverified
	default:
		t.Fatalf("unexpected state %q", raw.State)
	}
	return st
}

func TestVerifyFlow(t *testing.T) {
	f := setupBridge(t, true)

	if st := decodeVerify(t, do(t, f.handler, http.MethodGet, "/verify", "")); st.State != verify.Unverified || st.CanProceed {
		t.Fatalf("initial = %+v", st)
	}

	if rr := do(t, f.handler, http.MethodPost, "/verify", `{"secret":"   "}`); rr.Code != http.StatusBadRequest {
		t.Errorf("blank secret: status = %d, want 400", rr.Code)
	}
	rr := do(t, f.handler, http.MethodPost, "/verify", `{"secret":"guess"}`)
	if rr.Code != http.StatusForbidden || !strings.Contains(rr.Body.String(), "incorrect password") {
		t.Errorf("wrong secret: status = %d body = %s", rr.Code, rr.Body.String())
	}

	st := decodeVerify(t, do(t, f.handler, http.MethodPost, "/verify", `{"secret":"hunter2"}`))
	if st.State != verify.Verified || !st.CanProceed || st.RemainingMS != (15*time.Minute).Milliseconds() {
		t.Errorf("after confirm = %+v", st)
	}
	if st.Action != verify.DefaultAction {
		t.Errorf("action = %q", st.Action)
	}

	f.clock.Advance(15 * time.Minute)
	if st := decodeVerify(t, do(t, f.handler, http.MethodGet, "/verify", "")); st.State != verify.Expired || st.CanProceed {
		t.Errorf("after expiry = %+v", st)
	}

	do(t, f.handler, http.MethodPost, "/verify", `{"secret":"hunter2"}`)
	if st := decodeVerify(t, do(t, f.handler, http.MethodDelete, "/verify", "")); st.State != verify.Unverified {
		t.Errorf("after clear = %+v", st)
	}
}

func TestVerifyCheckPrunesExpiredGrant(t *testing.T) {
	f := setupBridge(t, true)

	rr := do(t, f.handler, http.MethodPost, "/verify/check", "")
	if rr.Code != http.StatusForbidden || !strings.Contains(rr.Body.String(), "verification_required") {
		t.Fatalf("check before confirm: status = %d body = %s", rr.Code, rr.Body.String())
	}

	do(t, f.handler, http.MethodPost, "/verify", `{"secret":"hunter2"}`)
	if st := decodeVerify(t, do(t, f.handler, http.MethodPost, "/verify/check", "")); !st.CanProceed || st.State != verify.Verified {
		t.Fatalf("check while verified = %+v", st)
	}

	f.clock.Advance(16 * time.Minute)
	if st := decodeVerify(t, do(t, f.handler, http.MethodGet, "/verify", "")); st.State != verify.Expired {
		t.Fatalf("status read must not prune: %+v", st)
	}
	if rr := do(t, f.handler, http.MethodPost, "/verify/check", ""); rr.Code != http.StatusForbidden {
		t.Fatalf("check after expiry: status = %d", rr.Code)
	}
	if st := decodeVerify(t, do(t, f.handler, http.MethodGet, "/verify", "")); st.State != verify.Unverified {
		t.Errorf("expired record should be removed by the check, state = %v", st.State)
	}
}

func TestVerifyDisabledWithoutGate(t *testing.T) {
	f := setupBridge(t, false)
	if rr := do(t, f.handler, http.MethodGet, "/verify", ""); rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestDerive(t *testing.T) {
	f := setupBridge(t, false)
	rr := do(t, f.handler, http.MethodPost, "/derive", `{"values":[{"label":"a","value":1},{"label":"b","value":1},{"label":"c","value":1}],"precision":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Shares []struct {
			Label string `json:"label"`
			Units int64  `json:"units"`
		} `json:"shares"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	want := []int64{34, 33, 33}
	if len(resp.Shares) != 3 {
		t.Fatalf("shares = %+v", resp.Shares)
	}
	for i, s := range resp.Shares {
		if s.Units != want[i] {
			t.Errorf("share %d = %d, want %d", i, s.Units, want[i])
		}
	}
}

func TestDeriveRejectsBadPrecision(t *testing.T) {
	f := setupBridge(t, false)
	rr := do(t, f.handler, http.MethodPost, "/derive", `{"values":[],"precision":9}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

type panickyTabs struct{ *feed.Orchestrator }

func (panickyTabs) State(feed.TabID) (feed.LoadState, error) { panic("boom") }

func TestPanicIsRecovered(t *testing.T) {
	tabs := feed.NewOrchestrator(feed.OrchestratorOptions{Launcher: syncLaunch},
		feed.Tab{ID: "markets", Source: stubSource{id: "markets", total: 1}})
	b := NewBridge(Deps{Tabs: panickyTabs{tabs}, Token: testToken})
	defer b.Close()

	rr := do(t, b, http.MethodGet, "/state/markets", "")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
	if rr := do(t, b, http.MethodGet, "/tabs", ""); rr.Code != http.StatusOK {
		t.Errorf("bridge unusable after panic: %d", rr.Code)
	}
}
