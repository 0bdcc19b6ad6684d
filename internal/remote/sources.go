package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/acbmarket/feedctl/internal/derive"
	"github.com/acbmarket/feedctl/internal/feed"
)

// Source ids of the platform's collections.
const (
	SourceMarkets     feed.SourceID = "markets"
	SourceComments    feed.SourceID = "comments"
	SourceReplies     feed.SourceID = "replies"
	SourceHolders     feed.SourceID = "holders"
	SourceActivity    feed.SourceID = "activity"
	SourceLeaderboard feed.SourceID = "leaderboard"
	SourceForecasts   feed.SourceID = "forecasts"
)

// Toggle names understood by the sources.
const (
	ToggleHoldersOnly  = "holders_only"
	ToggleHideSports   = "hide_sports"
	ToggleHidePolitics = "hide_politics"
)

// pageSource fetches one list endpoint and maps its records to items.
type pageSource[T any] struct {
	id      feed.SourceID
	client  *Client
	path    string
	listKey string
	query   func(feed.Filters) url.Values
	item    func(T) feed.Item
	// meta, when set, extracts page-level data from the data object.
	meta func(map[string]json.RawMessage) any
}

func (s *pageSource[T]) ID() feed.SourceID { return s.id }

func (s *pageSource[T]) FetchPage(ctx context.Context, filters feed.Filters, page, pageSize int) (feed.Page, error) {
	q := url.Values{}
	if s.query != nil {
		q = s.query(filters)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(pageSize))

	var data map[string]json.RawMessage
	if err := s.client.get(ctx, s.path, q, &data); err != nil {
		return feed.Page{}, fmt.Errorf("fetching %s page %d: %w", s.id, page, err)
	}

	records, total, err := decodeList[T](data, s.listKey)
	if err != nil {
		return feed.Page{}, fmt.Errorf("decoding %s page %d: %w", s.id, page, err)
	}
	items := make([]feed.Item, 0, len(records))
	for _, r := range records {
		items = append(items, s.item(r))
	}
	out := feed.Page{Items: items, TotalCount: total}
	if s.meta != nil {
		out.Meta = s.meta(data)
	}
	return out, nil
}

// decodeList extracts the record list under key and the collection total,
// read from pagination.total or a top-level total.
func decodeList[T any](data map[string]json.RawMessage, key string) ([]T, int, error) {
	var records []T
	if raw, ok := data[key]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, 0, fmt.Errorf("decoding %s: %w", key, err)
		}
	}

	total := -1
	if raw, ok := data["pagination"]; ok {
		var p Pagination
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, 0, fmt.Errorf("decoding pagination: %w", err)
		}
		total = p.Total
	} else if raw, ok := data["total"]; ok {
		if err := json.Unmarshal(raw, &total); err != nil {
			return nil, 0, fmt.Errorf("decoding total: %w", err)
		}
	}
	if total < 0 {
		total = len(records)
	}
	return records, total, nil
}

// MarketTallies turns a market's outcomes into tallies.
func MarketTallies(m Market) []derive.Tally {
	tallies := make([]derive.Tally, len(m.Outcomes))
	for i, o := range m.Outcomes {
		tallies[i] = derive.Tally{Label: o.Name, Value: o.TotalPoints}
	}
	return tallies
}

// MarketItem maps a market to a feed item with derived outcome shares.
func MarketItem(m Market, precision int) feed.Item {
	tallies := MarketTallies(m)
	return feed.Item{
		ID:      m.ID,
		Tallies: tallies,
		Shares:  derive.Percentages(tallies, precision),
		Payload: m,
	}
}

// NewMarketsSource lists markets. Filters map to search, category, sort and
// the hide_* toggles; a category of "all" is sent as no category.
func NewMarketsSource(c *Client, precision int) feed.Source {
	return &pageSource[Market]{
		id:      SourceMarkets,
		client:  c,
		path:    "/api/v1/markets",
		listKey: "markets",
		query: func(f feed.Filters) url.Values {
			v := f.Values()
			if f.Category == "all" {
				v.Del("category")
			}
			return v
		},
		item: func(m Market) feed.Item { return MarketItem(m, precision) },
	}
}

// NewCommentsSource lists a market's top-level comments, each carrying its
// nested replies. Sort is newest or oldest; the holders_only toggle
// restricts to users holding a position.
func NewCommentsSource(c *Client, marketID string) feed.Source {
	return newCommentsSource(c, SourceComments, marketID, "")
}

// NewRepliesSource lists the direct replies of one comment.
func NewRepliesSource(c *Client, marketID, parentID string) feed.Source {
	return newCommentsSource(c, SourceReplies, marketID, parentID)
}

func newCommentsSource(c *Client, id feed.SourceID, marketID, parentID string) feed.Source {
	return &pageSource[Comment]{
		id:      id,
		client:  c,
		path:    "/api/v1/markets/" + url.PathEscape(marketID) + "/comments",
		listKey: "comments",
		query: func(f feed.Filters) url.Values {
			v := url.Values{}
			sort := f.Sort
			if sort == "" {
				sort = "newest"
			}
			v.Set("sort", sort)
			v.Set("holders_only", strconv.FormatBool(f.Has(ToggleHoldersOnly)))
			if parentID != "" {
				v.Set("parent_id", parentID)
			}
			return v
		},
		item: func(cm Comment) feed.Item {
			scanComment(&cm)
			return feed.Item{ID: cm.ID, Payload: cm}
		},
	}
}

// scanComment fills Text and Links of c and of every nested reply.
func scanComment(c *Comment) {
	c.Text, c.Links = ScanContent(c.Content)
	for i := range c.Replies {
		scanComment(&c.Replies[i])
	}
}

// NewHoldersSource lists a market's top holders. Category filters by
// outcome id.
func NewHoldersSource(c *Client, marketID string) feed.Source {
	return &pageSource[Holder]{
		id:      SourceHolders,
		client:  c,
		path:    "/api/v1/markets/" + url.PathEscape(marketID) + "/holders",
		listKey: "holders",
		query: func(f feed.Filters) url.Values {
			v := url.Values{}
			if f.Category != "" {
				v.Set("outcome", f.Category)
			}
			return v
		},
		item: func(h Holder) feed.Item {
			return feed.Item{
				ID:      h.UserID + ":" + h.OutcomeID,
				Tallies: []derive.Tally{{Label: h.OutcomeName, Value: h.Points}},
				Payload: h,
			}
		},
	}
}

// NewActivitySource lists a market's activity log. Category filters by
// activity type.
func NewActivitySource(c *Client, marketID string) feed.Source {
	return &pageSource[Activity]{
		id:      SourceActivity,
		client:  c,
		path:    "/api/v1/activity/markets/" + url.PathEscape(marketID),
		listKey: "activities",
		query: func(f feed.Filters) url.Values {
			v := url.Values{}
			if f.Category != "" {
				v.Set("type", f.Category)
			}
			return v
		},
		item: func(a Activity) feed.Item { return feed.Item{ID: a.ID, Payload: a} },
	}
}

// NewLeaderboardSource lists the leaderboard. Sort is the period (global,
// weekly or monthly) and Category the market category. Each page's Meta is
// the caller's own row, a LeaderboardEntry, or nil when the server sent
// none.
func NewLeaderboardSource(c *Client) feed.Source {
	return &pageSource[LeaderboardEntry]{
		id:      SourceLeaderboard,
		client:  c,
		path:    "/api/v1/leaderboard",
		listKey: "leaderboard",
		query: func(f feed.Filters) url.Values {
			v := url.Values{}
			period := f.Sort
			if period == "" {
				period = "global"
			}
			category := f.Category
			if category == "" {
				category = "all"
			}
			v.Set("period", period)
			v.Set("category", category)
			return v
		},
		item: func(e LeaderboardEntry) feed.Item {
			return feed.Item{ID: e.UserID, Payload: e}
		},
		meta: decodeUserRank,
	}
}

func decodeUserRank(data map[string]json.RawMessage) any {
	raw, ok := data["user_rank"]
	if !ok || string(raw) == "null" {
		return nil
	}
	var e LeaderboardEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil
	}
	return e
}

// UserRank returns the caller's row carried by a leaderboard feed state.
func UserRank(st feed.LoadState) (LeaderboardEntry, bool) {
	e, ok := st.Meta.(LeaderboardEntry)
	return e, ok
}

// NewForecastsSource lists a user's forecast history. Category is the
// status filter: all, pending, won or lost.
func NewForecastsSource(c *Client, userID string) feed.Source {
	return &pageSource[Forecast]{
		id:      SourceForecasts,
		client:  c,
		path:    "/api/v1/users/" + url.PathEscape(userID) + "/forecasts",
		listKey: "forecasts",
		query: func(f feed.Filters) url.Values {
			v := url.Values{}
			status := f.Category
			if status == "" {
				status = "all"
			}
			v.Set("status_filter", status)
			return v
		},
		item: func(fc Forecast) feed.Item {
			return feed.Item{
				ID:      fc.ID,
				Tallies: []derive.Tally{{Label: fc.OutcomeName, Value: fc.Points}},
				Payload: fc,
			}
		},
	}
}
