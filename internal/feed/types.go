// Package feed implements paginated, filterable feeds: a per-source page
// sequencer that discards stale responses by generation, and a tab
// orchestrator that keeps several independent sources side by side.
package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/acbmarket/feedctl/internal/derive"
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 20

// ErrUnknownTab is returned for a tab id the orchestrator was not built
// with.
var ErrUnknownTab = errors.New("unknown tab")

// SourceID names an independently paginated collection.
type SourceID string

// Item is one entry of a feed. The core only looks at ID, which must be
// stable across pages, and at the tallies it derives shares from.
type Item struct {
	ID      string         `json:"id" yaml:"id"`
	Tallies []derive.Tally `json:"tallies,omitempty" yaml:"tallies,omitempty"`
	Shares  []derive.Share `json:"shares,omitempty" yaml:"shares,omitempty"`
	Payload any            `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Page is a fetched page of items plus the server's total for the whole
// filtered collection. Meta carries page-level data the source wants kept
// alongside the items, such as the caller's own leaderboard row.
type Page struct {
	Items      []Item
	TotalCount int
	Meta       any
}

// Cursor identifies one page request.
type Cursor struct {
	Source     SourceID `json:"source"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	Generation uint64   `json:"generation"`
}

// Source fetches pages of one collection. Implementations map their wire
// records into Items.
type Source interface {
	ID() SourceID
	FetchPage(ctx context.Context, filters Filters, page, pageSize int) (Page, error)
}

// ErrorInfo describes the failure of the last page fetch.
type ErrorInfo struct {
	Message   string `json:"message" yaml:"message"`
	Page      int    `json:"page" yaml:"page"`
	Retryable bool   `json:"retryable" yaml:"retryable"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("loading page %d: %s", e.Page, e.Message)
}

// LoadState is a read-only snapshot of one source's feed.
type LoadState struct {
	Source           SourceID   `json:"source" yaml:"source"`
	Items            []Item     `json:"items" yaml:"items"`
	IsLoadingInitial bool       `json:"is_loading_initial" yaml:"is_loading_initial"`
	IsLoadingMore    bool       `json:"is_loading_more" yaml:"is_loading_more"`
	IsRefreshing     bool       `json:"is_refreshing" yaml:"is_refreshing"`
	HasMore          bool       `json:"has_more" yaml:"has_more"`
	TotalCount       int        `json:"total_count" yaml:"total_count"`
	Page             int        `json:"page" yaml:"page"`
	Err              *ErrorInfo `json:"error,omitempty" yaml:"error,omitempty"`
	Generation       uint64     `json:"generation" yaml:"generation"`
	Filters          Filters    `json:"filters" yaml:"filters"`
	// Meta is the Meta of the last accepted page of this generation.
	Meta any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// Loading reports whether any fetch is in flight.
func (s LoadState) Loading() bool {
	return s.IsLoadingInitial || s.IsLoadingMore || s.IsRefreshing
}

// Describer lets a fetch error supply the user-facing message and say
// whether retrying makes sense.
type Describer interface {
	Describe() (message string, retryable bool)
}

func newErrorInfo(page int, err error) *ErrorInfo {
	info := &ErrorInfo{Page: page, Message: err.Error(), Retryable: true}
	var d Describer
	if errors.As(err, &d) {
		info.Message, info.Retryable = d.Describe()
	}
	return info
}
