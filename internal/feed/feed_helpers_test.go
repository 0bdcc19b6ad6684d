package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type fetchCall struct {
	filters Filters
	page    int
}

// fakeSource serves total items, ids "<search>-<n>", and fails pages
// listed in fail.
type fakeSource struct {
	id    SourceID
	total int

	mu    sync.Mutex
	calls []fetchCall
	fail  map[int]error
}

func newFakeSource(id SourceID, total int) *fakeSource {
	return &fakeSource{id: id, total: total, fail: map[int]error{}}
}

func (f *fakeSource) ID() SourceID { return f.id }

func (f *fakeSource) FetchPage(ctx context.Context, filters Filters, page, pageSize int) (Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{filters: filters, page: page})
	err := f.fail[page]
	f.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Page{}, ctxErr
	}
	if err != nil {
		return Page{}, err
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, f.total)
	var items []Item
	for i := start; i < end; i++ {
		items = append(items, Item{ID: fmt.Sprintf("%s-%d", filters.Search, i)})
	}
	return Page{Items: items, TotalCount: f.total}, nil
}

func (f *fakeSource) setFail(page int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, page)
		return
	}
	f.fail[page] = err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fetchQueue is a Launcher that holds fetches until the test runs them.
type fetchQueue struct {
	mu      sync.Mutex
	fetches []func()
}

func (q *fetchQueue) launch(fetch func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fetches = append(q.fetches, fetch)
}

func (q *fetchQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fetches)
}

// take removes and returns the fetch at index i.
func (q *fetchQueue) take(i int) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	f := q.fetches[i]
	q.fetches = append(q.fetches[:i], q.fetches[i+1:]...)
	return f
}

func (q *fetchQueue) drain() {
	for q.len() > 0 {
		q.take(0)()
	}
}

func syncLaunch(fetch func()) { fetch() }

var errBoom = errors.New("boom")
