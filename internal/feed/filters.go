package feed

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Filters is the immutable query a source is paginated under. Build new
// values with With; never mutate Toggles in place.
type Filters struct {
	Search   string   `json:"search,omitempty" yaml:"search,omitempty"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
	Sort     string   `json:"sort,omitempty" yaml:"sort,omitempty"`
	Toggles  []string `json:"toggles,omitempty" yaml:"toggles,omitempty"`
}

// FilterPatch is a partial filter change. Nil fields are left alone; a
// Toggles entry set to true turns the toggle on, false turns it off.
type FilterPatch struct {
	Search   *string         `json:"search,omitempty"`
	Category *string         `json:"category,omitempty"`
	Sort     *string         `json:"sort,omitempty"`
	Toggles  map[string]bool `json:"toggles,omitempty"`
}

// NewFilters returns Filters with toggles normalized.
func NewFilters(search, category, sort string, toggles ...string) Filters {
	return Filters{
		Search:   search,
		Category: category,
		Sort:     sort,
		Toggles:  normalizeToggles(toggles),
	}
}

// Has reports whether toggle is set.
func (f Filters) Has(toggle string) bool {
	_, found := slices.BinarySearch(f.Toggles, toggle)
	return found
}

// Equal reports value equality.
func (f Filters) Equal(o Filters) bool {
	return f.Search == o.Search &&
		f.Category == o.Category &&
		f.Sort == o.Sort &&
		slices.Equal(normalizeToggles(f.Toggles), normalizeToggles(o.Toggles))
}

// With returns a copy of f with p applied.
func (f Filters) With(p FilterPatch) Filters {
	out := Filters{Search: f.Search, Category: f.Category, Sort: f.Sort}
	if p.Search != nil {
		out.Search = *p.Search
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.Sort != nil {
		out.Sort = *p.Sort
	}

	set := make(map[string]bool, len(f.Toggles)+len(p.Toggles))
	for _, t := range f.Toggles {
		set[t] = true
	}
	for t, on := range p.Toggles {
		if on {
			set[t] = true
		} else {
			delete(set, t)
		}
	}
	toggles := make([]string, 0, len(set))
	for t := range set {
		toggles = append(toggles, t)
	}
	out.Toggles = normalizeToggles(toggles)
	return out
}

// Values encodes f as URL query parameters: search, category, sort, and
// name=true for each toggle. Empty fields are omitted.
func (f Filters) Values() url.Values {
	v := url.Values{}
	if f.Search != "" {
		v.Set("search", f.Search)
	}
	if f.Category != "" {
		v.Set("category", f.Category)
	}
	if f.Sort != "" {
		v.Set("sort", f.Sort)
	}
	for _, t := range f.Toggles {
		v.Set(t, "true")
	}
	return v
}

// ParseFilters is the inverse of Values. Any parameter other than search,
// category, sort, page and limit whose value parses as a true bool is a
// toggle.
func ParseFilters(v url.Values) Filters {
	f := Filters{
		Search:   v.Get("search"),
		Category: v.Get("category"),
		Sort:     v.Get("sort"),
	}
	var toggles []string
	for k := range v {
		switch k {
		case "search", "category", "sort", "page", "limit":
			continue
		}
		if on, err := strconv.ParseBool(v.Get(k)); err == nil && on {
			toggles = append(toggles, k)
		}
	}
	f.Toggles = normalizeToggles(toggles)
	return f
}

// String renders f as a query string, for logs.
func (f Filters) String() string {
	return f.Values().Encode()
}

// StringPtr is a helper for building a FilterPatch.
func StringPtr(s string) *string { return &s }

func normalizeToggles(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
