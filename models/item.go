package models

import (
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"
)

// TargetItem identifies what is being priced on one site.
type TargetItem struct {
	ID   string            `json:"id" yaml:"id"`
	Site string            `json:"site" yaml:"site"`
	Name string            `json:"name,omitempty" yaml:"name"`
	URL  string            `json:"url" yaml:"url"`
	Meta map[string]string `json:"meta,omitempty" yaml:"meta"`
}

// Validate checks that the item can be rendered
func (t TargetItem) Validate() error {
	if t.Site == "" {
		return fmt.Errorf("item %s: site is required", t.ID)
	}
	u, err := url.Parse(t.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("item %s: invalid url %q", t.ID, t.URL)
	}
	return nil
}

// Identifier returns the configured ID, or the path of the rendered page
func (t TargetItem) Identifier(pageURL string) string {
	if t.ID != "" {
		return t.ID
	}
	for _, raw := range []string{pageURL, t.URL} {
		if u, err := url.Parse(raw); err == nil && u.Path != "" {
			return u.Path
		}
	}
	return t.URL
}

// queryMetaKeys are always present in the URL metadata, empty when absent.
// They match query parameters in any case, so Agoda's checkIn fills checkin.
var queryMetaKeys = []string{"checkin", "checkout", "adults", "rooms"}

// ParseURLMeta extracts query parameters such as stay dates and occupancy from a page URL
func ParseURLMeta(rawURL string) map[string]string {
	meta := make(map[string]string)
	for _, key := range queryMetaKeys {
		meta[key] = ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return meta
	}
	q := u.Query()

	keys := make([]string, 0, len(q))
	for key := range q {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		values := q[key]
		if len(values) == 0 {
			continue
		}
		lower := strings.ToLower(key)
		if !slices.Contains(queryMetaKeys, lower) {
			meta[key] = values[0]
			continue
		}
		// an exact lower-case key wins over other spellings
		if meta[lower] == "" || key == lower {
			meta[lower] = values[0]
		}
	}
	return meta
}
