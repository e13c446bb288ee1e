package cache

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Key builds the cache key for one page of a resource list. The default
// unfiltered first page maps to "all_<resource>"; any other view gets
// "<resource>:<sorted filters>:page=<n>". Empty filter values are ignored.
func Key(resource string, filters map[string]string, page int) string {
	if page < 1 {
		page = 1
	}

	names := make([]string, 0, len(filters))
	for name, value := range filters {
		if strings.TrimSpace(value) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	if len(names) == 0 && page == 1 {
		return DefaultKey(resource)
	}

	var b strings.Builder
	b.WriteString(resource)
	b.WriteByte(':')
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(strings.TrimSpace(filters[name])))
	}
	b.WriteString(":page=")
	b.WriteString(strconv.Itoa(page))
	return b.String()
}

// DefaultKey is the key of the unfiltered first page of resource.
func DefaultKey(resource string) string {
	return "all_" + resource
}

// Invalidate drops every cached page of resource.
func Invalidate(ctx context.Context, c Cache, resource string) error {
	if err := c.DeletePrefix(ctx, resource+":"); err != nil {
		return err
	}
	return c.Delete(ctx, DefaultKey(resource))
}
