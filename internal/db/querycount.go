package db

import (
	"context"
	"fmt"
	"sync/atomic"

	"gorm.io/gorm"
)

type queryCounterKey struct{}

// QueryCounter counts the SQL statements run with a context carrying it.
type QueryCounter struct {
	n atomic.Int64
}

// Count returns the number of statements executed so far.
func (c *QueryCounter) Count() int64 {
	return c.n.Load()
}

// WithQueryCounter returns a context that counts statements run through it.
func WithQueryCounter(ctx context.Context) (context.Context, *QueryCounter) {
	c := &QueryCounter{}
	return context.WithValue(ctx, queryCounterKey{}, c), c
}

// QueryCounterFrom returns the counter attached to ctx, if any.
func QueryCounterFrom(ctx context.Context) (*QueryCounter, bool) {
	c, ok := ctx.Value(queryCounterKey{}).(*QueryCounter)
	return c, ok
}

func countStatement(tx *gorm.DB) {
	if tx.Statement == nil || tx.Statement.Context == nil {
		return
	}
	if c, ok := QueryCounterFrom(tx.Statement.Context); ok {
		c.n.Add(1)
	}
}

// RegisterQueryCounter hooks statement counting into every gorm callback chain.
func RegisterQueryCounter(db *gorm.DB) error {
	cb := db.Callback()
	registrations := []struct {
		name     string
		register func(string, func(*gorm.DB)) error
	}{
		{"taskhub:count_create", cb.Create().After("gorm:create").Register},
		{"taskhub:count_query", cb.Query().After("gorm:query").Register},
		{"taskhub:count_update", cb.Update().After("gorm:update").Register},
		{"taskhub:count_delete", cb.Delete().After("gorm:delete").Register},
		{"taskhub:count_row", cb.Row().After("gorm:row").Register},
		{"taskhub:count_raw", cb.Raw().After("gorm:raw").Register},
	}
	for _, r := range registrations {
		if err := r.register(r.name, countStatement); err != nil {
			return fmt.Errorf("failed to register %s callback: %w", r.name, err)
		}
	}
	return nil
}
