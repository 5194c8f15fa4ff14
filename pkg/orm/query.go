// Package orm is a thin chainable wrapper over *gorm.DB that records query
// latency and offers pagination and cache-aside reads.
package orm

import (
	"context"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shashiranjanraj/kashvi-shop/pkg/cache"
	"github.com/shashiranjanraj/kashvi-shop/pkg/database"
	"github.com/shashiranjanraj/kashvi-shop/pkg/metrics"
)

// Pagination is the metadata returned alongside a page of rows.
type Pagination struct {
	Page     int   `json:"page"`
	Limit    int   `json:"limit"`
	Total    int64 `json:"total"`
	LastPage int   `json:"last_page"`
}

// Builder calls return a new Query. Preloads are
// held back until a fetch so that Count never runs them.
type Query struct {
	db       *gorm.DB
	preloads []preload
}

type preload struct {
	query string
	args  []interface{}
}

func (q *Query) with(db *gorm.DB) *Query {
	return &Query{db: db, preloads: q.preloads}
}

// fetchDB starts a fresh session so running a statement never mutates the
// chain q was built from.
func (q *Query) fetchDB() *gorm.DB {
	db := q.db.Session(&gorm.Session{})
	for _, p := range q.preloads {
		db = db.Preload(p.query, p.args...)
	}
	return db
}

// DB starts a query on the global connection.
func DB() *Query {
	return &Query{db: database.DB}
}

// On starts a query on db, typically a transaction handle.
func On(db *gorm.DB) *Query {
	return &Query{db: db}
}

// Gorm exposes the underlying handle for things the builder does not cover.
func (q *Query) Gorm() *gorm.DB { return q.db }

func (q *Query) WithContext(ctx context.Context) *Query {
	return q.with(q.db.WithContext(ctx))
}

func (q *Query) Model(v interface{}) *Query {
	return q.with(q.db.Model(v))
}

func (q *Query) Where(query interface{}, args ...interface{}) *Query {
	return q.with(q.db.Where(query, args...))
}

func (q *Query) Preload(query string, args ...interface{}) *Query {
	preloads := append(append([]preload(nil), q.preloads...), preload{query: query, args: args})
	return &Query{db: q.db, preloads: preloads}
}

func (q *Query) Order(value interface{}) *Query {
	return q.with(q.db.Order(value))
}

func (q *Query) Limit(n int) *Query {
	return q.with(q.db.Limit(n))
}

func (q *Query) Offset(n int) *Query {
	return q.with(q.db.Offset(n))
}

// LockForUpdate adds SELECT ... FOR UPDATE. Only meaningful inside a
// transaction on dialects that support row locks.
func (q *Query) LockForUpdate() *Query {
	return q.with(q.db.Clauses(clause.Locking{Strength: "UPDATE"}))
}

func (q *Query) Get(dest interface{}) error {
	defer metrics.ObserveDBQuery("select", time.Now())
	return q.fetchDB().Find(dest).Error
}

func (q *Query) First(dest interface{}) error {
	defer metrics.ObserveDBQuery("select", time.Now())
	return q.fetchDB().First(dest).Error
}

func (q *Query) Count() (int64, error) {
	defer metrics.ObserveDBQuery("select", time.Now())
	var n int64
	err := q.db.Session(&gorm.Session{}).Count(&n).Error
	return n, err
}

func (q *Query) Create(value interface{}) error {
	defer metrics.ObserveDBQuery("insert", time.Now())
	return q.db.Create(value).Error
}

func (q *Query) Save(value interface{}) error {
	defer metrics.ObserveDBQuery("update", time.Now())
	return q.db.Save(value).Error
}

func (q *Query) Delete(value interface{}) error {
	defer metrics.ObserveDBQuery("delete", time.Now())
	return q.db.Delete(value).Error
}

// UpdateColumn sets one column without hooks or updated_at and reports the
// number of rows the WHERE clause matched.
func (q *Query) UpdateColumn(column string, value interface{}) (int64, error) {
	defer metrics.ObserveDBQuery("update", time.Now())
	res := q.db.UpdateColumn(column, value)
	return res.RowsAffected, res.Error
}

// Updates applies a column map and reports the affected rows.
func (q *Query) Updates(values map[string]interface{}) (int64, error) {
	defer metrics.ObserveDBQuery("update", time.Now())
	res := q.db.Updates(values)
	return res.RowsAffected, res.Error
}

// GetWithPagination counts the matching rows and loads page (1-based) into dest.
func (q *Query) GetWithPagination(dest interface{}, page, limit int) (Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 15
	}

	total, err := q.Count()
	if err != nil {
		return Pagination{}, err
	}

	if err := q.Offset((page - 1) * limit).Limit(limit).Get(dest); err != nil {
		return Pagination{}, err
	}

	last := int(math.Ceil(float64(total) / float64(limit)))
	if last < 1 {
		last = 1
	}
	return Pagination{Page: page, Limit: limit, Total: total, LastPage: last}, nil
}

// Cache reads dest through the redis cache, falling back to First on a miss.
func (q *Query) Cache(ctx context.Context, key string, ttl time.Duration, dest interface{}) error {
	if cache.Get(ctx, key, dest) {
		return nil
	}

	if err := q.First(dest); err != nil {
		return err
	}

	return cache.Set(ctx, key, dest, ttl)
}
