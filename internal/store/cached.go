package store

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/agentic-research/taxa/internal/taxon"
)

// CachedStore memoizes record lookups of an underlying store. Any record
// write flushes the cache; names and child lists are never cached.
type CachedStore struct {
	Store
	cache  *gocache.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps s with a cache whose entries live for ttl.
func NewCachedStore(s Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store: s,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func nameKey(latin string) string { return "n:" + latin }

func idKey(id int64) string { return "i:" + strconv.FormatInt(id, 10) }

func (c *CachedStore) lookup(key string) (*taxon.Record, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return v.(*taxon.Record).Clone(), true
}

func (c *CachedStore) remember(rec *taxon.Record) {
	stored := rec.Clone()
	c.cache.SetDefault(nameKey(stored.Latin), stored)
	c.cache.SetDefault(idKey(stored.ID), stored)
}

func (c *CachedStore) FindByName(ctx context.Context, latin string) (*taxon.Record, error) {
	if rec, ok := c.lookup(nameKey(latin)); ok {
		return rec, nil
	}
	rec, err := c.Store.FindByName(ctx, latin)
	if err != nil {
		return nil, err
	}
	c.remember(rec)
	return rec, nil
}

func (c *CachedStore) FindByID(ctx context.Context, id int64) (*taxon.Record, error) {
	if rec, ok := c.lookup(idKey(id)); ok {
		return rec, nil
	}
	rec, err := c.Store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.remember(rec)
	return rec, nil
}

func (c *CachedStore) Create(ctx context.Context, rec *taxon.Record) (int64, error) {
	id, err := c.Store.Create(ctx, rec)
	if err != nil {
		return 0, err
	}
	stored := rec.Clone()
	stored.ID = id
	c.remember(stored)
	return id, nil
}

func (c *CachedStore) Update(ctx context.Context, rec *taxon.Record) error {
	c.cache.Flush()
	return c.Store.Update(ctx, rec)
}

// Stats returns the hit and miss counts so far.
func (c *CachedStore) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
