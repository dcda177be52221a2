package executor

import (
	lru "github.com/hnlq715/golang-lru"

	"github.com/roach88/reactor/internal/ir"
)

// docCache holds recently used document snapshots. Entries are cloned on
// the way in and out so callers never share state maps.
type docCache struct {
	lru *lru.Cache
}

func newDocCache(size int) (*docCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &docCache{lru: c}, nil
}

func (c *docCache) get(id string) (ir.Document, bool) {
	v, ok := c.lru.Get(id)
	if !ok {
		cacheLookups.WithLabelValues("miss").Inc()
		return ir.Document{}, false
	}
	cacheLookups.WithLabelValues("hit").Inc()
	return v.(ir.Document).Clone(), true
}

func (c *docCache) put(doc ir.Document) {
	c.lru.Add(doc.Header.ID, doc.Clone())
}

func (c *docCache) remove(id string) {
	c.lru.Remove(id)
}
