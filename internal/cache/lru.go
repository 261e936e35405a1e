// internal/cache/lru.go
//
// Tiny LRU cache used by the view engine to store per-language template
// sets.  No external deps; good for a few thousand entries.  Safe for
// concurrent use: Get reorders the list, so it takes the write lock too.
package cache

import (
	"container/list"
	"sync"
)

// LRU is a non-generic least-recently-used cache.
// Keys must be comparable; values can be any.
type LRU struct {
	mu   sync.Mutex
	cap  int
	ll   *list.List
	dict map[any]*list.Element
}

type pair struct {
	key any
	val any
}

// New returns an LRU with the given capacity.  Panics on cap < 1.
func New(capacity int) *LRU {
	if capacity < 1 {
		panic("cache: capacity must be ≥1")
	}
	return &LRU{
		cap:  capacity,
		ll:   list.New(),
		dict: make(map[any]*list.Element, capacity),
	}
}

// Get retrieves a value and marks it MRU.
func (c *LRU) Get(key any) (val any, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, hit := c.dict[key]; hit {
		c.ll.MoveToFront(ele)
		return ele.Value.(pair).val, true
	}
	return nil, false
}

// GetOrAdd returns the cached value for key, building and storing it with
// build on a miss.  build runs under the lock, so keep it cheap.
func (c *LRU) GetOrAdd(key any, build func() (any, error)) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, hit := c.dict[key]; hit {
		c.ll.MoveToFront(ele)
		return ele.Value.(pair).val, nil
	}
	val, err := build()
	if err != nil {
		return nil, err
	}
	c.add(key, val)
	return val, nil
}

// Add inserts or updates a value.
func (c *LRU) Add(key, val any) {
	c.mu.Lock()
	c.add(key, val)
	c.mu.Unlock()
}

func (c *LRU) add(key, val any) {
	if ele, hit := c.dict[key]; hit {
		ele.Value = pair{key, val}
		c.ll.MoveToFront(ele)
		return
	}
	ele := c.ll.PushFront(pair{key, val})
	c.dict[key] = ele
	if c.ll.Len() > c.cap {
		last := c.ll.Back()
		c.ll.Remove(last)
		delete(c.dict, last.Value.(pair).key)
	}
}

// Len reports current size.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
