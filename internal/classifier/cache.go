package classifier

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
)

const cacheKeyMaxLen = 160

// cacheKey normalizes an utterance into a cache key: lowercased, whitespace
// collapsed, truncated. Two utterances differing only in formatting share an
// entry.
func cacheKey(utterance string) string {
	key := strings.Join(strings.Fields(strings.ToLower(utterance)), " ")
	if len(key) > cacheKeyMaxLen {
		key = key[:cacheKeyMaxLen]
	}
	return key
}

type cacheEntry struct {
	key      string
	result   schemas.ClassificationResult
	storedAt time.Time
}

// resultCache is a small LRU with a TTL. Expired entries are treated exactly
// like absent ones and evicted opportunistically. Safe for concurrent use.
type resultCache struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	// now allows tests to control the clock.
	now func() time.Time
}

func newResultCache(max int, ttl time.Duration) *resultCache {
	if max <= 0 {
		max = 1
	}
	return &resultCache{
		max:     max,
		ttl:     ttl,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

func (c *resultCache) get(key string) (schemas.ClassificationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return schemas.ClassificationResult{}, false
	}
	entry := el.Value.(*cacheEntry)
	if c.expired(entry) {
		c.remove(el)
		return schemas.ClassificationResult{}, false
	}
	c.order.MoveToFront(el)
	return entry.result, true
}

func (c *resultCache) put(key string, res schemas.ClassificationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.result = res
		entry.storedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{key: key, result: res, storedAt: c.now()})
	c.entries[key] = el

	// Evict stale entries first, then trim by size.
	for back := c.order.Back(); back != nil; {
		entry := back.Value.(*cacheEntry)
		prev := back.Prev()
		if c.expired(entry) {
			c.remove(back)
			back = prev
			continue
		}
		break
	}
	for len(c.entries) > c.max {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.remove(back)
	}
}

func (c *resultCache) expired(entry *cacheEntry) bool {
	return c.ttl > 0 && c.now().Sub(entry.storedAt) > c.ttl
}

func (c *resultCache) remove(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.order.Remove(el)
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
