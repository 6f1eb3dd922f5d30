package classifier

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
)

func TestCacheKeyNormalization(t *testing.T) {
	a := cacheKey("  What  is YOUR   phone number? ")
	b := cacheKey("what is your phone number?")
	assert.Equal(t, b, a)

	long := cacheKey(string(make([]byte, 500)))
	assert.LessOrEqual(t, len(long), cacheKeyMaxLen)
}

func TestCacheGetPut(t *testing.T) {
	c := newResultCache(4, time.Minute)

	_, ok := c.get("missing")
	assert.False(t, ok)

	res := schemas.ClassificationResult{Category: schemas.CategoryAcknowledge, Confidence: 0.9}
	c.put("k", res)

	got, ok := c.get("k")
	require.True(t, ok)
	assert.Equal(t, res, got)
}

func TestCacheTTLExpiry(t *testing.T) {
	c := newResultCache(4, time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.put("k", schemas.ClassificationResult{Category: schemas.CategoryAcknowledge})

	now = now.Add(2 * time.Minute)
	_, ok := c.get("k")
	assert.False(t, ok, "an expired entry must behave exactly like an absent one")
	assert.Equal(t, 0, c.len(), "expired entry must be evicted on read")
}

func TestCacheLRUEviction(t *testing.T) {
	c := newResultCache(3, time.Minute)

	for i := 0; i < 3; i++ {
		c.put(fmt.Sprintf("k%d", i), schemas.ClassificationResult{Confidence: float64(i)})
	}

	// Touch k0 so k1 becomes the eviction candidate.
	_, ok := c.get("k0")
	require.True(t, ok)

	c.put("k3", schemas.ClassificationResult{})
	assert.Equal(t, 3, c.len())

	_, ok = c.get("k1")
	assert.False(t, ok, "least recently used entry should have been evicted")
	_, ok = c.get("k0")
	assert.True(t, ok)
}

func TestCachePutUpdatesExisting(t *testing.T) {
	c := newResultCache(2, time.Minute)

	c.put("k", schemas.ClassificationResult{Confidence: 0.1})
	c.put("k", schemas.ClassificationResult{Confidence: 0.9})

	got, ok := c.get("k")
	require.True(t, ok)
	assert.Equal(t, 0.9, got.Confidence)
	assert.Equal(t, 1, c.len())
}
