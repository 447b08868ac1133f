package taskclient

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/zeebo/blake3"
)

// responseCache holds successful responses keyed by a digest of the request.
type responseCache struct {
	lru *expirable.LRU[string, Response]
}

func newResponseCache(size int, ttl time.Duration) *responseCache {
	return &responseCache{lru: expirable.NewLRU[string, Response](size, nil, ttl)}
}

func (c *responseCache) get(req Request) (Response, bool) {
	return c.lru.Get(cacheKey(req))
}

func (c *responseCache) put(req Request, resp Response) {
	c.lru.Add(cacheKey(req), resp)
}

func (c *responseCache) remove(req Request) {
	c.lru.Remove(cacheKey(req))
}

func (c *responseCache) len() int {
	return c.lru.Len()
}

// cacheKey hashes every request field that influences the output.
// Fields are length-prefixed so adjacent values cannot collide.
func cacheKey(req Request) string {
	h := blake3.New()
	writeField := func(s string) {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
		_, _ = h.Write(n[:])
		_, _ = h.Write([]byte(s))
	}

	var num [8]byte
	writeField(req.Model)
	binary.LittleEndian.PutUint64(num[:], math.Float64bits(req.Temperature))
	_, _ = h.Write(num[:])
	binary.LittleEndian.PutUint64(num[:], uint64(req.MaxTokens))
	_, _ = h.Write(num[:])
	writeField(req.SystemInstruction)
	writeField(req.Prompt)

	return hex.EncodeToString(h.Sum(nil))
}
