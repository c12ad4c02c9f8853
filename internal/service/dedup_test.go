package service

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupCache_MarkAndCheck(t *testing.T) {
	cache := NewDedupCache()

	assert.True(t, cache.ShouldProcess(7))
	cache.MarkProcessed(7)
	assert.False(t, cache.ShouldProcess(7))
	assert.True(t, cache.ShouldProcess(8))

	cache.MarkProcessed(7)
	assert.Equal(t, 1, cache.Len())
}

func TestDedupCache_ClaimOnce(t *testing.T) {
	cache := NewDedupCache()

	var wg sync.WaitGroup
	var winners atomic.Int32
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cache.Claim(42) {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.False(t, cache.ShouldProcess(42))
}
