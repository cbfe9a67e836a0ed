package gid_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheEntropyCollective/oswrapper/internal/gid"
)

func TestCurrentIsStableWithinGoroutine(t *testing.T) {
	a := gid.Current()
	b := gid.Current()
	assert.Equal(t, a, b)
	assert.NotZero(t, a)
}

func TestCurrentDiffersAcrossGoroutines(t *testing.T) {
	var wg sync.WaitGroup
	ids := make(chan uint64, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			ids <- gid.Current()
		}()
	}
	wg.Wait()
	close(ids)
	first := <-ids
	second := <-ids
	assert.NotEqual(t, first, second)
}
