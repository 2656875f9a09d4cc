package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceGenerator_Counts(t *testing.T) {
	g := NewSequenceGenerator("pass")
	assert.Equal(t, "pass-1", g.Generate())
	assert.Equal(t, "pass-2", g.Generate())
	assert.Equal(t, "pass-3", g.Generate())
}

func TestSequenceGenerator_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "seq-1", NewSequenceGenerator("").Generate())
}

func TestSequenceGenerator_Independent(t *testing.T) {
	a := NewSequenceGenerator("id")
	b := NewSequenceGenerator("id")
	a.Generate()
	assert.Equal(t, "id-1", b.Generate())
}

func TestSequenceGenerator_ThreadSafe(t *testing.T) {
	g := NewSequenceGenerator("id")
	const workers, calls = 20, 50

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				v := g.Generate()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*calls)
}
