package ids

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeUniqueUnderConcurrency(t *testing.T) {
	n := NewNode(7)
	const workers, per = 8, 500

	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, workers*per)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, per)
			for i := 0; i < per; i++ {
				local = append(local, n.Next())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, workers*per)
}

func TestNodeEncodesNodeID(t *testing.T) {
	n := NewNode(42)
	id := n.Next()
	assert.Equal(t, int64(42), (id>>seqBits)&maxNode)
}

func TestOutOfRangeNodeID(t *testing.T) {
	assert.Equal(t, int64(1), NewNode(5000).nodeID)
}
