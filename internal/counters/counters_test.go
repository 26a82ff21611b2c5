package counters

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresetValues(t *testing.T) {
	c := New(1, 2, 3, 4)
	assert.Equal(t, int64(1), c.Read(BytesDownloaded))
	assert.Equal(t, int64(2), c.Read(BytesUploaded))
	assert.Equal(t, int64(3), c.Read(BytesWasted))
	assert.Equal(t, int64(4), c.Read(SeededFor))
}

func TestConcurrentIncr(t *testing.T) {
	c := New(0, 0, 0, 0)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Incr(BytesDownloaded, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(10000), c.Read(BytesDownloaded))
}
