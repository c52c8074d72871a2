package log

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLogger(t *testing.T) {
	original := defaultLogger
	t.Cleanup(func() { SetDefaultLogger(original) })

	SetDefaultLogger(nil)
	first := DefaultLogger()
	assert.NotNil(t, first)
	assert.Same(t, first, DefaultLogger())

	custom := Development()
	SetDefaultLogger(custom)
	assert.Same(t, custom, DefaultLogger())
}

func TestDefaultLoggerConcurrentInit(t *testing.T) {
	original := defaultLogger
	t.Cleanup(func() { SetDefaultLogger(original) })
	SetDefaultLogger(nil)

	var wg sync.WaitGroup
	got := make([]*Logger, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = DefaultLogger()
		}(i)
	}
	wg.Wait()

	for _, l := range got {
		assert.Same(t, got[0], l)
	}
}
