//go:build linux

package causal

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var declared = DeclareProgress()

func TestDeclareCapturesCallSite(t *testing.T) {
	assert.True(t, strings.HasSuffix(declared.file, "causal_test.go"),
		"declaration site is the declaring file, got %q", declared.file)
	assert.Positive(t, declared.line)
}

func TestTickCountsWithoutProfiler(t *testing.T) {
	c := DeclareProgress()
	for i := 0; i < 5; i++ {
		c.Tick()
	}
	assert.Equal(t, uint64(5), c.Value())
	assert.False(t, c.registered.Load(), "no profiler, no registration")
}

func TestTickConcurrent(t *testing.T) {
	c := DeclareProgress()
	const goroutines, per = 8, 1000

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				c.Tick()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(goroutines*per), c.Value())
}

func TestDeclareKinds(t *testing.T) {
	b := DeclareBegin()
	e := DeclareEnd()
	assert.NotEqual(t, b.kind, e.kind)
	b.Tick()
	e.Tick()
	assert.Equal(t, uint64(1), b.Value())
	assert.Equal(t, uint64(1), e.Value())
}

func TestGoRunsWithoutProfiler(t *testing.T) {
	done := make(chan struct{})
	Go(func() { close(done) })
	<-done
}

func TestPollWithoutProfilerIsNoop(t *testing.T) {
	require.NotPanics(t, Poll)
}
