//go:build linux

package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/causalprof/pkg/interval"
)

func TestEMA_FirstSampleSetsState(t *testing.T) {
	e := NewEMA(0.5)
	assert.Equal(t, 10.0, e.Next(10))
}

func TestEMA_SequenceAlphaPointFive(t *testing.T) {
	e := NewEMA(0.5)
	e.Next(10)
	assert.InDelta(t, 15.0, e.Next(20), 1e-9)
	assert.InDelta(t, 17.5, e.Next(20), 1e-9)
}

func TestEMA_AlphaOne_NoSmoothing(t *testing.T) {
	e := NewEMA(1.0)
	e.Next(5)
	assert.Equal(t, 42.0, e.Next(42))
}

func TestEMA_ConvergesToConstantInput(t *testing.T) {
	e := NewEMA(0.3)
	e.Next(0)
	var v float64
	for i := 0; i < 200; i++ {
		v = e.Next(100)
	}
	assert.InDelta(t, 100.0, v, 1e-6)
}

func TestDeltaU64(t *testing.T) {
	assert.Equal(t, uint64(5), DeltaU64(15, 10))
	assert.Equal(t, uint64(0), DeltaU64(10, 10))
	assert.Equal(t, uint64(0), DeltaU64(5, 10), "wrap or unset prev yields 0")
}

func TestSafeDiv(t *testing.T) {
	assert.Equal(t, 2.0, SafeDiv(10, 5))
	assert.Equal(t, 0.0, SafeDiv(10, 0))
	assert.False(t, math.IsNaN(SafeDiv(0, 0)))
}

func TestParseHexRange(t *testing.T) {
	r, err := ParseHexRange("0x400500-0x400540")
	require.NoError(t, err)
	assert.Equal(t, interval.New(0x400500, 0x400540), r)

	r, err = ParseHexRange(" 400500-400540 ")
	require.NoError(t, err)
	assert.Equal(t, interval.New(0x400500, 0x400540), r)
}

func TestParseHexRangeErrors(t *testing.T) {
	for _, s := range []string{
		"0x400500",          // no separator
		"0x400540-0x400500", // inverted
		"0x400500-0x400500", // empty
		"zz-0x400540",       // bad base
		"0x400500-zz",       // bad limit
	} {
		_, err := ParseHexRange(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestFmtHz(t *testing.T) {
	assert.Equal(t, "1234.57 Hz", FmtHz(1234.5678))
	assert.Equal(t, "0.00 Hz", FmtHz(0))
}
