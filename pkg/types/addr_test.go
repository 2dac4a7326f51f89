package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddrString(t *testing.T) {
	assert.Equal(t, "0x0", Addr(0).String())
	assert.Equal(t, "0x400500", Addr(0x400500).String())
	assert.Equal(t, "0xffffffffffffffff", Addr(^uint64(0)).String())
}

func TestAddrJSON(t *testing.T) {
	b, err := Addr(0x400530).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"0x400530"`, string(b))
}

func TestParseAddr(t *testing.T) {
	a, err := ParseAddr("0x400500")
	require.NoError(t, err)
	assert.Equal(t, Addr(0x400500), a)

	a, err = ParseAddr("400540")
	require.NoError(t, err)
	assert.Equal(t, Addr(0x400540), a)

	a, err = ParseAddr(" 0xdeadbeef ")
	require.NoError(t, err)
	assert.Equal(t, Addr(0xdeadbeef), a)

	_, err = ParseAddr("zz")
	require.Error(t, err)
}
