package utils_test

import (
	"testing"

	"github.com/meshworks/meshd/std/utils"
	tu "github.com/meshworks/meshd/std/utils/testutils"
	"github.com/stretchr/testify/require"
)

func TestIdPtr(t *testing.T) {
	tu.SetT(t)

	p := utils.IdPtr(uint64(42))
	require.Equal(t, uint64(42), *p)
}

func TestConvIntPtr(t *testing.T) {
	tu.SetT(t)

	v := uint8(7)
	p := utils.ConvIntPtr[uint8, uint32](&v)
	require.Equal(t, uint32(7), *p)

	var missing *uint8
	require.Nil(t, utils.ConvIntPtr[uint8, uint32](missing))
}

func TestIf(t *testing.T) {
	tu.SetT(t)

	require.Equal(t, "a", utils.If(true, "a", "b"))
	require.Equal(t, "b", utils.If(false, "a", "b"))
}

func TestMin(t *testing.T) {
	tu.SetT(t)

	require.Equal(t, uint16(3), utils.Min(uint16(3), uint16(9)))
	require.Equal(t, uint16(3), utils.Min(uint16(9), uint16(3)))
}
