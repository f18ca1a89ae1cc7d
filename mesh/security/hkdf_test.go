package security_test

import (
	"testing"

	"github.com/meshworks/meshd/mesh/security"
	"github.com/meshworks/meshd/mesh/table"
	tu "github.com/meshworks/meshd/std/utils/testutils"
	"github.com/stretchr/testify/require"
)

func TestSubnetKeysDeterministic(t *testing.T) {
	tu.SetT(t)
	deriver := security.NewHkdfDeriver()
	net := table.Key{0x7d, 0xd7, 0x36, 0x4c, 0xd8, 0x42, 0xad, 0x18,
		0xc1, 0x7c, 0x2b, 0x82, 0x0c, 0x84, 0xc3, 0xd6}

	keys := tu.NoErr(deriver.SubnetKeys(net))
	require.True(t, keys.Ready)
	require.Equal(t, net, keys.Net)
	require.Less(t, keys.NID, uint8(0x80))

	require.Equal(t, keys, tu.NoErr(deriver.SubnetKeys(net)))

	// credentials are pairwise distinct
	require.NotEqual(t, keys.Enc, keys.Privacy)
	require.NotEqual(t, keys.Enc, keys.Beacon)
	require.NotEqual(t, keys.Privacy, keys.Beacon)
	require.NotEqual(t, keys.Net, keys.Enc)
}

func TestSubnetKeysDiffer(t *testing.T) {
	tu.SetT(t)
	deriver := security.NewHkdfDeriver()

	a := tu.NoErr(deriver.SubnetKeys(table.Key{0x01}))
	b := tu.NoErr(deriver.SubnetKeys(table.Key{0x02}))
	require.NotEqual(t, a.Enc, b.Enc)
	require.NotEqual(t, a.Beacon, b.Beacon)
}

func TestAppID(t *testing.T) {
	deriver := security.NewHkdfDeriver()
	val := table.Key{0x63, 0x96, 0x47, 0x71, 0x73, 0x4f, 0xbd, 0x76,
		0xe3, 0xb4, 0x05, 0x19, 0xd1, 0xd9, 0x4a, 0x48}

	aid, err := deriver.AppID(val)
	require.NoError(t, err)
	require.Less(t, aid, uint8(0x40))

	again, err := deriver.AppID(val)
	require.NoError(t, err)
	require.Equal(t, aid, again)
}
