package mesh_test

import (
	"testing"

	"github.com/meshworks/meshd/mesh/config"
	"github.com/meshworks/meshd/mesh/mesh"
	"github.com/meshworks/meshd/mesh/security"
	"github.com/meshworks/meshd/mesh/table"
	"github.com/stretchr/testify/require"
)

func newTestMesh(t *testing.T) *mesh.Mesh {
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Parse())
	return mesh.NewMesh(cfg, security.NewHkdfDeriver())
}

func TestNewMesh(t *testing.T) {
	m := newTestMesh(t)

	require.False(t, m.Provisioned())
	require.Equal(t, mesh.RoleNone, m.Role())
	require.Equal(t, 0, m.Subnets.Count())
	require.Equal(t, table.FeatureEnabled, m.Cfg.Beacon)
	require.Equal(t, uint8(7), m.Cfg.DefaultTTL)
	require.False(t, m.HB.Enabled())
}

func TestProvision(t *testing.T) {
	m := newTestMesh(t)
	devKey := table.Key{0x9d, 0x6d, 0xd0, 0xe9, 0x6e, 0xb2, 0x5d, 0xc1}
	netKey := table.Key{0x7d, 0xd7, 0x36, 0x4c, 0xd8, 0x42, 0xad, 0x18}

	require.NoError(t, m.Provision(0x0b0c, devKey, 0x000, netKey, 42))
	require.True(t, m.Provisioned())
	require.Equal(t, uint16(0x0b0c), m.Addr)
	require.Equal(t, devKey, m.DevKey)
	require.Equal(t, uint32(42), m.IVIndex)
	require.Equal(t, uint32(0), m.Seq)

	sub := m.Subnets.Get(0x000)
	require.NotNil(t, sub)
	require.Equal(t, netKey, sub.Keys[0].Net)
	require.True(t, sub.Keys[0].Ready)

	require.ErrorIs(t, m.Provision(0x0b0d, devKey, 0x000, netKey, 42),
		mesh.ErrProvisioned)
}

func TestNextSeq(t *testing.T) {
	m := newTestMesh(t)
	persisted := 0
	m.PersistSeq = func() { persisted++ }

	require.Equal(t, uint32(0), m.NextSeq())
	require.Equal(t, uint32(1), m.NextSeq())
	require.Equal(t, uint32(2), m.Seq)
	require.Equal(t, 2, persisted)

	// the counter is 24 bits wide
	m.Seq = 0xffffff
	require.Equal(t, uint32(0xffffff), m.NextSeq())
	require.Equal(t, uint32(0), m.Seq)
}

func TestRole(t *testing.T) {
	m := newTestMesh(t)

	require.NoError(t, m.SetRole(mesh.RoleNode))
	require.Equal(t, mesh.RoleNode, m.Role())
	require.True(t, m.Flags().Test(mesh.FlagNode))

	require.NoError(t, m.SetRole(mesh.RoleCoordinator))
	require.Equal(t, mesh.RoleCoordinator, m.Role())
	require.False(t, m.Flags().Test(mesh.FlagNode))

	require.NoError(t, m.SetRole(mesh.RoleNone))
	require.Equal(t, mesh.RoleNone, m.Role())

	require.Error(t, m.SetRole(0x7f))
}

func TestIVUpdate(t *testing.T) {
	m := newTestMesh(t)
	onlyDuration := []bool{}
	m.PersistIV = func(only bool) { onlyDuration = append(onlyDuration, only) }
	m.Seq = 100

	m.IVUpdateStart()
	require.Equal(t, uint32(1), m.IVIndex)
	require.True(t, m.Flags().Test(mesh.FlagIVUpdate))
	require.Equal(t, uint32(100), m.Seq)

	m.IVUpdateDone()
	require.Equal(t, uint32(1), m.IVIndex)
	require.False(t, m.Flags().Test(mesh.FlagIVUpdate))
	require.Equal(t, uint32(0), m.Seq)

	require.Equal(t, []bool{false, false}, onlyDuration)
}

func TestSetIVState(t *testing.T) {
	m := newTestMesh(t)

	m.SetIVState(7, true, 90)
	require.Equal(t, uint32(7), m.IVIndex)
	require.Equal(t, uint8(90), m.IVUDuration)
	require.True(t, m.Flags().Test(mesh.FlagIVUpdate))

	m.SetIVState(7, false, 0)
	require.False(t, m.Flags().Test(mesh.FlagIVUpdate))
}

func TestReset(t *testing.T) {
	m := newTestMesh(t)
	require.NoError(t, m.Provision(0x0001, table.Key{1}, 0x000, table.Key{2}, 5))
	require.NoError(t, m.SetRole(mesh.RoleNode))

	key := m.AppKeys.Alloc(0x001)
	require.NotNil(t, key)
	key.NetIdx = 0x000

	mod := m.Models.Register(&table.Model{ID: 0x1000})
	mod.Keys[0] = 0x001
	mod.DataPresent.Store(true)

	m.Reset()
	require.False(t, m.Provisioned())
	require.Equal(t, mesh.RoleNone, m.Role())
	require.Equal(t, uint16(table.AddrUnassigned), m.Addr)
	require.Equal(t, 0, m.Subnets.Count())
	require.Nil(t, m.AppKeys.Find(0x001))
	require.Equal(t, table.KeyUnused, mod.Keys[0])
	require.False(t, mod.DataPresent.Load())
	require.Equal(t, table.DefaultCfgServer(), m.Cfg)
}
