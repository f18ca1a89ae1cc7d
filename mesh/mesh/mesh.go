// Package mesh owns the live runtime state of a mesh node: addresses, keys,
// sequence and IV state, and the resource tables. The settings layer
// observes this state to persist it and rebuilds it at startup.
package mesh

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meshworks/meshd/mesh/config"
	"github.com/meshworks/meshd/mesh/security"
	"github.com/meshworks/meshd/mesh/table"
	"github.com/meshworks/meshd/std/log"
	"github.com/meshworks/meshd/std/utils"
)

// Node roles as persisted in the role record.
const (
	RoleNone        uint8 = 0x00
	RoleNode        uint8 = 0x01
	RoleCoordinator uint8 = 0x02
)

// Runtime state flags.
const (
	// the node is provisioned and its state may be persisted
	FlagValid uint32 = iota
	// an IV index update is in progress
	FlagIVUpdate
	// the network layer has been started
	FlagNetStarted
	// node role
	FlagNode
	// coordinator role
	FlagCoordinator
)

var ErrProvisioned = errors.New("node is already provisioned")

// Mesh is the root of the node's runtime state.
type Mesh struct {
	mu      sync.Mutex
	config  *config.Config
	deriver security.Deriver
	flags   utils.Flags

	Addr        uint16
	DevKey      table.Key
	Seq         uint32
	IVIndex     uint32
	IVUDuration uint8

	Subnets *table.SubnetTable
	AppKeys *table.AppKeyTable
	RPL     *table.ReplayTable
	Models  *table.ModelTable
	Labels  *table.LabelTable
	Nodes   *table.NodeTable
	Cfg     *table.CfgServer
	HB      *table.HeartbeatPub

	// PersistIV and PersistSeq are installed by the settings layer so that
	// state transitions schedule their own persistence.
	PersistIV  func(onlyDuration bool)
	PersistSeq func()

	ivuWork *utils.DelayedWork
	hbWork  *utils.DelayedWork
}

func NewMesh(cfg *config.Config, deriver security.Deriver) *Mesh {
	m := &Mesh{
		config:  cfg,
		deriver: deriver,
		Subnets: table.NewSubnetTable(int(cfg.SubnetCount)),
		AppKeys: table.NewAppKeyTable(int(cfg.AppKeyCount)),
		RPL:     table.NewReplayTable(int(cfg.RPLSize)),
		Models:  table.NewModelTable(cfg.ModelKeyCount, cfg.ModelGroupCount),
		Labels:  table.NewLabelTable(int(cfg.LabelCount)),
		Nodes:   table.NewNodeTable(int(cfg.NodeCount)),
		Cfg:     table.DefaultCfgServer(),
		HB:      &table.HeartbeatPub{},
	}
	m.ivuWork = utils.NewDelayedWork(m.ivuRefresh)
	m.hbWork = utils.NewDelayedWork(m.hbPublish)
	return m
}

func (m *Mesh) String() string {
	return "mesh"
}

func (m *Mesh) Config() *config.Config {
	return m.config
}

func (m *Mesh) Deriver() security.Deriver {
	return m.deriver
}

// Flags exposes the runtime state flags.
func (m *Mesh) Flags() *utils.Flags {
	return &m.flags
}

// Provisioned reports whether the node holds valid network state.
func (m *Mesh) Provisioned() bool {
	return m.flags.Test(FlagValid)
}

// Role returns the persisted role of the node.
func (m *Mesh) Role() uint8 {
	if m.flags.Test(FlagNode) {
		return RoleNode
	}
	if m.flags.Test(FlagCoordinator) {
		return RoleCoordinator
	}
	return RoleNone
}

func (m *Mesh) SetRole(role uint8) error {
	switch role {
	case RoleNone:
		m.flags.Clear(FlagNode)
		m.flags.Clear(FlagCoordinator)
	case RoleNode:
		m.flags.Set(FlagNode)
		m.flags.Clear(FlagCoordinator)
	case RoleCoordinator:
		m.flags.Set(FlagCoordinator)
		m.flags.Clear(FlagNode)
	default:
		return fmt.Errorf("invalid role 0x%02x", role)
	}
	return nil
}

// DeriveSubnet derives the traffic credentials of one subnet from its
// stored root keys. During a key refresh the new credentials are derived
// too; if that fails the current ones are dropped as well so the subnet
// never runs with half a refresh.
func (m *Mesh) DeriveSubnet(sub *table.Subnet) error {
	keys, err := m.deriver.SubnetKeys(sub.Keys[0].Net)
	if err != nil {
		return err
	}
	sub.Keys[0] = keys

	if sub.KRPhase != table.KRNormal {
		keys, err = m.deriver.SubnetKeys(sub.Keys[1].Net)
		if err != nil {
			sub.Keys[0] = table.SubnetKeys{}
			return err
		}
		sub.Keys[1] = keys
	}
	return nil
}

// Provision assigns the node its primary address, device key and first
// network key. The caller persists the new state afterwards.
func (m *Mesh) Provision(addr uint16, devKey table.Key, netIdx uint16, netKey table.Key, ivIndex uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.flags.Test(FlagValid) {
		return ErrProvisioned
	}

	sub := m.Subnets.Alloc(netIdx)
	if sub == nil {
		return errors.New("network key table is full")
	}
	sub.Keys[0].Net = netKey
	if err := m.DeriveSubnet(sub); err != nil {
		m.Subnets.Delete(netIdx)
		return err
	}

	m.Addr = addr
	m.DevKey = devKey
	m.Seq = 0
	m.IVIndex = ivIndex
	m.IVUDuration = 0
	m.flags.Set(FlagValid)

	log.Info(m, "Node provisioned", "addr", addr, "net_idx", netIdx, "iv", ivIndex)
	return nil
}

// NextSeq hands out the next transmit sequence number and schedules its
// persistence.
func (m *Mesh) NextSeq() uint32 {
	m.mu.Lock()
	seq := m.Seq
	m.Seq = (m.Seq + 1) & 0xffffff
	m.mu.Unlock()

	if m.PersistSeq != nil {
		m.PersistSeq()
	}
	return seq
}

// NetState returns the primary address and device key.
func (m *Mesh) NetState() (uint16, table.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Addr, m.DevKey
}

// SeqState returns the current transmit sequence number.
func (m *Mesh) SeqState() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Seq
}

// IVState returns the IV index, the update flag and the time spent in the
// current IV state.
func (m *Mesh) IVState() (uint32, bool, uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.IVIndex, m.flags.Test(FlagIVUpdate), m.IVUDuration
}

// SetIVState installs restored IV state without scheduling persistence.
func (m *Mesh) SetIVState(ivIndex uint32, update bool, duration uint8) {
	m.mu.Lock()
	m.IVIndex = ivIndex
	m.IVUDuration = duration
	m.mu.Unlock()

	if update {
		m.flags.Set(FlagIVUpdate)
	} else {
		m.flags.Clear(FlagIVUpdate)
	}
}

// IVUpdateStart enters the IV update procedure with the next IV index.
func (m *Mesh) IVUpdateStart() {
	m.mu.Lock()
	m.IVIndex++
	m.IVUDuration = 0
	iv := m.IVIndex
	m.mu.Unlock()
	m.flags.Set(FlagIVUpdate)

	log.Info(m, "IV update started", "iv", iv)
	if m.PersistIV != nil {
		m.PersistIV(false)
	}
	m.StartIVURefresh()
}

// IVUpdateDone leaves the IV update procedure. The sequence counter
// restarts for the new IV index.
func (m *Mesh) IVUpdateDone() {
	m.mu.Lock()
	m.IVUDuration = 0
	m.Seq = 0
	iv := m.IVIndex
	m.mu.Unlock()
	m.flags.Clear(FlagIVUpdate)

	log.Info(m, "IV update complete", "iv", iv)
	if m.PersistIV != nil {
		m.PersistIV(false)
	}
	m.StartIVURefresh()
}

// StartIVURefresh arms the periodic IV update duration refresh.
func (m *Mesh) StartIVURefresh() {
	m.ivuWork.Submit(m.config.IVUpdateRefresh())
}

// ivuRefresh advances the time spent in the current IV state. Below the
// minimum dwell time only the duration is persisted; past it a pending IV
// update is completed.
func (m *Mesh) ivuRefresh() {
	m.mu.Lock()
	duration := uint16(m.IVUDuration) + uint16(m.config.IVUpdateRefreshHours())
	m.IVUDuration = uint8(utils.Min(duration, uint16(table.IVDurationMax)))
	hours := m.IVUDuration
	m.mu.Unlock()

	log.Debug(m, "IV state duration refresh", "hours", hours)

	if time.Duration(hours)*time.Hour < m.config.IVUpdateMin() {
		if m.PersistIV != nil {
			m.PersistIV(true)
		}
		m.ivuWork.Submit(m.config.IVUpdateRefresh())
		return
	}

	if m.flags.Test(FlagIVUpdate) {
		m.IVUpdateDone()
	} else if m.PersistIV != nil {
		m.PersistIV(true)
	}
}

// StartHeartbeat arms heartbeat publication when it is configured. The
// first heartbeat goes out immediately, later ones at the period.
func (m *Mesh) StartHeartbeat() {
	if !m.HB.Enabled() {
		return
	}
	log.Debug(m, "Starting heartbeat publication", "dst", m.HB.Dst, "period", m.HB.PubPeriod())
	m.hbWork.Submit(0)
}

func (m *Mesh) hbPublish() {
	m.mu.Lock()
	hb := m.HB
	if !hb.Enabled() {
		m.mu.Unlock()
		return
	}
	if hb.Count != table.HeartbeatIndefinite {
		hb.Count--
	}
	count := hb.Count
	m.mu.Unlock()

	log.Debug(m, "Heartbeat published", "dst", hb.Dst, "ttl", hb.TTL, "feat", hb.Feat)
	if count != 0 {
		m.hbWork.Submit(hb.PubPeriod())
	}
}

// NetStart brings up the network layer once the committed state is in
// place.
func (m *Mesh) NetStart() {
	if m.flags.TestAndSet(FlagNetStarted) {
		return
	}
	log.Info(m, "Network started", "addr", m.Addr, "iv", m.IVIndex, "seq", m.Seq)
}

// Stop cancels the runtime timers. The state itself is left in place so
// that a final flush can still observe it.
func (m *Mesh) Stop() {
	m.ivuWork.Cancel()
	m.hbWork.Cancel()
	m.Models.Foreach(func(mod *table.Model) {
		if mod.Pub != nil {
			mod.Pub.StopPublish()
		}
	})
}

// Reset drops all runtime state and stops the timers. The caller clears
// the persisted records separately.
func (m *Mesh) Reset() {
	m.Stop()

	var nets []uint16
	m.Subnets.Foreach(func(sub *table.Subnet) { nets = append(nets, sub.NetIdx) })
	for _, netIdx := range nets {
		m.Subnets.Delete(netIdx)
	}

	var apps []uint16
	m.AppKeys.Foreach(func(key *table.AppKey) { apps = append(apps, key.AppIdx) })
	for _, appIdx := range apps {
		m.AppKeys.Delete(appIdx)
	}

	var addrs []uint16
	m.Nodes.Foreach(func(node *table.Node) { addrs = append(addrs, node.Addr) })
	for _, addr := range addrs {
		m.Nodes.Delete(addr)
	}

	m.RPL.Clear()

	m.Labels.Foreach(func(_ uint16, lab *table.Label) {
		lab.Ref = 0
		lab.Addr = table.AddrUnassigned
		lab.Changed.Store(false)
	})

	m.Models.Foreach(func(mod *table.Model) {
		for i := range mod.Keys {
			mod.Keys[i] = table.KeyUnused
		}
		for i := range mod.Groups {
			mod.Groups[i] = table.AddrUnassigned
		}
		if mod.Pub != nil {
			mod.Pub.Addr = table.AddrUnassigned
		}
		mod.Pending.Reset()
		mod.DataPresent.Store(false)
	})

	m.mu.Lock()
	m.Addr = table.AddrUnassigned
	m.DevKey = table.Key{}
	m.Seq = 0
	m.IVIndex = 0
	m.IVUDuration = 0
	*m.Cfg = *table.DefaultCfgServer()
	*m.HB = table.HeartbeatPub{}
	m.mu.Unlock()
	m.flags.Reset()

	log.Info(m, "Node reset")
}
