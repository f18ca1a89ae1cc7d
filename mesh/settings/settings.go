// Package settings persists the state of a mesh node across restarts.
//
// Writes are deferred: protocol handlers mark a category dirty and a
// single debounced task later flushes every dirty category in one pass.
// Startup runs the reverse path, replaying each stored record into the
// runtime tables and then committing the result.
package settings

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/meshworks/meshd/mesh/config"
	"github.com/meshworks/meshd/mesh/mesh"
	"github.com/meshworks/meshd/mesh/table"
	"github.com/meshworks/meshd/std/log"
	"github.com/meshworks/meshd/std/storage"
	"github.com/meshworks/meshd/std/utils"
)

// Dirty categories awaiting a flush.
const (
	pendingRPL uint32 = iota
	pendingKeys
	pendingNet
	pendingIV
	pendingSeq
	pendingHBPub
	pendingCfg
	pendingMod
	pendingVa
	pendingRole
	pendingNodes
)

// Categories flushed after the short provisioning delay rather than the
// store debounce.
const noWaitPending = 1<<pendingNet | 1<<pendingIV | 1<<pendingRole

// Categories scheduled with the generic store timeout. Replay entries
// have their own deadline and virtual address changes ride along with
// whichever flush comes first.
const genericPending = 1<<pendingKeys | 1<<pendingHBPub | 1<<pendingCfg |
	1<<pendingMod | 1<<pendingSeq | 1<<pendingNodes

// Settings is the persistence engine of a mesh node.
type Settings struct {
	mesh   *mesh.Mesh
	config *config.Config
	store  storage.Store

	pending utils.Flags
	work    *utils.DelayedWork

	// guards the pending intent tables
	mu          sync.Mutex
	keyUpdates  []keyUpdate
	nodeUpdates []nodeUpdate

	// configuration restored from the store, applied at commit
	stagedCfg      table.CfgServer
	stagedCfgValid bool

	savePending atomic.Bool
}

// NewSettings creates the persistence engine for m on top of store and
// hooks the state transitions that persist themselves.
func NewSettings(m *mesh.Mesh, store storage.Store) *Settings {
	s := &Settings{
		mesh:        m,
		config:      m.Config(),
		store:       store,
		keyUpdates:  make([]keyUpdate, m.Config().KeyUpdateCount()),
		nodeUpdates: make([]nodeUpdate, int(m.Config().NodeCount)),
	}
	s.work = utils.NewDelayedWork(s.StorePending)

	m.PersistIV = s.StoreIV
	m.PersistSeq = s.StoreSeq
	return s
}

func (s *Settings) String() string {
	return "mesh-settings"
}

// scheduleStore marks a category dirty and arms the flush task. An armed
// deadline no later than the computed timeout is kept, so a burst of
// marks cannot postpone an imminent flush.
func (s *Settings) scheduleStore(bit uint32) {
	s.pending.Set(bit)

	var timeout time.Duration
	switch {
	case s.pending.Any(noWaitPending):
		timeout = s.config.ProvisionFlushDelay()
	case s.pending.Test(pendingRPL) &&
		(!s.pending.Any(genericPending) ||
			s.config.RPLStoreTimeout() < s.config.StoreTimeout()):
		timeout = s.config.RPLStoreTimeout()
	default:
		timeout = s.config.StoreTimeout()
	}

	if remaining, armed := s.work.Remaining(); armed && remaining <= timeout {
		log.Debug(s, "Not rescheduling store work", "remaining", remaining)
		return
	}

	log.Debug(s, "Scheduling store work", "timeout", timeout)
	s.work.Submit(timeout)
}

// saveOne writes one record, or deletes it when value is empty. Store
// errors are logged and the flush moves on; the dirty bit was already
// consumed, so the record keeps its previous stored value until the next
// change.
func (s *Settings) saveOne(key string, value []byte) {
	if len(value) == 0 {
		log.Debug(s, "Deleting record", "key", key)
	} else {
		log.Debug(s, "Storing record", "key", key, "len", len(value))
	}

	if err := s.store.Update(key, value); err != nil {
		log.Error(s, "Failed to store record", "key", key, "err", err)
		return
	}
	s.savePending.Store(true)
}

// StorePending flushes every dirty category in a fixed order, without
// waiting for the scheduled deadline. Categories tied to provisioning write
// their value only while the node state is valid; on an unprovisioned node
// a dirty bit clears the record instead.
func (s *Settings) StorePending() {
	log.Debug(s, "Storing pending state")

	if s.pending.TestAndClear(pendingRPL) {
		if s.mesh.Provisioned() {
			s.storePendingRPL()
		} else {
			s.clearRPL()
		}
	}
	if s.pending.TestAndClear(pendingKeys) {
		s.storePendingKeys()
	}
	if s.pending.TestAndClear(pendingNet) {
		if s.mesh.Provisioned() {
			s.storePendingNet()
		} else {
			s.saveOne(keyNet, nil)
		}
	}
	if s.pending.TestAndClear(pendingIV) {
		if s.mesh.Provisioned() {
			s.storePendingIV()
		} else {
			s.saveOne(keyIV, nil)
		}
	}
	if s.pending.TestAndClear(pendingSeq) {
		s.storePendingSeq()
	}
	if s.pending.TestAndClear(pendingHBPub) {
		s.storePendingHBPub()
	}
	if s.pending.TestAndClear(pendingCfg) {
		if s.mesh.Provisioned() {
			s.storePendingCfg()
		} else {
			s.saveOne(keyCfg, nil)
		}
	}
	if s.pending.TestAndClear(pendingMod) {
		s.mesh.Models.Foreach(s.storePendingMod)
	}
	if s.pending.TestAndClear(pendingVa) {
		s.storePendingVa()
	}
	if s.pending.TestAndClear(pendingRole) {
		s.storePendingRole()
	}
	if s.pending.TestAndClear(pendingNodes) {
		s.storePendingNodes()
	}

	if err := s.Flush(); err != nil {
		log.Error(s, "Failed to flush store", "err", err)
	}
}

func (s *Settings) storePendingNet() {
	addr, devKey := s.mesh.NetState()
	s.saveOne(keyNet, NetVal{Addr: addr, DevKey: devKey}.Encode())
}

func (s *Settings) storePendingIV() {
	index, update, duration := s.mesh.IVState()
	s.saveOne(keyIV, IVVal{Index: index, Update: update, Duration: duration}.Encode())
}

func (s *Settings) storePendingSeq() {
	s.saveOne(keySeq, SeqVal{Seq: s.mesh.SeqState()}.Encode())
}

func (s *Settings) storePendingHBPub() {
	hb := s.mesh.HB
	if hb == nil {
		return
	}
	if hb.Dst == table.AddrUnassigned {
		s.saveOne(keyHBPub, nil)
		return
	}
	s.saveOne(keyHBPub, HBPubVal{
		Dst:        hb.Dst,
		Period:     hb.Period,
		TTL:        hb.TTL,
		Feat:       hb.Feat,
		NetIdx:     hb.NetIdx,
		Indefinite: hb.Count == table.HeartbeatIndefinite,
	}.Encode())
}

func (s *Settings) storePendingCfg() {
	cfg := s.mesh.Cfg
	if cfg == nil {
		return
	}
	s.saveOne(keyCfg, CfgVal{*cfg}.Encode())
}

func (s *Settings) storePendingRPL() {
	s.mesh.RPL.Foreach(func(e *table.ReplayEntry) {
		if e.Store.CompareAndSwap(true, false) {
			s.storeRPL(e)
		}
	})
}

func (s *Settings) storeRPL(e *table.ReplayEntry) {
	s.saveOne(indexedKey(prefixRPL, e.Src), RPLVal{Seq: e.Seq, OldIV: e.OldIV}.Encode())
}

// clearRPL deletes every stored replay entry and frees the table.
func (s *Settings) clearRPL() {
	s.mesh.RPL.Foreach(func(e *table.ReplayEntry) {
		if e.Src == table.AddrUnassigned {
			return
		}
		s.saveOne(indexedKey(prefixRPL, e.Src), nil)
		e.Reset()
	})
}

// storePendingKeys acts on the consumed key intents. Stores look the key
// up in the live table at flush time; a key deleted again in the
// meantime is just skipped.
func (s *Settings) storePendingKeys() {
	for _, u := range s.consumeKeyUpdates() {
		switch {
		case u.clear && u.appKey:
			s.saveOne(indexedKey(prefixAppKey, u.keyIdx), nil)
		case u.clear:
			s.saveOne(indexedKey(prefixNetKey, u.keyIdx), nil)
		case u.appKey:
			if key := s.mesh.AppKeys.Find(u.keyIdx); key != nil {
				s.storeAppKey(key)
			} else {
				log.Warn(s, "No app key to store", "app_idx", u.keyIdx)
			}
		default:
			if sub := s.mesh.Subnets.Get(u.keyIdx); sub != nil {
				s.storeNetKey(sub)
			} else {
				log.Warn(s, "No subnet to store", "net_idx", u.keyIdx)
			}
		}
	}
}

func (s *Settings) storeNetKey(sub *table.Subnet) {
	s.saveOne(indexedKey(prefixNetKey, sub.NetIdx), NetKeyVal{
		KRFlag:  sub.KRFlag,
		KRPhase: sub.KRPhase,
		Val:     [2]table.Key{sub.Keys[0].Net, sub.Keys[1].Net},
	}.Encode())
}

func (s *Settings) storeAppKey(key *table.AppKey) {
	s.saveOne(indexedKey(prefixAppKey, key.AppIdx), AppKeyVal{
		NetIdx:  key.NetIdx,
		Updated: key.Updated,
		Val:     [2]table.Key{key.Keys[0].Val, key.Keys[1].Val},
	}.Encode())
}

func (s *Settings) storePendingMod(mod *table.Model) {
	if mod.Pending.TestAndClear(table.ModBindPending) {
		s.storePendingModBind(mod)
	}
	if mod.Pending.TestAndClear(table.ModSubPending) {
		s.storePendingModSub(mod)
	}
	if mod.Pending.TestAndClear(table.ModPubPending) {
		s.storePendingModPub(mod)
	}
}

func (s *Settings) storePendingModBind(mod *table.Model) {
	var keys []uint16
	for _, k := range mod.Keys {
		if k != table.KeyUnused {
			keys = append(keys, k)
		}
	}

	if len(keys) == 0 {
		s.saveOne(modKey(mod, "bind"), nil)
		return
	}
	s.saveOne(modKey(mod, "bind"), encodeUint16List(keys))
}

func (s *Settings) storePendingModSub(mod *table.Model) {
	var groups []uint16
	for _, g := range mod.Groups {
		if g != table.AddrUnassigned {
			groups = append(groups, g)
		}
	}

	if len(groups) == 0 {
		s.saveOne(modKey(mod, "sub"), nil)
		return
	}
	s.saveOne(modKey(mod, "sub"), encodeUint16List(groups))
}

func (s *Settings) storePendingModPub(mod *table.Model) {
	pub := mod.Pub
	if pub == nil || pub.Addr == table.AddrUnassigned {
		s.saveOne(modKey(mod, "pub"), nil)
		return
	}
	s.saveOne(modKey(mod, "pub"), ModPubVal{
		Addr:       pub.Addr,
		Key:        pub.Key,
		TTL:        pub.TTL,
		Retransmit: pub.Retransmit,
		Period:     pub.Period,
		PeriodDiv:  pub.PeriodDiv,
		Cred:       pub.Cred,
	}.Encode())
}

func (s *Settings) storePendingVa() {
	s.mesh.Labels.Foreach(func(index uint16, lab *table.Label) {
		if !lab.Changed.CompareAndSwap(true, false) {
			return
		}
		if lab.Ref == 0 {
			s.saveOne(indexedKey(prefixVa, index), nil)
			return
		}
		s.saveOne(indexedKey(prefixVa, index), VaVal{
			Ref:  lab.Ref,
			Addr: lab.Addr,
			UUID: lab.UUID,
		}.Encode())
	})
}

func (s *Settings) storePendingRole() {
	role := s.mesh.Role()
	if role == mesh.RoleNone {
		log.Error(s, "No role to store")
		return
	}
	s.saveOne(keyRole, []byte{role})
}

func (s *Settings) storePendingNodes() {
	for _, u := range s.consumeNodeUpdates() {
		if u.clear {
			s.clearNode(u.addr)
			continue
		}
		if node := s.mesh.Nodes.Find(u.addr); node != nil {
			s.storeNode(node)
		} else {
			log.Warn(s, "No node to store", "addr", u.addr)
		}
	}
}

func (s *Settings) storeNode(node *table.Node) {
	s.saveOne(indexedKey(prefixNode, node.Addr), NodeVal{
		NetIdx:  node.NetIdx,
		DevKey:  node.DevKey,
		NumElem: node.NumElem,
	}.Encode())
}

func (s *Settings) clearNode(addr uint16) {
	s.saveOne(indexedKey(prefixNode, addr), nil)
}

// StoreNet schedules persistence of the provisioning state.
func (s *Settings) StoreNet() {
	s.scheduleStore(pendingNet)
}

// StoreIV schedules persistence of the IV state. Unless onlyDuration is
// set the sequence counter is stored along with it, as the counter
// restarts with the IV index.
func (s *Settings) StoreIV(onlyDuration bool) {
	s.scheduleStore(pendingIV)
	if !onlyDuration {
		s.scheduleStore(pendingSeq)
	}
}

// StoreRole schedules persistence of the node role.
func (s *Settings) StoreRole() {
	s.scheduleStore(pendingRole)
}

// StoreSeq schedules persistence of the sequence counter. With a store
// rate of N only every Nth number is written out; the restore path skips
// past the numbers handed out in between.
func (s *Settings) StoreSeq() {
	if rate := s.config.SeqStoreRate; rate > 1 && s.mesh.SeqState()%rate != 0 {
		return
	}
	s.scheduleStore(pendingSeq)
}

// StoreRPL schedules persistence of one replay protection entry.
func (s *Settings) StoreRPL(entry *table.ReplayEntry) {
	entry.Store.Store(true)
	s.scheduleStore(pendingRPL)
}

// ClearRPL deletes every stored replay entry and resets the table. The
// records are removed immediately, not on the next flush.
func (s *Settings) ClearRPL() {
	log.Debug(s, "Clearing replay protection list")
	s.clearRPL()
}

// StoreSubnet schedules persistence of a network key. When the intent
// table is full the key is written out synchronously instead.
func (s *Settings) StoreSubnet(sub *table.Subnet) {
	if !s.scheduleKeyUpdate(false, sub.NetIdx, false) {
		s.storeNetKey(sub)
	}
}

// ClearSubnet schedules removal of a stored network key. The intent
// keeps the key index, so the table slot may be reused before the flush.
func (s *Settings) ClearSubnet(sub *table.Subnet) {
	if !s.scheduleKeyUpdate(false, sub.NetIdx, true) {
		s.saveOne(indexedKey(prefixNetKey, sub.NetIdx), nil)
	}
}

// StoreAppKey schedules persistence of an application key. When the
// intent table is full the key is written out synchronously instead.
func (s *Settings) StoreAppKey(key *table.AppKey) {
	if !s.scheduleKeyUpdate(true, key.AppIdx, false) {
		s.storeAppKey(key)
	}
}

// ClearAppKey schedules removal of a stored application key.
func (s *Settings) ClearAppKey(key *table.AppKey) {
	if !s.scheduleKeyUpdate(true, key.AppIdx, true) {
		s.saveOne(indexedKey(prefixAppKey, key.AppIdx), nil)
	}
}

// StoreHBPub schedules persistence of the heartbeat publication state.
func (s *Settings) StoreHBPub() {
	s.scheduleStore(pendingHBPub)
}

// StoreCfg schedules persistence of the configuration server state, or
// writes it out immediately when flushNow is set.
func (s *Settings) StoreCfg(flushNow bool) {
	if flushNow {
		s.storePendingCfg()
		return
	}
	s.scheduleStore(pendingCfg)
}

// StoreModBind schedules persistence of a model's key bindings.
func (s *Settings) StoreModBind(mod *table.Model) {
	mod.Pending.Set(table.ModBindPending)
	s.scheduleStore(pendingMod)
}

// StoreModSub schedules persistence of a model's subscription list.
func (s *Settings) StoreModSub(mod *table.Model) {
	mod.Pending.Set(table.ModSubPending)
	s.scheduleStore(pendingMod)
}

// StoreModPub schedules persistence of a model's publication state.
func (s *Settings) StoreModPub(mod *table.Model) {
	mod.Pending.Set(table.ModPubPending)
	s.scheduleStore(pendingMod)
}

// StoreLabel schedules persistence of the virtual address labels marked
// changed.
func (s *Settings) StoreLabel() {
	s.scheduleStore(pendingVa)
}

// StoreNode schedules persistence of a provisioned device entry. When
// the intent table is full the entry is written out synchronously.
func (s *Settings) StoreNode(node *table.Node) {
	if !s.scheduleNodeUpdate(node.Addr, false) {
		s.storeNode(node)
	}
}

// ClearNode schedules removal of a stored device entry.
func (s *Settings) ClearNode(node *table.Node) {
	if !s.scheduleNodeUpdate(node.Addr, true) {
		s.clearNode(node.Addr)
	}
}

// ClearNet schedules removal of the provisioning, IV and configuration
// records. Called on an unprovisioned node, the flush turns the dirty
// bits into record deletions.
func (s *Settings) ClearNet() {
	s.scheduleStore(pendingNet)
	s.scheduleStore(pendingIV)
	s.scheduleStore(pendingCfg)
}

// ClearSeq removes the stored sequence counter immediately.
func (s *Settings) ClearSeq() {
	s.saveOne(keySeq, nil)
}

// ModelDataStore writes a model's opaque data record, or deletes it when
// data is empty. The write is immediate; model data has no deferred
// flush.
func (s *Settings) ModelDataStore(mod *table.Model, data []byte) error {
	key := modKey(mod, "data")

	if len(data) > 0 {
		mod.DataPresent.Store(true)
		if err := s.store.Update(key, data); err != nil {
			log.Error(mod, "Failed to store model data", "err", err)
			return err
		}
		s.savePending.Store(true)
	} else if mod.DataPresent.CompareAndSwap(true, false) {
		if err := s.store.Update(key, nil); err != nil {
			log.Error(mod, "Failed to clear model data", "err", err)
			return err
		}
		s.savePending.Store(true)
	}
	return nil
}

// Clear removes every stored record.
func (s *Settings) Clear() error {
	log.Info(s, "Clearing all stored state")
	if err := s.store.EraseAll(); err != nil {
		return err
	}
	s.savePending.Store(true)
	return nil
}

// Flush commits buffered writes when any record changed since the last
// flush.
func (s *Settings) Flush() error {
	if !s.savePending.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.store.Flush(); err != nil {
		s.savePending.Store(true)
		return err
	}
	return nil
}

// Deinit stops the deferred flush task. Dirty state not yet flushed
// stays in memory.
func (s *Settings) Deinit() {
	s.work.Cancel()
}
