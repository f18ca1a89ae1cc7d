package settings

import (
	"fmt"
	"strings"

	"github.com/meshworks/meshd/mesh/mesh"
	"github.com/meshworks/meshd/mesh/table"
	"github.com/meshworks/meshd/std/log"
	"github.com/meshworks/meshd/std/utils"
)

// Load replays every stored record into the runtime state and commits
// the result. roleNode selects the role this process runs under; stored
// state written under the other role is refused. A record that cannot be
// decoded or placed is logged and skipped, so one bad record never takes
// the rest of the state down with it.
func (s *Settings) Load(roleNode bool) error {
	log.Info(s, "Loading stored state")

	if err := s.store.Iterate(s.loadRecord); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	want := utils.If(roleNode, mesh.RoleNode, mesh.RoleCoordinator)

	switch role := s.mesh.Role(); role {
	case want:
	case mesh.RoleNone:
		// fresh store, adopt the requested role
		s.mesh.SetRole(want)
	default:
		return fmt.Errorf("%w: store holds role 0x%02x", ErrRoleMismatch, role)
	}

	s.commit()
	return nil
}

func (s *Settings) loadRecord(key string, value []byte) error {
	if log.HasTrace() {
		log.Trace(s, "Loading record", "key", key, "value", log.Hex(value))
	}

	prefix, rest, _ := strings.Cut(key, "/")
	switch prefix {
	case keyNet:
		s.loadNet(value)
	case keyIV:
		s.loadIV(value)
	case keySeq:
		s.loadSeq(value)
	case keyRole:
		s.loadRole(value)
	case keyHBPub:
		s.loadHBPub(value)
	case keyCfg:
		s.loadCfg(value)
	case prefixRPL:
		s.loadRPL(rest, value)
	case prefixNetKey:
		s.loadNetKey(rest, value)
	case prefixAppKey:
		s.loadAppKey(rest, value)
	case prefixVa:
		s.loadVa(rest, value)
	case prefixNode:
		s.loadNode(rest, value)
	case prefixSig:
		s.loadMod(false, rest, value)
	case prefixVnd:
		s.loadMod(true, rest, value)
	default:
		log.Warn(s, "Skipping record", "key", key, "err", ErrUnknownKey)
	}
	return nil
}

func (s *Settings) loadNet(value []byte) {
	m := s.mesh

	if len(value) == 0 {
		m.Addr = table.AddrUnassigned
		m.DevKey = table.Key{}
		log.Debug(s, "Cleared provisioning state")
		return
	}

	var val NetVal
	if err := val.Decode(value); err != nil {
		log.Warn(s, "Skipping provisioning state", "err", err)
		return
	}
	m.Addr = val.Addr
	m.DevKey = val.DevKey
	log.Debug(s, "Restored provisioning state", "addr", val.Addr)
}

func (s *Settings) loadIV(value []byte) {
	m := s.mesh

	if len(value) == 0 {
		m.IVIndex = 0
		m.Flags().Clear(mesh.FlagIVUpdate)
		log.Debug(s, "Cleared IV state")
		return
	}

	var val IVVal
	if err := val.Decode(value); err != nil {
		log.Warn(s, "Skipping IV state", "err", err)
		return
	}
	m.SetIVState(val.Index, val.Update, val.Duration)
	log.Debug(s, "Restored IV state", "iv", val.Index, "update", val.Update, "duration", val.Duration)
}

func (s *Settings) loadSeq(value []byte) {
	m := s.mesh

	if len(value) == 0 {
		m.Seq = 0
		log.Debug(s, "Cleared sequence counter")
		return
	}

	var val SeqVal
	if err := val.Decode(value); err != nil {
		log.Warn(s, "Skipping sequence counter", "err", err)
		return
	}
	m.Seq = val.Seq

	// Only every Nth number is stored, so the restored value may have
	// been handed out already. Skip ahead to one below the next stored
	// multiple; the next transmit then starts past anything used.
	if rate := s.config.SeqStoreRate; rate > 0 {
		m.Seq += rate - m.Seq%rate
		m.Seq--
	}
	log.Debug(s, "Restored sequence counter", "seq", m.Seq)
}

func (s *Settings) loadRole(value []byte) {
	if len(value) == 0 {
		return
	}
	if len(value) != RoleValLen {
		log.Warn(s, "Skipping role", "err", lenErr("role", len(value), RoleValLen))
		return
	}

	switch role := value[0]; role {
	case mesh.RoleNone:
	case mesh.RoleNode, mesh.RoleCoordinator:
		s.mesh.SetRole(role)
		log.Debug(s, "Restored role", "role", role)
	default:
		log.Warn(s, "Skipping unknown role", "role", role)
	}
}

func (s *Settings) loadHBPub(value []byte) {
	hb := s.mesh.HB
	if hb == nil {
		log.Warn(s, "No heartbeat publication to restore into")
		return
	}

	if len(value) == 0 {
		hb.Dst = table.AddrUnassigned
		hb.Count = 0
		hb.TTL = 0
		hb.Period = 0
		hb.Feat = 0
		log.Debug(s, "Cleared heartbeat publication")
		return
	}

	var val HBPubVal
	if err := val.Decode(value); err != nil {
		log.Warn(s, "Skipping heartbeat publication", "err", err)
		return
	}
	hb.Dst = val.Dst
	hb.Period = val.Period
	hb.TTL = val.TTL
	hb.Feat = val.Feat
	hb.NetIdx = val.NetIdx
	if val.Indefinite {
		hb.Count = table.HeartbeatIndefinite
	} else {
		hb.Count = 0
	}
	log.Debug(s, "Restored heartbeat publication", "dst", hb.Dst)
}

func (s *Settings) loadCfg(value []byte) {
	if s.mesh.Cfg == nil {
		log.Warn(s, "No configuration state to restore into")
		return
	}

	if len(value) == 0 {
		s.stagedCfgValid = false
		log.Debug(s, "Cleared configuration state")
		return
	}

	var val CfgVal
	if err := val.Decode(value); err != nil {
		log.Warn(s, "Skipping configuration state", "err", err)
		return
	}

	// staged until commit, the live values stay untouched on a role
	// mismatch
	s.stagedCfg = val.CfgServer
	s.stagedCfgValid = true
	log.Debug(s, "Restored configuration state")
}

func (s *Settings) loadRPL(rest string, value []byte) {
	src, _, err := parseIndex(rest)
	if err != nil {
		log.Warn(s, "Skipping replay entry", "err", err)
		return
	}

	entry := s.mesh.RPL.Find(src)
	if len(value) == 0 {
		if entry == nil {
			log.Warn(s, "No replay entry to clear", "src", src)
			return
		}
		entry.Reset()
		return
	}

	if entry == nil {
		entry = s.mesh.RPL.Alloc(src)
		if entry == nil {
			log.Error(s, "Dropping replay entry", "src", src, "err", ErrCapacityExhausted)
			return
		}
	}

	var val RPLVal
	if err := val.Decode(value); err != nil {
		log.Warn(s, "Skipping replay entry", "src", src, "err", err)
		return
	}
	entry.Seq = val.Seq
	entry.OldIV = val.OldIV
	log.Debug(s, "Restored replay entry", "src", src, "seq", entry.Seq)
}

func (s *Settings) loadNetKey(rest string, value []byte) {
	netIdx, _, err := parseIndex(rest)
	if err != nil {
		log.Warn(s, "Skipping network key", "err", err)
		return
	}

	sub := s.mesh.Subnets.Get(netIdx)
	if len(value) == 0 {
		if sub == nil {
			log.Warn(s, "No subnet to delete", "net_idx", netIdx)
			return
		}
		s.mesh.Subnets.Delete(netIdx)
		log.Debug(s, "Deleted subnet", "net_idx", netIdx)
		return
	}

	var val NetKeyVal
	if err := val.Decode(value); err != nil {
		log.Warn(s, "Skipping network key", "net_idx", netIdx, "err", err)
		return
	}

	if sub == nil {
		sub = s.mesh.Subnets.Alloc(netIdx)
		if sub == nil {
			log.Error(s, "Dropping network key", "net_idx", netIdx, "err", ErrCapacityExhausted)
			return
		}
	}
	sub.KRFlag = val.KRFlag
	sub.KRPhase = val.KRPhase
	sub.Keys[0].Net = val.Val[0]
	sub.Keys[1].Net = val.Val[1]
	log.Debug(s, "Restored network key", "net_idx", netIdx)
}

func (s *Settings) loadAppKey(rest string, value []byte) {
	appIdx, _, err := parseIndex(rest)
	if err != nil {
		log.Warn(s, "Skipping app key", "err", err)
		return
	}

	if len(value) == 0 {
		if s.mesh.AppKeys.Find(appIdx) != nil {
			s.mesh.AppKeys.Delete(appIdx)
			log.Debug(s, "Deleted app key", "app_idx", appIdx)
		}
		return
	}

	var val AppKeyVal
	if err := val.Decode(value); err != nil {
		log.Warn(s, "Skipping app key", "app_idx", appIdx, "err", err)
		return
	}

	key := s.mesh.AppKeys.Find(appIdx)
	if key == nil {
		key = s.mesh.AppKeys.Alloc(appIdx)
		if key == nil {
			log.Error(s, "Dropping app key", "app_idx", appIdx, "err", ErrCapacityExhausted)
			return
		}
	}
	key.NetIdx = val.NetIdx
	key.Updated = val.Updated
	key.Keys[0].Val = val.Val[0]
	key.Keys[1].Val = val.Val[1]

	// a failed identifier derivation leaves the key usable for decrypt
	for i := range key.Keys {
		aid, err := s.mesh.Deriver().AppID(key.Keys[i].Val)
		if err != nil {
			log.Warn(s, "Failed to derive app key id", "app_idx", appIdx, "err", err)
			continue
		}
		key.Keys[i].AID = aid
	}
	log.Debug(s, "Restored app key", "app_idx", appIdx, "net_idx", key.NetIdx)
}

func (s *Settings) loadVa(rest string, value []byte) {
	index, _, err := parseIndex(rest)
	if err != nil {
		log.Warn(s, "Skipping virtual address", "err", err)
		return
	}

	if len(value) == 0 {
		log.Warn(s, "Skipping empty virtual address", "index", index)
		return
	}

	var val VaVal
	if err := val.Decode(value); err != nil {
		log.Warn(s, "Skipping virtual address", "index", index, "err", err)
		return
	}
	if val.Ref == 0 {
		log.Warn(s, "Skipping unreferenced virtual address", "index", index)
		return
	}

	if s.mesh.Labels.Set(index, val.Ref, val.Addr, val.UUID) == nil {
		log.Error(s, "Dropping virtual address", "index", index, "err", ErrCapacityExhausted)
		return
	}
	log.Debug(s, "Restored virtual address", "index", index, "addr", val.Addr, "ref", val.Ref)
}

func (s *Settings) loadNode(rest string, value []byte) {
	addr, _, err := parseIndex(rest)
	if err != nil {
		log.Warn(s, "Skipping node", "err", err)
		return
	}

	if len(value) == 0 {
		if s.mesh.Nodes.Find(addr) != nil {
			s.mesh.Nodes.Delete(addr)
			log.Debug(s, "Deleted node", "addr", addr)
		}
		return
	}

	var val NodeVal
	if err := val.Decode(value); err != nil {
		log.Warn(s, "Skipping node", "addr", addr, "err", err)
		return
	}

	node := s.mesh.Nodes.Find(addr)
	if node == nil {
		node = s.mesh.Nodes.Alloc(addr)
		if node == nil {
			log.Error(s, "Dropping node", "addr", addr, "err", ErrCapacityExhausted)
			return
		}
	}
	node.NetIdx = val.NetIdx
	node.DevKey = val.DevKey
	node.NumElem = val.NumElem
	log.Debug(s, "Restored node", "addr", addr, "elements", val.NumElem)
}

func (s *Settings) loadMod(vendor bool, rest string, value []byte) {
	idx, state, err := parseIndex(rest)
	if err != nil {
		log.Warn(s, "Skipping model record", "err", err)
		return
	}

	mod := s.mesh.Models.Get(vendor, uint8(idx>>8), uint8(idx&0xff))
	if mod == nil {
		log.Warn(s, "No model for stored record",
			"vendor", vendor, "elem", idx>>8, "mod", idx&0xff)
		return
	}

	switch state {
	case "bind":
		s.loadModBind(mod, value)
	case "sub":
		s.loadModSub(mod, value)
	case "pub":
		s.loadModPub(mod, value)
	case "data":
		s.loadModData(mod, value)
	default:
		log.Warn(mod, "Skipping model record", "state", state, "err", ErrUnknownKey)
	}
}

func (s *Settings) loadModBind(mod *table.Model, value []byte) {
	// start from an empty array whether the record is set or cleared
	for i := range mod.Keys {
		mod.Keys[i] = table.KeyUnused
	}

	if len(value) == 0 {
		log.Debug(mod, "Cleared bindings")
		return
	}

	keys, err := decodeUint16List("bindings", value)
	if err != nil {
		log.Warn(mod, "Skipping bindings", "err", err)
		return
	}
	if len(keys) > len(mod.Keys) {
		log.Warn(mod, "Truncating stored bindings", "have", len(keys), "space", len(mod.Keys))
		keys = keys[:len(mod.Keys)]
	}
	copy(mod.Keys, keys)
	log.Debug(mod, "Restored bindings", "count", len(keys))
}

func (s *Settings) loadModSub(mod *table.Model, value []byte) {
	for i := range mod.Groups {
		mod.Groups[i] = table.AddrUnassigned
	}

	if len(value) == 0 {
		log.Debug(mod, "Cleared subscriptions")
		return
	}

	groups, err := decodeUint16List("subscriptions", value)
	if err != nil {
		log.Warn(mod, "Skipping subscriptions", "err", err)
		return
	}
	if len(groups) > len(mod.Groups) {
		log.Warn(mod, "Truncating stored subscriptions", "have", len(groups), "space", len(mod.Groups))
		groups = groups[:len(mod.Groups)]
	}
	copy(mod.Groups, groups)
	log.Debug(mod, "Restored subscriptions", "count", len(groups))
}

func (s *Settings) loadModPub(mod *table.Model, value []byte) {
	pub := mod.Pub
	if pub == nil {
		log.Warn(mod, "No publication context to restore into")
		return
	}

	if len(value) == 0 {
		pub.Addr = table.AddrUnassigned
		pub.Key = 0
		pub.Cred = false
		pub.TTL = 0
		pub.Period = 0
		pub.Retransmit = 0
		log.Debug(mod, "Cleared publication")
		return
	}

	var val ModPubVal
	if err := val.Decode(value); err != nil {
		log.Warn(mod, "Skipping publication", "err", err)
		return
	}
	pub.Addr = val.Addr
	pub.Key = val.Key
	pub.TTL = val.TTL
	pub.Retransmit = val.Retransmit
	pub.Period = val.Period
	pub.PeriodDiv = val.PeriodDiv
	pub.Cred = val.Cred
	log.Debug(mod, "Restored publication", "addr", pub.Addr, "key", pub.Key)
}

func (s *Settings) loadModData(mod *table.Model, value []byte) {
	if len(value) == 0 {
		return
	}

	mod.DataPresent.Store(true)
	if mod.DataRestore == nil {
		log.Warn(mod, "No data restore callback, dropping model data", "len", len(value))
		return
	}
	if err := mod.DataRestore(mod, value); err != nil {
		log.Error(mod, "Failed to restore model data", "err", err)
		return
	}
	log.Debug(mod, "Restored model data", "len", len(value))
}
