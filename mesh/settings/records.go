package settings

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/meshworks/meshd/mesh/table"
)

// Record layouts. All multi-byte fields are little-endian and all layouts
// are fixed-size, so a length check fully validates a record before any
// field is read. Packed flag fields spell out their shifts and masks; the
// byte image is the contract, not an in-memory struct.

// Record sizes in bytes.
const (
	NetValLen    = 18
	SeqValLen    = 3
	IVValLen     = 5
	RPLValLen    = 4
	NetKeyValLen = 33
	AppKeyValLen = 35
	HBPubValLen  = 8
	CfgValLen    = 7
	ModPubValLen = 8
	VaValLen     = 20
	NodeValLen   = 19
	RoleValLen   = 1
)

// Store keys. Singleton records use the bare name; per-entity records
// append the entity index in unpadded lowercase hex. Model records use
// "s" or "v" for standard and vendor models, the combined element and
// model index, and the state name, e.g. "s/102/bind".
const (
	keyNet   = "Net"
	keyIV    = "IV"
	keySeq   = "Seq"
	keyRole  = "Role"
	keyHBPub = "HBPub"
	keyCfg   = "Cfg"

	prefixRPL    = "RPL"
	prefixNetKey = "NetKey"
	prefixAppKey = "AppKey"
	prefixVa     = "Va"
	prefixNode   = "Node"
	prefixSig    = "s"
	prefixVnd    = "v"
)

func indexedKey(prefix string, idx uint16) string {
	return fmt.Sprintf("%s/%x", prefix, idx)
}

func modKey(m *table.Model, state string) string {
	prefix := prefixSig
	if m.Vendor {
		prefix = prefixVnd
	}
	return fmt.Sprintf("%s/%x/%s", prefix, uint16(m.ElemIdx)<<8|uint16(m.ModIdx), state)
}

// parseIndex parses the leading hex path segment of rest and returns the
// index and the remaining subpath.
func parseIndex(rest string) (uint16, string, error) {
	seg, tail, _ := strings.Cut(rest, "/")
	idx, err := strconv.ParseUint(seg, 16, 16)
	if err != nil {
		return 0, tail, fmt.Errorf("bad entity index %q", seg)
	}
	return uint16(idx), tail, nil
}

func lenErr(record string, got int, want int) error {
	return fmt.Errorf("%w: %s: got %d bytes, want %d", ErrLengthMismatch, record, got, want)
}

// NetVal is the provisioning state of the node itself.
type NetVal struct {
	Addr   uint16
	DevKey table.Key
}

func (v NetVal) Encode() []byte {
	b := make([]byte, NetValLen)
	binary.LittleEndian.PutUint16(b[0:2], v.Addr)
	copy(b[2:18], v.DevKey[:])
	return b
}

func (v *NetVal) Decode(data []byte) error {
	if len(data) != NetValLen {
		return lenErr("net", len(data), NetValLen)
	}
	v.Addr = binary.LittleEndian.Uint16(data[0:2])
	copy(v.DevKey[:], data[2:18])
	return nil
}

// SeqVal is the transmit sequence number, stored as 24 bits.
type SeqVal struct {
	Seq uint32
}

func (v SeqVal) Encode() []byte {
	return []byte{byte(v.Seq), byte(v.Seq >> 8), byte(v.Seq >> 16)}
}

func (v *SeqVal) Decode(data []byte) error {
	if len(data) != SeqValLen {
		return lenErr("seq", len(data), SeqValLen)
	}
	v.Seq = uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
	return nil
}

// IVVal is the IV index state. The flag byte carries the update flag in
// bit 0 and the hours spent in the current state in bits 1..7.
type IVVal struct {
	Index    uint32
	Update   bool
	Duration uint8
}

func (v IVVal) Encode() []byte {
	b := make([]byte, IVValLen)
	binary.LittleEndian.PutUint32(b[0:4], v.Index)
	b[4] = (v.Duration & 0x7f) << 1
	if v.Update {
		b[4] |= 0x01
	}
	return b
}

func (v *IVVal) Decode(data []byte) error {
	if len(data) != IVValLen {
		return lenErr("iv", len(data), IVValLen)
	}
	v.Index = binary.LittleEndian.Uint32(data[0:4])
	v.Update = data[4]&0x01 != 0
	v.Duration = data[4] >> 1
	return nil
}

// RPLVal is one replay protection entry. The sequence number occupies
// bits 0..23 and the old-IV flag bit 24 of a single 32-bit word.
type RPLVal struct {
	Seq   uint32
	OldIV bool
}

func (v RPLVal) Encode() []byte {
	word := v.Seq & 0xffffff
	if v.OldIV {
		word |= 1 << 24
	}
	b := make([]byte, RPLValLen)
	binary.LittleEndian.PutUint32(b, word)
	return b
}

func (v *RPLVal) Decode(data []byte) error {
	if len(data) != RPLValLen {
		return lenErr("rpl", len(data), RPLValLen)
	}
	word := binary.LittleEndian.Uint32(data)
	v.Seq = word & 0xffffff
	v.OldIV = word&(1<<24) != 0
	return nil
}

// NetKeyVal is one network key with its refresh state. The flag byte
// carries the refresh flag in bit 0 and the refresh phase in bits 1..7;
// the second key half is only meaningful during a refresh.
type NetKeyVal struct {
	KRFlag  bool
	KRPhase uint8
	Val     [2]table.Key
}

func (v NetKeyVal) Encode() []byte {
	b := make([]byte, NetKeyValLen)
	b[0] = (v.KRPhase & 0x7f) << 1
	if v.KRFlag {
		b[0] |= 0x01
	}
	copy(b[1:17], v.Val[0][:])
	copy(b[17:33], v.Val[1][:])
	return b
}

func (v *NetKeyVal) Decode(data []byte) error {
	if len(data) != NetKeyValLen {
		return lenErr("net key", len(data), NetKeyValLen)
	}
	v.KRFlag = data[0]&0x01 != 0
	v.KRPhase = data[0] >> 1
	copy(v.Val[0][:], data[1:17])
	copy(v.Val[1][:], data[17:33])
	return nil
}

// AppKeyVal is one application key bound to its subnet.
type AppKeyVal struct {
	NetIdx  uint16
	Updated bool
	Val     [2]table.Key
}

func (v AppKeyVal) Encode() []byte {
	b := make([]byte, AppKeyValLen)
	binary.LittleEndian.PutUint16(b[0:2], v.NetIdx)
	if v.Updated {
		b[2] = 0x01
	}
	copy(b[3:19], v.Val[0][:])
	copy(b[19:35], v.Val[1][:])
	return b
}

func (v *AppKeyVal) Decode(data []byte) error {
	if len(data) != AppKeyValLen {
		return lenErr("app key", len(data), AppKeyValLen)
	}
	v.NetIdx = binary.LittleEndian.Uint16(data[0:2])
	v.Updated = data[2] != 0
	copy(v.Val[0][:], data[3:19])
	copy(v.Val[1][:], data[19:35])
	return nil
}

// HBPubVal is the heartbeat publication state. The last word carries the
// subnet index in bits 0..11 and the indefinite flag in bit 12; a counted
// publication always restarts from zero, so only indefinite survives.
type HBPubVal struct {
	Dst        uint16
	Period     uint8
	TTL        uint8
	Feat       uint16
	NetIdx     uint16
	Indefinite bool
}

func (v HBPubVal) Encode() []byte {
	b := make([]byte, HBPubValLen)
	binary.LittleEndian.PutUint16(b[0:2], v.Dst)
	b[2] = v.Period
	b[3] = v.TTL
	binary.LittleEndian.PutUint16(b[4:6], v.Feat)
	word := v.NetIdx & 0x0fff
	if v.Indefinite {
		word |= 1 << 12
	}
	binary.LittleEndian.PutUint16(b[6:8], word)
	return b
}

func (v *HBPubVal) Decode(data []byte) error {
	if len(data) != HBPubValLen {
		return lenErr("heartbeat pub", len(data), HBPubValLen)
	}
	v.Dst = binary.LittleEndian.Uint16(data[0:2])
	v.Period = data[2]
	v.TTL = data[3]
	v.Feat = binary.LittleEndian.Uint16(data[4:6])
	word := binary.LittleEndian.Uint16(data[6:8])
	v.NetIdx = word & 0x0fff
	v.Indefinite = word&(1<<12) != 0
	return nil
}

// CfgVal is the configuration server state, one byte per setting.
type CfgVal struct {
	table.CfgServer
}

func (v CfgVal) Encode() []byte {
	return []byte{
		v.NetTransmit,
		v.Relay,
		v.RelayRetransmit,
		v.Beacon,
		v.Proxy,
		v.Friend,
		v.DefaultTTL,
	}
}

func (v *CfgVal) Decode(data []byte) error {
	if len(data) != CfgValLen {
		return lenErr("cfg", len(data), CfgValLen)
	}
	v.NetTransmit = data[0]
	v.Relay = data[1]
	v.RelayRetransmit = data[2]
	v.Beacon = data[3]
	v.Proxy = data[4]
	v.Friend = data[5]
	v.DefaultTTL = data[6]
	return nil
}

// ModPubVal is the publication state of one model. The last byte carries
// the period divisor in bits 0..3 and the credential flag in bit 4.
type ModPubVal struct {
	Addr       uint16
	Key        uint16
	TTL        uint8
	Retransmit uint8
	Period     uint8
	PeriodDiv  uint8
	Cred       bool
}

func (v ModPubVal) Encode() []byte {
	b := make([]byte, ModPubValLen)
	binary.LittleEndian.PutUint16(b[0:2], v.Addr)
	binary.LittleEndian.PutUint16(b[2:4], v.Key)
	b[4] = v.TTL
	b[5] = v.Retransmit
	b[6] = v.Period
	b[7] = v.PeriodDiv & 0x0f
	if v.Cred {
		b[7] |= 1 << 4
	}
	return b
}

func (v *ModPubVal) Decode(data []byte) error {
	if len(data) != ModPubValLen {
		return lenErr("model pub", len(data), ModPubValLen)
	}
	v.Addr = binary.LittleEndian.Uint16(data[0:2])
	v.Key = binary.LittleEndian.Uint16(data[2:4])
	v.TTL = data[4]
	v.Retransmit = data[5]
	v.Period = data[6]
	v.PeriodDiv = data[7] & 0x0f
	v.Cred = data[7]&(1<<4) != 0
	return nil
}

// VaVal is one virtual address label. The store key is the label's slot
// position, so the reference count and address travel with the UUID.
type VaVal struct {
	Ref  uint16
	Addr uint16
	UUID uuid.UUID
}

func (v VaVal) Encode() []byte {
	b := make([]byte, VaValLen)
	binary.LittleEndian.PutUint16(b[0:2], v.Ref)
	binary.LittleEndian.PutUint16(b[2:4], v.Addr)
	copy(b[4:20], v.UUID[:])
	return b
}

func (v *VaVal) Decode(data []byte) error {
	if len(data) != VaValLen {
		return lenErr("virtual addr", len(data), VaValLen)
	}
	v.Ref = binary.LittleEndian.Uint16(data[0:2])
	v.Addr = binary.LittleEndian.Uint16(data[2:4])
	copy(v.UUID[:], data[4:20])
	return nil
}

// NodeVal is one provisioned device known to a coordinator.
type NodeVal struct {
	NetIdx  uint16
	DevKey  table.Key
	NumElem uint8
}

func (v NodeVal) Encode() []byte {
	b := make([]byte, NodeValLen)
	binary.LittleEndian.PutUint16(b[0:2], v.NetIdx)
	copy(b[2:18], v.DevKey[:])
	b[18] = v.NumElem
	return b
}

func (v *NodeVal) Decode(data []byte) error {
	if len(data) != NodeValLen {
		return lenErr("node", len(data), NodeValLen)
	}
	v.NetIdx = binary.LittleEndian.Uint16(data[0:2])
	copy(v.DevKey[:], data[2:18])
	v.NumElem = data[18]
	return nil
}

// encodeUint16List encodes vals little-endian, two bytes each. Model
// binding and subscription records are such lists, compacted to the
// entries in use.
func encodeUint16List(vals []uint16) []byte {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return b
}

func decodeUint16List(record string, data []byte) ([]uint16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: %s: %d bytes is not a whole number of entries",
			ErrLengthMismatch, record, len(data))
	}
	vals := make([]uint16, len(data)/2)
	for i := range vals {
		vals[i] = binary.LittleEndian.Uint16(data[2*i:])
	}
	return vals, nil
}
