// Package table holds the runtime state tables of a mesh node: network and
// application keys, replay protection, models, virtual address labels and
// managed peer nodes. The tables are fixed capacity arenas mirroring the
// bounded resources of an embedded node; allocation never grows them.
package table

// Key is a 128-bit symmetric mesh key.
type Key [16]byte

const (
	// KeyUnused marks a free slot in the key tables.
	KeyUnused uint16 = 0xffff
	// KeyIdxMax is the largest valid 12-bit key index.
	KeyIdxMax uint16 = 0x0fff
	// AddrUnassigned marks an unset mesh address.
	AddrUnassigned uint16 = 0x0000
	// IVDurationMax caps the IV update duration at its 7-bit stored range.
	IVDurationMax uint8 = 0x7f
)

// Key refresh phases of a subnet.
const (
	KRNormal uint8 = 0x00
	KRPhase1 uint8 = 0x01
	KRPhase2 uint8 = 0x02
	KRPhase3 uint8 = 0x03
)
