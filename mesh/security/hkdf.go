package security

import (
	"crypto/sha256"
	"io"

	"github.com/meshworks/meshd/mesh/table"
	"golang.org/x/crypto/hkdf"
)

// HkdfDeriver derives credentials with HKDF-SHA256. Derivation is
// deterministic, so rebooting a node always reproduces the same credentials
// from the stored root keys.
type HkdfDeriver struct{}

func (HkdfDeriver) SubnetKeys(net table.Key) (table.SubnetKeys, error) {
	r := hkdf.New(sha256.New, net[:], []byte("smk2"), nil)

	var buf [49]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return table.SubnetKeys{}, err
	}

	keys := table.SubnetKeys{Net: net}
	keys.NID = buf[0] & 0x7f
	copy(keys.Enc[:], buf[1:17])
	copy(keys.Privacy[:], buf[17:33])
	copy(keys.Beacon[:], buf[33:49])
	keys.Ready = true
	return keys, nil
}

func (HkdfDeriver) AppID(val table.Key) (uint8, error) {
	r := hkdf.New(sha256.New, val[:], []byte("smk4"), nil)

	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0] & 0x3f, nil
}

// NewHkdfDeriver creates the default HKDF-SHA256 credential deriver.
func NewHkdfDeriver() Deriver {
	return HkdfDeriver{}
}
