package storage

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Snapshot is a portable CBOR dump of every record in a settings store.
type Snapshot struct {
	Version uint32            `cbor:"1,keyasint"`
	Records map[string][]byte `cbor:"2,keyasint"`
}

const SnapshotVersion = 1

// snapEnc is the CBOR encoder mode for snapshots.
// Configured for deterministic encoding so equal stores produce equal files.
var snapEnc cbor.EncMode

// snapDec is the CBOR decoder mode for snapshots.
var snapDec cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	snapEnc, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthAllowed,
	}
	snapDec, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot decoder mode: %v", err))
	}
}

// Export serializes the full contents of a store.
func Export(s Store) ([]byte, error) {
	snap := Snapshot{
		Version: SnapshotVersion,
		Records: make(map[string][]byte),
	}

	err := s.Iterate(func(key string, value []byte) error {
		snap.Records[key] = append([]byte(nil), value...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapEnc.Marshal(snap)
}

// Import writes every record of a snapshot into a store. Existing records
// with other keys are left alone; erase the store first for a clean clone.
func Import(s Store, data []byte) error {
	var snap Snapshot
	if err := snapDec.Unmarshal(data, &snap); err != nil {
		return err
	}

	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	for key, value := range snap.Records {
		if err := s.Update(key, value); err != nil {
			return err
		}
	}

	return nil
}
