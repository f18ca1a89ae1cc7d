// Package security derives traffic credentials from stored root keys.
package security

import (
	"github.com/meshworks/meshd/mesh/table"
)

// Deriver expands root key material into the credentials used on the air.
// Subnet credentials are derived when stored state is committed at startup;
// application key identifiers are derived as key records are loaded.
type Deriver interface {
	// SubnetKeys derives the full credential set for one network key.
	SubnetKeys(net table.Key) (table.SubnetKeys, error)
	// AppID derives the 6-bit application key identifier.
	AppID(val table.Key) (uint8, error)
}
