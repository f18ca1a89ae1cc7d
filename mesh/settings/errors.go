package settings

import "errors"

// Failure classes of the settings engine. Record-level problems found
// during a load are logged and skipped, never returned; only a failing
// store scan or a role conflict surface from Load.
var (
	// ErrStoreUnavailable reports that the backing store cannot be read.
	ErrStoreUnavailable = errors.New("settings store unavailable")
	// ErrLengthMismatch reports a stored value whose size does not match
	// the record layout.
	ErrLengthMismatch = errors.New("value length mismatch")
	// ErrCapacityExhausted reports a fixed table with no free slot left.
	ErrCapacityExhausted = errors.New("table capacity exhausted")
	// ErrRoleMismatch reports stored state written under the other node
	// role.
	ErrRoleMismatch = errors.New("stored role mismatch")
	// ErrUnknownKey reports a record under an unrecognized key.
	ErrUnknownKey = errors.New("unknown record key")
)
