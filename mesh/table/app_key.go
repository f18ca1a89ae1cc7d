package table

// AppCred is one application key credential set.
type AppCred struct {
	Val Key
	// application key identifier derived from Val
	AID uint8
}

// AppKey is one application key slot. Keys[1] is only meaningful while
// Updated is set during a key refresh of the owning subnet.
type AppKey struct {
	NetIdx  uint16
	AppIdx  uint16
	Updated bool
	Keys    [2]AppCred
}

// AppKeyTable is the fixed-capacity application key table. A slot is free
// while its NetIdx is KeyUnused; Alloc hands out slots with AppIdx filled in
// and the caller binds NetIdx to claim them.
type AppKeyTable struct {
	keys []AppKey
}

func NewAppKeyTable(capacity int) *AppKeyTable {
	keys := make([]AppKey, capacity)
	for i := range keys {
		keys[i].NetIdx = KeyUnused
		keys[i].AppIdx = KeyUnused
	}
	return &AppKeyTable{keys: keys}
}

// Find returns the application key with the given index, or nil.
func (at *AppKeyTable) Find(appIdx uint16) *AppKey {
	for i := range at.keys {
		if at.keys[i].NetIdx != KeyUnused && at.keys[i].AppIdx == appIdx {
			return &at.keys[i]
		}
	}
	return nil
}

// Alloc returns the application key with the given index, claiming a free
// slot when it does not exist yet. Returns nil when the table is full.
func (at *AppKeyTable) Alloc(appIdx uint16) *AppKey {
	if key := at.Find(appIdx); key != nil {
		return key
	}
	for i := range at.keys {
		if at.keys[i].NetIdx == KeyUnused {
			at.keys[i] = AppKey{NetIdx: KeyUnused, AppIdx: appIdx}
			return &at.keys[i]
		}
	}
	return nil
}

// Delete frees the slot holding appIdx, if any.
func (at *AppKeyTable) Delete(appIdx uint16) {
	if key := at.Find(appIdx); key != nil {
		*key = AppKey{NetIdx: KeyUnused, AppIdx: KeyUnused}
	}
}

// Foreach visits the used slots in table order.
func (at *AppKeyTable) Foreach(fn func(*AppKey)) {
	for i := range at.keys {
		if at.keys[i].NetIdx != KeyUnused {
			fn(&at.keys[i])
		}
	}
}

func (at *AppKeyTable) Count() int {
	count := 0
	for i := range at.keys {
		if at.keys[i].NetIdx != KeyUnused {
			count++
		}
	}
	return count
}
