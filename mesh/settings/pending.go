package settings

// keyUpdate is one pending store or clear of a network or application
// key. Intents are kept by key index rather than by table slot because
// the slot of a deleted key may be reused before the flush runs.
type keyUpdate struct {
	valid  bool
	keyIdx uint16
	appKey bool
	clear  bool
}

// nodeUpdate is one pending store or clear of a provisioned device entry.
type nodeUpdate struct {
	valid bool
	addr  uint16
	clear bool
}

// scheduleKeyUpdate records a key store or clear intent, coalescing with
// an earlier intent for the same key. Returns false when the intent table
// is full and the caller must write synchronously.
func (s *Settings) scheduleKeyUpdate(appKey bool, keyIdx uint16, clear bool) bool {
	s.mu.Lock()

	var match, free *keyUpdate
	for i := range s.keyUpdates {
		u := &s.keyUpdates[i]
		if !u.valid {
			if free == nil {
				free = u
			}
			continue
		}
		if u.appKey == appKey && u.keyIdx == keyIdx {
			match = u
		}
	}

	if match != nil {
		match.clear = clear
		s.mu.Unlock()
		s.scheduleStore(pendingKeys)
		return true
	}
	if free == nil {
		s.mu.Unlock()
		return false
	}

	free.valid = true
	free.appKey = appKey
	free.keyIdx = keyIdx
	free.clear = clear
	s.mu.Unlock()

	s.scheduleStore(pendingKeys)
	return true
}

// scheduleNodeUpdate records a node store or clear intent, coalescing
// with an earlier intent for the same address. Returns false when the
// intent table is full and the caller must write synchronously.
func (s *Settings) scheduleNodeUpdate(addr uint16, clear bool) bool {
	s.mu.Lock()

	var match, free *nodeUpdate
	for i := range s.nodeUpdates {
		u := &s.nodeUpdates[i]
		if !u.valid {
			if free == nil {
				free = u
			}
			continue
		}
		if u.addr == addr {
			match = u
		}
	}

	if match != nil {
		match.clear = clear
		s.mu.Unlock()
		s.scheduleStore(pendingNodes)
		return true
	}
	if free == nil {
		s.mu.Unlock()
		return false
	}

	free.valid = true
	free.addr = addr
	free.clear = clear
	s.mu.Unlock()

	s.scheduleStore(pendingNodes)
	return true
}

// consumeKeyUpdates hands back every valid key intent and invalidates
// them, so the flush acts on each intent exactly once.
func (s *Settings) consumeKeyUpdates() []keyUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updates []keyUpdate
	for i := range s.keyUpdates {
		u := &s.keyUpdates[i]
		if !u.valid {
			continue
		}
		updates = append(updates, *u)
		u.valid = false
	}
	return updates
}

// consumeNodeUpdates hands back every valid node intent and invalidates
// them.
func (s *Settings) consumeNodeUpdates() []nodeUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updates []nodeUpdate
	for i := range s.nodeUpdates {
		u := &s.nodeUpdates[i]
		if !u.valid {
			continue
		}
		updates = append(updates, *u)
		u.valid = false
	}
	return updates
}
