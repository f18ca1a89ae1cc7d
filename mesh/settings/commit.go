package settings

import (
	"time"

	"github.com/meshworks/meshd/mesh/mesh"
	"github.com/meshworks/meshd/mesh/table"
	"github.com/meshworks/meshd/std/log"
)

// commit activates the restored state: traffic keys are derived from the
// stored key material, periodic work is armed and the state is marked
// valid. A node without a primary subnet is unprovisioned and stays
// idle.
func (s *Settings) commit() {
	m := s.mesh

	if m.Subnets.Primary() == nil {
		log.Debug(s, "Not provisioned, nothing to commit")
		return
	}

	m.Subnets.Foreach(func(sub *table.Subnet) {
		if err := m.DeriveSubnet(sub); err != nil {
			log.Error(s, "Failed to derive subnet keys", "net_idx", sub.NetIdx, "err", err)
		}
	})

	// keep refreshing the dwell time until the safety window has passed
	if time.Duration(m.IVUDuration)*time.Hour < s.config.IVUpdateMin() {
		m.StartIVURefresh()
	}

	m.Models.Foreach(s.commitMod)

	m.StartHeartbeat()

	if s.stagedCfgValid && m.Cfg != nil {
		*m.Cfg = s.stagedCfg
	}

	m.Flags().Set(mesh.FlagValid)

	if !m.Flags().Test(mesh.FlagCoordinator) {
		m.NetStart()
	}

	log.Info(s, "Stored state committed", "addr", m.Addr, "iv", m.IVIndex, "seq", m.Seq)
}

func (s *Settings) commitMod(mod *table.Model) {
	if mod.Pub != nil {
		mod.Pub.StartPublish(mod)
	}
	if mod.Commit != nil {
		mod.Commit(mod)
	}
}
