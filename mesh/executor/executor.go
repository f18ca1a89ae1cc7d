package executor

import (
	"fmt"

	"github.com/meshworks/meshd/mesh/config"
	"github.com/meshworks/meshd/mesh/mesh"
	"github.com/meshworks/meshd/mesh/security"
	"github.com/meshworks/meshd/mesh/settings"
	"github.com/meshworks/meshd/std/log"
	"github.com/meshworks/meshd/std/storage"
)

// MeshExecutor ties the configuration, the settings store and the node
// state together into a runnable daemon.
type MeshExecutor struct {
	config   *config.Config
	store    storage.Store
	mesh     *mesh.Mesh
	settings *settings.Settings
	done     chan struct{}
}

// OpenStore opens the settings store named by the configuration.
func OpenStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendBadger:
		return storage.NewBadgerStore(cfg.StorePath)
	case config.BackendSqlite:
		return storage.NewSqliteStore(cfg.StorePath)
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func NewMeshExecutor(cfg *config.Config) (*MeshExecutor, error) {
	me := new(MeshExecutor)
	me.config = cfg

	// Validate configuration sanity
	if err := cfg.Parse(); err != nil {
		return nil, fmt.Errorf("failed to validate mesh config: %w", err)
	}
	log.Default().SetLevel(cfg.LogLevelParsed())

	store, err := OpenStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}
	me.store = store

	me.mesh = mesh.NewMesh(cfg, security.NewHkdfDeriver())
	me.settings = settings.NewSettings(me.mesh, me.store)
	me.done = make(chan struct{})

	return me, nil
}

func (me *MeshExecutor) String() string {
	return "meshd"
}

// Start restores the persisted state and blocks until Stop is called.
func (me *MeshExecutor) Start() error {
	err := me.settings.Load(me.config.Role == config.RoleNode)
	if err != nil {
		me.store.Close()
		return fmt.Errorf("failed to load settings: %w", err)
	}

	<-me.done
	return nil
}

// Stop winds the node down: timers first, then a last flush of whatever
// was marked but not yet written.
func (me *MeshExecutor) Stop() {
	me.mesh.Stop()
	me.settings.Deinit()
	me.settings.StorePending()

	if err := me.store.Close(); err != nil {
		log.Error(me, "Failed to close settings store", "err", err)
	}

	close(me.done)
}

func (me *MeshExecutor) Mesh() *mesh.Mesh {
	return me.mesh
}

func (me *MeshExecutor) Settings() *settings.Settings {
	return me.settings
}
