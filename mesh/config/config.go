package config

import (
	"fmt"
	"time"

	"github.com/meshworks/meshd/std/log"
)

// Store backends.
const (
	BackendBadger = "badger"
	BackendSqlite = "sqlite"
	BackendMemory = "memory"
)

// Operating roles.
const (
	RoleNode        = "node"
	RoleCoordinator = "coordinator"
)

// Largest value storable in the 7-bit IV update duration field.
const ivuDurationMax = 127

type Config struct {
	// Store backend: badger, sqlite or memory.
	StoreBackend string `json:"store_backend"`
	// Store location: a directory for badger, a file for sqlite.
	StorePath string `json:"store_path"`
	// Log level: TRACE, DEBUG, INFO, WARN, ERROR or FATAL.
	LogLevel string `json:"log_level"`
	// Operating role: node or coordinator.
	Role string `json:"role"`

	// Size of the subnet table.
	SubnetCount uint16 `json:"subnet_count"`
	// Size of the application key table.
	AppKeyCount uint16 `json:"app_key_count"`
	// Size of the managed peer table (coordinator role).
	NodeCount uint16 `json:"node_count"`
	// Size of the replay protection list.
	RPLSize uint16 `json:"rpl_size"`
	// Size of the virtual address label table.
	LabelCount uint16 `json:"label_count"`
	// Application keys bindable to one model.
	ModelKeyCount int `json:"model_key_count"`
	// Group addresses one model can subscribe to.
	ModelGroupCount int `json:"model_group_count"`

	// Persist the sequence counter every this many increments.
	// Zero persists every increment.
	SeqStoreRate uint32 `json:"seq_store_rate"`
	// Debounce before flushing generic dirty categories.
	StoreTimeout_s uint64 `json:"store_timeout"`
	// Debounce before flushing replay protection entries.
	RPLStoreTimeout_s uint64 `json:"rpl_store_timeout"`
	// Flush delay for state marked right after provisioning. Kept
	// short but non-zero so the flush cannot race an in-flight
	// disconnect.
	ProvisionFlushDelay_ms uint64 `json:"provision_flush_delay"`

	// Hours an IV update must have been in progress before it may
	// complete. At most 127 (the persisted field is 7 bits wide).
	IVUpdateMinHours uint64 `json:"ivu_min_hours"`
	// Number of refresh timer ticks within the safety window.
	IVUpdateDivider uint64 `json:"ivu_divider"`

	// Parsed log level
	logLevelP log.Level
}

func DefaultConfig() *Config {
	return &Config{
		StoreBackend: BackendBadger,
		StorePath:    "meshd-db",
		LogLevel:     "INFO",
		Role:         RoleNode,

		SubnetCount:     4,
		AppKeyCount:     8,
		NodeCount:       32,
		RPLSize:         32,
		LabelCount:      8,
		ModelKeyCount:   4,
		ModelGroupCount: 4,

		SeqStoreRate:           128,
		StoreTimeout_s:         2,
		RPLStoreTimeout_s:      5,
		ProvisionFlushDelay_ms: 500,

		IVUpdateMinHours: 96,
		IVUpdateDivider:  4,
	}
}

func (c *Config) Parse() (err error) {
	switch c.StoreBackend {
	case BackendBadger, BackendSqlite:
		if c.StorePath == "" {
			return fmt.Errorf("store_path must be set for the %s backend", c.StoreBackend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	switch c.Role {
	case RoleNode, RoleCoordinator:
	default:
		return fmt.Errorf("unknown role %q", c.Role)
	}

	if c.SubnetCount == 0 {
		return fmt.Errorf("subnet_count must be at least 1")
	}
	if c.AppKeyCount == 0 {
		return fmt.Errorf("app_key_count must be at least 1")
	}
	if c.RPLSize == 0 {
		return fmt.Errorf("rpl_size must be at least 1")
	}
	if c.LabelCount == 0 {
		return fmt.Errorf("label_count must be at least 1")
	}
	if c.ModelKeyCount < 1 || c.ModelGroupCount < 1 {
		return fmt.Errorf("model_key_count and model_group_count must be at least 1")
	}

	if c.StoreTimeout_s == 0 {
		return fmt.Errorf("store_timeout must be at least 1 second")
	}
	if c.RPLStoreTimeout_s == 0 {
		return fmt.Errorf("rpl_store_timeout must be at least 1 second")
	}
	if c.ProvisionFlushDelay_ms == 0 {
		return fmt.Errorf("provision_flush_delay must not be zero")
	}

	if c.IVUpdateMinHours == 0 || c.IVUpdateMinHours > ivuDurationMax {
		return fmt.Errorf("ivu_min_hours must be between 1 and %d", ivuDurationMax)
	}
	if c.IVUpdateDivider == 0 {
		return fmt.Errorf("ivu_divider must not be zero")
	}

	c.logLevelP, err = log.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}

	return nil
}

func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeout_s) * time.Second
}

func (c *Config) RPLStoreTimeout() time.Duration {
	return time.Duration(c.RPLStoreTimeout_s) * time.Second
}

func (c *Config) ProvisionFlushDelay() time.Duration {
	return time.Duration(c.ProvisionFlushDelay_ms) * time.Millisecond
}

// IVUpdateMin is the IV update safety window.
func (c *Config) IVUpdateMin() time.Duration {
	return time.Duration(c.IVUpdateMinHours) * time.Hour
}

// IVUpdateRefresh is the period of the IV update refresh timer.
func (c *Config) IVUpdateRefresh() time.Duration {
	return c.IVUpdateMin() / time.Duration(c.IVUpdateDivider)
}

// IVUpdateRefreshHours is the duration credited per refresh tick.
func (c *Config) IVUpdateRefreshHours() uint8 {
	h := c.IVUpdateMinHours / c.IVUpdateDivider
	if h == 0 {
		h = 1
	}
	return uint8(h)
}

// KeyUpdateCount sizes the pending key update table.
func (c *Config) KeyUpdateCount() int {
	return int(c.SubnetCount) + int(c.AppKeyCount)
}

func (c *Config) LogLevelParsed() log.Level {
	return c.logLevelP
}
