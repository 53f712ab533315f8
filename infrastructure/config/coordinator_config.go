package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// CoordinatorConfig holds every tunable the transfer coordinator process
// needs at startup. Fields are decoded from the environment via envdecode
// struct tags; LoadCoordinatorConfig optionally loads a .env file first so
// local/dev runs don't need exported shell variables.
type CoordinatorConfig struct {
	ListenAddr string `env:"LISTEN_ADDR,default=:8080"`
	DataDir    string `env:"DATA_DIR,default=./data"`

	ExportStoreMaxSize    int `env:"EXPORT_STORE_MAX_SIZE,default=100"`
	ActiveTransferMaxSize int `env:"ACTIVE_TRANSFER_MAX_SIZE,default=100"`
	PersistedLogMaxSize   int `env:"PERSISTED_LOG_MAX_SIZE,default=10"`

	ValidationTimeout      time.Duration `env:"VALIDATION_TIMEOUT,default=120s"`
	InstanceRPCTimeout     time.Duration `env:"INSTANCE_RPC_TIMEOUT,default=15s"`
	TreeBroadcastRateLimit time.Duration `env:"TREE_BROADCAST_RATE_LIMIT,default=250ms"`

	// TickToMillisecondFactor converts the platform's internal "tick" unit
	// into milliseconds for import-metric fields whose key ends in "Ticks"
	// (txlog.ConvertTickMetrics).
	TickToMillisecondFactor float64 `env:"TICK_TO_MS_FACTOR,default=16.67"`

	MaintenanceSweepInterval time.Duration `env:"MAINTENANCE_SWEEP_INTERVAL,default=1m"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	// ServiceTokenSecret signs/verifies the HMAC service tokens used for
	// instance RPC auth and control-plane subscriber auth (§10.7). Empty
	// disables auth, which is only acceptable in local/dev runs.
	ServiceTokenSecret string        `env:"SERVICE_TOKEN_SECRET"`
	ServiceTokenExpiry time.Duration `env:"SERVICE_TOKEN_EXPIRY,default=1h"`
}

// LoadCoordinatorConfig loads an optional .env file (missing file is not an
// error) and decodes CoordinatorConfig from the process environment.
func LoadCoordinatorConfig() (*CoordinatorConfig, error) {
	_ = godotenv.Load()

	var cfg CoordinatorConfig
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("decode coordinator config: %w", err)
	}
	return &cfg, nil
}
