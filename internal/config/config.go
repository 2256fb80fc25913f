package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8000"`
	DataPath    string `envconfig:"DATA_PATH" default:"./data"`
	LogPath     string `envconfig:"LOG_PATH" default:""`
	AllowedRoot string `envconfig:"ALLOWED_ROOT" default:""`

	// Session settings
	MaxSessions    int           `envconfig:"MAX_SESSIONS" default:"200"`
	IdleTimeout    time.Duration `envconfig:"IDLE_TIMEOUT" default:"2m"`
	ReconnectGrace time.Duration `envconfig:"RECONNECT_GRACE" default:"30s"`
	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"15s"`

	// Gateway settings
	OutputQueueSize int `envconfig:"OUTPUT_QUEUE_SIZE" default:"256"`

	// Security settings
	SecurityPolicyPath string `envconfig:"SECURITY_POLICY_PATH" default:""`

	// Audit settings
	AuditDBPath        string `envconfig:"AUDIT_DB_PATH" default:""`
	AuditRetentionDays int    `envconfig:"AUDIT_RETENTION_DAYS" default:"90"`
	AuditDisabled      bool   `envconfig:"AUDIT_DISABLED" default:"false"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("TERMBRIDGE", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
