// Package config holds the immutable per-session configuration and the
// one-shot remote override fetch that may patch it before monitoring
// begins.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Mode selects what an unsafe verdict does.
type Mode string

const (
	// ModeEnforce mutates the widget and blocks the conversation.
	ModeEnforce Mode = "enforce"
	// ModeMonitor logs unsafe verdicts without touching the widget.
	ModeMonitor Mode = "monitor"
)

// Config is loaded once at startup. Remote overrides may patch
// SafeResponse, Phone, TenantName, and Mode in place before the engine
// starts; nothing changes mid-evaluation.
type Config struct {
	TenantID    string `mapstructure:"tenant_id"`
	BackendBase string `mapstructure:"backend_base"`
	Mode        Mode   `mapstructure:"mode"`

	// DevToolsURL is the browser tab's DevTools websocket endpoint.
	DevToolsURL string `mapstructure:"devtools_url"`
	// StorePath is the sqlite file backing persisted state.
	StorePath string `mapstructure:"store_path"`

	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	CheckInterval     time.Duration `mapstructure:"check_interval"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RecheckInterval   time.Duration `mapstructure:"recheck_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	BlockTTL          time.Duration `mapstructure:"block_ttl"`

	SafeResponse string `mapstructure:"safe_response"`
	Phone        string `mapstructure:"phone"`
	TenantName   string `mapstructure:"tenant_name"`
}

// DefaultSafeResponse replaces an unsafe message unless the tenant
// configures its own wording.
const DefaultSafeResponse = "For accurate information on this topic, please speak with our team directly. " +
	"They'll provide you with precise details based on your specific situation."

// Load reads configuration from an optional file plus CHATGUARD_* env
// variables. Callers apply their own overrides (flags) and then
// Validate.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Every key needs a default registered so AutomaticEnv can bind it.
	v.SetDefault("tenant_id", "")
	v.SetDefault("backend_base", "http://localhost:3001")
	v.SetDefault("mode", string(ModeEnforce))
	v.SetDefault("devtools_url", "ws://localhost:9222/devtools/page")
	v.SetDefault("store_path", "chatguard.db")
	v.SetDefault("request_timeout", 5*time.Second)
	v.SetDefault("check_interval", 500*time.Millisecond)
	v.SetDefault("max_retries", 120)
	v.SetDefault("recheck_interval", 5*time.Second)
	v.SetDefault("heartbeat_interval", 30*time.Second)
	v.SetDefault("block_ttl", 24*time.Hour)
	v.SetDefault("safe_response", DefaultSafeResponse)
	v.SetDefault("phone", "(555) 123-4567")
	v.SetDefault("tenant_name", "Our Dealership")

	v.SetEnvPrefix("CHATGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields the engine cannot run without.
func (c *Config) Validate() error {
	if c.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if c.Mode != ModeEnforce && c.Mode != ModeMonitor {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeEnforce, ModeMonitor, c.Mode)
	}
	return nil
}

// EvaluateURL is the remote classification endpoint.
func (c *Config) EvaluateURL() string { return c.BackendBase + "/api/evaluate" }

// LogURL is the audit delivery endpoint.
func (c *Config) LogURL() string { return c.BackendBase + "/api/log" }

// ConfigURL is the tenant override endpoint.
func (c *Config) ConfigURL() string { return c.BackendBase + "/api/config/" + c.TenantID }
