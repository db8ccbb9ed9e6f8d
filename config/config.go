// Package config provides centralized configuration management using Viper.
// It supports loading configuration from files, environment variables, and
// command-line flags with a clear hierarchy: Flags > Env > Config File > Defaults.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Default pool configuration values.
const (
	DefaultPoolHost           = "127.0.0.1"
	DefaultPoolRPCPort        = 18081
	DefaultPoolZMQPort        = 18083
	DefaultPoolDataAPI        = "data-pool"
	DefaultPoolMini           = false
	DefaultPoolLogLevel       = 0
	DefaultPoolOutPeers       = 10
	DefaultPoolInPeers        = 10
	DefaultPoolWatchdogEpoch  = 900 * time.Millisecond
	DefaultPoolBinary         = "p2pool"
)

// Default miner configuration values.
const (
	DefaultMinerPoolURL        = "127.0.0.1:3333"
	DefaultMinerThreads        = 0
	DefaultMinerRigID          = ""
	DefaultMinerHTTPHost       = "127.0.0.1"
	DefaultMinerHTTPPort       = 18088
	DefaultMinerTLS            = false
	DefaultMinerKeepalive      = true
	DefaultMinerPauseOnActive  = 0
	DefaultMinerBinary         = "xmrig"
	DefaultMinerPrivileged     = false
	DefaultMinerWatchdogEpoch  = 900 * time.Millisecond
	DefaultMinerRequestTimeout = 500 * time.Millisecond
)

// Default donor configuration values.
const (
	DefaultDonorURLNormal = "donate.xmrvsbeast.com:3333"
	DefaultDonorURLFast   = "donate.xmrvsbeast.com:443"
	DefaultDonorHeroMode  = false
	DefaultDonorMinDonor  = 1_000
	DefaultDonorMinVIP    = 10_000
	DefaultDonorMinWhale  = 100_000
	DefaultDonorMinMega   = 1_000_000
	DefaultDonorEpoch     = 600 * time.Second
)

// Default reconciliation and logging values.
const (
	DefaultReconcileInterval = 1000 * time.Millisecond
	DefaultLoggingLevel      = "info"
	DefaultLoggingFormat     = "color"
	DefaultLoggingQuiet      = false
	DefaultLoggingVerbose    = false
)

// Config is the supervisor's read-only configuration snapshot, loaded once at
// start time and again only when feeding a fresh snapshot into a Restart.
type Config struct {
	Pool      PoolConfig      `mapstructure:"pool"`
	Miner     MinerConfig     `mapstructure:"miner"`
	Donor     DonorConfig     `mapstructure:"donor"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// PoolConfig controls how the Pool daemon is launched and polled.
type PoolConfig struct {
	Binary        string        `mapstructure:"binary"`
	Wallet        string        `mapstructure:"wallet"`
	Host          string        `mapstructure:"host"`
	RPCPort       int           `mapstructure:"rpc_port"`
	ZMQPort       int           `mapstructure:"zmq_port"`
	DataAPI       string        `mapstructure:"data_api"`
	Mini          bool          `mapstructure:"mini"`
	Advanced      string        `mapstructure:"advanced"`
	LogLevel      int           `mapstructure:"log_level"`
	OutPeers      int           `mapstructure:"out_peers"`
	InPeers       int           `mapstructure:"in_peers"`
	WatchdogEpoch time.Duration `mapstructure:"watchdog_epoch"`
}

// MinerConfig controls how the Miner child is launched, polled, and controlled.
type MinerConfig struct {
	Binary         string        `mapstructure:"binary"`
	PoolURL        string        `mapstructure:"pool_url"`
	Threads        int           `mapstructure:"threads"`
	RigID          string        `mapstructure:"rig_id"`
	HTTPHost       string        `mapstructure:"http_host"`
	HTTPPort       int           `mapstructure:"http_port"`
	TLS            bool          `mapstructure:"tls"`
	Keepalive      bool          `mapstructure:"keepalive"`
	PauseOnActive  int           `mapstructure:"pause_on_active"`
	Token          string        `mapstructure:"token"`
	Privileged     bool          `mapstructure:"privileged"`
	WatchdogEpoch  time.Duration `mapstructure:"watchdog_epoch"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DonorConfig parameterizes the donation scheduler.
type DonorConfig struct {
	URLNormal string        `mapstructure:"url_normal"`
	URLFast   string        `mapstructure:"url_fast"`
	HeroMode  bool          `mapstructure:"hero_mode"`
	MinDonor  float64       `mapstructure:"min_donor"`
	MinVIP    float64       `mapstructure:"min_vip"`
	MinWhale  float64       `mapstructure:"min_whale"`
	MinMega   float64       `mapstructure:"min_mega"`
	Epoch     time.Duration `mapstructure:"epoch"`
	PoolEHRURL string       `mapstructure:"pool_ehr_url"`
}

// ReconcileConfig parameterizes the reconciliation loop.
type ReconcileConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`   // debug, info, warn, error
	Format  string `mapstructure:"format"`  // text, color, json
	Quiet   bool   `mapstructure:"quiet"`   // suppress all but errors
	Verbose bool   `mapstructure:"verbose"` // enable debug logs
}

// Validate checks the configuration for internally-consistent, sane values.
func (c *Config) Validate() error {
	if err := c.Pool.validate(); err != nil {
		return err
	}
	if err := c.Miner.validate(); err != nil {
		return err
	}
	if err := c.Donor.validate(); err != nil {
		return err
	}
	if c.Reconcile.Interval < 100*time.Millisecond {
		return fmt.Errorf("reconcile.interval too short (minimum 100ms), got %v", c.Reconcile.Interval)
	}
	return c.Logging.validate()
}

func (p *PoolConfig) validate() error {
	if p.Wallet == "" {
		return fmt.Errorf("pool.wallet cannot be empty")
	}
	if p.RPCPort < 1 || p.RPCPort > 65535 {
		return fmt.Errorf("invalid pool.rpc_port: %d (must be 1-65535)", p.RPCPort)
	}
	if p.ZMQPort < 1 || p.ZMQPort > 65535 {
		return fmt.Errorf("invalid pool.zmq_port: %d (must be 1-65535)", p.ZMQPort)
	}
	if p.RPCPort == p.ZMQPort {
		return fmt.Errorf("pool.rpc_port and pool.zmq_port must differ")
	}
	if p.DataAPI == "" {
		return fmt.Errorf("pool.data_api cannot be empty")
	}
	if p.WatchdogEpoch < 100*time.Millisecond {
		return fmt.Errorf("pool.watchdog_epoch too short (minimum 100ms), got %v", p.WatchdogEpoch)
	}
	return nil
}

func (m *MinerConfig) validate() error {
	if m.Threads < 0 {
		return fmt.Errorf("miner.threads cannot be negative, got %d", m.Threads)
	}
	if m.HTTPPort < 1 || m.HTTPPort > 65535 {
		return fmt.Errorf("invalid miner.http_port: %d (must be 1-65535)", m.HTTPPort)
	}
	if m.WatchdogEpoch < 100*time.Millisecond {
		return fmt.Errorf("miner.watchdog_epoch too short (minimum 100ms), got %v", m.WatchdogEpoch)
	}
	if m.RequestTimeout <= 0 {
		return fmt.Errorf("miner.request_timeout must be positive, got %v", m.RequestTimeout)
	}
	return nil
}

func (d *DonorConfig) validate() error {
	if d.URLNormal == "" {
		return fmt.Errorf("donor.url_normal cannot be empty")
	}
	if !(d.MinDonor < d.MinVIP && d.MinVIP < d.MinWhale && d.MinWhale < d.MinMega) {
		return fmt.Errorf("donor round thresholds must be strictly increasing: donor=%v vip=%v whale=%v mega=%v",
			d.MinDonor, d.MinVIP, d.MinWhale, d.MinMega)
	}
	if d.Epoch <= 0 {
		return fmt.Errorf("donor.epoch must be positive, got %v", d.Epoch)
	}
	return nil
}

func (l *LoggingConfig) validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if l.Level != "" && !validLevels[l.Level] {
		return fmt.Errorf("invalid logging.level: %q (must be debug, info, warn, or error)", l.Level)
	}
	validFormats := map[string]bool{"text": true, "color": true, "json": true}
	if l.Format != "" && !validFormats[l.Format] {
		return fmt.Errorf("invalid logging.format: %q (must be text, color, or json)", l.Format)
	}
	return nil
}

// Load loads the supervisor configuration from file, environment, and defaults.
//
// Configuration sources are applied in the following precedence order (highest to
// lowest): command-line flags (handled by caller), environment variables
// (SUP_ prefix, e.g. SUP_POOL_WALLET), configuration file (supervisor.yaml or
// the given path), default values.
//
// If configPath is empty, the function searches for "supervisor.yaml" in the
// current directory, "$HOME/.minesup", and "/etc/minesup". If no file is found
// in the search paths, defaults (plus any environment overrides) are returned
// without validation and without error; if configPath names a file that
// cannot be read, an error is returned. A configuration read from a file is
// validated before being returned.
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		fileFound = false
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if fileFound {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	return &cfg, nil
}

// Watch starts a background goroutine that watches the configuration file and
// calls callback with a freshly validated Config whenever the file changes.
// The watcher stops when ctx is cancelled. It does not mutate any live Config;
// the caller decides when (if ever) to apply the new snapshot, per the
// supervisor's Restart-only reload semantics. If logger is nil, logging is
// disabled.
func Watch(ctx context.Context, configPath string, callback func(*Config), logger *slog.Logger) error {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		if logger != nil {
			logger.Info("configuration file changed", "file", e.Name, "operation", e.Op.String())
		}

		var newCfg Config
		if err := v.Unmarshal(&newCfg); err != nil {
			if logger != nil {
				logger.Error("failed to unmarshal config on reload", "error", err, "file", e.Name)
			}
			return
		}

		if err := newCfg.Validate(); err != nil {
			if logger != nil {
				logger.Error("invalid configuration after reload", "error", err, "file", e.Name)
			}
			return
		}

		if logger != nil {
			logger.Info("configuration reloaded successfully", "file", e.Name)
		}

		callback(&newCfg)
	})

	go func() {
		<-ctx.Done()
		if logger != nil {
			logger.Debug("config watcher stopped", "reason", "context cancelled")
		}
	}()

	return nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("supervisor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.minesup")
		v.AddConfigPath("/etc/minesup")
	}

	v.SetEnvPrefix("SUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pool.binary", DefaultPoolBinary)
	v.SetDefault("pool.host", DefaultPoolHost)
	v.SetDefault("pool.rpc_port", DefaultPoolRPCPort)
	v.SetDefault("pool.zmq_port", DefaultPoolZMQPort)
	v.SetDefault("pool.data_api", DefaultPoolDataAPI)
	v.SetDefault("pool.mini", DefaultPoolMini)
	v.SetDefault("pool.log_level", DefaultPoolLogLevel)
	v.SetDefault("pool.out_peers", DefaultPoolOutPeers)
	v.SetDefault("pool.in_peers", DefaultPoolInPeers)
	v.SetDefault("pool.watchdog_epoch", DefaultPoolWatchdogEpoch)

	v.SetDefault("miner.binary", DefaultMinerBinary)
	v.SetDefault("miner.pool_url", DefaultMinerPoolURL)
	v.SetDefault("miner.threads", DefaultMinerThreads)
	v.SetDefault("miner.rig_id", DefaultMinerRigID)
	v.SetDefault("miner.http_host", DefaultMinerHTTPHost)
	v.SetDefault("miner.http_port", DefaultMinerHTTPPort)
	v.SetDefault("miner.tls", DefaultMinerTLS)
	v.SetDefault("miner.keepalive", DefaultMinerKeepalive)
	v.SetDefault("miner.pause_on_active", DefaultMinerPauseOnActive)
	v.SetDefault("miner.privileged", DefaultMinerPrivileged)
	v.SetDefault("miner.watchdog_epoch", DefaultMinerWatchdogEpoch)
	v.SetDefault("miner.request_timeout", DefaultMinerRequestTimeout)

	v.SetDefault("donor.url_normal", DefaultDonorURLNormal)
	v.SetDefault("donor.url_fast", DefaultDonorURLFast)
	v.SetDefault("donor.hero_mode", DefaultDonorHeroMode)
	v.SetDefault("donor.min_donor", DefaultDonorMinDonor)
	v.SetDefault("donor.min_vip", DefaultDonorMinVIP)
	v.SetDefault("donor.min_whale", DefaultDonorMinWhale)
	v.SetDefault("donor.min_mega", DefaultDonorMinMega)
	v.SetDefault("donor.epoch", DefaultDonorEpoch)

	v.SetDefault("reconcile.interval", DefaultReconcileInterval)

	v.SetDefault("logging.level", DefaultLoggingLevel)
	v.SetDefault("logging.format", DefaultLoggingFormat)
	v.SetDefault("logging.quiet", DefaultLoggingQuiet)
	v.SetDefault("logging.verbose", DefaultLoggingVerbose)
}
