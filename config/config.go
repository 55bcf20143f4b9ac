// Package config loads surreal-rpc settings from an optional YAML file,
// overridden by SURREAL_RPC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"surreal-rpc/protocol"
)

const EnvPrefix = "SURREAL_RPC"

type Config struct {
	Endpoints []string  `mapstructure:"endpoints"`
	Discovery Discovery `mapstructure:"discovery"`
	Auth      Auth      `mapstructure:"auth"`
	Namespace string    `mapstructure:"namespace"`
	Database  string    `mapstructure:"database"`
	Conn      Conn      `mapstructure:"conn"`
	Call      Call      `mapstructure:"call"`
	Log       Log       `mapstructure:"log"`
}

// Discovery enables endpoint lookup in etcd. It is off when Etcd is empty.
type Discovery struct {
	Etcd        []string      `mapstructure:"etcd"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Service     string        `mapstructure:"service"`
	Balancer    string        `mapstructure:"balancer"`
}

type Auth struct {
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`
}

type Conn struct {
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ReadLimit         int64         `mapstructure:"read_limit"`
}

type Call struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	RateLimit  float64       `mapstructure:"rate_limit"` // calls per second, zero disables
	RateBurst  int           `mapstructure:"rate_burst"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	JSON   bool   `mapstructure:"json_format"`
	Output string `mapstructure:"output"` // stdout, stderr or a file path
}

func setDefaults(v *viper.Viper) {
	d := protocol.DefaultSettings()
	v.SetDefault("endpoints", []string{"ws://127.0.0.1:8000/rpc"})
	v.SetDefault("discovery.etcd", []string{})
	v.SetDefault("discovery.dial_timeout", "5s")
	v.SetDefault("discovery.service", "surreal")
	v.SetDefault("discovery.balancer", "round_robin")
	v.SetDefault("auth.user", "")
	v.SetDefault("auth.pass", "")
	v.SetDefault("namespace", "")
	v.SetDefault("database", "")
	v.SetDefault("conn.handshake_timeout", d.HandshakeTimeout)
	v.SetDefault("conn.write_timeout", d.WriteTimeout)
	v.SetDefault("conn.heartbeat_interval", d.HeartbeatInterval)
	v.SetDefault("conn.read_limit", d.ReadLimit)
	v.SetDefault("call.timeout", "30s")
	v.SetDefault("call.retries", 0)
	v.SetDefault("call.retry_delay", "100ms")
	v.SetDefault("call.rate_limit", 0)
	v.SetDefault("call.rate_burst", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json_format", false)
	v.SetDefault("log.output", "stderr")
}

// Load reads path when it is not empty, then applies environment overrides.
// Nested keys map to variables with dots replaced, e.g. SURREAL_RPC_CALL_TIMEOUT.
// List values from the environment are comma separated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Endpoints = splitList(cfg.Endpoints)
	cfg.Discovery.Etcd = splitList(cfg.Discovery.Etcd)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList expands comma separated entries, which is how lists arrive from the environment.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Endpoints) == 0 && len(c.Discovery.Etcd) == 0 {
		errs = append(errs, errors.New("config: no endpoints and no discovery configured"))
	}
	if (c.Namespace == "") != (c.Database == "") {
		errs = append(errs, errors.New("config: namespace and database must be set together"))
	}
	if c.Call.Retries < 0 {
		errs = append(errs, errors.New("config: call.retries must not be negative"))
	}
	if c.Call.RateLimit < 0 {
		errs = append(errs, errors.New("config: call.rate_limit must not be negative"))
	}
	return errors.Join(errs...)
}

// Settings returns the connection settings described by c.
func (c *Config) Settings() *protocol.Settings {
	s := protocol.DefaultSettings()
	s.HandshakeTimeout = c.Conn.HandshakeTimeout
	s.WriteTimeout = c.Conn.WriteTimeout
	s.HeartbeatInterval = c.Conn.HeartbeatInterval
	s.ReadLimit = c.Conn.ReadLimit
	return s
}
