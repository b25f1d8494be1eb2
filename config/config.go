// Package config loads client, CLI and stub settings from an optional YAML file and
// TRANSFORMATOR__ environment variables.
//
// Environment keys use "__" between sections:
//
//	TRANSFORMATOR__CONNECT=/run/transformator.sock
//	TRANSFORMATOR__STANDALONE__READY_TIMEOUT=20s
//	TRANSFORMATOR__REGISTRY__ENDPOINTS=10.0.0.1:2379,10.0.0.2:2379
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"transformator/codec"
	"transformator/loadbalance"
)

const EnvPrefix = "TRANSFORMATOR__"

type RateLimit struct {
	RPS   float64 `koanf:"rps"`   // 0 disables limiting
	Burst int     `koanf:"burst"` // defaults to 1 when RPS is set
}

type Standalone struct {
	Binary       string        `koanf:"binary"`        // empty: search PATH for DefaultBinary
	Target       string        `koanf:"target"`        // empty: socket in a fresh temp dir
	Args         string        `koanf:"args"`          // extra arguments, shell-quoted
	ReadyTimeout time.Duration `koanf:"ready_timeout"` // readiness watchdog
	ReadyMarker  string        `koanf:"ready_marker"`  // stdout substring that signals readiness
	GracePeriod  time.Duration `koanf:"grace_period"`  // interrupt → kill delay on cleanup
}

type Log struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type Registry struct {
	Endpoints []string `koanf:"endpoints"` // etcd endpoints; empty disables discovery
	Service   string   `koanf:"service"`   // name instances are registered under
	TTL       int64    `koanf:"ttl"`       // lease TTL in seconds
	Balancer  string   `koanf:"balancer"`  // round-robin|weighted-random|consistent-hash
}

type Config struct {
	Connect     string        `koanf:"connect"`
	Codec       string        `koanf:"codec"` // cbor|json
	CallTimeout time.Duration `koanf:"call_timeout"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
	RateLimit   RateLimit     `koanf:"rate_limit"`
	Standalone  Standalone    `koanf:"standalone"`
	Log         Log           `koanf:"log"`
	Registry    Registry      `koanf:"registry"`
	MetricsAddr string        `koanf:"metrics_addr"`
}

// Defaults.
const (
	DefaultBinary       = "transformator"
	DefaultReadyMarker  = "server bound"
	DefaultReadyTimeout = 10 * time.Second
	DefaultGracePeriod  = 2 * time.Second
	DefaultDialTimeout  = 5 * time.Second
	DefaultService      = "transformator"
	DefaultRegistryTTL  = 10
	DefaultBalancer     = "round-robin"
)

// Load merges YAML (if path is set and exists) with environment variables, then applies
// defaults and validates.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load config %q: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, "__", envValue), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envValue(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "registry__endpoints" {
		var endpoints []string
		for _, e := range strings.Split(value, ",") {
			if e = strings.TrimSpace(e); e != "" {
				endpoints = append(endpoints, e)
			}
		}
		return key, endpoints
	}
	return key, value
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func applyDefaults(c *Config) {
	if c.Codec == "" {
		c.Codec = "cbor"
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.Standalone.ReadyTimeout == 0 {
		c.Standalone.ReadyTimeout = DefaultReadyTimeout
	}
	if c.Standalone.ReadyMarker == "" {
		c.Standalone.ReadyMarker = DefaultReadyMarker
	}
	if c.Standalone.GracePeriod == 0 {
		c.Standalone.GracePeriod = DefaultGracePeriod
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}
	if c.Registry.Service == "" {
		c.Registry.Service = DefaultService
	}
	if c.Registry.TTL == 0 {
		c.Registry.TTL = DefaultRegistryTTL
	}
	if c.Registry.Balancer == "" {
		c.Registry.Balancer = DefaultBalancer
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate rejects values that cannot work.
func (c Config) Validate() error {
	if _, err := codec.ParseType(c.Codec); err != nil {
		return err
	}
	if c.CallTimeout < 0 || c.DialTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Standalone.ReadyTimeout < 0 || c.Standalone.GracePeriod < 0 {
		return fmt.Errorf("standalone timeouts must not be negative")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if _, err := loadbalance.New(c.Registry.Balancer); err != nil {
		return err
	}
	return nil
}

// CodecType returns the parsed codec. Validate has already checked it.
func (c Config) CodecType() codec.CodecType {
	t, _ := codec.ParseType(c.Codec)
	return t
}
