// Package config resolves runtime configuration: the manifest directory
// location and resilience tuning knobs, loaded with viper the way
// ca-x-nekobot's pkg/config/loader.go loads its own settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Resilience carries the tunables for the rate limiter, breaker, and
// retrier. Zero values are replaced with DefaultResilience's values by Load.
type Resilience struct {
	RateLimitRPS          float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst        int           `mapstructure:"rate_limit_burst"`
	BreakerFailureThresh  uint32        `mapstructure:"breaker_failure_threshold"`
	BreakerOpenTimeout    time.Duration `mapstructure:"breaker_open_timeout"`
	BreakerHalfOpenProbes uint32        `mapstructure:"breaker_half_open_probes"`
	RetryMaxAttempts      int           `mapstructure:"retry_max_attempts"`
	RetryBaseInterval     time.Duration `mapstructure:"retry_base_interval"`
	RetryMaxInterval      time.Duration `mapstructure:"retry_max_interval"`

	// RequestTimeout bounds a single non-streaming dispatch (connect through
	// full body read). Per spec.md §5 it is configurable per deployment and
	// carries no equivalent cap for streaming calls: RequestTimeout is never
	// applied to a streaming dispatch.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// StreamIdleTimeout bounds the gap between successive reads of a
	// streaming response body. It resets on every chunk received, so a
	// slow-but-alive stream of arbitrary total length never trips it; only a
	// provider that goes silent mid-stream does.
	StreamIdleTimeout time.Duration `mapstructure:"stream_idle_timeout"`
}

// DefaultResilience returns conservative defaults used when no config file
// or environment override is present.
func DefaultResilience() Resilience {
	return Resilience{
		RateLimitRPS:          5,
		RateLimitBurst:        10,
		BreakerFailureThresh:  5,
		BreakerOpenTimeout:    30 * time.Second,
		BreakerHalfOpenProbes: 2,
		RetryMaxAttempts:      3,
		RetryBaseInterval:     200 * time.Millisecond,
		RetryMaxInterval:      10 * time.Second,
		RequestTimeout:        60 * time.Second,
		StreamIdleTimeout:     30 * time.Second,
	}
}

// Config is the full set of runtime settings for an airuntime.Client.
type Config struct {
	ManifestDir string     `mapstructure:"manifest_dir"`
	Resilience  Resilience `mapstructure:",squash"`
}

// Loader wraps a viper instance configured with the env prefix and config
// file search path the module uses across deployments.
type Loader struct {
	viper *viper.Viper
}

// NewLoader builds a Loader that reads "airuntime.{yaml,json,toml}" from the
// current directory, "./config", or $HOME/.airuntime, with AIRUNTIME_*
// environment variables overriding file values.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigName("airuntime")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".airuntime"))
	}

	v.SetEnvPrefix("AIRUNTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultResilience()
	v.SetDefault("rate_limit_rps", d.RateLimitRPS)
	v.SetDefault("rate_limit_burst", d.RateLimitBurst)
	v.SetDefault("breaker_failure_threshold", d.BreakerFailureThresh)
	v.SetDefault("breaker_open_timeout", d.BreakerOpenTimeout)
	v.SetDefault("breaker_half_open_probes", d.BreakerHalfOpenProbes)
	v.SetDefault("retry_max_attempts", d.RetryMaxAttempts)
	v.SetDefault("retry_base_interval", d.RetryBaseInterval)
	v.SetDefault("retry_max_interval", d.RetryMaxInterval)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("stream_idle_timeout", d.StreamIdleTimeout)

	return &Loader{viper: v}
}

// Load reads configuration from file and environment, falling back silently
// to defaults when no config file is present (matching ca-x-nekobot's
// loader behavior for an absent config).
func (l *Loader) Load() (*Config, error) {
	if err := l.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := l.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	if cfg.ManifestDir == "" {
		cfg.ManifestDir = ResolveManifestDir()
	}
	return cfg, nil
}

// ResolveManifestDir finds the manifest root directory using the precedence
// documented for the runtime: AI_PROTOCOL_DIR, then AI_PROTOCOL_PATH, then a
// directory probe over common relative locations.
func ResolveManifestDir() string {
	if dir := os.Getenv("AI_PROTOCOL_DIR"); dir != "" {
		return dir
	}
	if dir := os.Getenv("AI_PROTOCOL_PATH"); dir != "" {
		return dir
	}
	candidates := []string{"ai-protocol", "../ai-protocol", "../../ai-protocol"}
	for _, candidate := range candidates {
		if info, err := os.Stat(filepath.Join(candidate, "v1", "providers")); err == nil && info.IsDir() {
			return candidate
		}
	}
	return "ai-protocol"
}
