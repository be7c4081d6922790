// File: cmd/hioload-http/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/momentics/hioload-http/server"
)

const envPrefix = "HIOLOAD"

// config is everything the command reads from flags, environment and the
// optional YAML file, in increasing order of precedence: file, env, flags.
type config struct {
	Server server.Config `mapstructure:",squash"`

	LogLevel  zapcore.Level `mapstructure:"log_level"`
	Dev       bool          `mapstructure:"dev"`
	Trace     bool          `mapstructure:"trace"`
	TraceStop time.Duration `mapstructure:"trace_flush_timeout"`
}

func registerFlags(fs *pflag.FlagSet) {
	d := server.DefaultConfig()
	fs.String("config", "", "optional YAML config file")
	fs.String("address", d.Address, "bind address")
	fs.Int("port", d.Port, "bind port, 0 for an ephemeral port")
	fs.Int("backlog", d.Backlog, "listen queue length")
	fs.Int("read_buffer_size", d.ReadBufferSize, "bytes read per readiness event")
	fs.Int("max_header_bytes", d.MaxHeaderBytes, "largest accepted request header")
	fs.Int64("max_body_bytes", d.MaxBodyBytes, "largest accepted request body")
	fs.Int("cache_size", d.CacheSize, "cached responses kept, 0 disables caching")
	fs.String("log_level", "info", "debug, info, warn or error")
	fs.Bool("dev", false, "human readable development logging")
	fs.Bool("trace", false, "export per-connection spans to stderr")
	fs.String("trace_flush_timeout", "5s", "how long to wait for pending spans on exit")
}

// loadConfig merges the config file, HIOLOAD_* variables and flags.
func loadConfig(fs *pflag.FlagSet) (*config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func newLogger(cfg *config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	return zc.Build()
}
