// Package config loads root2avro settings from TOML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/VanDung-dev/root2avro/bridge"
	"github.com/VanDung-dev/root2avro/output"
	"github.com/VanDung-dev/root2avro/root2avro-engine/api"
	"github.com/VanDung-dev/root2avro/root2avro-engine/network"
)

// ErrUnknownKeys is returned for configuration keys that match no setting.
var ErrUnknownKeys = errors.New("unknown configuration keys")

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LogConfig selects the logger level and format.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ConvertConfig holds conversion defaults.
type ConvertConfig struct {
	Workers            int    `toml:"workers"`
	Mode               string `toml:"mode"`
	Codec              string `toml:"codec"`
	BlockLength        int    `toml:"block_length"`
	Namespace          string `toml:"namespace"`
	SkipBadRows        bool   `toml:"skip_bad_rows"`
	KeepLengthBranches bool   `toml:"keep_length_branches"`
}

// ServerConfig holds listener addresses. An empty address disables the
// listener.
type ServerConfig struct {
	TCPAddress     string   `toml:"tcp_address"`
	GRPCAddress    string   `toml:"grpc_address"`
	ZMQHost        string   `toml:"zmq_host"`
	ZMQPort        int      `toml:"zmq_port"`
	ZMQWorkers     int      `toml:"zmq_workers"`
	MetricsAddress string   `toml:"metrics_address"`
	IdleTimeout    Duration `toml:"idle_timeout"`
	RequestTimeout Duration `toml:"request_timeout"`
}

// Config is the complete configuration.
type Config struct {
	Log     LogConfig      `toml:"log"`
	Convert ConvertConfig  `toml:"convert"`
	Server  ServerConfig   `toml:"server"`
	Auth    api.AuthConfig `toml:"auth"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	server := api.DefaultServerConfig()
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Convert: ConvertConfig{
			Workers:     runtime.NumCPU(),
			Mode:        string(output.ModeAvro),
			Codec:       "null",
			BlockLength: output.DefaultConfig().BlockLength,
		},
		Server: ServerConfig{
			TCPAddress:     ":50051",
			ZMQHost:        "0.0.0.0",
			ZMQPort:        5555,
			ZMQWorkers:     network.DefaultNodeConfig().Workers,
			MetricsAddress: ":9090",
			IdleTimeout:    Duration{server.IdleTimeout},
			RequestTimeout: Duration{server.RequestTimeout},
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path loads the defaults only.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return cfg, fmt.Errorf("%w in %s: %s", ErrUnknownKeys, path, strings.Join(keys, ", "))
		}
	}
	cfg.Auth = api.AuthConfigFromEnv(cfg.Auth)
	return cfg, cfg.Validate()
}

// Validate checks values that would only fail later, at request time.
func (c Config) Validate() error {
	if _, err := output.ParseMode(c.Convert.Mode); err != nil {
		return fmt.Errorf("convert.mode: %w", err)
	}
	if _, err := output.ParseCodec(c.Convert.Codec); err != nil {
		return fmt.Errorf("convert.codec: %w", err)
	}
	if c.Convert.Workers < 0 {
		return fmt.Errorf("convert.workers: must not be negative, got %d", c.Convert.Workers)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// Write encodes the configuration as TOML.
func (c Config) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// NewLogger builds the configured logger.
func (c LogConfig) NewLogger() (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	if c.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// Bridge returns the converter settings. Observer and Logger are left for
// the caller.
func (c ConvertConfig) Bridge() bridge.Config {
	return bridge.Config{
		Workers:     c.Workers,
		BlockLength: c.BlockLength,
	}
}

// Defaults returns the per-request option defaults.
func (c ConvertConfig) Defaults() bridge.Options {
	return bridge.Options{
		Mode:               c.Mode,
		Codec:              c.Codec,
		Namespace:          c.Namespace,
		SkipBadRows:        c.SkipBadRows,
		KeepLengthBranches: c.KeepLengthBranches,
	}
}

// TCP returns the TCP server settings.
func (c ServerConfig) TCP() api.ServerConfig {
	return api.ServerConfig{
		IdleTimeout:    c.IdleTimeout.Duration,
		RequestTimeout: c.RequestTimeout.Duration,
	}
}

// ZMQ returns the ZeroMQ node settings.
func (c ServerConfig) ZMQ() network.NodeConfig {
	node := network.DefaultNodeConfig()
	node.Workers = c.ZMQWorkers
	node.RequestTimeout = c.RequestTimeout.Duration
	return node
}
