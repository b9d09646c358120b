// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Relay    RelayConfig    `mapstructure:"relay"`
	Xwayland XwaylandConfig `mapstructure:"xwayland"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// RelayConfig contains the relay's own settings
type RelayConfig struct {
	// Tag is prepended to guest window titles on the host.
	Tag string `mapstructure:"tag"`

	// ClipName overrides the clipboard namespace prefix. Unset means
	// derive it ($WAYLAND_PROXY_CLIPNAME, then #PID<pid>#); an empty
	// string disables prefixing.
	ClipName *string `mapstructure:"clipname"`

	// ListenSocket is the guest-facing socket path. Empty picks
	// $XDG_RUNTIME_DIR/virtway-0.
	ListenSocket string `mapstructure:"listen_socket"`

	// HostSocket overrides the host compositor socket; empty follows
	// $WAYLAND_DISPLAY.
	HostSocket string `mapstructure:"host_socket"`

	// DirectShm forwards guest shm descriptors untouched instead of
	// mirroring them. Only safe when guest and host share a kernel.
	DirectShm bool `mapstructure:"direct_shm"`
}

// XwaylandConfig contains the Xwayland integration settings
type XwaylandConfig struct {
	Scale int32 `mapstructure:"scale"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Override LOG_LEVEL env var
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Relay: RelayConfig{
			Tag:       "[virtway] ",
			DirectShm: false,
		},
		Xwayland: XwaylandConfig{
			Scale: 1,
		},
		Logging: LoggingConfig{
			LogLevel: "",
		},
	}

	cfg *Config

	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("virtway")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath("/etc/virtway")
		if home := os.Getenv("HOME"); home != "" {
			viper.AddConfigPath(filepath.Join(home, ".config", "virtway"))
		}
		viper.AddConfigPath(".")
	}

	viper.SetDefault("relay.tag", DefaultConfig.Relay.Tag)
	viper.SetDefault("relay.listen_socket", DefaultConfig.Relay.ListenSocket)
	viper.SetDefault("relay.host_socket", DefaultConfig.Relay.HostSocket)
	viper.SetDefault("relay.direct_shm", DefaultConfig.Relay.DirectShm)
	viper.SetDefault("xwayland.scale", DefaultConfig.Xwayland.Scale)
	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// ListenSocketPath resolves the guest-facing socket path.
func ListenSocketPath() string {
	c := Get()
	if c.Relay.ListenSocket != "" {
		return c.Relay.ListenSocket
	}
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = fmt.Sprintf("/run/user/%d", os.Getuid())
	}
	return filepath.Join(dir, "virtway-0")
}
