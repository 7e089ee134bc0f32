// Package config handles process-level adapter configuration: the
// handful of settings that apply before any session exists (which gdb
// binary to prefer by default, logging destination/verbosity, and the
// listen address the adapter's byte-stream front end binds to).
//
// Grounded on the sidkshatriya-dontbug cmd/root.go viper wiring: cobra
// persistent flags bound into viper, a YAML config file searched in the
// user's home directory, environment variable overrides, and
// viper.SetDefault for every knob.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is process-wide; per-session overrides arrive later via the
// launch/attach request body (see internal/launchconfig).
type Config struct {
	GDBExecutable string `mapstructure:"gdb-executable" yaml:"gdb-executable"`
	ListenAddr    string `mapstructure:"listen-addr" yaml:"listen-addr"`
	Verbose       bool   `mapstructure:"verbose" yaml:"verbose"`
	LogFile       string `mapstructure:"log-file" yaml:"log-file"`
}

// Defaults returns the built-in defaults applied before any flag, env
// var, or config file is consulted.
func Defaults() Config {
	return Config{
		GDBExecutable: "gdb",
		ListenAddr:    "127.0.0.1:4711",
		Verbose:       false,
		LogFile:       "",
	}
}

// BindFlags registers the process-level persistent flags on root and
// binds them into v, mirroring dontbug's RootCmd.PersistentFlags wiring.
func BindFlags(root *cobra.Command, v *viper.Viper) error {
	root.PersistentFlags().String("gdb-executable", "gdb", "gdb executable to launch for sessions that don't override it")
	root.PersistentFlags().String("listen-addr", "127.0.0.1:4711", "address the adapter listens on for front-end connections")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug-level logging")
	root.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")

	for _, name := range []string{"gdb-executable", "listen-addr", "verbose", "log-file"} {
		if err := v.BindPFlag(name, root.PersistentFlags().Lookup(name)); err != nil {
			return fmt.Errorf("config: bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load wires up viper's search path, environment variable overrides, and
// reads a config file if present, then unmarshals into a Config seeded
// with Defaults.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	cfg := Defaults()

	v.SetConfigType("yaml")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".gdbmiadapter")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("GDBMIADAPTER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("gdb-executable", cfg.GDBExecutable)
	v.SetDefault("listen-addr", cfg.ListenAddr)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("log-file", cfg.LogFile)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return cfg, fmt.Errorf("config: read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// DefaultConfigPath returns where Save/Load's implicit search resolves a
// config file to, mirroring Load's AddConfigPath("$HOME") default.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home dir: %w", err)
	}
	return filepath.Join(home, ".gdbmiadapter.yaml"), nil
}

// Save writes cfg as YAML to path, refusing to overwrite an existing
// file so `config --init` never clobbers one a user has already edited.
func (c Config) Save(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Render formats cfg as YAML for `config --show`.
func (c Config) Render() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("config: marshal: %w", err)
	}
	return string(data), nil
}
