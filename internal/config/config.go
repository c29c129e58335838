// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the plugin host configuration. Values are layered:
// flag defaults, then the YAML config file, then flags set on the command line.
package config

import (
	"errors"
	"io/fs"

	"github.com/Masterminds/semver/v3"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/plugincore/internal/facet"
	"github.com/holomush/plugincore/internal/logging"
	"github.com/holomush/plugincore/internal/xdg"
)

// Error codes attached to oops errors raised by this package.
const (
	CodeLoadFailed = "CONFIG_LOAD_FAILED"
	CodeInvalid    = "CONFIG_INVALID"
)

// Default values.
const (
	DefaultMetricsAddr      = "127.0.0.1:9100"
	DefaultLogFormat        = logging.FormatJSON
	DefaultLogLevel         = "info"
	DefaultLuaCallStackSize = 120
)

// Config is the plugin host configuration.
type Config struct {
	PluginsDir  string `koanf:"plugins_dir"`
	HostVersion string `koanf:"host_version"`
	// MetricsAddr is the observability listen address. Empty disables it.
	MetricsAddr string       `koanf:"metrics_addr"`
	Log         LogConfig    `koanf:"log"`
	Facets      FacetsConfig `koanf:"facets"`
	Lua         LuaConfig    `koanf:"lua"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// FacetsConfig selects the facet loader registry policies.
type FacetsConfig struct {
	MissingLoader  string `koanf:"missing_loader"`
	LoaderConflict string `koanf:"loader_conflict"`
}

// LuaConfig tunes the hooks sandbox.
type LuaConfig struct {
	CallStackSize int `koanf:"call_stack_size"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"plugins-dir":         "plugins_dir",
	"host-version":        "host_version",
	"metrics-addr":        "metrics_addr",
	"log-format":          "log.format",
	"log-level":           "log.level",
	"missing-loader":      "facets.missing_loader",
	"loader-conflict":     "facets.loader_conflict",
	"lua-call-stack-size": "lua.call_stack_size",
}

// RegisterFlags adds the configuration flags, with their defaults, to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("plugins-dir", xdg.PluginsDir(), "directory holding one subdirectory per plugin")
	flags.String("host-version", "", "host version checked against manifest host-version constraints")
	flags.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	flags.String("log-format", DefaultLogFormat, "log format (json or text)")
	flags.String("log-level", DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.String("missing-loader", "ignore", "facets without a loader: ignore or report")
	flags.String("loader-conflict", "replace", "registering a loader twice: replace or reject")
	flags.Int("lua-call-stack-size", DefaultLuaCallStackSize, "Lua call stack size for hook scripts")
}

// Load builds the configuration from the flag defaults in flags, the YAML
// file at path and the flags changed on the command line. An empty path falls back to the XDG
// config file, which may be absent. An explicit path must exist.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code(CodeLoadFailed).In("config").With("path", path).Wrap(err)
		}
	}

	provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, oops.Code(CodeLoadFailed).In("config").Wrapf(err, "load flags")
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code(CodeLoadFailed).In("config").Wrapf(err, "decode configuration")
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.PluginsDir == "" {
		return invalid("plugins_dir", c.PluginsDir, "plugins_dir is required")
	}
	if c.HostVersion != "" {
		if _, err := semver.NewVersion(c.HostVersion); err != nil {
			return invalid("host_version", c.HostVersion, "host_version must be a semantic version")
		}
	}
	if c.Log.Format != logging.FormatJSON && c.Log.Format != logging.FormatText {
		return invalid("log.format", c.Log.Format, "log.format must be 'json' or 'text'")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level, "log.level must be debug, info, warn or error")
	}
	if _, err := facet.ParseMissingLoaderPolicy(c.Facets.MissingLoader); err != nil {
		return invalid("facets.missing_loader", c.Facets.MissingLoader, "facets.missing_loader must be 'ignore' or 'report'")
	}
	if _, err := facet.ParseConflictPolicy(c.Facets.LoaderConflict); err != nil {
		return invalid("facets.loader_conflict", c.Facets.LoaderConflict, "facets.loader_conflict must be 'replace' or 'reject'")
	}
	if c.Lua.CallStackSize <= 0 {
		return invalid("lua.call_stack_size", c.Lua.CallStackSize, "lua.call_stack_size must be positive")
	}
	return nil
}

// HostSemver returns the parsed host version, or nil when unset.
func (c *Config) HostSemver() *semver.Version {
	if c.HostVersion == "" {
		return nil
	}
	v, err := semver.NewVersion(c.HostVersion)
	if err != nil {
		return nil
	}
	return v
}

// LoaderOptions returns the facet loader registry options the config selects.
// Call Validate first; unparsable policies fall back to the defaults.
func (c *Config) LoaderOptions() []facet.LoaderRegistryOption {
	missing, _ := facet.ParseMissingLoaderPolicy(c.Facets.MissingLoader)
	conflict, _ := facet.ParseConflictPolicy(c.Facets.LoaderConflict)
	return []facet.LoaderRegistryOption{
		facet.WithMissingLoaderPolicy(missing),
		facet.WithConflictPolicy(conflict),
	}
}

func invalid(key string, value any, msg string) error {
	return oops.Code(CodeInvalid).In("config").With("key", key).With("value", value).Errorf("%s", msg)
}
