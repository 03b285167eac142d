// Package config loads deuce's settings from a TOML file, applies DEUCE_*
// environment overrides and validates the result. A Watcher reloads the
// file when it changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/deuce/internal/analysis"
)

// Engine names.
const (
	EngineTreeSitter = "treesitter"
	EngineLua        = "lua"
)

// Log levels.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

var (
	validLevels  = []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
	validEngines = []string{EngineTreeSitter, EngineLua}
	validTargets = []string{"es3", "es5", "es2015", "es2016", "es2017", "es2018", "es2019", "es2020", "es2021", "es2022", "esnext"}
	validModules = []string{"none", "commonjs", "amd", "umd", "system", "es2015", "es2020", "esnext"}
)

// Config is the complete configuration.
type Config struct {
	Logging   LoggingConfig    `toml:"logging"`
	Workspace WorkspaceConfig  `toml:"workspace"`
	Analysis  analysis.Options `toml:"analysis"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `toml:"level"`
	// File receives the log; empty means stderr.
	File string `toml:"file"`
}

// WorkspaceConfig configures the workspace client and its worker.
type WorkspaceConfig struct {
	// RequestTimeout bounds each query, as a Go duration string.
	RequestTimeout string `toml:"request_timeout"`
	// Engine selects the analysis engine.
	Engine string `toml:"engine"`
	// LuaScript is the rules script for the lua engine.
	LuaScript string `toml:"lua_script"`
	// Baseline is a YAML baseline manifest; empty uses the built-in one.
	Baseline string `toml:"baseline"`
	// MaxHistory is how many edits each script keeps for incremental
	// reanalysis; zero uses the default.
	MaxHistory int `toml:"max_history"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: LevelInfo},
		Workspace: WorkspaceConfig{
			RequestTimeout: "10s",
			Engine:         EngineTreeSitter,
		},
		Analysis: analysis.DefaultOptions(),
	}
}

// Timeout returns the parsed request timeout.
func (c *Config) Timeout() time.Duration {
	return c.Workspace.Timeout()
}

// Timeout returns the parsed request timeout, or zero when it does not
// parse.
func (w WorkspaceConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(w.RequestTimeout)
	if err != nil {
		return 0
	}
	return d
}

// EngineTimeout returns the budget for a single engine call. It is four
// fifths of the request timeout so the worker's own Timeout error reaches
// the caller before the client deadline expires.
func (w WorkspaceConfig) EngineTimeout() time.Duration {
	return w.Timeout() * 4 / 5
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Analysis = c.Analysis.Clone()
	return &out
}

// Load reads the TOML file at path over the defaults, then applies the
// environment. A missing file is not an error. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := Parse(path, data, cfg); err != nil {
				return nil, err
			}
		}
	}
	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML data over cfg. Keys absent from data keep their
// current values.
func Parse(source string, data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return perr
	}
	return nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, path string, value any, msg string) {
		if !ok {
			errs = append(errs, &ValidationError{Path: path, Value: value, Message: msg})
		}
	}

	check(slices.Contains(validLevels, c.Logging.Level), "logging.level", c.Logging.Level, "must be one of debug, info, warn, error")

	d, err := time.ParseDuration(c.Workspace.RequestTimeout)
	check(err == nil && d > 0, "workspace.request_timeout", c.Workspace.RequestTimeout, "must be a positive duration")
	check(slices.Contains(validEngines, c.Workspace.Engine), "workspace.engine", c.Workspace.Engine, "must be treesitter or lua")
	check(c.Workspace.Engine != EngineLua || c.Workspace.LuaScript != "", "workspace.lua_script", c.Workspace.LuaScript, "required by the lua engine")
	check(c.Workspace.MaxHistory >= 0, "workspace.max_history", c.Workspace.MaxHistory, "must not be negative")

	check(slices.Contains(validTargets, c.Analysis.Target), "analysis.target", c.Analysis.Target, "unknown target")
	check(slices.Contains(validModules, c.Analysis.Module), "analysis.module", c.Analysis.Module, "unknown module system")

	return errors.Join(errs...)
}

// Equal reports whether c and other hold the same settings.
func (c *Config) Equal(other *Config) bool {
	return c.Logging == other.Logging &&
		c.Workspace == other.Workspace &&
		c.Analysis.Equal(other.Analysis)
}
