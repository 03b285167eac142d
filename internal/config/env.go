package config

import (
	"fmt"
	"strconv"
	"strings"
)

// EnvPrefix starts every environment variable the configuration reads.
const EnvPrefix = "DEUCE_"

// envSetters maps environment variables to the settings they override.
var envSetters = map[string]func(c *Config, v string) error{
	"DEUCE_LOG_LEVEL":       func(c *Config, v string) error { c.Logging.Level = strings.ToLower(v); return nil },
	"DEUCE_LOG_FILE":        func(c *Config, v string) error { c.Logging.File = v; return nil },
	"DEUCE_REQUEST_TIMEOUT": func(c *Config, v string) error { c.Workspace.RequestTimeout = v; return nil },
	"DEUCE_ENGINE":          func(c *Config, v string) error { c.Workspace.Engine = strings.ToLower(v); return nil },
	"DEUCE_LUA_SCRIPT":      func(c *Config, v string) error { c.Workspace.LuaScript = v; return nil },
	"DEUCE_BASELINE":        func(c *Config, v string) error { c.Workspace.Baseline = v; return nil },
	"DEUCE_MAX_HISTORY": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		c.Workspace.MaxHistory = n
		return err
	},
	"DEUCE_TARGET": func(c *Config, v string) error { c.Analysis.Target = strings.ToLower(v); return nil },
	"DEUCE_MODULE": func(c *Config, v string) error { c.Analysis.Module = strings.ToLower(v); return nil },
	"DEUCE_NO_IMPLICIT_ANY": func(c *Config, v string) error {
		b, err := parseBool(v)
		c.Analysis.NoImplicitAny = b
		return err
	},
	"DEUCE_REMOVE_COMMENTS": func(c *Config, v string) error {
		b, err := parseBool(v)
		c.Analysis.RemoveComments = b
		return err
	},
	"DEUCE_LIB": func(c *Config, v string) error {
		c.Analysis.Lib = nil
		for _, lib := range strings.Split(v, ",") {
			if lib = strings.TrimSpace(lib); lib != "" {
				c.Analysis.Lib = append(c.Analysis.Lib, lib)
			}
		}
		return nil
	},
}

// ApplyEnv overrides cfg from the environment. lookup is os.LookupEnv in
// production. Empty values count as set.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for name, set := range envSetters {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := set(cfg, v); err != nil {
			return fmt.Errorf("environment %s=%q: %w", name, v, err)
		}
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0", "":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean")
}
