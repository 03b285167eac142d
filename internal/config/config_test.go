package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, dir, text string) string {
	t.Helper()
	path := filepath.Join(dir, "deuce.toml")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Timeout() != 10*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout())
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "nope.toml"), noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Equal(DefaultConfig()) {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[logging]
level = "debug"

[workspace]
request_timeout = "2s"
max_history = 8

[analysis]
target = "es2015"
no_implicit_any = true
lib = ["es5"]
`)
	cfg, err := load(path, noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != LevelDebug {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if cfg.Timeout() != 2*time.Second || cfg.Workspace.MaxHistory != 8 {
		t.Errorf("workspace = %+v", cfg.Workspace)
	}
	if cfg.Workspace.Engine != EngineTreeSitter {
		t.Errorf("engine = %q, want default kept", cfg.Workspace.Engine)
	}
	a := cfg.Analysis
	if a.Target != "es2015" || !a.NoImplicitAny || !slices.Equal(a.Lib, []string{"es5"}) {
		t.Errorf("analysis = %+v", a)
	}
	if a.Module != DefaultConfig().Analysis.Module {
		t.Errorf("module = %q, want default kept", a.Module)
	}
}

func TestLoadParseError(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[logging]\nlevel = \n")
	_, err := load(path, noEnv)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	if perr.Path != path || perr.Line != 2 {
		t.Errorf("ParseError = %+v", perr)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnv(cfg, envOf(map[string]string{
		"DEUCE_LOG_LEVEL":       "WARN",
		"DEUCE_ENGINE":          "lua",
		"DEUCE_LUA_SCRIPT":      "rules.lua",
		"DEUCE_MAX_HISTORY":     "3",
		"DEUCE_NO_IMPLICIT_ANY": "yes",
		"DEUCE_REMOVE_COMMENTS": "on",
		"DEUCE_LIB":             "es5, dom,",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Logging.Level != LevelWarn || cfg.Workspace.Engine != EngineLua || cfg.Workspace.LuaScript != "rules.lua" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Workspace.MaxHistory != 3 || !cfg.Analysis.NoImplicitAny || !cfg.Analysis.RemoveComments {
		t.Errorf("cfg = %+v", cfg)
	}
	if !slices.Equal(cfg.Analysis.Lib, []string{"es5", "dom"}) {
		t.Errorf("lib = %q", cfg.Analysis.Lib)
	}
}

func TestApplyEnvErrors(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad int", "DEUCE_MAX_HISTORY", "many"},
		{"bad bool", "DEUCE_NO_IMPLICIT_ANY", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ApplyEnv(DefaultConfig(), envOf(map[string]string{tt.key: tt.value}))
			if err == nil {
				t.Errorf("%s=%s accepted", tt.key, tt.value)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"timeout syntax", func(c *Config) { c.Workspace.RequestTimeout = "soon" }, "workspace.request_timeout"},
		{"timeout zero", func(c *Config) { c.Workspace.RequestTimeout = "0s" }, "workspace.request_timeout"},
		{"engine", func(c *Config) { c.Workspace.Engine = "tsc" }, "workspace.engine"},
		{"lua script", func(c *Config) { c.Workspace.Engine = EngineLua }, "workspace.lua_script"},
		{"history", func(c *Config) { c.Workspace.MaxHistory = -1 }, "workspace.max_history"},
		{"target", func(c *Config) { c.Analysis.Target = "es4" }, "analysis.target"},
		{"module", func(c *Config) { c.Analysis.Module = "requirejs" }, "analysis.module"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("err = %v, want validation failure", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Path != tt.path {
				t.Errorf("err = %v, want path %s", err, tt.path)
			}
		})
	}
}

func TestEngineTimeoutBelowRequestTimeout(t *testing.T) {
	tests := []struct {
		timeout string
		want    time.Duration
	}{
		{"10s", 8 * time.Second},
		{"500ms", 400 * time.Millisecond},
		{"bogus", 0},
	}
	for _, tt := range tests {
		w := WorkspaceConfig{RequestTimeout: tt.timeout}
		got := w.EngineTimeout()
		if got != tt.want {
			t.Errorf("EngineTimeout(%s) = %v, want %v", tt.timeout, got, tt.want)
		}
		if got > 0 && got >= w.Timeout() {
			t.Errorf("EngineTimeout(%s) = %v, not below %v", tt.timeout, got, w.Timeout())
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analysis.Lib = []string{"es5"}
	c := cfg.Clone()
	c.Analysis.Lib[0] = "dom"
	if cfg.Analysis.Lib[0] != "es5" {
		t.Error("Clone shares the lib slice")
	}
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "[analysis]\ntarget = \"es5\"\n")
	cfg, err := load(path, noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, cfg, func(_, updated *Config) { changes <- updated }, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	writeConfig(t, dir, "[analysis]\ntarget = \"es2020\"\n")
	select {
	case updated := <-changes:
		if updated.Analysis.Target != "es2020" {
			t.Errorf("target = %q", updated.Analysis.Target)
		}
		if w.Current() != updated {
			t.Error("Current not updated")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "")
	called := make(chan struct{}, 1)
	w, err := NewWatcher(path, DefaultConfig(), func(_, _ *Config) { called <- struct{}{} }, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "other.toml"), []byte("[analysis]\ntarget = \"es2020\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-called:
		t.Error("change handler ran for another file")
	case <-time.After(200 * time.Millisecond):
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
