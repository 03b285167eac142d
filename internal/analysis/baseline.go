package analysis

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed baseline.yaml
var defaultBaseline []byte

// Baseline is the environment every script is analyzed against: the
// global declarations of the standard libraries.
type Baseline struct {
	Name string `yaml:"name"`
	Libs []Lib  `yaml:"libs"`
}

// Lib is one named library of global declarations.
type Lib struct {
	Name    string   `yaml:"name"`
	Globals []Global `yaml:"globals"`
}

// Global is one declaration provided by a library.
type Global struct {
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"`
	Type    string   `yaml:"type,omitempty"`
	Doc     string   `yaml:"doc,omitempty"`
	Members []string `yaml:"members,omitempty"`
}

// Globals returns the declarations of every library enabled by opts,
// sorted by name. Later libraries win on duplicate names.
func (b *Baseline) Globals(opts Options) []Global {
	if b == nil {
		return nil
	}
	byName := make(map[string]Global)
	for _, lib := range b.Libs {
		if !opts.UsesLib(lib.Name) {
			continue
		}
		for _, g := range lib.Globals {
			byName[g.Name] = g
		}
	}
	out := make([]Global, 0, len(byName))
	for _, g := range byName {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds a global by name among the libraries enabled by opts.
func (b *Baseline) Lookup(name string, opts Options) (Global, bool) {
	if b == nil {
		return Global{}, false
	}
	var found Global
	ok := false
	for _, lib := range b.Libs {
		if !opts.UsesLib(lib.Name) {
			continue
		}
		for _, g := range lib.Globals {
			if g.Name == name {
				found, ok = g, true
			}
		}
	}
	return found, ok
}

// LibNames returns the names of all libraries in the baseline.
func (b *Baseline) LibNames() []string {
	if b == nil {
		return nil
	}
	names := make([]string, len(b.Libs))
	for i, lib := range b.Libs {
		names[i] = lib.Name
	}
	return names
}

// ParseBaseline decodes a YAML baseline manifest.
func ParseBaseline(data []byte) (*Baseline, error) {
	var b Baseline
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse baseline: %w", err)
	}
	if b.Name == "" {
		return nil, fmt.Errorf("parse baseline: missing name")
	}
	for i, lib := range b.Libs {
		if lib.Name == "" {
			return nil, fmt.Errorf("parse baseline: lib %d has no name", i)
		}
	}
	return &b, nil
}

// BaselineLoader loads the baseline environment. Loading happens once, while
// the worker is initializing.
type BaselineLoader interface {
	LoadBaseline(ctx context.Context) (*Baseline, error)
}

// BaselineLoaderFunc adapts a function to BaselineLoader.
type BaselineLoaderFunc func(ctx context.Context) (*Baseline, error)

// LoadBaseline calls f.
func (f BaselineLoaderFunc) LoadBaseline(ctx context.Context) (*Baseline, error) {
	return f(ctx)
}

// DefaultBaselineLoader returns the loader for the built-in baseline.
func DefaultBaselineLoader() BaselineLoader {
	return BaselineLoaderFunc(func(ctx context.Context) (*Baseline, error) {
		return ParseBaseline(defaultBaseline)
	})
}

// FileBaselineLoader loads a baseline manifest from a YAML file.
type FileBaselineLoader struct {
	Path string
}

// LoadBaseline reads and parses the file.
func (l FileBaselineLoader) LoadBaseline(ctx context.Context) (*Baseline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read baseline %s: %w", l.Path, err)
	}
	return ParseBaseline(data)
}
