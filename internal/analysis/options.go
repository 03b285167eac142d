package analysis

import "slices"

// Options configures analysis. The worker holds one Options value for the
// whole workspace; updates replace it wholesale.
type Options struct {
	// Target is the language level emitted output is written for.
	Target string `json:"target" toml:"target" yaml:"target"`

	// Module is the module system named in emitted output.
	Module string `json:"module" toml:"module" yaml:"module"`

	// NoImplicitAny reports parameters declared without a type.
	NoImplicitAny bool `json:"noImplicitAny" toml:"no_implicit_any" yaml:"noImplicitAny"`

	// RemoveComments drops comments from emitted output.
	RemoveComments bool `json:"removeComments" toml:"remove_comments" yaml:"removeComments"`

	// Lib selects baseline libraries. Empty means every library the
	// baseline provides.
	Lib []string `json:"lib,omitempty" toml:"lib" yaml:"lib"`
}

// DefaultOptions returns the options used before any are set.
func DefaultOptions() Options {
	return Options{
		Target: "es5",
		Module: "none",
	}
}

// Clone returns a deep copy of the options.
func (o Options) Clone() Options {
	o.Lib = slices.Clone(o.Lib)
	return o
}

// Equal reports whether two option values are identical.
func (o Options) Equal(other Options) bool {
	return o.Target == other.Target &&
		o.Module == other.Module &&
		o.NoImplicitAny == other.NoImplicitAny &&
		o.RemoveComments == other.RemoveComments &&
		slices.Equal(o.Lib, other.Lib)
}

// UsesLib reports whether the named baseline library is enabled.
func (o Options) UsesLib(name string) bool {
	return len(o.Lib) == 0 || slices.Contains(o.Lib, name)
}
