// Package analysis defines the contract between the workspace and the
// analysis engine that produces diagnostics, completions, type information
// and emitted output.
//
// The workspace implements Host; engines implement Engine. Engines are
// created by an EngineFactory once the worker has loaded the baseline
// environment through a BaselineLoader.
package analysis

import (
	"context"

	"github.com/dshills/deuce/internal/mirror"
)

// Host is the read-only view of the workspace an engine analyzes.
type Host interface {
	// ScriptFileNames returns the names of all open scripts, sorted.
	ScriptFileNames() []string

	// ScriptVersion returns the current version of a script.
	ScriptVersion(fileName string) (int, error)

	// ScriptSnapshot returns an immutable copy of a script's text.
	ScriptSnapshot(fileName string) (mirror.Snapshot, error)

	// ChangeRangeSince returns the coalesced edit since oldVersion. The
	// boolean is false when nothing changed.
	ChangeRangeSince(fileName string, oldVersion int) (mirror.ChangeRange, bool, error)

	// AnalysisOptions returns the current analysis options.
	AnalysisOptions() Options
}

// Engine answers queries about the scripts in a Host.
type Engine interface {
	// Name identifies the engine implementation.
	Name() string

	SyntacticDiagnostics(ctx context.Context, fileName string) ([]Diagnostic, error)
	SemanticDiagnostics(ctx context.Context, fileName string) ([]Diagnostic, error)
	CompletionsAtPosition(ctx context.Context, fileName string, offset int, memberMode bool) (*CompletionInfo, error)
	TypeDefinitionAtPosition(ctx context.Context, fileName string, offset int) ([]DefinitionInfo, error)
	EmitOutput(ctx context.Context, fileName string) (*EmitOutput, error)
}

// EngineFactory builds an engine over a host once the baseline is loaded.
type EngineFactory func(host Host, baseline *Baseline) (Engine, error)

// Closer is implemented by engines that hold resources.
type Closer interface {
	Close() error
}

// Diagnostic is one error reported for a script.
type Diagnostic struct {
	Message  string   `json:"message"`
	Start    int      `json:"start"`
	Length   int      `json:"length"`
	Category Category `json:"category,omitempty"`
	Code     int      `json:"code,omitempty"`
}

// Category is the severity of a diagnostic.
type Category string

const (
	CategoryError      Category = "error"
	CategoryWarning    Category = "warning"
	CategorySuggestion Category = "suggestion"
)

// CompletionInfo is the result of a completion query.
type CompletionInfo struct {
	IsMemberCompletion bool              `json:"isMemberCompletion"`
	Entries            []CompletionEntry `json:"entries"`
}

// CompletionEntry is one completion candidate.
type CompletionEntry struct {
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	KindModifiers string `json:"kindModifiers,omitempty"`
	SortText      string `json:"sortText,omitempty"`
}

// Symbol kinds reported in completion entries and definitions.
const (
	KindKeyword   = "keyword"
	KindVariable  = "var"
	KindLet       = "let"
	KindConst     = "const"
	KindFunction  = "function"
	KindClass     = "class"
	KindInterface = "interface"
	KindType      = "type"
	KindParameter = "parameter"
	KindProperty  = "property"
	KindMethod    = "method"
	KindModule    = "module"
	KindEnum      = "enum"
	KindAlias     = "alias"
)

// DefinitionInfo describes the declaration found at a position.
type DefinitionInfo struct {
	FileName       string `json:"fileName"`
	Kind           string `json:"kind"`
	Name           string `json:"name"`
	ContainerName  string `json:"containerName,omitempty"`
	FullSymbolName string `json:"fullSymbolName"`
	MinChar        int    `json:"minChar"`
	LimChar        int    `json:"limChar"`
	Description    string `json:"description,omitempty"`
	DocComment     string `json:"docComment,omitempty"`
}

// EmitOutput is the result of the emit step for one script.
type EmitOutput struct {
	OutputFiles []OutputFile `json:"outputFiles"`
	EmitSkipped bool         `json:"emitSkipped"`
}

// OutputFile is one emitted artifact.
type OutputFile struct {
	Name               string `json:"name"`
	WriteByteOrderMark bool   `json:"writeByteOrderMark"`
	Text               string `json:"text"`
}
