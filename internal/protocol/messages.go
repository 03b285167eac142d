package protocol

import (
	"encoding/json"

	"github.com/dshills/deuce/internal/analysis"
	werrors "github.com/dshills/deuce/internal/errors"
	"github.com/dshills/deuce/internal/position"
)

// ErrorPayload is an error as it crosses the channel.
type ErrorPayload struct {
	Kind    werrors.Kind `json:"kind"`
	Message string       `json:"message"`
}

// NewErrorPayload classifies err for transmission. A nil error yields nil.
func NewErrorPayload(err error) *ErrorPayload {
	if err == nil {
		return nil
	}
	e := werrors.Classify("", err)
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return &ErrorPayload{Kind: e.Kind, Message: msg}
}

// Err rebuilds the error on the receiving side. Unknown kinds are reported
// as protocol errors.
func (p *ErrorPayload) Err(op string) error {
	if p == nil {
		return nil
	}
	kind := p.Kind
	if !kind.Valid() {
		return werrors.Newf(werrors.KindProtocol, op, "unknown error kind %q: %s", p.Kind, p.Message)
	}
	return werrors.New(kind, op, p.Message)
}

// Request is the header shared by every query.
type Request struct {
	CorrelationID int64 `json:"correlationId"`
}

// Reply is the header shared by every response. Err is set on failure.
type Reply struct {
	CorrelationID int64         `json:"correlationId"`
	Err           *ErrorPayload `json:"err,omitempty"`
}

// InitAfter reports that the worker is ready.
type InitAfter struct {
	Engine   string   `json:"engine"`
	Baseline string   `json:"baseline"`
	Libs     []string `json:"libs,omitempty"`
}

// InitFail reports that the worker could not initialize.
type InitFail struct {
	Reason string `json:"reason"`
}

// EnsureScript opens or replaces a script.
type EnsureScript struct {
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}

// EditScript replaces a byte range of a script.
type EditScript struct {
	FileName string `json:"fileName"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Text     string `json:"text"`
}

// RemoveScript closes a script.
type RemoveScript struct {
	FileName string `json:"fileName"`
}

// SetAnalysisOptions replaces the analysis options.
type SetAnalysisOptions struct {
	Options analysis.Options `json:"options"`
}

// CommandFailed reports a command the worker could not apply.
type CommandFailed struct {
	Command  Kind          `json:"command"`
	FileName string        `json:"fileName,omitempty"`
	Err      *ErrorPayload `json:"err"`
}

// GetFileNames asks for the open file names.
type GetFileNames struct {
	Request
}

// FileNames answers GetFileNames.
type FileNames struct {
	Reply
	Names []string `json:"names"`
}

// GetDiagnostics asks for the syntax or semantic errors of a file.
type GetDiagnostics struct {
	Request
	FileName string `json:"fileName"`
}

// Diagnostics answers GetDiagnostics.
type Diagnostics struct {
	Reply
	Errors []analysis.Diagnostic `json:"errors"`
}

// GetCompletionsAtPosition asks for completions at a byte offset. Position
// is kept raw so the worker can reject values that are not offsets.
type GetCompletionsAtPosition struct {
	Request
	FileName   string          `json:"fileName"`
	Position   json.RawMessage `json:"position"`
	MemberMode bool            `json:"memberMode"`
}

// Completions answers GetCompletionsAtPosition.
type Completions struct {
	Reply
	Completions *analysis.CompletionInfo `json:"completions,omitempty"`
}

// GetTypeAtDocumentPosition asks for the declaration at a row and column.
type GetTypeAtDocumentPosition struct {
	Request
	FileName         string            `json:"fileName"`
	DocumentPosition position.Position `json:"documentPosition"`
}

// TypeAtDocumentPosition answers GetTypeAtDocumentPosition. Results is nil
// when nothing was found.
type TypeAtDocumentPosition struct {
	Reply
	Results *analysis.DefinitionInfo `json:"results,omitempty"`
}

// GetOutputFiles asks for the emitted output of a file.
type GetOutputFiles struct {
	Request
	FileName string `json:"fileName"`
}

// OutputFiles answers GetOutputFiles.
type OutputFiles struct {
	Reply
	Results []analysis.OutputFile `json:"results,omitempty"`
}

// GetScriptSnapshot asks for the worker's copy of a script.
type GetScriptSnapshot struct {
	Request
	FileName string `json:"fileName"`
}

// ScriptSnapshot answers GetScriptSnapshot.
type ScriptSnapshot struct {
	Reply
	FileName string `json:"fileName,omitempty"`
	Version  int    `json:"version,omitempty"`
	Content  string `json:"content,omitempty"`
}
