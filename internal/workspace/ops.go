package workspace

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/dshills/deuce/internal/analysis"
	"github.com/dshills/deuce/internal/mirror"
	"github.com/dshills/deuce/internal/position"
	"github.com/dshills/deuce/internal/protocol"
)

// EnsureScript opens fileName with content, replacing it if already open.
func (c *Client) EnsureScript(fileName, content string) error {
	return c.send(protocol.KindEnsureScript, protocol.EnsureScript{FileName: fileName, Content: content})
}

// EditScript replaces the byte range [start,end) of fileName with text.
func (c *Client) EditScript(fileName string, start, end int, text string) error {
	return c.send(protocol.KindEditScript, protocol.EditScript{FileName: fileName, Start: start, End: end, Text: text})
}

// RemoveScript closes fileName.
func (c *Client) RemoveScript(fileName string) error {
	return c.send(protocol.KindRemoveScript, protocol.RemoveScript{FileName: fileName})
}

// SetAnalysisOptions replaces the worker's analysis options.
func (c *Client) SetAnalysisOptions(opts analysis.Options) error {
	return c.send(protocol.KindSetAnalysisOptions, protocol.SetAnalysisOptions{Options: opts})
}

// GetFileNames returns the open file names, sorted.
func (c *Client) GetFileNames(ctx context.Context) ([]string, error) {
	var resp protocol.FileNames
	err := c.Call(ctx, protocol.KindGetFileNames, func(id int64) any {
		return protocol.GetFileNames{Request: protocol.Request{CorrelationID: id}}
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Names, nil
}

// GetSyntaxErrors returns the syntax errors of fileName.
func (c *Client) GetSyntaxErrors(ctx context.Context, fileName string) ([]analysis.Diagnostic, error) {
	return c.diagnostics(ctx, protocol.KindGetSyntaxErrors, fileName)
}

// GetSemanticErrors returns the semantic errors of fileName.
func (c *Client) GetSemanticErrors(ctx context.Context, fileName string) ([]analysis.Diagnostic, error) {
	return c.diagnostics(ctx, protocol.KindGetSemanticErrors, fileName)
}

func (c *Client) diagnostics(ctx context.Context, kind protocol.Kind, fileName string) ([]analysis.Diagnostic, error) {
	var resp protocol.Diagnostics
	err := c.Call(ctx, kind, func(id int64) any {
		return protocol.GetDiagnostics{Request: protocol.Request{CorrelationID: id}, FileName: fileName}
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Errors, nil
}

// GetCompletionsAtPosition returns completion candidates at a byte offset.
func (c *Client) GetCompletionsAtPosition(ctx context.Context, fileName string, offset int, memberMode bool) (*analysis.CompletionInfo, error) {
	var resp protocol.Completions
	err := c.Call(ctx, protocol.KindGetCompletionsAtPosition, func(id int64) any {
		return protocol.GetCompletionsAtPosition{
			Request:    protocol.Request{CorrelationID: id},
			FileName:   fileName,
			Position:   json.RawMessage(strconv.Itoa(offset)),
			MemberMode: memberMode,
		}
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Completions == nil {
		return &analysis.CompletionInfo{IsMemberCompletion: memberMode}, nil
	}
	return resp.Completions, nil
}

// GetTypeAtDocumentPosition returns the declaration at pos, or nil when
// there is none.
func (c *Client) GetTypeAtDocumentPosition(ctx context.Context, fileName string, pos position.Position) (*analysis.DefinitionInfo, error) {
	var resp protocol.TypeAtDocumentPosition
	err := c.Call(ctx, protocol.KindGetTypeAtDocumentPosition, func(id int64) any {
		return protocol.GetTypeAtDocumentPosition{
			Request:          protocol.Request{CorrelationID: id},
			FileName:         fileName,
			DocumentPosition: pos,
		}
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GetOutputFiles returns the emitted output of fileName.
func (c *Client) GetOutputFiles(ctx context.Context, fileName string) ([]analysis.OutputFile, error) {
	var resp protocol.OutputFiles
	err := c.Call(ctx, protocol.KindGetOutputFiles, func(id int64) any {
		return protocol.GetOutputFiles{Request: protocol.Request{CorrelationID: id}, FileName: fileName}
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GetScriptSnapshot returns the worker's current copy of fileName.
func (c *Client) GetScriptSnapshot(ctx context.Context, fileName string) (mirror.Snapshot, error) {
	var resp protocol.ScriptSnapshot
	err := c.Call(ctx, protocol.KindGetScriptSnapshot, func(id int64) any {
		return protocol.GetScriptSnapshot{Request: protocol.Request{CorrelationID: id}, FileName: fileName}
	}, &resp)
	if err != nil {
		return mirror.Snapshot{}, err
	}
	return mirror.NewSnapshot(resp.FileName, resp.Version, resp.Content), nil
}
