package lsp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/dshills/deuce/internal/analysis"
	"github.com/dshills/deuce/internal/app"
	"github.com/dshills/deuce/internal/position"
)

func (s *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	name := s.track(params.TextDocument.URI)
	if doc, err := s.app.Documents().Get(name); err == nil {
		// Reopened without a close; adopt the client's text.
		if err := doc.SetText(params.TextDocument.Text); err != nil {
			return err
		}
	} else if _, err := s.app.Open(name, params.TextDocument.Text); err != nil {
		return err
	}
	s.publishDiagnostics(ctx, name)
	return nil
}

func (s *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	name := FileName(params.TextDocument.URI)
	doc, err := s.app.Documents().Get(name)
	if err != nil {
		return err
	}
	for _, raw := range params.ContentChanges {
		switch change := raw.(type) {
		case protocol.TextDocumentContentChangeEvent:
			if change.Range == nil {
				err = doc.SetText(change.Text)
				break
			}
			start, end := NewPositionConverter(doc.Text()).RangeToByteOffsets(*change.Range)
			err = doc.Replace(start, end, change.Text)
		case protocol.TextDocumentContentChangeEventWhole:
			err = doc.SetText(change.Text)
		default:
			err = fmt.Errorf("unexpected change event type %T", raw)
		}
		if err != nil {
			return err
		}
	}
	s.publishDiagnostics(ctx, name)
	return nil
}

func (s *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	name := FileName(params.TextDocument.URI)
	err := s.app.Close(name)
	if err != nil && !errors.Is(err, app.ErrDocumentNotFound) {
		return err
	}
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         s.uriOf(name),
		Diagnostics: []protocol.Diagnostic{},
	})
	s.untrack(name)
	return nil
}

// cursor converts an LSP position in doc to a row and byte column.
func cursor(doc *app.Document, pos protocol.Position) position.Position {
	row := int(pos.Line)
	return position.Position{Row: row, Column: utf16ToByteOffset(doc.Line(row), int(pos.Character))}
}

func (s *Server) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	name := FileName(params.TextDocument.URI)
	doc, err := s.app.Documents().Get(name)
	if err != nil {
		return nil, err
	}
	res, err := s.app.Complete(context.Background(), name, cursor(doc, params.Position))
	if err != nil {
		return nil, err
	}

	entries := res.Filtered()
	items := make([]protocol.CompletionItem, 0, len(entries))
	for _, e := range entries {
		kind := completionKind(e.Kind)
		item := protocol.CompletionItem{Label: e.Name, Kind: &kind}
		if e.SortText != "" {
			sortText := e.SortText + e.Name
			item.SortText = &sortText
		}
		if e.KindModifiers != "" {
			detail := e.KindModifiers
			item.Detail = &detail
		}
		items = append(items, item)
	}
	return protocol.CompletionList{IsIncomplete: false, Items: items}, nil
}

func completionKind(kind string) protocol.CompletionItemKind {
	switch kind {
	case analysis.KindKeyword:
		return protocol.CompletionItemKindKeyword
	case analysis.KindFunction:
		return protocol.CompletionItemKindFunction
	case analysis.KindMethod:
		return protocol.CompletionItemKindMethod
	case analysis.KindClass:
		return protocol.CompletionItemKindClass
	case analysis.KindInterface:
		return protocol.CompletionItemKindInterface
	case analysis.KindProperty:
		return protocol.CompletionItemKindProperty
	case analysis.KindModule, analysis.KindAlias:
		return protocol.CompletionItemKindModule
	case analysis.KindEnum:
		return protocol.CompletionItemKindEnum
	case analysis.KindType:
		return protocol.CompletionItemKindTypeParameter
	case analysis.KindConst:
		return protocol.CompletionItemKindConstant
	}
	return protocol.CompletionItemKindVariable
}

func (s *Server) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	name := FileName(params.TextDocument.URI)
	doc, err := s.app.Documents().Get(name)
	if err != nil {
		return nil, err
	}
	def, err := s.app.TypeAt(context.Background(), name, cursor(doc, params.Position))
	if err != nil || def == nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("```typescript\n")
	b.WriteString(def.Description)
	b.WriteString("\n```")
	if def.DocComment != "" {
		b.WriteString("\n\n")
		b.WriteString(def.DocComment)
	}
	hover := &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: b.String()},
	}
	if def.FileName == name {
		r := NewPositionConverter(doc.Text()).ByteOffsetsToRange(def.MinChar, def.LimChar)
		hover.Range = &r
	}
	return hover, nil
}

// publishDiagnostics sends the syntax and semantic errors of a document.
// Failures are logged; the client keeps its previous diagnostics.
func (s *Server) publishDiagnostics(ctx *glsp.Context, name string) {
	diags, err := s.diagnostics(context.Background(), name)
	if err != nil {
		s.log.Warningf("diagnostics for %s: %v", name, err)
		return
	}
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         s.uriOf(name),
		Diagnostics: diags,
	})
}

func (s *Server) diagnostics(ctx context.Context, name string) ([]protocol.Diagnostic, error) {
	doc, err := s.app.Documents().Get(name)
	if err != nil {
		return nil, err
	}
	client := s.app.Client()
	syntax, err := client.GetSyntaxErrors(ctx, name)
	if err != nil {
		return nil, err
	}
	semantic, err := client.GetSemanticErrors(ctx, name)
	if err != nil {
		return nil, err
	}

	conv := NewPositionConverter(doc.Text())
	source := Name
	out := make([]protocol.Diagnostic, 0, len(syntax)+len(semantic))
	for _, d := range append(syntax, semantic...) {
		severity := diagnosticSeverity(d.Category)
		diag := protocol.Diagnostic{
			Range:    conv.ByteOffsetsToRange(d.Start, d.Start+d.Length),
			Severity: &severity,
			Source:   &source,
			Message:  d.Message,
		}
		if d.Code != 0 {
			diag.Code = &protocol.IntegerOrString{Value: protocol.Integer(d.Code)}
		}
		out = append(out, diag)
	}
	return out, nil
}

func diagnosticSeverity(c analysis.Category) protocol.DiagnosticSeverity {
	switch c {
	case analysis.CategoryWarning:
		return protocol.DiagnosticSeverityWarning
	case analysis.CategorySuggestion:
		return protocol.DiagnosticSeverityHint
	}
	return protocol.DiagnosticSeverityError
}
