package treesitter

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/deuce/internal/analysis"
)

// Diagnostic codes.
const (
	CodeUnexpectedToken    = 1012
	CodeIdentifierExpected = 1003
	CodeTokenExpected      = 1005
	CodeCannotFindName     = 2304
	CodeImplicitAny        = 7006
)

// implicitNames resolve in every script.
var implicitNames = map[string]bool{
	"arguments": true,
	"undefined": true,
}

// SyntacticDiagnostics reports parse errors and missing tokens.
func (e *Engine) SyntacticDiagnostics(ctx context.Context, fileName string) ([]analysis.Diagnostic, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := e.file(ctx, fileName)
	if err != nil {
		return nil, err
	}
	var diags []analysis.Diagnostic
	walkAll(f.tree.RootNode(), func(n *sitter.Node) bool {
		switch {
		case n.Type() == "ERROR":
			diags = append(diags, analysis.Diagnostic{
				Message:  "Unexpected token.",
				Start:    int(n.StartByte()),
				Length:   int(n.EndByte() - n.StartByte()),
				Category: analysis.CategoryError,
				Code:     CodeUnexpectedToken,
			})
			return false
		case n.IsMissing():
			d := analysis.Diagnostic{
				Start:    int(n.StartByte()),
				Category: analysis.CategoryError,
			}
			if n.IsNamed() {
				d.Message = "Identifier expected."
				d.Code = CodeIdentifierExpected
			} else {
				d.Message = fmt.Sprintf("'%s' expected.", n.Type())
				d.Code = CodeTokenExpected
			}
			diags = append(diags, d)
			return false
		}
		return true
	})
	return diags, nil
}

// SemanticDiagnostics reports references to undeclared names and, with
// noImplicitAny, untyped parameters.
func (e *Engine) SemanticDiagnostics(ctx context.Context, fileName string) ([]analysis.Diagnostic, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	all, _, err := e.allSymbols(ctx, fileName)
	if err != nil {
		return nil, err
	}
	f := e.files[fileName]
	opts := e.host.AnalysisOptions()

	declared := make(map[string]bool)
	for _, syms := range all {
		for _, s := range syms {
			if !s.Member {
				declared[s.Name] = true
			}
		}
	}
	for _, g := range e.baseline.Globals(opts) {
		declared[g.Name] = true
	}

	var diags []analysis.Diagnostic
	walkAll(f.tree.RootNode(), func(n *sitter.Node) bool {
		switch n.Type() {
		case "ERROR":
			return false
		case "identifier", "shorthand_property_identifier":
			if isReference(n) {
				name := n.Content(f.content)
				if !declared[name] && !implicitNames[name] {
					diags = append(diags, analysis.Diagnostic{
						Message:  fmt.Sprintf("Cannot find name '%s'.", name),
						Start:    int(n.StartByte()),
						Length:   int(n.EndByte() - n.StartByte()),
						Category: analysis.CategoryError,
						Code:     CodeCannotFindName,
					})
				}
			}
		case "required_parameter", "optional_parameter":
			if opts.NoImplicitAny {
				if d, ok := implicitAny(n, f.content); ok {
					diags = append(diags, d)
				}
			}
		}
		return true
	})
	return diags, nil
}

// isReference reports whether an identifier node uses a name rather than
// naming an import binding.
func isReference(n *sitter.Node) bool {
	p := n.Parent()
	if p == nil {
		return true
	}
	switch p.Type() {
	case "import_specifier", "export_specifier", "namespace_import", "import_clause":
		return false
	}
	return true
}

func implicitAny(param *sitter.Node, src []byte) (analysis.Diagnostic, bool) {
	if param.ChildByFieldName("type") != nil || param.ChildByFieldName("value") != nil {
		return analysis.Diagnostic{}, false
	}
	pattern := param.ChildByFieldName("pattern")
	if pattern == nil || pattern.Type() != "identifier" {
		return analysis.Diagnostic{}, false
	}
	// Function expressions passed as arguments are typed by context.
	if params := param.Parent(); params != nil {
		if fn := params.Parent(); fn != nil && isFunction(fn) {
			if p := fn.Parent(); p != nil && p.Type() == "arguments" {
				return analysis.Diagnostic{}, false
			}
		}
	}
	name := pattern.Content(src)
	return analysis.Diagnostic{
		Message:  fmt.Sprintf("Parameter '%s' implicitly has an 'any' type.", name),
		Start:    int(pattern.StartByte()),
		Length:   len(name),
		Category: analysis.CategoryError,
		Code:     CodeImplicitAny,
	}, true
}

// walkAll visits n and its descendants, anonymous ones included, depth
// first. Returning false from visit skips the node's children.
func walkAll(n *sitter.Node, visit func(*sitter.Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walkAll(n.Child(i), visit)
	}
}
