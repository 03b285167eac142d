package treesitter

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/deuce/internal/analysis"
)

// TypeDefinitionAtPosition describes the declaration of the name under
// offset. It returns nil when there is no name there or it cannot be
// resolved.
func (e *Engine) TypeDefinitionAtPosition(ctx context.Context, fileName string, offset int) ([]analysis.DefinitionInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.scopeAt(ctx, "getTypeAtDocumentPosition", fileName, offset)
	if err != nil {
		return nil, err
	}

	n := nodeAt(s.root, offset)
	switch n.Type() {
	case "identifier", "property_identifier", "type_identifier",
		"shorthand_property_identifier", "shorthand_property_identifier_pattern":
	default:
		return nil, nil
	}
	name := n.Content(s.src)
	start := int(n.StartByte())

	// The name may be a declaration itself.
	for _, sym := range s.symbols[fileName] {
		if sym.Start == start && sym.Name == name {
			return []analysis.DefinitionInfo{definition(located{sym, fileName})}, nil
		}
	}

	if n.Type() == "property_identifier" {
		p := n.Parent()
		if p == nil || p.Type() != "member_expression" {
			return nil, nil
		}
		obj := p.ChildByFieldName("object")
		if obj == nil {
			return nil, nil
		}
		chain := receiverChain(append([]byte(obj.Content(s.src)), '.'), int(obj.EndByte()-obj.StartByte())+1)
		owner, _ := s.resolve(chain)
		if owner == "" {
			return nil, nil
		}
		if m, ok := s.member(owner, name); ok {
			return []analysis.DefinitionInfo{definition(m)}, nil
		}
		return nil, nil
	}

	if sym, ok := s.lookup(name); ok {
		return []analysis.DefinitionInfo{definition(sym)}, nil
	}
	if g, ok := s.baseline.Lookup(name, s.opts); ok {
		return []analysis.DefinitionInfo{{
			Kind:           g.Kind,
			Name:           g.Name,
			FullSymbolName: g.Name,
			Description:    fmt.Sprintf("(%s) %s: %s", g.Kind, g.Name, g.Type),
			DocComment:     g.Doc,
		}}, nil
	}
	return nil, nil
}

func definition(sym located) analysis.DefinitionInfo {
	full := sym.Name
	if sym.Member {
		full = sym.Container + "." + sym.Name
	}
	return analysis.DefinitionInfo{
		FileName:       sym.fileName,
		Kind:           sym.Kind,
		Name:           sym.Name,
		ContainerName:  sym.Container,
		FullSymbolName: full,
		MinChar:        sym.Start,
		LimChar:        sym.End,
		Description:    describe(sym.symbol),
		DocComment:     sym.Doc,
	}
}

// describe renders a one-line description of a declaration.
func describe(s symbol) string {
	typed := func(prefix string) string {
		if s.TypeName == "" {
			return prefix
		}
		return prefix + ": " + s.TypeName
	}
	switch s.Kind {
	case analysis.KindFunction:
		return "function " + s.Name + s.Signature
	case analysis.KindMethod:
		return "(method) " + s.Container + "." + s.Name + s.Signature
	case analysis.KindProperty:
		return typed("(property) " + s.Container + "." + s.Name)
	case analysis.KindClass:
		if s.Extends != "" {
			return "class " + s.Name + " extends " + s.Extends
		}
		return "class " + s.Name
	case analysis.KindInterface:
		return "interface " + s.Name
	case analysis.KindType:
		return "type " + s.Name + s.Signature
	case analysis.KindEnum:
		return "enum " + s.Name
	case analysis.KindModule:
		return "namespace " + s.Name
	}
	return typed("(" + strings.TrimSpace(s.Kind) + ") " + s.Name)
}
