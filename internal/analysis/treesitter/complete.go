package treesitter

import (
	"context"

	"github.com/dshills/deuce/internal/analysis"
)

// Sort groups for identifier completions.
const (
	sortDeclared = "0"
	sortGlobal   = "1"
	sortKeyword  = "2"
)

var keywords = []string{
	"abstract", "any", "as", "boolean", "break", "case", "catch", "class", "const",
	"continue", "debugger", "declare", "default", "delete", "do", "else", "enum",
	"export", "extends", "false", "finally", "for", "from", "function", "if",
	"implements", "import", "in", "instanceof", "interface", "let", "module",
	"namespace", "new", "null", "number", "of", "private", "protected", "public",
	"readonly", "return", "static", "string", "super", "switch", "this", "throw",
	"true", "try", "type", "typeof", "var", "void", "while", "with", "yield",
}

// scopeAt builds the symbol scope at offset in fileName. The caller holds
// e.mu.
func (e *Engine) scopeAt(ctx context.Context, op, fileName string, offset int) (*scope, error) {
	all, order, err := e.allSymbols(ctx, fileName)
	if err != nil {
		return nil, err
	}
	f := e.files[fileName]
	if err := e.checkOffset(op, f, offset); err != nil {
		return nil, err
	}
	return &scope{
		fileName: fileName,
		offset:   offset,
		order:    order,
		symbols:  all,
		root:     f.tree.RootNode(),
		src:      f.content,
		baseline: e.baseline,
		opts:     e.host.AnalysisOptions(),
	}, nil
}

// CompletionsAtPosition lists the names available at offset. In member
// mode offset is just after a dot and the members of the expression before
// it are listed.
func (e *Engine) CompletionsAtPosition(ctx context.Context, fileName string, offset int, memberMode bool) (*analysis.CompletionInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.scopeAt(ctx, "getCompletionsAtPosition", fileName, offset)
	if err != nil {
		return nil, err
	}
	if memberMode {
		return &analysis.CompletionInfo{
			IsMemberCompletion: true,
			Entries:            s.memberEntries(),
		}, nil
	}
	return &analysis.CompletionInfo{Entries: s.identifierEntries()}, nil
}

func (s *scope) memberEntries() []analysis.CompletionEntry {
	owner, globals := s.resolve(receiverChain(s.src, s.offset))
	entries := []analysis.CompletionEntry{}
	for _, name := range globals {
		entries = append(entries, analysis.CompletionEntry{
			Name:     name,
			Kind:     analysis.KindProperty,
			SortText: sortDeclared,
		})
	}
	if owner == "" {
		return entries
	}
	for _, m := range s.members(owner) {
		entries = append(entries, analysis.CompletionEntry{
			Name:     m.Name,
			Kind:     m.Kind,
			SortText: sortDeclared,
		})
	}
	return entries
}

func (s *scope) identifierEntries() []analysis.CompletionEntry {
	seen := make(map[string]bool)
	entries := []analysis.CompletionEntry{}
	add := func(name, kind, sortText string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		entries = append(entries, analysis.CompletionEntry{Name: name, Kind: kind, SortText: sortText})
	}

	for _, sym := range s.symbols[s.fileName] {
		if sym.VisibleAt(s.offset) {
			add(sym.Name, sym.Kind, sortDeclared)
		}
	}
	for _, file := range s.order[1:] {
		for _, sym := range s.symbols[file] {
			if sym.Global() {
				add(sym.Name, sym.Kind, sortDeclared)
			}
		}
	}
	for _, g := range s.baseline.Globals(s.opts) {
		add(g.Name, g.Kind, sortGlobal)
	}
	for _, kw := range keywords {
		add(kw, analysis.KindKeyword, sortKeyword)
	}
	return entries
}
