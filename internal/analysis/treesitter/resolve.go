package treesitter

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/deuce/internal/analysis"
)

var receiverPattern = regexp.MustCompile(`(?:this|[A-Za-z_$][\w$]*)(?:\s*\.\s*[A-Za-z_$][\w$]*)*\s*$`)

// maxExtends bounds the walk up a class hierarchy.
const maxExtends = 16

// scope is the symbol table of every open script as seen from one
// position in one script.
type scope struct {
	fileName string
	offset   int
	order    []string
	symbols  map[string][]symbol
	root     *sitter.Node
	src      []byte
	baseline *analysis.Baseline
	opts     analysis.Options
}

type located struct {
	symbol
	fileName string
}

// lookup finds the declaration a name refers to: the innermost visible
// declaration in the current script, then script-level declarations of the
// other scripts.
func (s *scope) lookup(name string) (located, bool) {
	var best located
	found := false
	for _, sym := range s.symbols[s.fileName] {
		if sym.Name != name || !sym.VisibleAt(s.offset) {
			continue
		}
		if !found || sym.ScopeStart > best.ScopeStart || (best.ScopeEnd < 0 && sym.ScopeEnd >= 0) {
			best, found = located{sym, s.fileName}, true
		}
	}
	if found {
		return best, true
	}
	for _, file := range s.order[1:] {
		for _, sym := range s.symbols[file] {
			if sym.Name == name && sym.Global() {
				return located{sym, file}, true
			}
		}
	}
	return located{}, false
}

// members returns the member declarations of owner, following base
// classes.
func (s *scope) members(owner string) []located {
	var out []located
	seen := make(map[string]bool)
	for depth := 0; owner != "" && depth < maxExtends; depth++ {
		next := ""
		for _, file := range s.order {
			for _, sym := range s.symbols[file] {
				if sym.Member && sym.Container == owner && !seen[sym.Name] {
					seen[sym.Name] = true
					out = append(out, located{sym, file})
				}
				if !sym.Member && sym.Kind == analysis.KindClass && sym.Name == owner && sym.Extends != "" {
					next = sym.Extends
				}
			}
		}
		owner = next
	}
	return out
}

func (s *scope) member(owner, name string) (located, bool) {
	for _, m := range s.members(owner) {
		if m.Name == name {
			return m, true
		}
	}
	return located{}, false
}

func (s *scope) hasMembers(owner string) bool {
	for _, file := range s.order {
		for _, sym := range s.symbols[file] {
			if sym.Member && sym.Container == owner {
				return true
			}
		}
	}
	return false
}

// ownerOf returns the name whose members a value of sym has.
func (s *scope) ownerOf(sym symbol) string {
	switch sym.Kind {
	case analysis.KindClass, analysis.KindInterface, analysis.KindEnum, analysis.KindModule:
		return sym.Name
	}
	if sym.TypeName != "" {
		return bareType(sym.TypeName)
	}
	if sym.Member {
		return sym.Container + "." + sym.Name
	}
	return sym.Name
}

// resolve evaluates a receiver chain such as "this.config.server" to the
// owner of its members. When the chain ends in a baseline global, the
// global's member names are returned instead.
func (s *scope) resolve(chain []string) (string, []string) {
	if len(chain) == 0 {
		return "", nil
	}
	var owner string
	if chain[0] == "this" {
		if cls := enclosing(nodeAt(s.root, s.offset), "class_declaration", "abstract_class_declaration", "class"); cls != nil {
			if name := cls.ChildByFieldName("name"); name != nil {
				owner = name.Content(s.src)
			}
		}
	} else if sym, ok := s.lookup(chain[0]); ok {
		owner = s.ownerOf(sym.symbol)
	} else if g, ok := s.baseline.Lookup(chain[0], s.opts); ok && len(chain) == 1 {
		return "", g.Members
	}

	for _, seg := range chain[1:] {
		if owner == "" {
			return "", nil
		}
		m, ok := s.member(owner, seg)
		if !ok {
			return "", nil
		}
		owner = s.ownerOf(m.symbol)
	}
	if owner != "" && !s.hasMembers(owner) {
		// A declared type the scripts do not define may come from the
		// baseline, as in "let out: Console".
		for _, g := range s.baseline.Globals(s.opts) {
			if g.Type == owner {
				return "", g.Members
			}
		}
	}
	return owner, nil
}

// receiverChain returns the dotted expression ending just before the dot
// that precedes offset.
func receiverChain(src []byte, offset int) []string {
	if offset < 1 || offset > len(src) || src[offset-1] != '.' {
		return nil
	}
	m := receiverPattern.Find(src[:offset-1])
	if m == nil {
		return nil
	}
	parts := strings.Split(string(m), ".")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// bareType strips type arguments and array suffixes from a type name.
func bareType(t string) string {
	t = strings.TrimSpace(t)
	if i := strings.IndexAny(t, "<[ |&"); i >= 0 {
		t = t[:i]
	}
	return t
}
