package treesitter

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/deuce/internal/analysis"
)

// edit replaces src[start:end] with text.
type edit struct {
	start, end int
	text       string
}

// EmitOutput erases the TypeScript-only syntax of a script and returns the
// remaining JavaScript. Declaration files emit nothing.
func (e *Engine) EmitOutput(ctx context.Context, fileName string) (*analysis.EmitOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := e.file(ctx, fileName)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(fileName, ".d.ts") {
		return &analysis.EmitOutput{OutputFiles: []analysis.OutputFile{}, EmitSkipped: true}, nil
	}

	opts := e.host.AnalysisOptions()
	em := &emitter{src: f.content, removeComments: opts.RemoveComments}
	em.walk(f.tree.RootNode())

	var b strings.Builder
	if !opts.RemoveComments {
		fmt.Fprintf(&b, "// target: %s, module: %s\n", opts.Target, opts.Module)
	}
	b.WriteString(em.apply())

	return &analysis.EmitOutput{
		OutputFiles: []analysis.OutputFile{{Name: outputName(fileName), Text: b.String()}},
	}, nil
}

func outputName(fileName string) string {
	ext := path.Ext(fileName)
	switch ext {
	case ".ts", ".tsx", ".mts", ".cts":
		return strings.TrimSuffix(fileName, ext) + ".js"
	}
	return fileName + ".js"
}

type emitter struct {
	src            []byte
	removeComments bool
	edits          []edit
}

func (em *emitter) remove(start, end int) {
	em.edits = append(em.edits, edit{start: start, end: end})
}

// removeNode deletes n together with the blanks that separate it from the
// preceding text.
func (em *emitter) removeNode(n *sitter.Node) {
	start := int(n.StartByte())
	for start > 0 && (em.src[start-1] == ' ' || em.src[start-1] == '\t') {
		start--
	}
	em.remove(start, int(n.EndByte()))
}

// removeWord deletes a modifier keyword and the blanks after it.
func (em *emitter) removeWord(n *sitter.Node) {
	end := int(n.EndByte())
	for end < len(em.src) && (em.src[end] == ' ' || em.src[end] == '\t') {
		end++
	}
	em.remove(int(n.StartByte()), end)
}

// removeStatement deletes n, and its whole line when nothing else is on
// it.
func (em *emitter) removeStatement(n *sitter.Node) {
	start, end := int(n.StartByte()), int(n.EndByte())
	ls := start
	for ls > 0 && (em.src[ls-1] == ' ' || em.src[ls-1] == '\t') {
		ls--
	}
	le := end
	for le < len(em.src) && (em.src[le] == ' ' || em.src[le] == '\t') {
		le++
	}
	if (ls == 0 || em.src[ls-1] == '\n') && (le == len(em.src) || em.src[le] == '\n') {
		if le < len(em.src) {
			le++
		}
		em.remove(ls, le)
		return
	}
	em.remove(start, end)
}

func (em *emitter) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "comment":
		if em.removeComments {
			em.removeStatement(n)
		}
		return
	case "type_annotation", "type_arguments", "type_parameters", "implements_clause":
		em.removeNode(n)
		return
	case "accessibility_modifier", "override_modifier":
		em.removeWord(n)
		return
	case "interface_declaration", "type_alias_declaration", "ambient_declaration",
		"function_signature", "abstract_method_signature", "index_signature", "method_signature":
		em.removeStatement(exported(n))
		return
	case "import_statement", "export_statement":
		// "import type" and "export type" declarations vanish entirely.
		if n.ChildCount() > 1 && n.Child(1).Type() == "type" {
			em.removeStatement(n)
			return
		}
	case "public_field_definition":
		if n.ChildByFieldName("value") == nil {
			em.removeStatement(n)
			return
		}
	case "enum_declaration":
		em.enum(n)
		return
	case "as_expression", "satisfies_expression":
		if n.NamedChildCount() > 0 {
			expr := n.NamedChild(0)
			em.remove(int(expr.EndByte()), int(n.EndByte()))
			em.walk(expr)
		}
		return
	case "non_null_expression":
		em.remove(int(n.EndByte())-1, int(n.EndByte()))
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.IsNamed() {
			em.walk(child)
			continue
		}
		switch child.Type() {
		case "?":
			switch n.Type() {
			case "optional_parameter", "public_field_definition", "method_definition":
				em.remove(int(child.StartByte()), int(child.EndByte()))
			}
		case "readonly", "declare", "abstract":
			em.removeWord(child)
		}
	}
}

// exported returns the export statement wrapping n, or n itself.
func exported(n *sitter.Node) *sitter.Node {
	if p := n.Parent(); p != nil && p.Type() == "export_statement" {
		return p
	}
	return n
}

// enum replaces an enum declaration with the object it denotes at run time.
func (em *emitter) enum(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return
	}
	name := nameNode.Content(em.src)

	var b strings.Builder
	fmt.Fprintf(&b, "var %s;\n(function (%s) {\n", name, name)
	next := 0
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		key := member
		var value *sitter.Node
		if member.Type() == "enum_assignment" {
			key = member.ChildByFieldName("name")
			value = member.ChildByFieldName("value")
		} else if member.Type() != "property_identifier" {
			continue
		}
		if key == nil {
			continue
		}
		label := strconv.Quote(strings.Trim(key.Content(em.src), `"'`))

		switch {
		case value == nil:
			fmt.Fprintf(&b, "    %s[%s[%s] = %d] = %s;\n", name, name, label, next, label)
			next++
		case value.Type() == "string":
			fmt.Fprintf(&b, "    %s[%s] = %s;\n", name, label, value.Content(em.src))
		default:
			text := value.Content(em.src)
			if v, err := strconv.Atoi(text); err == nil {
				next = v + 1
			}
			fmt.Fprintf(&b, "    %s[%s[%s] = %s] = %s;\n", name, name, label, text, label)
		}
	}
	fmt.Fprintf(&b, "})(%s || (%s = {}));", name, name)

	em.edits = append(em.edits, edit{start: int(n.StartByte()), end: int(n.EndByte()), text: b.String()})
}

// apply performs the collected edits. An edit overlapping an earlier one
// is dropped.
func (em *emitter) apply() string {
	sort.SliceStable(em.edits, func(i, j int) bool { return em.edits[i].start < em.edits[j].start })
	var b strings.Builder
	pos := 0
	for _, ed := range em.edits {
		if ed.start < pos {
			continue
		}
		b.Write(em.src[pos:ed.start])
		b.WriteString(ed.text)
		pos = ed.end
	}
	b.Write(em.src[pos:])
	return b.String()
}
