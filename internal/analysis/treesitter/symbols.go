package treesitter

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/deuce/internal/analysis"
)

// symbol is one declaration found in a script.
type symbol struct {
	Name string
	Kind string

	// Container is the enclosing declaration. For members it names the
	// owner whose members they are: a class, interface, enum or an object
	// literal's variable path such as "config.server".
	Container string
	Member    bool

	// Start and End delimit the declared name.
	Start int
	End   int

	// TypeName is the declared or inferred type used to resolve member
	// access on the symbol.
	TypeName string
	// Extends names the base class of a class symbol.
	Extends string

	Signature string
	Doc       string

	// ScopeStart and ScopeEnd delimit the function, class or namespace the
	// symbol is visible in. ScopeEnd is -1 for script-level symbols.
	ScopeStart int
	ScopeEnd   int
}

// Global reports whether the symbol is visible from every script.
func (s symbol) Global() bool {
	return s.ScopeEnd < 0 && !s.Member
}

// VisibleAt reports whether the symbol is in scope at offset of its own
// script.
func (s symbol) VisibleAt(offset int) bool {
	if s.Member {
		return false
	}
	return s.ScopeEnd < 0 || (s.ScopeStart <= offset && offset <= s.ScopeEnd)
}

type collector struct {
	src     []byte
	symbols []symbol
	scope   [2]int
}

func collectSymbols(root *sitter.Node, src []byte) []symbol {
	c := &collector{src: src, scope: [2]int{0, -1}}
	c.walk(root, "")
	return c.symbols
}

func (c *collector) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(c.src)
}

func (c *collector) add(name *sitter.Node, s symbol) {
	if name == nil {
		return
	}
	s.Name = c.text(name)
	s.ScopeStart, s.ScopeEnd = c.scope[0], c.scope[1]
	s.Start = int(name.StartByte())
	s.End = int(name.EndByte())
	c.symbols = append(c.symbols, s)
}

func (c *collector) walk(n *sitter.Node, container string) {
	if n == nil || n.Type() == "ERROR" {
		return
	}
	inner := container

	switch n.Type() {
	case "variable_declarator":
		c.declarator(n, container)
	case "function_declaration", "generator_function_declaration", "function_signature":
		name := n.ChildByFieldName("name")
		c.add(name, symbol{
			Kind:      analysis.KindFunction,
			Container: container,
			TypeName:  typeText(c.text(n.ChildByFieldName("return_type"))),
			Signature: c.text(n.ChildByFieldName("parameters")) + returnSuffix(c.text(n.ChildByFieldName("return_type"))),
			Doc:       c.doc(n),
		})
		if name != nil {
			inner = c.text(name)
		}
	case "class_declaration", "abstract_class_declaration", "class":
		name := n.ChildByFieldName("name")
		if name == nil {
			break
		}
		c.add(name, symbol{
			Kind:      analysis.KindClass,
			Container: container,
			Extends:   c.baseClass(n),
			Doc:       c.doc(n),
		})
		c.classMembers(n.ChildByFieldName("body"), c.text(name))
		inner = c.text(name)
	case "interface_declaration":
		name := n.ChildByFieldName("name")
		c.add(name, symbol{Kind: analysis.KindInterface, Container: container, Doc: c.doc(n)})
		if name != nil {
			c.typeMembers(n.ChildByFieldName("body"), c.text(name))
		}
	case "type_alias_declaration":
		c.add(n.ChildByFieldName("name"), symbol{
			Kind:      analysis.KindType,
			Container: container,
			Signature: " = " + c.text(n.ChildByFieldName("value")),
			Doc:       c.doc(n),
		})
	case "enum_declaration":
		name := n.ChildByFieldName("name")
		c.add(name, symbol{Kind: analysis.KindEnum, Container: container, Doc: c.doc(n)})
		if name != nil {
			c.enumMembers(n.ChildByFieldName("body"), c.text(name))
		}
	case "internal_module", "module":
		name := n.ChildByFieldName("name")
		if name != nil && name.Type() == "identifier" {
			c.add(name, symbol{Kind: analysis.KindModule, Container: container, Doc: c.doc(n)})
			inner = c.text(name)
		}
	case "required_parameter", "optional_parameter":
		pattern := n.ChildByFieldName("pattern")
		for _, id := range c.patternNames(pattern) {
			c.add(id, symbol{
				Kind:      analysis.KindParameter,
				Container: container,
				TypeName:  typeText(c.text(n.ChildByFieldName("type"))),
			})
		}
	case "catch_clause":
		for _, id := range c.patternNames(n.ChildByFieldName("parameter")) {
			c.add(id, symbol{Kind: analysis.KindLet, Container: container})
		}
	case "for_in_statement":
		for _, id := range c.patternNames(n.ChildByFieldName("left")) {
			c.add(id, symbol{Kind: analysis.KindVariable, Container: container})
		}
	case "import_specifier":
		name := n.ChildByFieldName("alias")
		if name == nil {
			name = n.ChildByFieldName("name")
		}
		c.add(name, symbol{Kind: analysis.KindAlias, Container: container})
	case "namespace_import":
		c.add(firstNamed(n, "identifier"), symbol{Kind: analysis.KindAlias, Container: container})
	case "import_clause":
		c.add(firstNamed(n, "identifier"), symbol{Kind: analysis.KindAlias, Container: container})
	case "method_definition":
		if name := n.ChildByFieldName("name"); name != nil {
			inner = c.text(name)
		}
	}

	if scoped(n.Type()) {
		saved := c.scope
		c.scope = [2]int{int(n.StartByte()), int(n.EndByte())}
		defer func() { c.scope = saved }()
	}
	if n.Type() == "arrow_function" {
		if p := n.ChildByFieldName("parameter"); p != nil && p.Type() == "identifier" {
			c.add(p, symbol{Kind: analysis.KindParameter, Container: container})
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c.walk(n.NamedChild(i), inner)
	}
}

// scoped reports whether a node type opens a new scope for the names
// declared inside it.
func scoped(typ string) bool {
	switch typ {
	case "function_declaration", "generator_function_declaration", "function", "function_expression",
		"generator_function", "arrow_function", "method_definition",
		"class_declaration", "abstract_class_declaration", "class", "internal_module", "module":
		return true
	}
	return false
}

func (c *collector) declarator(n *sitter.Node, container string) {
	kind := analysis.KindVariable
	decl := n.Parent()
	if decl != nil && decl.Type() == "lexical_declaration" && decl.ChildCount() > 0 {
		switch decl.Child(0).Type() {
		case "let":
			kind = analysis.KindLet
		case "const":
			kind = analysis.KindConst
		}
	}

	name := n.ChildByFieldName("name")
	value := n.ChildByFieldName("value")
	if name == nil {
		return
	}
	if name.Type() != "identifier" {
		for _, id := range c.patternNames(name) {
			c.add(id, symbol{Kind: kind, Container: container})
		}
		return
	}

	s := symbol{
		Kind:      kind,
		Container: container,
		TypeName:  typeText(c.text(n.ChildByFieldName("type"))),
		Doc:       c.doc(decl),
	}
	if s.TypeName == "" {
		s.TypeName = c.inferType(value)
	}
	c.add(name, s)

	if value != nil && value.Type() == "object" {
		c.objectMembers(value, c.text(name))
	}
}

// patternNames returns the identifiers bound by a binding pattern.
func (c *collector) patternNames(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		return []*sitter.Node{n}
	case "assignment_pattern", "object_assignment_pattern":
		return c.patternNames(n.ChildByFieldName("left"))
	case "pair_pattern":
		return c.patternNames(n.ChildByFieldName("value"))
	case "object_pattern", "array_pattern", "rest_pattern":
		var out []*sitter.Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			out = append(out, c.patternNames(n.NamedChild(i))...)
		}
		return out
	}
	return nil
}

func (c *collector) inferType(value *sitter.Node) string {
	if value == nil {
		return ""
	}
	switch value.Type() {
	case "number":
		return "number"
	case "string", "template_string":
		return "string"
	case "true", "false":
		return "boolean"
	case "new_expression":
		ctor := value.ChildByFieldName("constructor")
		if ctor != nil && ctor.Type() == "identifier" {
			return c.text(ctor)
		}
	case "array":
		return "any[]"
	}
	return ""
}

func (c *collector) objectMembers(obj *sitter.Node, owner string) {
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		child := obj.NamedChild(i)
		switch child.Type() {
		case "pair":
			key := child.ChildByFieldName("key")
			value := child.ChildByFieldName("value")
			if key == nil || key.Type() == "computed_property_name" {
				continue
			}
			kind := analysis.KindProperty
			if value != nil && isFunction(value) {
				kind = analysis.KindMethod
			}
			c.add(key, symbol{
				Kind:      kind,
				Container: owner,
				Member:    true,
				TypeName:  c.inferType(value),
			})
			c.fixQuotedName()
			if value != nil && value.Type() == "object" {
				c.objectMembers(value, owner+"."+c.symbols[len(c.symbols)-1].Name)
			}
		case "method_definition":
			c.add(child.ChildByFieldName("name"), symbol{Kind: analysis.KindMethod, Container: owner, Member: true})
		case "shorthand_property_identifier":
			c.add(child, symbol{Kind: analysis.KindProperty, Container: owner, Member: true})
		}
	}
}

// fixQuotedName strips the quotes from the last symbol when its key was a
// string literal.
func (c *collector) fixQuotedName() {
	last := &c.symbols[len(c.symbols)-1]
	last.Name = strings.Trim(last.Name, `"'`)
}

func (c *collector) classMembers(body *sitter.Node, owner string) {
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		name := child.ChildByFieldName("name")
		switch child.Type() {
		case "method_definition", "method_signature", "abstract_method_signature":
			if c.text(name) == "constructor" {
				c.parameterProperties(child, owner)
				continue
			}
			c.add(name, symbol{
				Kind:      analysis.KindMethod,
				Container: owner,
				Member:    true,
				Signature: c.text(child.ChildByFieldName("parameters")) + returnSuffix(c.text(child.ChildByFieldName("return_type"))),
				Doc:       c.doc(child),
			})
		case "public_field_definition":
			t := typeText(c.text(child.ChildByFieldName("type")))
			if t == "" {
				t = c.inferType(child.ChildByFieldName("value"))
			}
			c.add(name, symbol{
				Kind:      analysis.KindProperty,
				Container: owner,
				Member:    true,
				TypeName:  t,
				Doc:       c.doc(child),
			})
		}
	}
}

// parameterProperties declares constructor parameters that carry an
// accessibility modifier as class properties.
func (c *collector) parameterProperties(ctor *sitter.Node, owner string) {
	params := ctor.ChildByFieldName("parameters")
	if params == nil {
		return
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if firstNamed(p, "accessibility_modifier") == nil {
			continue
		}
		pattern := p.ChildByFieldName("pattern")
		if pattern == nil || pattern.Type() != "identifier" {
			continue
		}
		c.add(pattern, symbol{
			Kind:      analysis.KindProperty,
			Container: owner,
			Member:    true,
			TypeName:  typeText(c.text(p.ChildByFieldName("type"))),
		})
	}
}

func (c *collector) typeMembers(body *sitter.Node, owner string) {
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		switch child.Type() {
		case "property_signature":
			c.add(child.ChildByFieldName("name"), symbol{
				Kind:      analysis.KindProperty,
				Container: owner,
				Member:    true,
				TypeName:  typeText(c.text(child.ChildByFieldName("type"))),
				Doc:       c.doc(child),
			})
		case "method_signature":
			c.add(child.ChildByFieldName("name"), symbol{
				Kind:      analysis.KindMethod,
				Container: owner,
				Member:    true,
				Signature: c.text(child.ChildByFieldName("parameters")) + returnSuffix(c.text(child.ChildByFieldName("return_type"))),
				Doc:       c.doc(child),
			})
		}
	}
}

func (c *collector) enumMembers(body *sitter.Node, owner string) {
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		name := child
		if child.Type() == "enum_assignment" {
			name = child.ChildByFieldName("name")
		} else if child.Type() != "property_identifier" {
			continue
		}
		c.add(name, symbol{Kind: analysis.KindProperty, Container: owner, Member: true, TypeName: owner})
	}
}

func (c *collector) baseClass(class *sitter.Node) string {
	for i := 0; i < int(class.NamedChildCount()); i++ {
		h := class.NamedChild(i)
		if h.Type() != "class_heritage" {
			continue
		}
		if ext := firstNamed(h, "extends_clause"); ext != nil {
			if v := ext.ChildByFieldName("value"); v != nil {
				return c.text(v)
			}
			if ext.NamedChildCount() > 0 {
				return c.text(ext.NamedChild(0))
			}
		}
	}
	return ""
}

// doc returns the comment immediately preceding a declaration.
func (c *collector) doc(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	if p := n.Parent(); p != nil && p.Type() == "export_statement" {
		n = p
	}
	prev := n.PrevSibling()
	if prev == nil || prev.Type() != "comment" {
		return ""
	}
	if n.StartPoint().Row-prev.EndPoint().Row > 1 {
		return ""
	}
	return cleanComment(c.text(prev))
}

func cleanComment(s string) string {
	if strings.HasPrefix(s, "//") {
		return strings.TrimSpace(strings.TrimPrefix(s, "//"))
	}
	s = strings.TrimPrefix(s, "/**")
	s = strings.TrimPrefix(s, "/*")
	s = strings.TrimSuffix(s, "*/")
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// typeText strips the leading colon of a type annotation.
func typeText(annotation string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(annotation), ":"))
}

func returnSuffix(annotation string) string {
	if t := typeText(annotation); t != "" {
		return ": " + t
	}
	return ""
}

func isFunction(n *sitter.Node) bool {
	switch n.Type() {
	case "function", "function_expression", "arrow_function", "generator_function":
		return true
	}
	return false
}

func firstNamed(n *sitter.Node, typ string) *sitter.Node {
	if n == nil {
		return nil
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == typ {
			return child
		}
	}
	return nil
}
