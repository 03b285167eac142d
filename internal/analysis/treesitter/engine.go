// Package treesitter implements an analysis engine on top of the
// tree-sitter TypeScript grammar.
//
// Each script is parsed once and then reparsed incrementally: when the host
// reports a newer version, the engine asks for the coalesced change range
// since the cached version, edits the old tree and lets tree-sitter reuse
// the unchanged subtrees.
package treesitter

import (
	"bytes"
	"context"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/tliron/commonlog"

	"github.com/dshills/deuce/internal/analysis"
	werrors "github.com/dshills/deuce/internal/errors"
)

// Name identifies the engine.
const Name = "tree-sitter"

// Stats counts parses since the engine was created.
type Stats struct {
	Full        int
	Incremental int
}

type parsedFile struct {
	version int
	content []byte
	tree    *sitter.Tree
	symbols []symbol
}

// Engine answers analysis queries by parsing scripts with tree-sitter.
type Engine struct {
	host     analysis.Host
	baseline *analysis.Baseline
	log      commonlog.Logger

	mu     sync.Mutex
	parser *sitter.Parser
	files  map[string]*parsedFile
	stats  Stats
}

// New is an analysis.EngineFactory.
func New(host analysis.Host, baseline *analysis.Baseline) (analysis.Engine, error) {
	return NewEngine(host, baseline), nil
}

// NewEngine creates an engine over host.
func NewEngine(host analysis.Host, baseline *analysis.Baseline) *Engine {
	parser := sitter.NewParser()
	parser.SetLanguage(typescript.GetLanguage())
	return &Engine{
		host:     host,
		baseline: baseline,
		log:      commonlog.GetLogger("deuce.treesitter"),
		parser:   parser,
		files:    make(map[string]*parsedFile),
	}
}

// Name implements analysis.Engine.
func (e *Engine) Name() string {
	return Name
}

// Stats returns the parse counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Close releases the parser and every cached tree.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, f := range e.files {
		f.tree.Close()
		delete(e.files, name)
	}
	if e.parser != nil {
		e.parser.Close()
		e.parser = nil
	}
	return nil
}

// file returns the parse of fileName at its current version. The caller
// holds e.mu.
func (e *Engine) file(ctx context.Context, fileName string) (*parsedFile, error) {
	if e.parser == nil {
		return nil, werrors.New(werrors.KindEngine, "parse", "engine closed")
	}
	snap, err := e.host.ScriptSnapshot(fileName)
	if err != nil {
		return nil, err
	}
	cached, ok := e.files[fileName]
	if ok && cached.version == snap.Version() {
		return cached, nil
	}

	content := []byte(snap.Text())
	var tree *sitter.Tree
	if ok {
		tree = e.reparse(ctx, fileName, cached, content)
	}
	if tree == nil {
		tree, err = e.parser.ParseCtx(ctx, nil, content)
		if err != nil {
			return nil, werrors.Wrap(werrors.KindEngine, "parse", err)
		}
		e.stats.Full++
	}
	if ok && cached.tree != tree {
		cached.tree.Close()
	}

	f := &parsedFile{version: snap.Version(), content: content, tree: tree}
	f.symbols = collectSymbols(tree.RootNode(), content)
	e.files[fileName] = f
	return f, nil
}

// reparse edits the cached tree by the change since its version and
// reparses incrementally. It returns nil when a full parse is needed.
func (e *Engine) reparse(ctx context.Context, fileName string, cached *parsedFile, content []byte) *sitter.Tree {
	change, changed, err := e.host.ChangeRangeSince(fileName, cached.version)
	if err != nil {
		if werrors.IsHistoryTruncated(err) {
			e.log.Debugf("%s: history truncated, full parse", fileName)
		} else {
			e.log.Debugf("%s: no change range: %v", fileName, err)
		}
		return nil
	}
	if !changed {
		return nil
	}

	start, oldEnd, newEnd := change.Span.Start, change.Span.End(), change.NewEnd()
	if oldEnd > len(cached.content) || newEnd > len(content) ||
		!bytes.Equal(cached.content[:start], content[:start]) {
		return nil
	}

	cached.tree.Edit(sitter.EditInput{
		StartIndex:  uint32(start),
		OldEndIndex: uint32(oldEnd),
		NewEndIndex: uint32(newEnd),
		StartPoint:  pointAt(cached.content, start),
		OldEndPoint: pointAt(cached.content, oldEnd),
		NewEndPoint: pointAt(content, newEnd),
	})
	tree, err := e.parser.ParseCtx(ctx, cached.tree, content)
	if err != nil {
		e.log.Warningf("%s: incremental parse: %v", fileName, err)
		return nil
	}
	e.stats.Incremental++
	return tree
}

// prune drops cached parses of scripts the host no longer has.
func (e *Engine) prune() []string {
	names := e.host.ScriptFileNames()
	open := make(map[string]bool, len(names))
	for _, name := range names {
		open[name] = true
	}
	for name, f := range e.files {
		if !open[name] {
			f.tree.Close()
			delete(e.files, name)
		}
	}
	return names
}

// allSymbols returns the top-level declarations of every script, the
// script fileName first.
func (e *Engine) allSymbols(ctx context.Context, fileName string) (map[string][]symbol, []string, error) {
	names := e.prune()
	order := []string{fileName}
	for _, name := range names {
		if name != fileName {
			order = append(order, name)
		}
	}
	out := make(map[string][]symbol, len(order))
	for _, name := range order {
		f, err := e.file(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		out[name] = f.symbols
	}
	return out, order, nil
}

func (e *Engine) checkOffset(op string, f *parsedFile, offset int) error {
	if offset < 0 || offset > len(f.content) {
		return werrors.Newf(werrors.KindInvalidRange, op, "offset %d outside [0,%d]", offset, len(f.content))
	}
	return nil
}

// pointAt converts a byte offset to a tree-sitter row/column point.
func pointAt(content []byte, offset int) sitter.Point {
	head := content[:offset]
	row := bytes.Count(head, []byte{'\n'})
	col := offset - (bytes.LastIndexByte(head, '\n') + 1)
	return sitter.Point{Row: uint32(row), Column: uint32(col)}
}

// nodeAt returns the smallest named node containing offset. An offset at
// the end of a node counts as inside it, so a cursor just after an
// identifier finds the identifier.
func nodeAt(root *sitter.Node, offset int) *sitter.Node {
	n := root
	for {
		var next *sitter.Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if int(child.StartByte()) <= offset && offset <= int(child.EndByte()) {
				next = child
				break
			}
		}
		if next == nil {
			return n
		}
		n = next
	}
}

func enclosing(n *sitter.Node, types ...string) *sitter.Node {
	for p := n.Parent(); p != nil; p = p.Parent() {
		for _, t := range types {
			if p.Type() == t {
				return p
			}
		}
	}
	return nil
}
