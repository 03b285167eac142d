package app

import (
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	werrors "github.com/dshills/deuce/internal/errors"
	"github.com/dshills/deuce/internal/facade"
	"github.com/dshills/deuce/internal/position"
)

// Document is an open script together with the facade that keeps the
// workspace in step with it.
type Document struct {
	// Name is the script's file name in the workspace.
	Name string

	// Path is the file the document was read from, or "".
	Path string

	view *facade.Facade

	mu    sync.RWMutex
	text  string
	lines []string

	// version counts local changes.
	version atomic.Int64
}

// Text returns the document content.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// Line returns the row'th line, or "" past the end.
func (d *Document) Line(row int) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if row < 0 || row >= len(d.lines) {
		return ""
	}
	return d.lines[row]
}

// Lines returns a copy of the document's lines.
func (d *Document) Lines() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.lines...)
}

// Version returns the number of changes made since the document opened.
func (d *Document) Version() int64 {
	return d.version.Load()
}

// Facade returns the document's facade.
func (d *Document) Facade() *facade.Facade {
	return d.view
}

func (d *Document) set(text string) {
	d.text = text
	d.lines = position.SplitLines(text)
}

// Replace replaces the bytes [start,end) with text and sends the change
// to the workspace as a removal followed by an insertion.
func (d *Document) Replace(start, end int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.replace(start, end, text)
}

// ReplaceRange is Replace with row/column positions.
func (d *Document) ReplaceRange(r position.Range, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	start, err := position.ToOffset(d.lines, r.Start)
	if err != nil {
		return err
	}
	end, err := position.ToOffset(d.lines, r.End)
	if err != nil {
		return err
	}
	return d.replace(start, end, text)
}

func (d *Document) replace(start, end int, text string) error {
	if start < 0 || end < start || end > len(d.text) {
		return werrors.Newf(werrors.KindInvalidRange, "edit", "range [%d,%d) outside [0,%d]", start, end, len(d.text))
	}
	text = position.NormalizeNewlines(text)
	pos, err := position.ToPosition(d.lines, start)
	if err != nil {
		return err
	}

	if end > start {
		if err := d.view.Apply(d.lines, facade.RemoveText(pos, d.text[start:end])); err != nil {
			return err
		}
		d.set(d.text[:start] + d.text[end:])
	}
	if text != "" {
		if err := d.view.Apply(d.lines, facade.InsertText(pos, text)); err != nil {
			return err
		}
		d.set(d.text[:start] + text + d.text[start:])
	}
	d.version.Add(1)
	return nil
}

// SetText replaces the whole content, sending only the edits that differ.
func (d *Document) SetText(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	text = position.NormalizeNewlines(text)
	if _, err := d.view.SyncText(d.text, text); err != nil {
		return err
	}
	d.set(text)
	d.version.Add(1)
	return nil
}

// DocumentManager manages all open documents.
type DocumentManager struct {
	ws facade.Workspace

	mu        sync.RWMutex
	documents map[string]*Document
}

// NewDocumentManager creates a document manager whose documents sync
// with ws.
func NewDocumentManager(ws facade.Workspace) *DocumentManager {
	return &DocumentManager{
		ws:        ws,
		documents: make(map[string]*Document),
	}
}

// Open adds a document named name with content. path records where the
// content came from and may be empty.
func (m *DocumentManager) Open(name, path, content string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[name]; ok {
		return nil, &OperationError{Op: "open", Target: name, Err: ErrDocumentAlreadyOpen}
	}

	doc := &Document{Name: name, Path: path, view: facade.New(m.ws)}
	normalized, err := doc.view.ChangeFile(name, content)
	if err != nil {
		return nil, &OperationError{Op: "open", Target: name, Err: err}
	}
	doc.set(normalized)
	m.documents[name] = doc
	return doc, nil
}

// Get returns the document named name.
func (m *DocumentManager) Get(name string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[name]
	if !ok {
		return nil, &OperationError{Op: "get", Target: name, Err: ErrDocumentNotFound}
	}
	return doc, nil
}

// FindByPath returns the document read from path.
func (m *DocumentManager) FindByPath(path string) (*Document, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.documents {
		if doc.Path == abs {
			return doc, true
		}
	}
	return nil, false
}

// Close removes a document and its script.
func (m *DocumentManager) Close(name string) error {
	m.mu.Lock()
	doc, ok := m.documents[name]
	delete(m.documents, name)
	m.mu.Unlock()
	if !ok {
		return &OperationError{Op: "close", Target: name, Err: ErrDocumentNotFound}
	}
	if err := m.ws.RemoveScript(doc.Name); err != nil {
		return &OperationError{Op: "close", Target: name, Err: err}
	}
	return nil
}

// Names returns the open document names in sorted order.
func (m *DocumentManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.documents))
	for name := range m.documents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of open documents.
func (m *DocumentManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.documents)
}
