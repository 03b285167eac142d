package facade

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/dshills/deuce/internal/analysis"
	werrors "github.com/dshills/deuce/internal/errors"
	"github.com/dshills/deuce/internal/mirror"
	"github.com/dshills/deuce/internal/position"
)

// mirrorWorkspace applies commands to local mirrors.
type mirrorWorkspace struct {
	mu       sync.Mutex
	scripts  map[string]*mirror.Mirror
	removed  []string
	edits    int
	syntax   []analysis.Diagnostic
	semantic []analysis.Diagnostic
	err      error
}

func newMirrorWorkspace() *mirrorWorkspace {
	return &mirrorWorkspace{scripts: make(map[string]*mirror.Mirror)}
}

func (w *mirrorWorkspace) EnsureScript(fileName, content string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scripts[fileName] = mirror.New(fileName, content)
	return nil
}

func (w *mirrorWorkspace) EditScript(fileName string, start, end int, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.scripts[fileName]
	if !ok {
		return werrors.New(werrors.KindUnknownFile, "edit", fileName)
	}
	w.edits++
	return m.ApplyEdit(start, end, text)
}

func (w *mirrorWorkspace) RemoveScript(fileName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.scripts, fileName)
	w.removed = append(w.removed, fileName)
	return nil
}

func (w *mirrorWorkspace) GetSyntaxErrors(ctx context.Context, fileName string) ([]analysis.Diagnostic, error) {
	return w.syntax, w.err
}

func (w *mirrorWorkspace) GetSemanticErrors(ctx context.Context, fileName string) ([]analysis.Diagnostic, error) {
	return w.semantic, nil
}

func (w *mirrorWorkspace) GetOutputFiles(ctx context.Context, fileName string) ([]analysis.OutputFile, error) {
	return []analysis.OutputFile{{Name: strings.TrimSuffix(fileName, ".ts") + ".js"}}, nil
}

func (w *mirrorWorkspace) content(t *testing.T, fileName string) string {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.scripts[fileName]
	if !ok {
		t.Fatalf("%s not open", fileName)
	}
	return m.Content()
}

func open(t *testing.T, content string) (*Facade, *mirrorWorkspace) {
	t.Helper()
	ws := newMirrorWorkspace()
	f := New(ws)
	if _, err := f.ChangeFile("a.ts", content); err != nil {
		t.Fatal(err)
	}
	return f, ws
}

func pos(row, col int) position.Position { return position.Position{Row: row, Column: col} }

func rowRange(row int) position.Range {
	return position.Range{Start: pos(row, 0), End: pos(row, 3)}
}

func TestApplyTranslatesDeltas(t *testing.T) {
	const doc = "abc\ndef\nghi"
	tests := []struct {
		name  string
		delta Delta
		want  string
	}{
		{"insert text", InsertText(pos(1, 1), "XY"), "abc\ndXYef\nghi"},
		{"insert newline", InsertText(pos(0, 3), "\nnew"), "abc\nnew\ndef\nghi"},
		{"remove text", RemoveText(pos(1, 0), "de"), "abc\nf\nghi"},
		{"remove across lines", RemoveText(pos(0, 2), "c\nd"), "abef\nghi"},
		{"insert lines", InsertLines(1, []string{"one", "two"}), "abc\none\ntwo\ndef\nghi"},
		{"remove lines", RemoveLines(0, []string{"abc", "def"}), "ghi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ws := open(t, doc)
			if err := f.Apply(position.SplitLines(doc), tt.delta); err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if got := ws.content(t, "a.ts"); got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarkerShiftInsertLines(t *testing.T) {
	const doc = "r0\nr1\nr2\nr3\nr4"
	f, _ := open(t, doc)
	above := f.AddMarker(rowRange(1), ClassRef)
	at := f.AddMarker(rowRange(2), ClassRef)
	below := f.AddMarker(rowRange(4), ClassError)

	if err := f.Apply(position.SplitLines(doc), InsertLines(2, []string{"x", "y", "z"})); err != nil {
		t.Fatal(err)
	}

	wantRows := map[string]struct {
		id  uuid.UUID
		row int
	}{
		"above": {above, 1},
		"at":    {at, 5},
		"below": {below, 7},
	}
	for name, w := range wantRows {
		m, ok := f.Markers().Get(w.id)
		if !ok {
			t.Fatalf("%s marker missing", name)
		}
		if m.Range.Start.Row != w.row || m.Range.End.Row != w.row {
			t.Errorf("%s marker at rows %d-%d, want %d", name, m.Range.Start.Row, m.Range.End.Row, w.row)
		}
	}
}

func TestMarkerShiftTextDeltas(t *testing.T) {
	const doc = "r0\nr1\nr2\nr3"
	f, _ := open(t, doc)
	onRow := f.AddMarker(rowRange(1), ClassRef)
	after := f.AddMarker(rowRange(3), ClassRef)

	if err := f.Apply(position.SplitLines(doc), InsertText(pos(1, 2), "\n\n")); err != nil {
		t.Fatal(err)
	}
	if m, _ := f.Markers().Get(onRow); m.Range.Start.Row != 1 {
		t.Errorf("marker on edit row moved to %d", m.Range.Start.Row)
	}
	if m, _ := f.Markers().Get(after); m.Range.Start.Row != 5 {
		t.Errorf("marker after edit at %d, want 5", m.Range.Start.Row)
	}

	lines := []string{"r0", "r1", "", "", "r2", "r3"}
	if err := f.Apply(lines, RemoveText(pos(1, 2), "\n")); err != nil {
		t.Fatal(err)
	}
	if m, _ := f.Markers().Get(after); m.Range.Start.Row != 4 {
		t.Errorf("marker after removal at %d, want 4", m.Range.Start.Row)
	}
}

func TestMarkerShiftRemoveLinesClamps(t *testing.T) {
	const doc = "r0\nr1\nr2\nr3\nr4"
	f, _ := open(t, doc)
	inside := f.AddMarker(rowRange(2), ClassRef)
	after := f.AddMarker(rowRange(4), ClassRef)
	before := f.AddMarker(rowRange(0), ClassRef)

	if err := f.Apply(position.SplitLines(doc), RemoveLines(1, []string{"r1", "r2"})); err != nil {
		t.Fatal(err)
	}
	if m, _ := f.Markers().Get(inside); m.Range.Start.Row != 1 {
		t.Errorf("marker inside removed lines at %d, want 1", m.Range.Start.Row)
	}
	if m, _ := f.Markers().Get(after); m.Range.Start.Row != 2 {
		t.Errorf("marker after removal at %d, want 2", m.Range.Start.Row)
	}
	if m, _ := f.Markers().Get(before); m.Range.Start.Row != 0 {
		t.Errorf("marker before edit moved to %d", m.Range.Start.Row)
	}
}

func TestApplyWithoutFile(t *testing.T) {
	f := New(newMirrorWorkspace())
	if err := f.Apply([]string{""}, InsertText(pos(0, 0), "x")); !errors.Is(err, werrors.ErrUnknownFile) {
		t.Errorf("error = %v, want UnknownFile", err)
	}
	if _, err := f.SyncText("", "x"); !errors.Is(err, werrors.ErrUnknownFile) {
		t.Errorf("SyncText error = %v, want UnknownFile", err)
	}
	if a, err := f.RefreshDiagnostics(context.Background(), nil); a != nil || err != nil {
		t.Errorf("RefreshDiagnostics = %v, %v", a, err)
	}
}

func TestApplyInvalidStart(t *testing.T) {
	f, ws := open(t, "abc")
	if err := f.Apply([]string{"abc"}, InsertText(pos(5, 0), "x")); !errors.Is(err, werrors.ErrInvalidRange) {
		t.Errorf("error = %v, want InvalidRange", err)
	}
	if ws.edits != 0 {
		t.Error("invalid delta must not send an edit")
	}
}

func TestChangeFile(t *testing.T) {
	f, ws := open(t, "one")
	f.AddMarker(rowRange(0), ClassError)

	got, err := f.ChangeFile("b.ts", "x\r\ny\rz")
	if err != nil {
		t.Fatal(err)
	}
	if got != "x\ny\nz" {
		t.Errorf("normalized = %q", got)
	}
	if len(ws.removed) != 1 || ws.removed[0] != "a.ts" {
		t.Errorf("removed = %v, want [a.ts]", ws.removed)
	}
	if ws.content(t, "b.ts") != "x\ny\nz" {
		t.Errorf("b.ts = %q", ws.content(t, "b.ts"))
	}
	if f.FileName() != "b.ts" {
		t.Errorf("FileName = %q", f.FileName())
	}
	if f.Markers().Len() != 0 {
		t.Error("ChangeFile should clear markers")
	}
}

func TestSyncText(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
	}{
		{"insert", "hello world", "hello brave world"},
		{"delete", "hello brave world", "hello world"},
		{"replace", "let x = 1;\nlet y = 2;", "let x = 10;\nconst y = 2;"},
		{"multi", "a\nb\nc\nd", "a\nB\nc\nd\ne"},
		{"identical", "same", "same"},
		{"from empty", "", "new text"},
		{"to empty", "gone", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ws := open(t, tt.old)
			n, err := f.SyncText(tt.old, tt.new)
			if err != nil {
				t.Fatalf("SyncText: %v", err)
			}
			if got := ws.content(t, "a.ts"); got != tt.new {
				t.Errorf("content = %q, want %q", got, tt.new)
			}
			if tt.old == tt.new && n != 0 {
				t.Errorf("identical texts sent %d edits", n)
			}
			if n != ws.edits {
				t.Errorf("reported %d edits, sent %d", n, ws.edits)
			}
		})
	}
}

func TestSyncTextShiftsMarkers(t *testing.T) {
	const old = "r0\nr1\nr2"
	f, _ := open(t, old)
	id := f.AddMarker(rowRange(2), ClassRef)

	if _, err := f.SyncText(old, "r0\nnew\nr1\nr2"); err != nil {
		t.Fatal(err)
	}
	if m, _ := f.Markers().Get(id); m.Range.Start.Row != 3 {
		t.Errorf("marker at row %d, want 3", m.Range.Start.Row)
	}
}

func TestRefreshDiagnostics(t *testing.T) {
	const doc = "let a = ;\nfoo();"
	f, ws := open(t, doc)
	ws.syntax = []analysis.Diagnostic{{Message: "Expression expected.", Start: 8, Length: 1}}
	ws.semantic = []analysis.Diagnostic{
		{Message: "Cannot find name 'foo'.", Start: 10, Length: 3},
		{Message: "out of range", Start: -1, Length: 1},
	}
	stale := f.AddMarker(rowRange(0), ClassError)
	ref := f.AddMarker(rowRange(1), ClassRef)

	got, err := f.RefreshDiagnostics(context.Background(), position.SplitLines(doc))
	if err != nil {
		t.Fatal(err)
	}
	want := []Annotation{
		{Row: 0, Column: 8, Text: "Expression expected.", Type: "error"},
		{Row: 1, Column: 0, Text: "Cannot find name 'foo'.", Type: "error"},
	}
	if len(got) != len(want) {
		t.Fatalf("annotations = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("annotation %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if len(f.Annotations()) != 2 {
		t.Errorf("Annotations = %+v", f.Annotations())
	}

	if _, ok := f.Markers().Get(stale); ok {
		t.Error("old error marker should be replaced")
	}
	if _, ok := f.Markers().Get(ref); !ok {
		t.Error("non-error marker should survive")
	}
	errs := f.Markers().ByClass(ClassError)
	if len(errs) != 2 || errs[1].Range.End != pos(1, 3) {
		t.Errorf("error markers = %+v", errs)
	}
}

func TestRefreshDiagnosticsError(t *testing.T) {
	f, ws := open(t, "x")
	ws.err = werrors.New(werrors.KindEngine, "q", "broken")
	if _, err := f.RefreshDiagnostics(context.Background(), []string{"x"}); !errors.Is(err, werrors.ErrEngine) {
		t.Errorf("error = %v, want EngineError", err)
	}
}

func TestOutputFiles(t *testing.T) {
	f, _ := open(t, "x")
	out, err := f.OutputFiles(context.Background())
	if err != nil || len(out) != 1 || out[0].Name != "a.js" {
		t.Errorf("OutputFiles = %+v, %v", out, err)
	}
}

func TestMarkerSetOrderAndRemove(t *testing.T) {
	s := NewMarkerSet()
	a := s.Add(rowRange(3), ClassRef)
	b := s.Add(rowRange(1), ClassError)
	c := s.Add(rowRange(2), ClassRef)

	all := s.All()
	if len(all) != 3 || all[0].ID != a || all[1].ID != b || all[2].ID != c {
		t.Errorf("All not in creation order: %+v", all)
	}
	if !s.Remove(b) || s.Remove(b) {
		t.Error("Remove should succeed once")
	}
	if n := s.RemoveClass(ClassRef); n != 2 || s.Len() != 0 {
		t.Errorf("RemoveClass = %d, Len = %d", n, s.Len())
	}
}

func TestLineDelta(t *testing.T) {
	tests := []struct {
		delta Delta
		want  int
	}{
		{InsertText(pos(0, 0), "a\nb\n"), 2},
		{RemoveText(pos(0, 0), "\n"), -1},
		{InsertText(pos(0, 0), "abc"), 0},
		{InsertLines(0, []string{"a", "b", "c"}), 3},
		{RemoveLines(0, []string{"a"}), -1},
	}
	for _, tt := range tests {
		if got := tt.delta.LineDelta(); got != tt.want {
			t.Errorf("%s LineDelta = %d, want %d", tt.delta.Action, got, tt.want)
		}
	}
}
