// Package facade connects a presentation document to the workspace.
//
// The presentation layer reports each change as a Delta. The facade turns
// it into an editScript command for the worker and, in the same call,
// moves markers below the edit so the display stays right while the
// worker catches up.
package facade

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/tliron/commonlog"

	"github.com/dshills/deuce/internal/analysis"
	werrors "github.com/dshills/deuce/internal/errors"
	"github.com/dshills/deuce/internal/position"
)

// Workspace is the part of the workspace client the facade drives.
// *workspace.Client implements it.
type Workspace interface {
	EnsureScript(fileName, content string) error
	EditScript(fileName string, start, end int, text string) error
	RemoveScript(fileName string) error
	GetSyntaxErrors(ctx context.Context, fileName string) ([]analysis.Diagnostic, error)
	GetSemanticErrors(ctx context.Context, fileName string) ([]analysis.Diagnostic, error)
	GetOutputFiles(ctx context.Context, fileName string) ([]analysis.OutputFile, error)
}

// Annotation is a gutter message for one diagnostic.
type Annotation struct {
	Row    int    `json:"row"`
	Column int    `json:"column"`
	Text   string `json:"text"`
	Type   string `json:"type"`
}

// Option configures a Facade.
type Option func(*Facade)

// WithLogger overrides the facade's logger.
func WithLogger(log commonlog.Logger) Option {
	return func(f *Facade) {
		f.log = log
	}
}

// Facade is the presentation layer's entry point for edits and markers.
type Facade struct {
	ws      Workspace
	markers *MarkerSet
	log     commonlog.Logger

	mu          sync.Mutex
	fileName    string
	annotations []Annotation
}

// New creates a facade driving ws.
func New(ws Workspace, opts ...Option) *Facade {
	f := &Facade{
		ws:      ws,
		markers: NewMarkerSet(),
		log:     commonlog.GetLogger("deuce.facade"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FileName returns the file currently shown, or "".
func (f *Facade) FileName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fileName
}

// Markers returns the facade's marker set.
func (f *Facade) Markers() *MarkerSet {
	return f.markers
}

// AddMarker adds a marker and returns its id.
func (f *Facade) AddMarker(r position.Range, class string) uuid.UUID {
	return f.markers.Add(r, class)
}

// RemoveMarker removes a marker.
func (f *Facade) RemoveMarker(id uuid.UUID) bool {
	return f.markers.Remove(id)
}

// Annotations returns the annotations from the last diagnostics refresh.
func (f *Facade) Annotations() []Annotation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Annotation(nil), f.annotations...)
}

// ChangeFile switches the shown file. The previous file is removed from the
// workspace and the new content, with line endings normalized, is ensured.
// It returns the normalized content.
func (f *Facade) ChangeFile(fileName, content string) (string, error) {
	f.mu.Lock()
	prev := f.fileName
	f.fileName = ""
	f.annotations = nil
	f.mu.Unlock()

	if prev != "" {
		if err := f.ws.RemoveScript(prev); err != nil {
			return "", err
		}
	}
	f.markers.RemoveClass(ClassError)
	f.markers.RemoveClass(ClassRef)

	content = position.NormalizeNewlines(content)
	if err := f.ws.EnsureScript(fileName, content); err != nil {
		return "", err
	}

	f.mu.Lock()
	f.fileName = fileName
	f.mu.Unlock()
	f.log.Debugf("showing %s", fileName)
	return content, nil
}

// Apply forwards one change to the workspace and shifts markers. lines is
// the document as it was before the change.
func (f *Facade) Apply(lines []string, d Delta) error {
	fileName := f.FileName()
	if fileName == "" {
		return werrors.New(werrors.KindUnknownFile, "apply", "no file is shown")
	}

	e, err := d.translate(lines)
	if err != nil {
		return err
	}
	if err := f.ws.EditScript(fileName, e.start, e.end, e.text); err != nil {
		return err
	}
	if n := f.markers.Shift(d.Start.Row, d.LineDelta(), d.linewise()); n > 0 {
		f.log.Debugf("%s at row %d moved %d markers", d.Action, d.Start.Row, n)
	}
	return nil
}

// SyncText sends the edits that turn oldText into newText, for
// presentation layers that only report whole text. Markers are shifted as
// for text deltas. It returns the number of edits sent.
func (f *Facade) SyncText(oldText, newText string) (int, error) {
	fileName := f.FileName()
	if fileName == "" {
		return 0, werrors.New(werrors.KindUnknownFile, "syncText", "no file is shown")
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(oldText, newText, false))

	cur := oldText
	offset := 0
	sent := 0
	for i := 0; i < len(diffs); i++ {
		d := diffs[i]
		if d.Type == diffmatchpatch.DiffEqual {
			offset += len(d.Text)
			continue
		}

		var removed, inserted string
		if d.Type == diffmatchpatch.DiffDelete {
			removed = d.Text
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				inserted = diffs[i+1].Text
				i++
			}
		} else {
			inserted = d.Text
		}

		start, end := offset, offset+len(removed)
		pos, err := position.ToPosition(position.SplitLines(cur), start)
		if err != nil {
			return sent, err
		}
		if err := f.ws.EditScript(fileName, start, end, inserted); err != nil {
			return sent, err
		}
		sent++
		f.markers.Shift(pos.Row, strings.Count(inserted, "\n")-strings.Count(removed, "\n"), false)

		cur = cur[:start] + inserted + cur[end:]
		offset += len(inserted)
	}
	return sent, nil
}

// RefreshDiagnostics asks for syntax and semantic errors at the same time,
// converts them to annotations over lines, and replaces the error markers.
func (f *Facade) RefreshDiagnostics(ctx context.Context, lines []string) ([]Annotation, error) {
	fileName := f.FileName()
	if fileName == "" {
		return nil, nil
	}

	var (
		wg                sync.WaitGroup
		syntax, semantic  []analysis.Diagnostic
		syntaxErr, semErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		syntax, syntaxErr = f.ws.GetSyntaxErrors(ctx, fileName)
	}()
	go func() {
		defer wg.Done()
		semantic, semErr = f.ws.GetSemanticErrors(ctx, fileName)
	}()
	wg.Wait()

	if syntaxErr != nil {
		return nil, syntaxErr
	}
	if semErr != nil {
		return nil, semErr
	}

	codec := position.NewCodecFromLines(lines)
	diags := append(syntax, semantic...)
	annotations := make([]Annotation, 0, len(diags))
	ranges := make([]position.Range, 0, len(diags))
	for _, d := range diags {
		r, err := codec.Span(d.Start, d.Length)
		if err != nil {
			f.log.Warningf("skipping diagnostic at %d: %s", d.Start, err)
			continue
		}
		annotations = append(annotations, Annotation{
			Row:    r.Start.Row,
			Column: r.Start.Column,
			Text:   d.Message,
			Type:   "error",
		})
		ranges = append(ranges, r)
	}
	sort.SliceStable(annotations, func(i, j int) bool {
		a, b := annotations[i], annotations[j]
		return a.Row < b.Row || a.Row == b.Row && a.Column < b.Column
	})

	f.markers.RemoveClass(ClassError)
	for _, r := range ranges {
		f.markers.Add(r, ClassError)
	}

	f.mu.Lock()
	f.annotations = annotations
	f.mu.Unlock()
	return annotations, nil
}

// OutputFiles returns the emitted output of the shown file.
func (f *Facade) OutputFiles(ctx context.Context) ([]analysis.OutputFile, error) {
	fileName := f.FileName()
	if fileName == "" {
		return nil, nil
	}
	return f.ws.GetOutputFiles(ctx, fileName)
}
