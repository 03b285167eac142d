package store

import (
	"errors"
	"slices"
	"testing"

	"github.com/dshills/deuce/internal/analysis"
	werrors "github.com/dshills/deuce/internal/errors"
)

func TestEnsureAndEdit(t *testing.T) {
	s := New()
	s.EnsureScript("a.ts", "let x=1;")

	v, err := s.ScriptVersion("a.ts")
	if err != nil || v != 1 {
		t.Fatalf("ScriptVersion = %d, %v; want 1", v, err)
	}

	if err := s.EditScript("a.ts", 4, 5, "y"); err != nil {
		t.Fatalf("EditScript: %v", err)
	}
	snap, err := s.ScriptSnapshot("a.ts")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Text() != "let y=1;" || snap.Version() != 2 {
		t.Errorf("snapshot = %q v%d, want %q v2", snap.Text(), snap.Version(), "let y=1;")
	}
}

func TestEnsureReplacesExisting(t *testing.T) {
	s := New()
	s.EnsureScript("a.ts", "one")
	s.EnsureScript("a.ts", "two")

	snap, err := s.ScriptSnapshot("a.ts")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Text() != "two" {
		t.Errorf("Text = %q, want two", snap.Text())
	}
	if snap.Version() != 2 {
		t.Errorf("Version = %d, want 2", snap.Version())
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestEditUnknownFile(t *testing.T) {
	s := New()
	err := s.EditScript("missing.ts", 0, 0, "x")
	if !errors.Is(err, werrors.ErrUnknownFile) {
		t.Fatalf("error = %v, want UnknownFile", err)
	}
	if s.HasScript("missing.ts") {
		t.Error("EditScript must not create a script")
	}
}

func TestEditInvalidRange(t *testing.T) {
	s := New()
	s.EnsureScript("a.ts", "abc")
	if err := s.EditScript("a.ts", 2, 9, ""); !errors.Is(err, werrors.ErrInvalidRange) {
		t.Errorf("error = %v, want InvalidRange", err)
	}
}

func TestRemoveScript(t *testing.T) {
	s := New()
	s.EnsureScript("a.ts", "x")
	s.RemoveScript("a.ts")
	s.RemoveScript("never.ts")

	if _, err := s.ScriptVersion("a.ts"); !werrors.IsUnknownFile(err) {
		t.Errorf("ScriptVersion after remove: %v, want UnknownFile", err)
	}
	if _, err := s.ScriptSnapshot("a.ts"); !werrors.IsUnknownFile(err) {
		t.Errorf("ScriptSnapshot after remove: %v, want UnknownFile", err)
	}
	if _, _, err := s.ChangeRangeSince("a.ts", 1); !werrors.IsUnknownFile(err) {
		t.Errorf("ChangeRangeSince after remove: %v, want UnknownFile", err)
	}
}

func TestScriptFileNamesSorted(t *testing.T) {
	s := New()
	for _, name := range []string{"c.ts", "a.ts", "b.ts"} {
		s.EnsureScript(name, "")
	}
	want := []string{"a.ts", "b.ts", "c.ts"}
	if got := s.ScriptFileNames(); !slices.Equal(got, want) {
		t.Errorf("ScriptFileNames = %v, want %v", got, want)
	}
}

func TestNormalizesLineEndings(t *testing.T) {
	s := New()
	s.EnsureScript("a.ts", "a\r\nb\rc")
	if err := s.EditScript("a.ts", 0, 0, "x\r\n"); err != nil {
		t.Fatal(err)
	}
	snap, _ := s.ScriptSnapshot("a.ts")
	if snap.Text() != "x\na\nb\nc" {
		t.Errorf("Text = %q", snap.Text())
	}
}

func TestChangeRangeSince(t *testing.T) {
	s := New()
	s.EnsureScript("a.ts", "abcdef")
	if err := s.EditScript("a.ts", 2, 4, "XY"); err != nil {
		t.Fatal(err)
	}
	cr, changed, err := s.ChangeRangeSince("a.ts", 1)
	if err != nil || !changed {
		t.Fatalf("ChangeRangeSince = %v %v", changed, err)
	}
	if cr.Span.Start != 2 || cr.Span.Length != 2 || cr.NewLength != 2 {
		t.Errorf("range = %v", cr)
	}
}

func TestMaxHistoryOption(t *testing.T) {
	s := New(WithMaxHistory(1))
	s.EnsureScript("a.ts", "")
	for i := 0; i < 3; i++ {
		if err := s.EditScript("a.ts", 0, 0, "x"); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := s.ChangeRangeSince("a.ts", 2); !werrors.IsHistoryTruncated(err) {
		t.Errorf("error = %v, want HistoryTruncated", err)
	}
	if _, changed, err := s.ChangeRangeSince("a.ts", 3); err != nil || !changed {
		t.Errorf("ChangeRangeSince(3) = %v %v", changed, err)
	}
}

func TestAnalysisOptionsReplace(t *testing.T) {
	s := New()
	if !s.AnalysisOptions().Equal(analysis.DefaultOptions()) {
		t.Error("store should start with default options")
	}

	opts := analysis.Options{Target: "es2015", NoImplicitAny: true, Lib: []string{"es5"}}
	s.SetAnalysisOptions(opts)
	opts.Lib[0] = "dom"

	got := s.AnalysisOptions()
	if got.Target != "es2015" || !got.NoImplicitAny || got.Module != "" {
		t.Errorf("AnalysisOptions = %+v", got)
	}
	if got.Lib[0] != "es5" {
		t.Error("store shares Lib slice with caller")
	}
}
