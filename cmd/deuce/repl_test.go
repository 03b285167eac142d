package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/deuce/internal/app"
	"github.com/dshills/deuce/internal/config"
)

func newREPL(t *testing.T) (*REPL, *bytes.Buffer, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	application, err := app.Start(ctx, config.DefaultConfig(), "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(application.Shutdown)

	path := filepath.Join(t.TempDir(), "main.ts")
	if err := os.WriteFile(path, []byte("const total: number = 1;\ntotal;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := &bytes.Buffer{}
	return NewREPL(application, out), out, filepath.ToSlash(path)
}

func execLine(t *testing.T, r *REPL, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Execute(ctx, line); err != nil {
		t.Fatalf("%s: %v", line, err)
	}
	return out.String()
}

func TestSession(t *testing.T) {
	r, out, path := newREPL(t)

	if got := execLine(t, r, out, "open "+path); !strings.Contains(got, "opened") {
		t.Errorf("open = %q", got)
	}
	if got := execLine(t, r, out, "files"); strings.TrimSpace(got) != path {
		t.Errorf("files = %q", got)
	}
	if got := execLine(t, r, out, "errors "+path); strings.TrimSpace(got) != "no errors" {
		t.Errorf("errors = %q", got)
	}
	if got := execLine(t, r, out, "type "+path+" 0 7"); !strings.Contains(got, "total: number") {
		t.Errorf("type = %q", got)
	}

	// Replace the second "total" with an undeclared name.
	if got := execLine(t, r, out, `edit `+path+` 25 30 "missing"`); !strings.Contains(got, "version 1") {
		t.Errorf("edit = %q", got)
	}
	if got := execLine(t, r, out, "errors "+path); !strings.Contains(got, ":2:1: Cannot find name 'missing'.") {
		t.Errorf("errors after edit = %q", got)
	}
	got := execLine(t, r, out, "diff "+path)
	if !strings.Contains(got, "-total;") || !strings.Contains(got, "+missing;") {
		t.Errorf("diff = %q", got)
	}

	if got := execLine(t, r, out, "complete "+path+" 1 2"); !strings.Contains(got, "identifier completions for \"mi\"") {
		t.Errorf("complete = %q", got)
	}
	if got := execLine(t, r, out, "emit "+path); !strings.Contains(got, "const total = 1;") {
		t.Errorf("emit = %q", got)
	}

	execLine(t, r, out, "close "+path)
	if got := execLine(t, r, out, "files"); got != "" {
		t.Errorf("files after close = %q", got)
	}
}

func TestExecuteErrors(t *testing.T) {
	r, _, _ := newREPL(t)
	ctx := context.Background()

	if err := r.Execute(ctx, "quit"); !errors.Is(err, app.ErrQuit) {
		t.Errorf("quit = %v", err)
	}
	if err := r.Execute(ctx, "   "); err != nil {
		t.Errorf("blank line = %v", err)
	}
	tests := []string{
		"bogus",
		"open",
		"errors nope.ts",
		"complete a.ts x 1",
		"type a.ts 1",
		"edit nope.ts 0 1 x",
		"edit a.ts one 1",
		"close nope.ts",
	}
	for _, line := range tests {
		if err := r.Execute(ctx, line); err == nil {
			t.Errorf("%q succeeded", line)
		}
	}
}

func TestComplete(t *testing.T) {
	r, out, path := newREPL(t)
	execLine(t, r, out, "open "+path)

	tests := []struct {
		line string
		want []string
	}{
		{"", Names()},
		{"e", []string{"edit ", "emit ", "errors "}},
		{"q", []string{"quit "}},
		{"errors ", []string{"errors " + path + " "}},
		{"errors " + path[:3], []string{"errors " + path + " "}},
		{"errors x y", nil},
	}
	for _, tt := range tests {
		got := r.Complete(tt.line)
		if tt.line == "" {
			if len(got) != len(tt.want) {
				t.Errorf("Complete(\"\") = %q", got)
			}
			continue
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("Complete(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}
