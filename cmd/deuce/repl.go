package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/dshills/deuce/internal/app"
	"github.com/dshills/deuce/internal/position"
)

// commands lists the REPL commands with their usage.
var commands = map[string]string{
	"open":     "open <path>                      open a file",
	"edit":     "edit <file> <start> <end> <text> replace bytes [start,end) with text (Go-quoted or raw)",
	"files":    "files                            list the worker's scripts",
	"errors":   "errors <file>                    show syntax and semantic errors",
	"complete": "complete <file> <row> <col>      list completions at a 0-based position",
	"type":     "type <file> <row> <col>          describe the declaration at a 0-based position",
	"emit":     "emit <file>                      print the emitted JavaScript",
	"diff":     "diff <file>                      diff the file on disk against the open document",
	"close":    "close <file>                     close a document",
	"help":     "help                             show this help",
	"quit":     "quit                             exit",
}

// REPL executes commands against an application.
type REPL struct {
	app *app.Application
	out io.Writer
}

// NewREPL creates a REPL writing results to out.
func NewREPL(application *app.Application, out io.Writer) *REPL {
	return &REPL{app: application, out: out}
}

// Names returns the command names in order.
func Names() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Complete suggests command names and open documents for a partial line.
func (r *REPL) Complete(line string) []string {
	fields := strings.Fields(line)
	var out []string
	if len(fields) == 0 || len(fields) == 1 && !strings.HasSuffix(line, " ") {
		prefix := strings.TrimSpace(line)
		for _, name := range Names() {
			if strings.HasPrefix(name, prefix) {
				out = append(out, name+" ")
			}
		}
		return out
	}
	if len(fields) > 2 || len(fields) == 2 && strings.HasSuffix(line, " ") {
		return nil
	}
	prefix := ""
	if len(fields) == 2 {
		prefix = fields[1]
	}
	for _, name := range r.app.Documents().Names() {
		if strings.HasPrefix(name, prefix) {
			out = append(out, fields[0]+" "+name+" ")
		}
	}
	return out
}

// Execute runs one command line. It returns app.ErrQuit for quit.
func (r *REPL) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "quit", "exit":
		return app.ErrQuit
	case "help":
		for _, name := range Names() {
			fmt.Fprintln(r.out, commands[name])
		}
		return nil
	case "open":
		if len(args) != 1 {
			return usage(cmd)
		}
		doc, err := r.app.OpenFile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "opened %s (%d lines)\n", doc.Name, len(doc.Lines()))
		return nil
	case "edit":
		return r.edit(line)
	case "files":
		names, err := r.app.Client().GetFileNames(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(r.out, name)
		}
		return nil
	case "errors":
		if len(args) != 1 {
			return usage(cmd)
		}
		annotations, err := r.app.Diagnostics(ctx, args[0])
		if err != nil {
			return err
		}
		if len(annotations) == 0 {
			fmt.Fprintln(r.out, "no errors")
		}
		for _, a := range annotations {
			fmt.Fprintf(r.out, "%s:%d:%d: %s\n", args[0], a.Row+1, a.Column+1, a.Text)
		}
		return nil
	case "complete", "type":
		if len(args) != 3 {
			return usage(cmd)
		}
		pos, err := parsePosition(args[1], args[2])
		if err != nil {
			return err
		}
		if cmd == "type" {
			return r.typeAt(ctx, args[0], pos)
		}
		return r.complete(ctx, args[0], pos)
	case "emit":
		if len(args) != 1 {
			return usage(cmd)
		}
		files, err := r.app.Emit(ctx, args[0])
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintf(r.out, "// %s\n%s", f.Name, f.Text)
			if !strings.HasSuffix(f.Text, "\n") {
				fmt.Fprintln(r.out)
			}
		}
		return nil
	case "diff":
		if len(args) != 1 {
			return usage(cmd)
		}
		return r.diff(ctx, args[0])
	case "close":
		if len(args) != 1 {
			return usage(cmd)
		}
		return r.app.Close(args[0])
	}
	return fmt.Errorf("unknown command %q; type help", cmd)
}

func usage(cmd string) error {
	return fmt.Errorf("usage: %s", strings.Join(strings.Fields(commands[cmd]), " "))
}

func parsePosition(row, col string) (position.Position, error) {
	r, err := strconv.Atoi(row)
	if err != nil {
		return position.Position{}, fmt.Errorf("row: %w", err)
	}
	c, err := strconv.Atoi(col)
	if err != nil {
		return position.Position{}, fmt.Errorf("column: %w", err)
	}
	return position.Position{Row: r, Column: c}, nil
}

// edit parses "edit <file> <start> <end> <text>". The text is everything
// after the end offset; a Go-quoted text is unquoted.
func (r *REPL) edit(line string) error {
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "edit"))
	parts := strings.SplitN(rest, " ", 4)
	if len(parts) < 3 {
		return usage("edit")
	}
	start, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end, err := strconv.Atoi(parts[2])
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	text := ""
	if len(parts) == 4 {
		text = parts[3]
		if unquoted, err := strconv.Unquote(text); err == nil {
			text = unquoted
		}
	}

	doc, err := r.app.Documents().Get(parts[0])
	if err != nil {
		return err
	}
	if err := doc.Replace(start, end, text); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s: version %d\n", doc.Name, doc.Version())
	return nil
}

func (r *REPL) complete(ctx context.Context, name string, pos position.Position) error {
	res, err := r.app.Complete(ctx, name, pos)
	if err != nil {
		return err
	}
	mode := "identifier"
	if res.MemberMode {
		mode = "member"
	}
	entries := res.Filtered()
	fmt.Fprintf(r.out, "%s completions for %q at offset %d: %d\n", mode, res.Prefix, res.Offset, len(entries))
	for _, e := range entries {
		fmt.Fprintf(r.out, "  %-24s %s\n", e.Name, e.Kind)
	}
	return nil
}

func (r *REPL) typeAt(ctx context.Context, name string, pos position.Position) error {
	def, err := r.app.TypeAt(ctx, name, pos)
	if err != nil {
		return err
	}
	if def == nil {
		fmt.Fprintln(r.out, "no declaration")
		return nil
	}
	fmt.Fprintln(r.out, def.Description)
	if def.DocComment != "" {
		fmt.Fprintln(r.out, def.DocComment)
	}
	fmt.Fprintf(r.out, "declared in %s [%d,%d)\n", def.FileName, def.MinChar, def.LimChar)
	return nil
}

// diff prints a unified diff from the file on disk to the worker's copy.
func (r *REPL) diff(ctx context.Context, name string) error {
	doc, err := r.app.Documents().Get(name)
	if err != nil {
		return err
	}
	if doc.Path == "" {
		return errors.New("document was not opened from a file")
	}
	disk, err := os.ReadFile(doc.Path)
	if err != nil {
		return err
	}
	snap, err := r.app.Client().GetScriptSnapshot(ctx, name)
	if err != nil {
		return err
	}
	s, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(position.NormalizeNewlines(string(disk))),
		B:        difflib.SplitLines(snap.Text()),
		FromFile: doc.Path,
		ToFile:   fmt.Sprintf("%s (version %d)", name, snap.Version()),
		Context:  3,
	})
	if err != nil {
		return err
	}
	if s == "" {
		fmt.Fprintln(r.out, "no changes")
		return nil
	}
	fmt.Fprint(r.out, s)
	return nil
}
