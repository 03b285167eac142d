// Package completion turns a cursor position into a completion query.
package completion

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/deuce/internal/analysis"
	"github.com/dshills/deuce/internal/position"
)

var (
	memberPattern     = regexp.MustCompile(`\.([a-zA-Z_0-9$]*)$`)
	identifierPattern = regexp.MustCompile(`[a-zA-Z_0-9$]*$`)
)

// Document is the presentation layer's view of the text being edited.
type Document interface {
	Line(row int) string
	Lines() []string
}

// Querier answers completion queries. *workspace.Client implements it.
type Querier interface {
	GetCompletionsAtPosition(ctx context.Context, fileName string, offset int, memberMode bool) (*analysis.CompletionInfo, error)
}

// Request is the query derived from a cursor.
type Request struct {
	FileName   string
	Offset     int
	MemberMode bool
	// Prefix is the text already typed that completions should replace.
	Prefix string
}

// Result is a completion query and its answer.
type Result struct {
	Request
	Completions []analysis.CompletionEntry
}

// Filtered returns the completions narrowed to the typed prefix.
func (r Result) Filtered() []analysis.CompletionEntry {
	return Filter(r.Completions, r.Prefix)
}

// Service computes completions at the cursor.
type Service struct {
	querier Querier
}

// NewService creates a completion service backed by q.
func NewService(q Querier) *Service {
	return &Service{querier: q}
}

// BuildRequest derives the completion request for a cursor in doc.
//
// When the text before the cursor ends in a member access, the request is
// in member mode and its offset is moved back to just after the dot.
func BuildRequest(fileName string, doc Document, cursor position.Position) (Request, error) {
	offset, err := position.ToOffset(doc.Lines(), cursor)
	if err != nil {
		return Request{}, err
	}

	line := doc.Line(cursor.Row)
	col := min(cursor.Column, len(line))
	before := line[:col]

	req := Request{FileName: fileName, Offset: offset}
	if m := memberPattern.FindStringSubmatch(before); m != nil {
		req.MemberMode = true
		req.Prefix = m[1]
		req.Offset = offset - len(req.Prefix)
		return req, nil
	}
	req.Prefix = identifierPattern.FindString(before)
	return req, nil
}

// Complete asks for completions at the cursor.
func (s *Service) Complete(ctx context.Context, fileName string, doc Document, cursor position.Position) (Result, error) {
	req, err := BuildRequest(fileName, doc, cursor)
	if err != nil {
		return Result{}, err
	}
	info, err := s.querier.GetCompletionsAtPosition(ctx, fileName, req.Offset, req.MemberMode)
	if err != nil {
		return Result{Request: req}, err
	}
	res := Result{Request: req}
	if info != nil {
		res.Completions = info.Entries
	}
	return res, nil
}

// Filter keeps the entries whose name starts with prefix, ignoring case.
// Entries matching the exact case come first; each group is ordered by
// sort text, then name.
func Filter(entries []analysis.CompletionEntry, prefix string) []analysis.CompletionEntry {
	lower := strings.ToLower(prefix)
	type ranked struct {
		entry analysis.CompletionEntry
		exact bool
	}
	var matches []ranked
	for _, e := range entries {
		if !strings.HasPrefix(strings.ToLower(e.Name), lower) {
			continue
		}
		matches = append(matches, ranked{entry: e, exact: strings.HasPrefix(e.Name, prefix)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.exact != b.exact {
			return a.exact
		}
		if a.entry.SortText != b.entry.SortText {
			return a.entry.SortText < b.entry.SortText
		}
		return a.entry.Name < b.entry.Name
	})

	out := make([]analysis.CompletionEntry, len(matches))
	for i, m := range matches {
		out[i] = m.entry
	}
	return out
}

// Lines is a Document over a fixed slice of lines.
type Lines []string

// NewLines splits text into a Document.
func NewLines(text string) Lines {
	return Lines(position.SplitLines(text))
}

// Line returns the row'th line, or "" past the end.
func (l Lines) Line(row int) string {
	if row < 0 || row >= len(l) {
		return ""
	}
	return l[row]
}

// Lines returns the lines.
func (l Lines) Lines() []string {
	return l
}
