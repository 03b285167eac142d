package completion

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/deuce/internal/analysis"
	werrors "github.com/dshills/deuce/internal/errors"
	"github.com/dshills/deuce/internal/position"
)

type recordingQuerier struct {
	fileName   string
	offset     int
	memberMode bool
	entries    []analysis.CompletionEntry
	err        error
}

func (q *recordingQuerier) GetCompletionsAtPosition(ctx context.Context, fileName string, offset int, memberMode bool) (*analysis.CompletionInfo, error) {
	q.fileName, q.offset, q.memberMode = fileName, offset, memberMode
	if q.err != nil {
		return nil, q.err
	}
	return &analysis.CompletionInfo{IsMemberCompletion: memberMode, Entries: q.entries}, nil
}

func TestBuildRequest(t *testing.T) {
	doc := NewLines("let a = 1;\nconsole.lo\nfoo.\nx$_1")

	tests := []struct {
		name   string
		cursor position.Position
		want   Request
	}{
		{"member with prefix", position.Position{Row: 1, Column: 10}, Request{Offset: 19, MemberMode: true, Prefix: "lo"}},
		{"member no prefix", position.Position{Row: 2, Column: 4}, Request{Offset: 26, MemberMode: true, Prefix: ""}},
		{"identifier", position.Position{Row: 1, Column: 4}, Request{Offset: 15, Prefix: "cons"}},
		{"identifier with dollar", position.Position{Row: 3, Column: 4}, Request{Offset: 31, Prefix: "x$_1"}},
		{"after space", position.Position{Row: 0, Column: 8}, Request{Offset: 8, Prefix: ""}},
		{"line start", position.Position{Row: 0, Column: 0}, Request{Offset: 0, Prefix: ""}},
		{"column past line end", position.Position{Row: 2, Column: 9}, Request{Offset: 31, MemberMode: true, Prefix: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildRequest("a.ts", doc, tt.cursor)
			if err != nil {
				t.Fatal(err)
			}
			tt.want.FileName = "a.ts"
			if got != tt.want {
				t.Errorf("BuildRequest = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBuildRequestInvalidCursor(t *testing.T) {
	if _, err := BuildRequest("a.ts", NewLines("x"), position.Position{Row: -1}); !errors.Is(err, werrors.ErrInvalidArgument) {
		t.Errorf("error = %v, want InvalidArgument", err)
	}
}

func TestCompleteSendsRequest(t *testing.T) {
	q := &recordingQuerier{entries: []analysis.CompletionEntry{{Name: "log"}, {Name: "warn"}}}
	svc := NewService(q)

	res, err := svc.Complete(context.Background(), "a.ts", NewLines("console.l"), position.Position{Row: 0, Column: 9})
	if err != nil {
		t.Fatal(err)
	}
	if q.fileName != "a.ts" || q.offset != 8 || !q.memberMode {
		t.Errorf("query = %s@%d member=%v", q.fileName, q.offset, q.memberMode)
	}
	if res.Prefix != "l" || len(res.Completions) != 2 {
		t.Errorf("result = %+v", res)
	}
	if f := res.Filtered(); len(f) != 1 || f[0].Name != "log" {
		t.Errorf("Filtered = %+v", f)
	}
}

func TestCompletePropagatesError(t *testing.T) {
	q := &recordingQuerier{err: werrors.New(werrors.KindUnknownFile, "q", "gone")}
	res, err := NewService(q).Complete(context.Background(), "a.ts", NewLines("ab"), position.Position{Column: 2})
	if !werrors.IsUnknownFile(err) {
		t.Errorf("error = %v, want UnknownFile", err)
	}
	if res.Prefix != "ab" {
		t.Errorf("request should still be reported, got %+v", res.Request)
	}
}

func TestFilter(t *testing.T) {
	entries := []analysis.CompletionEntry{
		{Name: "Length", SortText: "1"},
		{Name: "log", SortText: "1"},
		{Name: "lastIndexOf", SortText: "0"},
		{Name: "map", SortText: "0"},
		{Name: "LOG", SortText: "0"},
	}

	tests := []struct {
		prefix string
		want   []string
	}{
		{"l", []string{"lastIndexOf", "log", "LOG", "Length"}},
		{"LO", []string{"LOG", "log"}},
		{"", []string{"LOG", "lastIndexOf", "map", "Length", "log"}},
		{"z", nil},
	}

	for _, tt := range tests {
		got := Filter(entries, tt.prefix)
		var names []string
		for _, e := range got {
			names = append(names, e.Name)
		}
		if len(names) != len(tt.want) {
			t.Errorf("Filter(%q) = %v, want %v", tt.prefix, names, tt.want)
			continue
		}
		for i := range names {
			if names[i] != tt.want[i] {
				t.Errorf("Filter(%q) = %v, want %v", tt.prefix, names, tt.want)
				break
			}
		}
	}
}

func TestLinesDocument(t *testing.T) {
	doc := NewLines("a\nb")
	if doc.Line(1) != "b" || doc.Line(5) != "" || doc.Line(-1) != "" {
		t.Error("Line out of range should be empty")
	}
	if len(doc.Lines()) != 2 {
		t.Errorf("Lines = %v", doc.Lines())
	}
}
