// Package mirror holds the background-side copy of one open file: its
// current text, a version that increases on every mutation, and a bounded
// history of edit ranges used for incremental re-analysis.
//
// A Mirror is not safe for concurrent use. It is owned by a single store,
// which is mutated only from the analysis worker's loop.
package mirror

import (
	"strings"

	werrors "github.com/dshills/deuce/internal/errors"
	"github.com/dshills/deuce/internal/position"
)

// DefaultMaxHistory is the default number of edit ranges retained per file.
const DefaultMaxHistory = 100

// Option configures a Mirror.
type Option func(*Mirror)

// WithMaxHistory sets how many edit ranges are retained. Values below one
// are ignored.
func WithMaxHistory(n int) Option {
	return func(m *Mirror) {
		if n > 0 {
			m.maxHistory = n
		}
	}
}

// Mirror is the versioned text of one file.
type Mirror struct {
	fileName string
	content  string
	version  int

	// history holds the edits that produced versions base+1 .. version,
	// oldest first.
	history    []record
	base       int
	maxHistory int
}

// New creates a mirror at version 1 with no history.
func New(fileName, content string, opts ...Option) *Mirror {
	m := &Mirror{
		fileName:   fileName,
		content:    content,
		version:    1,
		base:       1,
		maxHistory: DefaultMaxHistory,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FileName returns the file name the mirror is keyed by.
func (m *Mirror) FileName() string {
	return m.fileName
}

// Content returns the current text.
func (m *Mirror) Content() string {
	return m.content
}

// Version returns the current version.
func (m *Mirror) Version() int {
	return m.version
}

// Len returns the length of the current text in bytes.
func (m *Mirror) Len() int {
	return len(m.content)
}

// HistoryBase returns the oldest version ChangeRangeSince can answer for.
func (m *Mirror) HistoryBase() int {
	return m.base
}

// PendingEdits returns a copy of the retained edit ranges, oldest first.
func (m *Mirror) PendingEdits() []ChangeRange {
	out := make([]ChangeRange, len(m.history))
	for i, r := range m.history {
		out[i] = r.change
	}
	return out
}

// ReplaceAll replaces the whole text. History is discarded, so incremental
// change ranges are only available from the new version onward.
func (m *Mirror) ReplaceAll(content string) {
	m.content = content
	m.version++
	m.history = m.history[:0]
	m.base = m.version
}

// ApplyEdit replaces content[start:end] with text. The range must satisfy
// 0 <= start <= end <= Len(); it is never clamped.
func (m *Mirror) ApplyEdit(start, end int, text string) error {
	if start < 0 || end < start || end > len(m.content) {
		return werrors.Newf(werrors.KindInvalidRange, "applyEdit",
			"range [%d,%d) outside %s (length %d)", start, end, m.fileName, len(m.content))
	}

	var b strings.Builder
	b.Grow(len(m.content) - (end - start) + len(text))
	b.WriteString(m.content[:start])
	b.WriteString(text)
	b.WriteString(m.content[end:])
	m.content = b.String()

	m.version++
	m.history = append(m.history, record{
		version: m.version,
		change: ChangeRange{
			Span:      Span{Start: start, Length: end - start},
			NewLength: len(text),
		},
	})
	if len(m.history) > m.maxHistory {
		drop := len(m.history) - m.maxHistory
		m.history = append(m.history[:0], m.history[drop:]...)
		m.base = m.history[0].version - 1
	}
	return nil
}

// ChangeRangeSince returns the coalesced change between oldVersion and the
// current version. The boolean is false when nothing changed.
//
// Asking for a version older than the retained history yields a
// HistoryTruncated error; callers should fall back to a full re-analysis.
func (m *Mirror) ChangeRangeSince(oldVersion int) (ChangeRange, bool, error) {
	if oldVersion < 1 || oldVersion > m.version {
		return ChangeRange{}, false, werrors.Newf(werrors.KindInvalidArgument, "changeRangeSince",
			"version %d not in [1,%d] for %s", oldVersion, m.version, m.fileName)
	}
	if oldVersion == m.version {
		return ChangeRange{}, false, nil
	}
	if oldVersion < m.base {
		return ChangeRange{}, false, werrors.Newf(werrors.KindHistoryTruncated, "changeRangeSince",
			"%s: version %d predates retained history (oldest %d)", m.fileName, oldVersion, m.base)
	}

	// history[i] produced version base+1+i.
	first := oldVersion - m.base
	changes := make([]ChangeRange, 0, len(m.history)-first)
	for _, r := range m.history[first:] {
		changes = append(changes, r.change)
	}
	return Collapse(changes), true, nil
}

// Snapshot returns an immutable view of the current text.
func (m *Mirror) Snapshot() Snapshot {
	return Snapshot{fileName: m.fileName, version: m.version, content: m.content}
}

// Snapshot is a read-only view of a mirror at one version. It does not
// change when the mirror is edited afterwards.
type Snapshot struct {
	fileName string
	version  int
	content  string
}

// NewSnapshot creates a snapshot from raw values.
func NewSnapshot(fileName string, version int, content string) Snapshot {
	return Snapshot{fileName: fileName, version: version, content: content}
}

// FileName returns the snapshot's file name.
func (s Snapshot) FileName() string {
	return s.fileName
}

// Version returns the version the snapshot was taken at.
func (s Snapshot) Version() int {
	return s.version
}

// Text returns the full text.
func (s Snapshot) Text() string {
	return s.content
}

// Len returns the text length in bytes.
func (s Snapshot) Len() int {
	return len(s.content)
}

// Slice returns text in [start, end), clamped to the snapshot.
func (s Snapshot) Slice(start, end int) string {
	start = max(0, min(start, len(s.content)))
	end = max(start, min(end, len(s.content)))
	return s.content[start:end]
}

// Lines returns the text split into lines.
func (s Snapshot) Lines() []string {
	return position.SplitLines(s.content)
}
