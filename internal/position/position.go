// Package position converts between linear offsets and {row, column}
// positions over a document split into lines.
//
// Offsets and columns count bytes. Every line, including the last one,
// accounts for one separator byte, so the two conversions are exact inverses
// of each other: ToPosition(lines, ToOffset(lines, p)) == p for every
// position inside the document, and an offset equal to the document length
// lands at the end of the last line.
package position

import (
	"fmt"
	"strings"

	werrors "github.com/dshills/deuce/internal/errors"
)

// Position is a zero-based {row, column} location.
type Position struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// String returns "row:column".
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Row, p.Column)
}

// Before returns true if p is before other.
func (p Position) Before(other Position) bool {
	if p.Row != other.Row {
		return p.Row < other.Row
	}
	return p.Column < other.Column
}

// Range is a half-open [Start, End) span of positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Shift moves both ends of the range by delta rows.
func (r Range) Shift(delta int) Range {
	r.Start.Row += delta
	r.End.Row += delta
	return r
}

// Empty returns true if the range covers no text.
func (r Range) Empty() bool {
	return r.Start == r.End
}

// ToOffset converts a position to a linear offset.
func ToOffset(lines []string, pos Position) (int, error) {
	if pos.Row < 0 || pos.Column < 0 {
		return 0, werrors.Newf(werrors.KindInvalidArgument, "toOffset", "negative position %s", pos)
	}
	if pos.Row > len(lines) {
		return 0, werrors.Newf(werrors.KindInvalidRange, "toOffset", "row %d beyond %d lines", pos.Row, len(lines))
	}

	offset := 0
	for _, line := range lines[:pos.Row] {
		offset += len(line) + 1
	}
	return offset + pos.Column, nil
}

// ToPosition converts a linear offset to a position. Offsets past the end of
// the document resolve to the row after the last line.
func ToPosition(lines []string, offset int) (Position, error) {
	if offset < 0 {
		return Position{}, werrors.Newf(werrors.KindInvalidArgument, "toPosition", "negative offset %d", offset)
	}

	count := 0
	for row, line := range lines {
		next := count + len(line) + 1
		if offset < next {
			return Position{Row: row, Column: offset - count}, nil
		}
		count = next
	}
	return Position{Row: len(lines), Column: offset - count}, nil
}

// LinesLength returns the number of offsets the lines span, counting one
// separator per line.
func LinesLength(lines []string) int {
	n := 0
	for _, line := range lines {
		n += len(line) + 1
	}
	return n
}

// SplitLines splits text on '\n'. The result always has at least one line.
func SplitLines(text string) []string {
	return strings.Split(text, "\n")
}

// LineCount returns the number of lines in text.
func LineCount(text string) int {
	return strings.Count(text, "\n") + 1
}

// NormalizeNewlines converts CRLF and lone CR line endings to LF.
func NormalizeNewlines(text string) string {
	if !strings.ContainsRune(text, '\r') {
		return text
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// Codec converts positions for one fixed text. It caches the line split so
// repeated conversions over the same text do not re-split.
type Codec struct {
	lines []string
}

// NewCodec creates a codec for text.
func NewCodec(text string) *Codec {
	return &Codec{lines: SplitLines(text)}
}

// NewCodecFromLines creates a codec over already split lines.
func NewCodecFromLines(lines []string) *Codec {
	return &Codec{lines: lines}
}

// Lines returns the codec's lines.
func (c *Codec) Lines() []string {
	return c.lines
}

// Offset converts a position to an offset.
func (c *Codec) Offset(pos Position) (int, error) {
	return ToOffset(c.lines, pos)
}

// Position converts an offset to a position.
func (c *Codec) Position(offset int) (Position, error) {
	return ToPosition(c.lines, offset)
}

// Span converts an offset span to a range.
func (c *Codec) Span(start, length int) (Range, error) {
	s, err := c.Position(start)
	if err != nil {
		return Range{}, err
	}
	e, err := c.Position(start + length)
	if err != nil {
		return Range{}, err
	}
	return Range{Start: s, End: e}, nil
}
