package facade

import (
	"fmt"
	"strings"

	"github.com/dshills/deuce/internal/position"
)

// Action is the kind of change the presentation layer reports.
type Action int

const (
	ActionInsertText Action = iota
	ActionRemoveText
	ActionInsertLines
	ActionRemoveLines
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionInsertText:
		return "insertText"
	case ActionRemoveText:
		return "removeText"
	case ActionInsertLines:
		return "insertLines"
	case ActionRemoveLines:
		return "removeLines"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Delta is one change to the presentation document. Text deltas carry Text;
// line deltas carry whole Lines without their separators.
type Delta struct {
	Action Action
	Start  position.Position
	Text   string
	Lines  []string
}

// InsertText returns a delta inserting text at start.
func InsertText(start position.Position, text string) Delta {
	return Delta{Action: ActionInsertText, Start: start, Text: text}
}

// RemoveText returns a delta removing text found at start.
func RemoveText(start position.Position, text string) Delta {
	return Delta{Action: ActionRemoveText, Start: start, Text: text}
}

// InsertLines returns a delta inserting whole lines before row.
func InsertLines(row int, lines []string) Delta {
	return Delta{Action: ActionInsertLines, Start: position.Position{Row: row}, Lines: lines}
}

// RemoveLines returns a delta removing whole lines starting at row.
func RemoveLines(row int, lines []string) Delta {
	return Delta{Action: ActionRemoveLines, Start: position.Position{Row: row}, Lines: lines}
}

// LineDelta is the change in line count the delta causes.
func (d Delta) LineDelta() int {
	switch d.Action {
	case ActionInsertText:
		return strings.Count(d.Text, "\n")
	case ActionRemoveText:
		return -strings.Count(d.Text, "\n")
	case ActionInsertLines:
		return len(d.Lines)
	case ActionRemoveLines:
		return -len(d.Lines)
	}
	return 0
}

// linewise reports whether markers on the edit row itself move.
func (d Delta) linewise() bool {
	return d.Action == ActionInsertLines || d.Action == ActionRemoveLines
}

// edit is a byte-range replacement in the mirror.
type edit struct {
	start, end int
	text       string
}

// translate converts the delta to a mirror edit. lines is the document
// before the change.
func (d Delta) translate(lines []string) (edit, error) {
	start, err := position.ToOffset(lines, d.Start)
	if err != nil {
		return edit{}, err
	}
	switch d.Action {
	case ActionInsertText:
		return edit{start: start, end: start, text: d.Text}, nil
	case ActionRemoveText:
		return edit{start: start, end: start + len(d.Text)}, nil
	case ActionInsertLines:
		var b strings.Builder
		for _, line := range d.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		return edit{start: start, end: start, text: b.String()}, nil
	case ActionRemoveLines:
		return edit{start: start, end: start + position.LinesLength(d.Lines)}, nil
	}
	return edit{}, fmt.Errorf("unknown delta action %s", d.Action)
}
