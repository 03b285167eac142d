package mirror

import "fmt"

// Span is a half-open byte span [Start, Start+Length).
type Span struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// End returns the exclusive end offset.
func (s Span) End() int {
	return s.Start + s.Length
}

// ChangeRange describes one edit, or several coalesced edits, in the
// coordinates of the text before the change: Span was replaced by NewLength
// bytes of new text.
type ChangeRange struct {
	Span      Span `json:"span"`
	NewLength int  `json:"newLength"`
}

// NewEnd returns the end offset of the replacement in the new text.
func (c ChangeRange) NewEnd() int {
	return c.Span.Start + c.NewLength
}

// Delta returns how much the text grew (positive) or shrank (negative).
func (c ChangeRange) Delta() int {
	return c.NewLength - c.Span.Length
}

// String returns a human-readable representation of the change.
func (c ChangeRange) String() string {
	return fmt.Sprintf("[%d,%d) -> %d bytes", c.Span.Start, c.Span.End(), c.NewLength)
}

// Collapse merges consecutive change ranges into a single range expressed
// in the coordinates of the text before the first change. The result covers
// every byte any of the changes touched; unchanged text outside it is
// identical in the old and new texts.
//
// Collapse panics if changes is empty.
func Collapse(changes []ChangeRange) ChangeRange {
	first := changes[0]
	oldStart := first.Span.Start
	oldEnd := first.Span.End()
	newEnd := first.NewEnd()

	for _, next := range changes[1:] {
		nextStart := next.Span.Start
		nextOldEnd := next.Span.End()
		nextNewEnd := next.NewEnd()

		// The accumulated change maps old [oldStart,oldEnd) to new
		// [oldStart,newEnd). Text after newEnd in the intermediate version is
		// old text shifted by (newEnd - oldEnd).
		oldStart = min(oldStart, nextStart)
		oldEnd = max(oldEnd, oldEnd+(nextOldEnd-newEnd))
		newEnd = max(nextNewEnd, nextNewEnd+(newEnd-nextOldEnd))
	}

	return ChangeRange{
		Span:      Span{Start: oldStart, Length: oldEnd - oldStart},
		NewLength: newEnd - oldStart,
	}
}

// record is one retained history entry.
type record struct {
	version int // version produced by the change
	change  ChangeRange
}
