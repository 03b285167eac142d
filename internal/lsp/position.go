package lsp

import (
	"sort"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// PositionConverter translates between byte offsets and LSP positions,
// whose characters count UTF-16 code units.
type PositionConverter struct {
	content string
	// starts holds the byte offset of each line start.
	starts []int
}

// NewPositionConverter indexes content.
func NewPositionConverter(content string) *PositionConverter {
	pc := &PositionConverter{content: content, starts: []int{0}}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			pc.starts = append(pc.starts, i+1)
		}
	}
	return pc
}

// LineCount returns the number of lines.
func (pc *PositionConverter) LineCount() int {
	return len(pc.starts)
}

// LineContent returns a line without its newline.
func (pc *PositionConverter) LineContent(line int) string {
	if line < 0 || line >= len(pc.starts) {
		return ""
	}
	start, end := pc.lineBounds(line)
	return pc.content[start:end]
}

func (pc *PositionConverter) lineBounds(line int) (start, end int) {
	start = pc.starts[line]
	end = len(pc.content)
	if line+1 < len(pc.starts) {
		end = pc.starts[line+1] - 1
	}
	return start, end
}

// ByteOffsetToPosition converts a byte offset to an LSP position. Offsets
// outside the content are clamped.
func (pc *PositionConverter) ByteOffsetToPosition(offset int) protocol.Position {
	offset = max(0, min(offset, len(pc.content)))
	line := sort.Search(len(pc.starts), func(i int) bool { return pc.starts[i] > offset }) - 1
	start, _ := pc.lineBounds(line)
	return protocol.Position{
		Line:      protocol.UInteger(line),
		Character: protocol.UInteger(utf16Len(pc.content[start:offset])),
	}
}

// PositionToByteOffset converts an LSP position to a byte offset. Lines
// past the end map to the content length and characters past the end of
// a line to the line end.
func (pc *PositionConverter) PositionToByteOffset(pos protocol.Position) int {
	line := int(pos.Line)
	if line >= len(pc.starts) {
		return len(pc.content)
	}
	start, end := pc.lineBounds(line)
	return start + utf16ToByteOffset(pc.content[start:end], int(pos.Character))
}

// RangeToByteOffsets converts an LSP range to byte offsets.
func (pc *PositionConverter) RangeToByteOffsets(r protocol.Range) (start, end int) {
	return pc.PositionToByteOffset(r.Start), pc.PositionToByteOffset(r.End)
}

// ByteOffsetsToRange converts byte offsets to an LSP range.
func (pc *PositionConverter) ByteOffsetsToRange(start, end int) protocol.Range {
	return protocol.Range{Start: pc.ByteOffsetToPosition(start), End: pc.ByteOffsetToPosition(end)}
}

// utf16Len returns the length of s in UTF-16 code units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2 // surrogate pair
		} else {
			n++
		}
	}
	return n
}

// utf16ToByteOffset converts a UTF-16 offset within s to a byte offset.
func utf16ToByteOffset(s string, utf16Off int) int {
	if utf16Off <= 0 {
		return 0
	}
	count := 0
	for i, r := range s {
		if count >= utf16Off {
			return i
		}
		if r >= 0x10000 {
			count += 2
		} else {
			count++
		}
	}
	return len(s)
}
