package signers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/georgepadayatti/pdfseal/pdf/writer"
)

// ByteRangeArrayPlaceholderLength is the number of spaces reserved for the
// /ByteRange numbers, not counting the brackets.
const ByteRangeArrayPlaceholderLength = 60

var errNoOffset = errors.New("placeholder was not written to a seekable output")

// Span is a half-open region of the file: [Offset, Offset+Length).
type Span struct {
	Offset int64
	Length int64
}

// End returns Offset+Length.
func (s Span) End() int64 { return s.Offset + s.Length }

// SignaturePlaceholder describes the byte layout frozen at reservation time.
// ReservedSlot covers the whole <hex> string including its delimiters.
type SignaturePlaceholder struct {
	ByteRangeBefore Span
	ReservedSlot    Span
	ByteRangeAfter  Span
}

// ByteRange returns the /ByteRange array value.
func (p SignaturePlaceholder) ByteRange() [4]int64 {
	return [4]int64{
		p.ByteRangeBefore.Offset, p.ByteRangeBefore.Length,
		p.ByteRangeAfter.Offset, p.ByteRangeAfter.Length,
	}
}

// HexCapacity is the number of hex digits the slot can hold.
func (p SignaturePlaceholder) HexCapacity() int {
	return int(p.ReservedSlot.Length) - 2
}

// SignedContent concatenates the two covered spans of data.
func (p SignaturePlaceholder) SignedContent(data []byte) ([]byte, error) {
	size := int64(len(data))
	before, after := p.ByteRangeBefore, p.ByteRangeAfter
	if before.Offset != 0 || before.Length < 0 || after.Offset < before.Length ||
		after.Offset > size || after.Length != size-after.Offset {
		return nil, fmt.Errorf("byte range %v does not fit a %d byte file", p.ByteRange(), len(data))
	}
	out := make([]byte, 0, before.Length+after.Length)
	out = append(out, data[:before.Length]...)
	out = append(out, data[after.Offset:]...)
	return out, nil
}

// byteRangeSlot writes a fixed-width /ByteRange placeholder and remembers
// where it landed, so the real values can be patched in afterwards.
type byteRangeSlot struct {
	offset int64
}

func newByteRangeSlot() *byteRangeSlot {
	return &byteRangeSlot{offset: -1}
}

// Write implements generic.PdfObject.
func (s *byteRangeSlot) Write(w io.Writer) error {
	s.offset = writer.Position(w)
	_, err := io.WriteString(w, "[]"+strings.Repeat(" ", ByteRangeArrayPlaceholderLength))
	return err
}

// fill overwrites the placeholder in data with the final values.
func (s *byteRangeSlot) fill(data []byte, byteRange [4]int64) error {
	if s.offset < 0 {
		return errNoOffset
	}
	width := ByteRangeArrayPlaceholderLength + 2
	repr := fmt.Sprintf("[%d %d %d %d]", byteRange[0], byteRange[1], byteRange[2], byteRange[3])
	if len(repr) > width {
		return fmt.Errorf("byte range string too long: %d > %d", len(repr), width)
	}
	if s.offset+int64(width) > int64(len(data)) || !bytes.HasPrefix(data[s.offset:], []byte("[]")) {
		return fmt.Errorf("byte range placeholder not found at offset %d", s.offset)
	}
	copy(data[s.offset:], repr+strings.Repeat(" ", width-len(repr)))
	return nil
}

// contentsSlot writes the zero-filled hex string that will receive the
// signature.
type contentsSlot struct {
	size  int
	start int64
	end   int64
}

func newContentsSlot(size int) *contentsSlot {
	return &contentsSlot{size: size, start: -1, end: -1}
}

// Write implements generic.PdfObject.
func (c *contentsSlot) Write(w io.Writer) error {
	c.start = writer.Position(w)
	buf := make([]byte, 0, 2*c.size+2)
	buf = append(buf, '<')
	buf = append(buf, bytes.Repeat([]byte{'0'}, 2*c.size)...)
	buf = append(buf, '>')
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if c.start >= 0 {
		c.end = c.start + int64(n)
	}
	return nil
}

// offsets returns the start and end of the written slot.
func (c *contentsSlot) offsets() (int64, int64, error) {
	if c.start < 0 || c.end < 0 {
		return 0, 0, errNoOffset
	}
	return c.start, c.end, nil
}
