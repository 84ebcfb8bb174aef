package signers

import (
	"bytes"
	"strings"
	"testing"

	"github.com/georgepadayatti/pdfseal/pdf/writer"
)

func TestByteRangeSlot(t *testing.T) {
	t.Run("Placeholder", func(t *testing.T) {
		var out writer.Output
		out.Write([]byte("<</ByteRange "))
		slot := newByteRangeSlot()
		if err := slot.Write(&out); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if slot.offset != 13 {
			t.Errorf("offset = %d, want 13", slot.offset)
		}
		got := string(out.Bytes()[13:])
		if len(got) != 2+ByteRangeArrayPlaceholderLength {
			t.Errorf("placeholder length = %d, want %d", len(got), 2+ByteRangeArrayPlaceholderLength)
		}
		if !strings.HasPrefix(got, "[]") {
			t.Errorf("placeholder should start with '[]', got %q", got[:2])
		}
	})

	t.Run("Fill", func(t *testing.T) {
		var out writer.Output
		slot := newByteRangeSlot()
		slot.Write(&out)
		out.Write([]byte(">>"))
		data := append([]byte(nil), out.Bytes()...)

		if err := slot.fill(data, [4]int64{0, 100, 200, 300}); err != nil {
			t.Fatalf("fill failed: %v", err)
		}
		want := "[0 100 200 300]"
		if !bytes.HasPrefix(data, []byte(want)) {
			t.Errorf("filled = %q, want prefix %q", data, want)
		}
		if len(data) != 2+ByteRangeArrayPlaceholderLength+2 {
			t.Errorf("fill changed the length to %d", len(data))
		}
		if !bytes.HasSuffix(data, []byte(" >>")) {
			t.Errorf("fill should pad with spaces, got %q", data)
		}
	})

	t.Run("TooLong", func(t *testing.T) {
		var out writer.Output
		slot := newByteRangeSlot()
		slot.Write(&out)
		huge := int64(1) << 62
		if err := slot.fill(out.Bytes(), [4]int64{huge, huge, huge, huge}); err == nil {
			t.Error("expected error for oversized byte range")
		}
	})

	t.Run("NotSeekable", func(t *testing.T) {
		var buf bytes.Buffer
		slot := newByteRangeSlot()
		slot.Write(&buf)
		if err := slot.fill(buf.Bytes(), [4]int64{0, 1, 2, 3}); err == nil {
			t.Error("expected error when the offset is unknown")
		}
	})
}

func TestContentsSlot(t *testing.T) {
	var out writer.Output
	out.Write([]byte("/Contents "))
	slot := newContentsSlot(4)
	if err := slot.Write(&out); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	start, end, err := slot.offsets()
	if err != nil {
		t.Fatalf("offsets failed: %v", err)
	}
	if start != 10 || end != 20 {
		t.Errorf("offsets = (%d, %d), want (10, 20)", start, end)
	}
	if got := string(out.Bytes()[start:end]); got != "<00000000>" {
		t.Errorf("slot = %q", got)
	}
}

func TestSignaturePlaceholder(t *testing.T) {
	p := SignaturePlaceholder{
		ByteRangeBefore: Span{Offset: 0, Length: 3},
		ReservedSlot:    Span{Offset: 3, Length: 6},
		ByteRangeAfter:  Span{Offset: 9, Length: 2},
	}
	if got := p.ByteRange(); got != [4]int64{0, 3, 9, 2} {
		t.Errorf("ByteRange = %v", got)
	}
	if got := p.HexCapacity(); got != 4 {
		t.Errorf("HexCapacity = %d, want 4", got)
	}

	content, err := p.SignedContent([]byte("abc<ABCD>de"))
	if err != nil {
		t.Fatalf("SignedContent failed: %v", err)
	}
	if string(content) != "abcde" {
		t.Errorf("SignedContent = %q, want %q", content, "abcde")
	}

	if _, err := p.SignedContent([]byte("abc<ABCD>def")); err == nil {
		t.Error("expected error when the file length does not match the byte range")
	}

	hostile := []SignaturePlaceholder{
		{ByteRangeBefore: Span{0, 3}, ByteRangeAfter: Span{Offset: 1<<63 - 8, Length: 100}},
		{ByteRangeBefore: Span{0, 3}, ByteRangeAfter: Span{Offset: 9, Length: 1<<63 - 1}},
		{ByteRangeBefore: Span{0, -1}, ByteRangeAfter: Span{Offset: 9, Length: 2}},
		{ByteRangeBefore: Span{0, 10}, ByteRangeAfter: Span{Offset: 9, Length: 2}},
	}
	for _, h := range hostile {
		if _, err := h.SignedContent([]byte("abc<ABCD>de")); err == nil {
			t.Errorf("SignedContent(%v) should fail", h.ByteRange())
		}
	}
}
