// Package writer serializes PDF documents, either as an incremental update
// appended to an existing file or as a complete rewrite.
package writer

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"

	"github.com/georgepadayatti/pdfseal/pdf/generic"
)

// Output is an in-memory write target that reports its position through
// io.Seeker, so objects written into it can record absolute offsets.
type Output struct {
	buf bytes.Buffer
}

// Write implements io.Writer.
func (o *Output) Write(p []byte) (int, error) {
	return o.buf.Write(p)
}

// Seek only supports querying the current position.
func (o *Output) Seek(offset int64, whence int) (int64, error) {
	if offset != 0 || whence != io.SeekCurrent {
		return 0, errors.New("writer: output only supports Seek(0, io.SeekCurrent)")
	}
	return int64(o.buf.Len()), nil
}

// Len returns the number of bytes written.
func (o *Output) Len() int { return o.buf.Len() }

// Bytes returns the written bytes.
func (o *Output) Bytes() []byte { return o.buf.Bytes() }

// Position returns the current offset of w, or -1 if w cannot report it.
func Position(w io.Writer) int64 {
	s, ok := w.(io.Seeker)
	if !ok {
		return -1
	}
	pos, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1
	}
	return pos
}

// documentID keeps the permanent identifier of the source trailer and
// generates a fresh changing identifier.
func documentID(trailer *generic.DictionaryObject) generic.ArrayObject {
	id2 := make([]byte, 16)
	rand.Read(id2)

	var id1 []byte
	if ids, ok := trailer.Get("ID").(generic.ArrayObject); ok && len(ids) >= 1 {
		if s, ok := ids[0].(*generic.StringObject); ok && len(s.Value) > 0 {
			id1 = s.Value
		}
	}
	if id1 == nil {
		id1 = make([]byte, 16)
		rand.Read(id1)
	}
	return generic.ArrayObject{generic.NewHexString(id1), generic.NewHexString(id2)}
}
