package writer

import (
	"fmt"
	"io"
	"sort"

	"github.com/georgepadayatti/pdfseal/pdf/generic"
	"github.com/georgepadayatti/pdfseal/pdf/reader"
)

// IncrementalWriter collects new and changed objects and appends them to
// the original file as an incremental update. The original bytes are never
// modified.
type IncrementalWriter struct {
	doc     *reader.Document
	objects map[int]*generic.IndirectObject
	next    int
}

// NewIncrementalWriter creates a writer for an update to doc.
func NewIncrementalWriter(doc *reader.Document) *IncrementalWriter {
	return &IncrementalWriter{
		doc:     doc,
		objects: make(map[int]*generic.IndirectObject),
		next:    doc.Size(),
	}
}

// Document returns the document being updated.
func (w *IncrementalWriter) Document() *reader.Document { return w.doc }

// AddObject stores obj under a new object number.
func (w *IncrementalWriter) AddObject(obj generic.PdfObject) generic.Reference {
	num := w.next
	w.next++
	w.objects[num] = &generic.IndirectObject{Number: num, Object: obj}
	return generic.Reference{ObjectNumber: num}
}

// UpdateObject replaces the object behind ref in the update.
func (w *IncrementalWriter) UpdateObject(ref generic.Reference, obj generic.PdfObject) {
	w.objects[ref.ObjectNumber] = &generic.IndirectObject{
		Number:     ref.ObjectNumber,
		Generation: ref.GenerationNumber,
		Object:     obj,
	}
}

// Resolve follows references, preferring objects pending in the update.
func (w *IncrementalWriter) Resolve(obj generic.PdfObject) generic.PdfObject {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(generic.Reference)
		if !ok {
			return obj
		}
		if pending, ok := w.objects[ref.ObjectNumber]; ok {
			obj = pending.Object
			continue
		}
		return w.doc.Resolve(ref)
	}
	return generic.NullObject{}
}

// Dict resolves obj to a dictionary.
func (w *IncrementalWriter) Dict(obj generic.PdfObject) *generic.DictionaryObject {
	switch v := w.Resolve(obj).(type) {
	case *generic.DictionaryObject:
		return v
	case *generic.StreamObject:
		return v.Dictionary
	}
	return nil
}

// HasChanges reports whether any object was added or updated.
func (w *IncrementalWriter) HasChanges() bool { return len(w.objects) > 0 }

// Write writes the original file followed by the update. Offsets are
// counted from the position of out, so out should be empty or seekable.
func (w *IncrementalWriter) Write(out io.Writer) error {
	counter := &countingWriter{w: out}
	if pos := Position(out); pos > 0 {
		counter.n = pos
	}
	original := w.doc.Bytes()
	if _, err := counter.Write(original); err != nil {
		return err
	}
	if n := len(original); n > 0 && original[n-1] != '\n' && original[n-1] != '\r' {
		if _, err := io.WriteString(counter, "\n"); err != nil {
			return err
		}
	}
	return w.writeUpdate(counter)
}

// Bytes renders the updated file.
func (w *IncrementalWriter) Bytes() ([]byte, error) {
	var out Output
	if err := w.Write(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (w *IncrementalWriter) writeUpdate(counter *countingWriter) error {
	nums := make([]int, 0, len(w.objects))
	for num := range w.objects {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	offsets := make(map[int]int64, len(nums))
	for _, num := range nums {
		offsets[num] = counter.n
		if err := w.objects[num].Write(counter); err != nil {
			return fmt.Errorf("writer: object %d: %w", num, err)
		}
	}

	xrefOffset := counter.n
	if _, err := io.WriteString(counter, "xref\n"); err != nil {
		return err
	}
	for _, sub := range subsections(nums) {
		fmt.Fprintf(counter, "%d %d\n", sub[0], len(sub))
		for _, num := range sub {
			fmt.Fprintf(counter, "%010d %05d n \n", offsets[num], w.objects[num].Generation)
		}
	}

	trailer := w.trailer()
	if _, err := io.WriteString(counter, "trailer\n"); err != nil {
		return err
	}
	if err := trailer.Write(counter); err != nil {
		return err
	}
	_, err := fmt.Fprintf(counter, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return err
}

func (w *IncrementalWriter) trailer() *generic.DictionaryObject {
	src := w.doc.Trailer()
	size := w.doc.Size()
	if w.next > size {
		size = w.next
	}
	t := generic.NewDictionary()
	t.Set("Size", generic.IntegerObject(size))
	if prev := w.doc.StartXRef(); prev >= 0 {
		t.Set("Prev", generic.IntegerObject(prev))
	}
	t.Set("Root", src.Get("Root"))
	if info := src.Get("Info"); info != nil {
		t.Set("Info", info)
	}
	t.Set("ID", documentID(src))
	return t
}

// subsections groups sorted object numbers into contiguous runs.
func subsections(nums []int) [][]int {
	var out [][]int
	for i, num := range nums {
		if i == 0 || num != nums[i-1]+1 {
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], num)
	}
	return out
}

// countingWriter tracks the absolute offset of everything written through
// it and exposes it as a seek position.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (c *countingWriter) Seek(offset int64, whence int) (int64, error) {
	if offset != 0 || whence != io.SeekCurrent {
		return 0, fmt.Errorf("writer: unsupported seek")
	}
	return c.n, nil
}
