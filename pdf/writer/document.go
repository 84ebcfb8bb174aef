package writer

import (
	"fmt"
	"io"
	"sort"

	"github.com/georgepadayatti/pdfseal/pdf/generic"
)

// WriteDocument writes a complete PDF file: header, objects, a single
// classic xref section and the trailer. trailer must carry /Root; /Size is
// computed.
func WriteDocument(out io.Writer, version string, objects []*generic.IndirectObject, trailer *generic.DictionaryObject) error {
	if !trailer.Has("Root") {
		return fmt.Errorf("writer: trailer has no /Root")
	}
	if version == "" {
		version = "1.7"
	}
	counter := &countingWriter{w: out}
	if _, err := fmt.Fprintf(counter, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", version); err != nil {
		return err
	}

	sorted := make([]*generic.IndirectObject, len(objects))
	copy(sorted, objects)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	maxNum := 0
	offsets := make(map[int]int64, len(sorted))
	gens := make(map[int]int, len(sorted))
	for _, obj := range sorted {
		offsets[obj.Number] = counter.n
		gens[obj.Number] = obj.Generation
		if err := obj.Write(counter); err != nil {
			return fmt.Errorf("writer: object %d: %w", obj.Number, err)
		}
		if obj.Number > maxNum {
			maxNum = obj.Number
		}
	}

	xrefOffset := counter.n
	fmt.Fprintf(counter, "xref\n0 %d\n", maxNum+1)
	fmt.Fprintf(counter, "%010d %05d f \n", 0, 65535)
	for num := 1; num <= maxNum; num++ {
		off, ok := offsets[num]
		if !ok {
			fmt.Fprintf(counter, "%010d %05d f \n", 0, 0)
			continue
		}
		fmt.Fprintf(counter, "%010d %05d n \n", off, gens[num])
	}

	t := trailer.Clone()
	t.Set("Size", generic.IntegerObject(maxNum+1))
	t.Delete("Prev")
	t.Delete("XRefStm")
	if _, err := io.WriteString(counter, "trailer\n"); err != nil {
		return err
	}
	if err := t.Write(counter); err != nil {
		return err
	}
	_, err := fmt.Fprintf(counter, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return err
}
