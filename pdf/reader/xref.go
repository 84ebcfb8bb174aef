package reader

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/georgepadayatti/pdfseal/pdf/filters"
	"github.com/georgepadayatti/pdfseal/pdf/generic"
)

// xrefKind is the type of a cross-reference entry.
type xrefKind int

const (
	xrefFree xrefKind = iota
	xrefOffset
	xrefCompressed
)

type xrefEntry struct {
	kind       xrefKind
	offset     int64
	generation int
	stream     int
	index      int
}

// xrefTable maps object numbers to their newest entry.
type xrefTable map[int]xrefEntry

// addIfAbsent records e unless a newer section already defined num.
func (t xrefTable) addIfAbsent(num int, e xrefEntry) {
	if _, ok := t[num]; !ok {
		t[num] = e
	}
}

// readXRefChain walks the /Prev chain starting at the newest section and
// returns the merged table together with the newest trailer.
func (d *Document) readXRefChain(start int64) (xrefTable, *generic.DictionaryObject, error) {
	table := make(xrefTable)
	var newest *generic.DictionaryObject
	visited := make(map[int64]bool)

	for offset := start; ; {
		if visited[offset] {
			break
		}
		visited[offset] = true
		trailer, err := d.readXRefSection(offset, table)
		if err != nil {
			return nil, nil, err
		}
		if newest == nil {
			newest = trailer
		}
		if stm, ok := trailer.GetInt("XRefStm"); ok && !visited[stm] {
			visited[stm] = true
			if _, err := d.readXRefSection(stm, table); err != nil {
				return nil, nil, err
			}
		}
		prev, ok := trailer.GetInt("Prev")
		if !ok {
			break
		}
		if prev < 0 || prev >= int64(len(d.data)) {
			return nil, nil, fmt.Errorf("%w: /Prev %d outside file", ErrInvalidXRef, prev)
		}
		offset = prev
	}
	return table, newest, nil
}

func (d *Document) readXRefSection(offset int64, table xrefTable) (*generic.DictionaryObject, error) {
	p := generic.NewParser(d.data)
	p.Seek(int(offset))
	p.SkipWhitespace()
	if bytes.HasPrefix(d.data[p.Pos():], []byte("xref")) {
		p.ReadKeyword()
		return readXRefTable(p, table)
	}
	obj, err := p.ParseIndirectObject(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: at %d: %v", ErrInvalidXRef, offset, err)
	}
	stream, ok := obj.Object.(*generic.StreamObject)
	if !ok || stream.Dictionary.GetName("Type") != "XRef" {
		return nil, fmt.Errorf("%w: no xref section at %d", ErrInvalidXRef, offset)
	}
	if err := readXRefStream(stream, table); err != nil {
		return nil, err
	}
	return stream.Dictionary, nil
}

func readXRefTable(p *generic.Parser, table xrefTable) (*generic.DictionaryObject, error) {
	for {
		save := p.Pos()
		kw := p.ReadKeyword()
		if kw == "trailer" {
			obj, err := p.ParseObject()
			if err != nil {
				return nil, fmt.Errorf("%w: trailer: %v", ErrInvalidXRef, err)
			}
			trailer, ok := obj.(*generic.DictionaryObject)
			if !ok {
				return nil, fmt.Errorf("%w: trailer is not a dictionary", ErrInvalidXRef)
			}
			return trailer, nil
		}
		p.Seek(save)
		first, err := p.ReadInt()
		if err != nil {
			return nil, fmt.Errorf("%w: subsection header: %v", ErrInvalidXRef, err)
		}
		count, err := p.ReadInt()
		if err != nil {
			return nil, fmt.Errorf("%w: subsection header: %v", ErrInvalidXRef, err)
		}
		for i := int64(0); i < count; i++ {
			off, err1 := p.ReadInt()
			gen, err2 := p.ReadInt()
			flag := p.ReadKeyword()
			if err1 != nil || err2 != nil || (flag != "n" && flag != "f") {
				return nil, fmt.Errorf("%w: malformed entry %d", ErrInvalidXRef, first+i)
			}
			num := int(first + i)
			if flag == "f" {
				table.addIfAbsent(num, xrefEntry{kind: xrefFree})
				continue
			}
			table.addIfAbsent(num, xrefEntry{kind: xrefOffset, offset: off, generation: int(gen)})
		}
	}
}

func readXRefStream(stream *generic.StreamObject, table xrefTable) error {
	data, err := filters.DecodeStream(stream, nil)
	if err != nil {
		return fmt.Errorf("%w: xref stream: %v", ErrInvalidXRef, err)
	}
	dict := stream.Dictionary
	wArr, _ := dict.Get("W").(generic.ArrayObject)
	if len(wArr) != 3 {
		return fmt.Errorf("%w: xref stream /W must have 3 entries", ErrInvalidXRef)
	}
	var w [3]int
	for i := range w {
		v, _ := generic.ToInt(wArr[i])
		if v < 0 || v > 8 {
			return fmt.Errorf("%w: bad /W entry %d", ErrInvalidXRef, v)
		}
		w[i] = int(v)
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return fmt.Errorf("%w: empty xref stream rows", ErrInvalidXRef)
	}

	size, _ := dict.GetInt("Size")
	index := []int64{0, size}
	if idx, ok := dict.Get("Index").(generic.ArrayObject); ok && len(idx)%2 == 0 {
		index = index[:0]
		for _, v := range idx {
			n, _ := generic.ToInt(v)
			index = append(index, n)
		}
	}

	pos := 0
	for s := 0; s+1 < len(index); s += 2 {
		for i := int64(0); i < index[s+1]; i++ {
			if pos+rowLen > len(data) {
				return fmt.Errorf("%w: xref stream truncated", ErrInvalidXRef)
			}
			row := data[pos : pos+rowLen]
			pos += rowLen
			kind := int64(1)
			if w[0] > 0 {
				kind = field(row[:w[0]])
			}
			f2 := field(row[w[0] : w[0]+w[1]])
			f3 := field(row[w[0]+w[1]:])
			num := int(index[s] + i)
			switch kind {
			case 0:
				table.addIfAbsent(num, xrefEntry{kind: xrefFree})
			case 1:
				table.addIfAbsent(num, xrefEntry{kind: xrefOffset, offset: f2, generation: int(f3)})
			case 2:
				table.addIfAbsent(num, xrefEntry{kind: xrefCompressed, stream: int(f2), index: int(f3)})
			}
		}
	}
	return nil
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// loadObjects parses every in-use object into the arena.
func (d *Document) loadObjects(table xrefTable) error {
	lengthOf := func(ref generic.Reference) (int64, bool) {
		e, ok := table[ref.ObjectNumber]
		if !ok || e.kind != xrefOffset {
			return 0, false
		}
		p := generic.NewParser(d.data)
		p.Seek(int(e.offset))
		obj, err := p.ParseIndirectObject(nil)
		if err != nil {
			return 0, false
		}
		return generic.ToInt(obj.Object)
	}

	nums := make([]int, 0, len(table))
	for num := range table {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	compressed := make(map[int][]int)
	for _, num := range nums {
		e := table[num]
		switch e.kind {
		case xrefOffset:
			if e.offset <= 0 || e.offset >= int64(len(d.data)) {
				return fmt.Errorf("%w: object %d offset %d outside file", ErrInvalidXRef, num, e.offset)
			}
			p := generic.NewParser(d.data)
			p.Seek(int(e.offset))
			obj, err := p.ParseIndirectObject(lengthOf)
			if err != nil {
				return fmt.Errorf("%w: object %d: %v", ErrInvalidXRef, num, err)
			}
			if obj.Number != num {
				return fmt.Errorf("%w: offset for object %d points at object %d", ErrInvalidXRef, num, obj.Number)
			}
			d.arena.Set(num, obj.Generation, obj.Object)
		case xrefCompressed:
			compressed[e.stream] = append(compressed[e.stream], num)
		}
	}

	for streamNum, members := range compressed {
		wanted := make(map[int]bool, len(members))
		for _, m := range members {
			wanted[m] = true
		}
		if err := d.loadObjectStream(streamNum, wanted); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) loadObjectStream(num int, wanted map[int]bool) error {
	entry := d.arena.Get(num)
	if entry == nil {
		return fmt.Errorf("%w: object stream %d missing", ErrInvalidXRef, num)
	}
	stream, ok := entry.Object.(*generic.StreamObject)
	if !ok {
		return fmt.Errorf("%w: object %d is not an object stream", ErrInvalidXRef, num)
	}
	data, err := filters.DecodeStream(stream, d.arena)
	if err != nil {
		return fmt.Errorf("object stream %d: %w", num, err)
	}
	n, _ := stream.Dictionary.GetInt("N")
	first, _ := stream.Dictionary.GetInt("First")
	if first < 0 || first > int64(len(data)) {
		return fmt.Errorf("%w: object stream %d has bad /First", ErrInvalidXRef, num)
	}

	p := generic.NewParser(data)
	type member struct{ num, offset int64 }
	members := make([]member, 0, n)
	for i := int64(0); i < n; i++ {
		objNum, err1 := p.ReadInt()
		off, err2 := p.ReadInt()
		if err1 != nil || err2 != nil {
			return fmt.Errorf("%w: object stream %d header", ErrInvalidXRef, num)
		}
		members = append(members, member{objNum, off})
	}
	for _, m := range members {
		if !wanted[int(m.num)] {
			continue
		}
		p.Seek(int(first + m.offset))
		obj, err := p.ParseObject()
		if err != nil {
			return fmt.Errorf("object %d in stream %d: %w", m.num, num, err)
		}
		d.arena.Set(int(m.num), 0, obj)
	}
	return nil
}

var objHeader = regexp.MustCompile(`(?m)(\d+)[ \t\r\n\f\x00]+(\d+)[ \t\r\n\f\x00]+obj\b`)

// reconstruct rebuilds the object table by scanning for "n g obj". Later
// definitions override earlier ones, matching incremental update order.
func (d *Document) reconstruct() error {
	d.startXRef = -1
	matches := objHeader.FindAllSubmatchIndex(d.data, -1)
	if len(matches) == 0 {
		return fmt.Errorf("%w: no objects found", ErrInvalidXRef)
	}

	var xrefTrailer *generic.DictionaryObject
	var objStreams []int
	for _, m := range matches {
		if m[0] > 0 && isDigit(d.data[m[0]-1]) {
			continue
		}
		num, _ := strconv.Atoi(string(d.data[m[2]:m[3]]))
		p := generic.NewParser(d.data)
		p.Seek(m[0])
		obj, err := p.ParseIndirectObject(nil)
		if err != nil {
			continue
		}
		d.arena.Set(num, obj.Generation, obj.Object)
		if s, ok := obj.Object.(*generic.StreamObject); ok {
			switch s.Dictionary.GetName("Type") {
			case "XRef":
				xrefTrailer = s.Dictionary
			case "ObjStm":
				objStreams = append(objStreams, num)
			}
		}
	}

	for _, num := range objStreams {
		wanted := make(map[int]bool)
		if err := d.loadObjectStreamAll(num, wanted); err != nil {
			continue
		}
	}

	d.trailer = lastTrailer(d.data)
	if d.trailer == nil {
		d.trailer = xrefTrailer
	}
	if d.trailer == nil || d.arena.Dict(d.trailer.Get("Root")) == nil {
		t := generic.NewDictionary()
		if d.trailer != nil {
			t = d.trailer.Clone()
		}
		d.arena.Each(func(o *generic.IndirectObject) bool {
			if dict, ok := o.Object.(*generic.DictionaryObject); ok && dict.GetName("Type") == "Catalog" {
				t.Set("Root", o.Reference())
			}
			return true
		})
		d.trailer = t
	}
	return nil
}

// loadObjectStreamAll loads every member of an object stream that the
// scan did not already find as a top-level object.
func (d *Document) loadObjectStreamAll(num int, wanted map[int]bool) error {
	stream := d.arena.Get(num).Object.(*generic.StreamObject)
	data, err := filters.DecodeStream(stream, d.arena)
	if err != nil {
		return err
	}
	n, _ := stream.Dictionary.GetInt("N")
	p := generic.NewParser(data)
	for i := int64(0); i < n; i++ {
		objNum, err := p.ReadInt()
		if err != nil {
			return err
		}
		if _, err := p.ReadInt(); err != nil {
			return err
		}
		if d.arena.Get(int(objNum)) == nil {
			wanted[int(objNum)] = true
		}
	}
	return d.loadObjectStream(num, wanted)
}

func lastTrailer(data []byte) *generic.DictionaryObject {
	idx := bytes.LastIndex(data, []byte("trailer"))
	if idx < 0 {
		return nil
	}
	p := generic.NewParser(data)
	p.Seek(idx + len("trailer"))
	obj, err := p.ParseObject()
	if err != nil {
		return nil
	}
	dict, _ := obj.(*generic.DictionaryObject)
	return dict
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
