package writer

import (
	"github.com/georgepadayatti/pdfseal/pdf/generic"
	"github.com/georgepadayatti/pdfseal/pdf/reader"
)

// Rewrite serializes doc as a fresh single-section file. Only objects
// reachable from /Root and /Info survive; they are renumbered densely in
// discovery order and every reference is rewritten to the new numbering.
// Object streams and xref streams are dropped.
func Rewrite(doc *reader.Document) ([]byte, error) {
	arena := doc.Arena()
	mapping := make(map[int]int)
	var order []int

	var queue []generic.PdfObject
	enqueue := func(obj generic.PdfObject) {
		queue = append(queue, obj)
	}
	src := doc.Trailer()
	enqueue(src.Get("Root"))
	enqueue(src.Get("Info"))

	for len(queue) > 0 {
		obj := queue[0]
		queue = queue[1:]
		switch v := obj.(type) {
		case generic.Reference:
			if _, done := mapping[v.ObjectNumber]; done {
				continue
			}
			entry := arena.Get(v.ObjectNumber)
			if entry == nil {
				continue
			}
			mapping[v.ObjectNumber] = len(order) + 1
			order = append(order, v.ObjectNumber)
			enqueue(entry.Object)
		case *generic.DictionaryObject:
			for _, k := range v.Keys() {
				enqueue(v.Get(k))
			}
		case *generic.StreamObject:
			enqueue(v.Dictionary)
		case generic.ArrayObject:
			for _, item := range v {
				enqueue(item)
			}
		}
	}

	objects := make([]*generic.IndirectObject, 0, len(order))
	for _, old := range order {
		objects = append(objects, &generic.IndirectObject{
			Number: mapping[old],
			Object: remap(arena.Get(old).Object, mapping),
		})
	}

	trailer := generic.NewDictionary()
	trailer.Set("Root", remap(src.Get("Root"), mapping))
	if info := src.Get("Info"); info != nil {
		trailer.Set("Info", remap(info, mapping))
	}
	trailer.Set("ID", documentID(src))

	var out Output
	if err := WriteDocument(&out, doc.Version(), objects, trailer); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// remap deep-copies obj, translating references through mapping. References
// to objects that were not kept become null.
func remap(obj generic.PdfObject, mapping map[int]int) generic.PdfObject {
	switch v := obj.(type) {
	case generic.Reference:
		if n, ok := mapping[v.ObjectNumber]; ok {
			return generic.Reference{ObjectNumber: n}
		}
		return generic.NullObject{}
	case *generic.DictionaryObject:
		out := generic.NewDictionary()
		for _, k := range v.Keys() {
			value := remap(v.Get(k), mapping)
			if _, isNull := value.(generic.NullObject); isNull {
				continue
			}
			out.Set(k, value)
		}
		return out
	case *generic.StreamObject:
		dict := remap(v.Dictionary, mapping).(*generic.DictionaryObject)
		return &generic.StreamObject{Dictionary: dict, Data: v.Data}
	case generic.ArrayObject:
		out := make(generic.ArrayObject, len(v))
		for i, item := range v {
			out[i] = remap(item, mapping)
		}
		return out
	}
	return obj
}
