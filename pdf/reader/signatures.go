package reader

import (
	"sort"

	"github.com/georgepadayatti/pdfseal/pdf/generic"
)

// SignatureDictionary is a signature value found in the document.
type SignatureDictionary struct {
	// FieldName is the fully qualified field name, empty for signature
	// dictionaries that no form field points at.
	FieldName string
	// Ref is the reference of the signature dictionary; zero when the
	// dictionary is stored directly in the field.
	Ref  generic.Reference
	Dict *generic.DictionaryObject
}

// ByteRange returns the declared /ByteRange, or false if it is not an
// array of four integers.
func (s SignatureDictionary) ByteRange() ([4]int64, bool) {
	var out [4]int64
	arr, ok := s.Dict.Get("ByteRange").(generic.ArrayObject)
	if !ok || len(arr) != 4 {
		return out, false
	}
	for i, v := range arr {
		n, ok := generic.ToInt(v)
		if !ok {
			return out, false
		}
		out[i] = n
	}
	return out, true
}

// Contents returns the raw /Contents bytes.
func (s SignatureDictionary) Contents() []byte {
	if str := s.Dict.GetString("Contents"); str != nil {
		return str.Value
	}
	return nil
}

// SignatureFieldNames returns the names of all signature form fields,
// signed or not.
func (d *Document) SignatureFieldNames() []string {
	var names []string
	d.walkFields(func(name string, field *generic.DictionaryObject) {
		names = append(names, name)
	})
	return names
}

// SignatureDictionaries returns every signature dictionary in the document,
// ordered by the end of their byte range. Dictionaries reachable through
// AcroForm fields come with their field name; others are found by scanning
// the arena for /ByteRange and /Contents.
func (d *Document) SignatureDictionaries() []SignatureDictionary {
	var out []SignatureDictionary
	seen := make(map[*generic.DictionaryObject]bool)

	d.walkFields(func(name string, field *generic.DictionaryObject) {
		v := field.Get("V")
		dict := d.arena.Dict(v)
		if dict == nil || seen[dict] {
			return
		}
		seen[dict] = true
		ref, _ := v.(generic.Reference)
		out = append(out, SignatureDictionary{FieldName: name, Ref: ref, Dict: dict})
	})

	d.arena.Each(func(o *generic.IndirectObject) bool {
		dict, ok := o.Object.(*generic.DictionaryObject)
		if !ok || seen[dict] || !dict.Has("ByteRange") || !dict.Has("Contents") {
			return true
		}
		if t := dict.GetName("Type"); t != "" && t != "Sig" && t != "DocTimeStamp" {
			return true
		}
		seen[dict] = true
		out = append(out, SignatureDictionary{Ref: o.Reference(), Dict: dict})
		return true
	})

	sort.SliceStable(out, func(i, j int) bool {
		bi, _ := out[i].ByteRange()
		bj, _ := out[j].ByteRange()
		return bi[2]+bi[3] < bj[2]+bj[3]
	})
	return out
}

// walkFields visits signature fields in the AcroForm field tree.
func (d *Document) walkFields(fn func(name string, field *generic.DictionaryObject)) {
	root := d.Root()
	if root == nil {
		return
	}
	form := d.arena.Dict(root.Get("AcroForm"))
	if form == nil {
		return
	}
	seen := make(map[*generic.DictionaryObject]bool)
	var walk func(obj generic.PdfObject, parentName, inheritedFT string, depth int)
	walk = func(obj generic.PdfObject, parentName, inheritedFT string, depth int) {
		field := d.arena.Dict(obj)
		if field == nil || seen[field] || depth > 32 {
			return
		}
		seen[field] = true
		name := parentName
		if t := field.GetString("T"); t != nil {
			if name != "" {
				name += "."
			}
			name += t.Text()
		}
		ft := inheritedFT
		if v := field.GetName("FT"); v != "" {
			ft = v
		}
		kids := d.arena.Array(field.Get("Kids"))
		if ft == "Sig" && field.Has("T") {
			fn(name, field)
		}
		for _, kid := range kids {
			walk(kid, name, ft, depth+1)
		}
	}
	for _, f := range d.arena.Array(form.Get("Fields")) {
		walk(f, "", "", 0)
	}
}

// ProvenanceEntries returns the /Provenance strings carried by image
// XObjects, in object number order.
func (d *Document) ProvenanceEntries() []string {
	var out []string
	d.arena.Each(func(o *generic.IndirectObject) bool {
		s, ok := o.Object.(*generic.StreamObject)
		if !ok || s.Dictionary.GetName("Subtype") != "Image" {
			return true
		}
		if p := s.Dictionary.GetString("Provenance"); p != nil {
			out = append(out, p.Text())
		}
		return true
	})
	return out
}
