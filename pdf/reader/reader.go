// Package reader parses PDF files into an object arena.
package reader

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/georgepadayatti/pdfseal/pdf/generic"
)

// Common errors
var (
	ErrNotPDF         = errors.New("missing %PDF- header")
	ErrNoXRef         = errors.New("no startxref found")
	ErrInvalidXRef    = errors.New("invalid xref")
	ErrEncrypted      = errors.New("encrypted PDFs are not supported")
	ErrNoRoot         = errors.New("trailer has no document catalog")
	ErrPageOutOfRange = errors.New("page index out of range")
)

// Document is a parsed PDF: the original bytes plus the object graph they
// describe. Objects live in an arena indexed by object number.
type Document struct {
	data          []byte
	version       string
	trailer       *generic.DictionaryObject
	arena         *generic.Arena
	startXRef     int64
	pages         []generic.Reference
	reconstructed bool
}

// Parse parses data. If the cross-reference chain is damaged, the object
// table is rebuilt by scanning for object headers.
func Parse(data []byte) (*Document, error) {
	version, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	d := &Document{data: data, version: version, arena: generic.NewArena(), startXRef: -1}

	if err := d.load(); err != nil {
		d.arena = generic.NewArena()
		if rerr := d.reconstruct(); rerr != nil {
			return nil, fmt.Errorf("%w (reconstruction failed: %v)", err, rerr)
		}
		d.reconstructed = true
	}

	if d.trailer.Has("Encrypt") {
		return nil, ErrEncrypted
	}
	if d.Root() == nil {
		return nil, ErrNoRoot
	}
	d.pages = d.collectPages()
	return d, nil
}

func parseHeader(data []byte) (string, error) {
	limit := len(data)
	if limit > 1024 {
		limit = 1024
	}
	idx := bytes.Index(data[:limit], []byte("%PDF-"))
	if idx < 0 {
		return "", ErrNotPDF
	}
	p := generic.NewParser(data)
	p.Seek(idx + len("%PDF-"))
	return p.ReadKeyword(), nil
}

func (d *Document) load() error {
	start, err := findStartXRef(d.data)
	if err != nil {
		return err
	}
	d.startXRef = start
	table, trailer, err := d.readXRefChain(start)
	if err != nil {
		return err
	}
	d.trailer = trailer
	return d.loadObjects(table)
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, ErrNoXRef
	}
	p := generic.NewParser(data)
	p.Seek(idx + len("startxref"))
	off, err := p.ReadInt()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoXRef, err)
	}
	if off < 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("%w: startxref %d outside file", ErrInvalidXRef, off)
	}
	return off, nil
}

// Bytes returns the file contents. Callers must not modify the slice.
func (d *Document) Bytes() []byte { return d.data }

// Version returns the header version, e.g. "1.7".
func (d *Document) Version() string { return d.version }

// Trailer returns the newest trailer dictionary.
func (d *Document) Trailer() *generic.DictionaryObject { return d.trailer }

// Arena returns the object arena.
func (d *Document) Arena() *generic.Arena { return d.arena }

// StartXRef returns the offset of the newest xref section, or -1 when the
// table was reconstructed.
func (d *Document) StartXRef() int64 { return d.startXRef }

// Reconstructed reports whether the xref table had to be rebuilt.
func (d *Document) Reconstructed() bool { return d.reconstructed }

// Resolve follows references.
func (d *Document) Resolve(obj generic.PdfObject) generic.PdfObject {
	return d.arena.Resolve(obj)
}

// Size returns one past the highest object number in use.
func (d *Document) Size() int {
	size := d.arena.MaxNumber() + 1
	if s, ok := d.trailer.GetInt("Size"); ok && int(s) > size {
		size = int(s)
	}
	return size
}

// RootRef returns the reference to the document catalog.
func (d *Document) RootRef() (generic.Reference, bool) {
	ref, ok := d.trailer.Get("Root").(generic.Reference)
	return ref, ok
}

// Root returns the document catalog.
func (d *Document) Root() *generic.DictionaryObject {
	return d.arena.Dict(d.trailer.Get("Root"))
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return len(d.pages) }

// Page returns the page with the given 1-based index.
func (d *Document) Page(index int) (generic.Reference, *generic.DictionaryObject, error) {
	if index < 1 || index > len(d.pages) {
		return generic.Reference{}, nil, fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, index, len(d.pages))
	}
	ref := d.pages[index-1]
	return ref, d.arena.Dict(ref), nil
}

func (d *Document) collectPages() []generic.Reference {
	var pages []generic.Reference
	seen := make(map[int]bool)
	var walk func(obj generic.PdfObject)
	walk = func(obj generic.PdfObject) {
		ref, ok := obj.(generic.Reference)
		if !ok || seen[ref.ObjectNumber] {
			return
		}
		seen[ref.ObjectNumber] = true
		node := d.arena.Dict(ref)
		if node == nil {
			return
		}
		kids := d.arena.Array(node.Get("Kids"))
		if node.GetName("Type") == "Page" || (kids == nil && node.GetName("Type") != "Pages") {
			pages = append(pages, ref)
			return
		}
		for _, kid := range kids {
			walk(kid)
		}
	}
	if root := d.Root(); root != nil {
		walk(root.Get("Pages"))
	}
	return pages
}

// InheritedAttribute looks up key on a page node and then its ancestors.
func (d *Document) InheritedAttribute(page *generic.DictionaryObject, key string) generic.PdfObject {
	node := page
	for depth := 0; node != nil && depth < 64; depth++ {
		if v := node.Get(key); v != nil {
			return v
		}
		node = d.arena.Dict(node.Get("Parent"))
	}
	return nil
}

