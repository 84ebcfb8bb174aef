// Package testpdf generates small PDF files for tests.
package testpdf

import (
	"fmt"

	"github.com/georgepadayatti/pdfseal/pdf/generic"
	"github.com/georgepadayatti/pdfseal/pdf/writer"
)

// Options controls the generated document.
type Options struct {
	Pages int
	// InheritResources puts /Resources on the page tree root instead of
	// each page.
	InheritResources bool
	// Title, when set, is stored in the /Info dictionary.
	Title string
}

// Generate returns a PDF with the given number of letter-size pages, each
// showing its page number.
func Generate(pages int) []byte {
	return GenerateWith(Options{Pages: pages})
}

// GenerateWith returns a PDF built from opts.
func GenerateWith(opts Options) []byte {
	if opts.Pages < 1 {
		opts.Pages = 1
	}
	arena := generic.NewArena()

	font := generic.NewDictionary()
	font.Set("Type", generic.NameObject("Font"))
	font.Set("Subtype", generic.NameObject("Type1"))
	font.Set("BaseFont", generic.NameObject("Helvetica"))
	fontRef := arena.Allocate(font)

	resources := generic.NewDictionary()
	fonts := generic.NewDictionary()
	fonts.Set("F1", fontRef)
	resources.Set("Font", fonts)

	pagesDict := generic.NewDictionary()
	pagesRef := arena.Allocate(pagesDict)

	kids := generic.ArrayObject{}
	for i := 1; i <= opts.Pages; i++ {
		content := fmt.Sprintf("BT /F1 24 Tf 72 720 Td (Page %d) Tj ET", i)
		contentRef := arena.Allocate(generic.NewStream(nil, []byte(content)))

		page := generic.NewDictionary()
		page.Set("Type", generic.NameObject("Page"))
		page.Set("Parent", pagesRef)
		page.Set("MediaBox", generic.Rectangle{URX: 612, URY: 792}.ToArray())
		page.Set("Contents", contentRef)
		if !opts.InheritResources {
			page.Set("Resources", resources)
		}
		kids = append(kids, arena.Allocate(page))
	}
	pagesDict.Set("Type", generic.NameObject("Pages"))
	pagesDict.Set("Kids", kids)
	pagesDict.Set("Count", generic.IntegerObject(opts.Pages))
	if opts.InheritResources {
		pagesDict.Set("Resources", resources)
	}

	catalog := generic.NewDictionary()
	catalog.Set("Type", generic.NameObject("Catalog"))
	catalog.Set("Pages", pagesRef)
	catalogRef := arena.Allocate(catalog)

	trailer := generic.NewDictionary()
	trailer.Set("Root", catalogRef)
	if opts.Title != "" {
		info := generic.NewDictionary()
		info.Set("Title", generic.NewTextString(opts.Title))
		trailer.Set("Info", arena.Allocate(info))
	}

	var objects []*generic.IndirectObject
	arena.Each(func(o *generic.IndirectObject) bool {
		objects = append(objects, o)
		return true
	})

	var out writer.Output
	if err := writer.WriteDocument(&out, "1.7", objects, trailer); err != nil {
		panic(err)
	}
	return out.Bytes()
}
