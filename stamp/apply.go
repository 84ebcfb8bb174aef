package stamp

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/georgepadayatti/pdfseal/errs"
	"github.com/georgepadayatti/pdfseal/pdf/generic"
	"github.com/georgepadayatti/pdfseal/pdf/images"
	"github.com/georgepadayatti/pdfseal/pdf/reader"
	"github.com/georgepadayatti/pdfseal/pdf/writer"
)

// Apply draws req.PNG onto the requested page and returns the document
// with the change appended as an incremental update. The image XObject
// carries the marker JSON under /Provenance.
func Apply(doc *reader.Document, req Request) ([]byte, error) {
	const op = "stamp.Apply"
	if err := req.Placement.Validate(); err != nil {
		return nil, err
	}
	pageRef, page, err := doc.Page(req.Placement.Page)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidPageIndex, op, err)
	}
	if page == nil {
		return nil, errs.Wrapf(errs.ErrUnparseablePDF, op, "page %d is not a dictionary", req.Placement.Page)
	}

	marker := req.Marker
	marker.Normalize()
	if err := marker.Validate(); err != nil {
		return nil, err
	}
	payload, err := marker.Marshal()
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidMarker, op, err)
	}

	img, err := images.NewPDFImageFromBytes(req.PNG)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidImage, op, err)
	}

	w := writer.NewIncrementalWriter(doc)
	var smask generic.PdfObject
	if s := img.SMaskXObject(); s != nil {
		smask = w.AddObject(s)
	}
	xobj := img.XObject(smask)
	xobj.Dictionary.Set("Provenance", generic.NewTextString(string(payload)))
	imgRef := w.AddObject(xobj)

	updated := page.Clone()
	resources := cloneDict(w.Dict(doc.InheritedAttribute(page, "Resources")))
	xobjects := cloneDict(w.Dict(resources.Get("XObject")))
	name := freeName(xobjects, "Qr")
	xobjects.Set(name, imgRef)
	resources.Set("XObject", xobjects)
	updated.Set("Resources", resources)

	if err := addStreamToPage(w, updated, paintOperators(name, req.Placement)); err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	w.UpdateObject(pageRef, updated)

	out, err := w.Bytes()
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	return out, nil
}

// addStreamToPage wraps the existing content of page in q/Q and appends
// paint as a final content stream.
func addStreamToPage(w *writer.IncrementalWriter, page *generic.DictionaryObject, paint string) error {
	var existing generic.ArrayObject
	switch v := page.Get("Contents").(type) {
	case nil:
	case generic.ArrayObject:
		existing = v
	case generic.Reference:
		if arr, ok := w.Resolve(v).(generic.ArrayObject); ok {
			existing = arr
		} else {
			existing = generic.ArrayObject{v}
		}
	default:
		return errors.New("unsupported /Contents entry")
	}

	contents := make(generic.ArrayObject, 0, len(existing)+2)
	if len(existing) > 0 {
		contents = append(contents, w.AddObject(generic.NewStream(nil, []byte("q\n"))))
		contents = append(contents, existing...)
		paint = "Q\n" + paint
	}
	contents = append(contents, w.AddObject(generic.NewStream(nil, []byte(paint))))
	page.Set("Contents", contents)
	return nil
}

func paintOperators(name string, p Placement) string {
	return fmt.Sprintf("q %s 0 0 %s %s %s cm /%s Do Q\n",
		num(p.Width), num(p.Height), num(p.X), num(p.Y), name)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// freeName returns the first prefixN key not used in dict.
func freeName(dict *generic.DictionaryObject, prefix string) string {
	for i := 1; ; i++ {
		name := prefix + strconv.Itoa(i)
		if !dict.Has(name) {
			return name
		}
	}
}

func cloneDict(d *generic.DictionaryObject) *generic.DictionaryObject {
	if d == nil {
		return generic.NewDictionary()
	}
	return d.Clone()
}
