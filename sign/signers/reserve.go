// Package signers reserves signature placeholders in PDF documents and
// fills them with detached CMS signatures.
package signers

import (
	"fmt"
	"time"

	"github.com/georgepadayatti/pdfseal/errs"
	"github.com/georgepadayatti/pdfseal/pdf/generic"
	"github.com/georgepadayatti/pdfseal/pdf/reader"
	"github.com/georgepadayatti/pdfseal/pdf/writer"
)

// Signature dictionary defaults.
const (
	DefaultReservedBytes = 8192
	MinReservedBytes     = 1024
	DefaultFieldPrefix   = "Sig"

	FilterPPKLite            = "Adobe.PPKLite"
	SubFilterPKCS7Detached   = "adbe.pkcs7.detached"
	SubFilterPKCS7SHA1       = "adbe.pkcs7.sha1"
	SubFilterETSICAdESDetach = "ETSI.CAdES.detached"
	SubFilterETSIRFC3161     = "ETSI.RFC3161"
)

// Annotation flags for the invisible signature widget: Print | Locked.
const invisibleWidgetFlags = 4 | 128

// SigFlags value: SignaturesExist | AppendOnly.
const sigFlags = 3

// BuildApp names the application in /Prop_Build.
const BuildApp = "pdfseal"

// ReserveOptions configures the signature dictionary and its field.
type ReserveOptions struct {
	// ReservedBytes is the capacity of /Contents in bytes of DER.
	ReservedBytes int
	// FieldName defaults to the next free "Sig<n>".
	FieldName   string
	FieldPrefix string
	// SubFilter defaults to adbe.pkcs7.detached. ETSI.RFC3161 reserves a
	// document timestamp.
	SubFilter   string
	Name        string
	Reason      string
	Location    string
	ContactInfo string
	SigningTime time.Time
	// Page is the 1-based page carrying the widget. Defaults to 1.
	Page int
}

// Reservation is a document with an empty signature slot.
type Reservation struct {
	Data        []byte
	Placeholder SignaturePlaceholder
	FieldName   string
	SigningTime time.Time
}

// Reserve appends an incremental update to doc that adds an invisible
// signature field whose value is a signature dictionary with a zeroed
// /Contents slot. The /ByteRange is filled in before returning, so the
// result is frozen: any later change to its bytes invalidates the signature.
func Reserve(doc *reader.Document, opts ReserveOptions) (*Reservation, error) {
	const op = "signers.Reserve"
	if opts.ReservedBytes == 0 {
		opts.ReservedBytes = DefaultReservedBytes
	}
	if opts.ReservedBytes < MinReservedBytes {
		return nil, errs.Wrapf(errs.ErrPlaceholderTooSmall, op, "%d bytes reserved, need at least %d", opts.ReservedBytes, MinReservedBytes)
	}
	if opts.Page == 0 {
		opts.Page = 1
	}
	if opts.SigningTime.IsZero() {
		opts.SigningTime = time.Now()
	}
	pageRef, _, err := doc.Page(opts.Page)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidPageIndex, op, err)
	}
	rootRef, ok := doc.RootRef()
	if !ok {
		return nil, errs.Wrapf(errs.ErrUnparseablePDF, op, "document catalog is not an indirect object")
	}
	fieldName := opts.FieldName
	if fieldName == "" {
		fieldName = nextFieldName(doc.SignatureFieldNames(), opts.FieldPrefix)
	}
	for _, existing := range doc.SignatureFieldNames() {
		if existing == fieldName {
			return nil, errs.Wrapf(errs.ErrInvalidRequest, op, "signature field %q already exists", fieldName)
		}
	}

	w := writer.NewIncrementalWriter(doc)
	byteRange := newByteRangeSlot()
	contents := newContentsSlot(opts.ReservedBytes)
	sigRef := w.AddObject(signatureDictionary(opts, byteRange, contents))

	widget := generic.NewDictionary()
	widget.Set("Type", generic.NameObject("Annot"))
	widget.Set("Subtype", generic.NameObject("Widget"))
	widget.Set("FT", generic.NameObject("Sig"))
	widget.Set("T", generic.NewTextString(fieldName))
	widget.Set("V", sigRef)
	widget.Set("F", generic.IntegerObject(invisibleWidgetFlags))
	widget.Set("Rect", generic.Rectangle{}.ToArray())
	widget.Set("P", pageRef)
	widgetRef := w.AddObject(widget)

	page := w.Dict(pageRef).Clone()
	page.Set("Annots", appendRef(w, page.Get("Annots"), widgetRef))
	w.UpdateObject(pageRef, page)

	if err := registerField(w, rootRef, widgetRef); err != nil {
		return nil, errs.Wrap(errs.ErrUnparseablePDF, op, err)
	}

	data, err := w.Bytes()
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	start, end, err := contents.offsets()
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	placeholder := SignaturePlaceholder{
		ByteRangeBefore: Span{Offset: 0, Length: start},
		ReservedSlot:    Span{Offset: start, Length: end - start},
		ByteRangeAfter:  Span{Offset: end, Length: int64(len(data)) - end},
	}
	if err := byteRange.fill(data, placeholder.ByteRange()); err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	return &Reservation{
		Data:        data,
		Placeholder: placeholder,
		FieldName:   fieldName,
		SigningTime: opts.SigningTime,
	}, nil
}

func signatureDictionary(opts ReserveOptions, byteRange *byteRangeSlot, contents *contentsSlot) *generic.DictionaryObject {
	subFilter := opts.SubFilter
	if subFilter == "" {
		subFilter = SubFilterPKCS7Detached
	}
	dict := generic.NewDictionary()
	if subFilter == SubFilterETSIRFC3161 {
		dict.Set("Type", generic.NameObject("DocTimeStamp"))
	} else {
		dict.Set("Type", generic.NameObject("Sig"))
	}
	dict.Set("Filter", generic.NameObject(FilterPPKLite))
	dict.Set("SubFilter", generic.NameObject(subFilter))
	dict.Set("ByteRange", byteRange)
	dict.Set("Contents", contents)
	dict.Set("M", generic.NewLiteralString(generic.FormatDate(opts.SigningTime)))
	if opts.Name != "" {
		dict.Set("Name", generic.NewTextString(opts.Name))
	}
	if opts.Reason != "" {
		dict.Set("Reason", generic.NewTextString(opts.Reason))
	}
	if opts.Location != "" {
		dict.Set("Location", generic.NewTextString(opts.Location))
	}
	if opts.ContactInfo != "" {
		dict.Set("ContactInfo", generic.NewTextString(opts.ContactInfo))
	}
	app := generic.NewDictionary()
	app.Set("Name", generic.NameObject(BuildApp))
	build := generic.NewDictionary()
	build.Set("App", app)
	dict.Set("Prop_Build", build)
	return dict
}

// registerField adds the field to /AcroForm /Fields and sets /SigFlags,
// creating the form when the catalog has none.
func registerField(w *writer.IncrementalWriter, rootRef, fieldRef generic.Reference) error {
	root := w.Dict(rootRef)
	if root == nil {
		return fmt.Errorf("catalog %s is not a dictionary", rootRef)
	}
	formObj := root.Get("AcroForm")
	if formRef, ok := formObj.(generic.Reference); ok {
		if form := w.Dict(formRef); form != nil {
			form = form.Clone()
			form.Set("Fields", appendRef(w, form.Get("Fields"), fieldRef))
			form.Set("SigFlags", generic.IntegerObject(sigFlags))
			w.UpdateObject(formRef, form)
			return nil
		}
	}

	form := generic.NewDictionary()
	if existing, ok := formObj.(*generic.DictionaryObject); ok {
		form = existing.Clone()
	}
	form.Set("Fields", appendRef(w, form.Get("Fields"), fieldRef))
	form.Set("SigFlags", generic.IntegerObject(sigFlags))
	root = root.Clone()
	root.Set("AcroForm", w.AddObject(form))
	w.UpdateObject(rootRef, root)
	return nil
}

// appendRef returns a direct copy of the array behind obj with ref appended.
func appendRef(w *writer.IncrementalWriter, obj generic.PdfObject, ref generic.Reference) generic.ArrayObject {
	existing, _ := w.Resolve(obj).(generic.ArrayObject)
	out := make(generic.ArrayObject, 0, len(existing)+1)
	out = append(out, existing...)
	return append(out, ref)
}

func nextFieldName(existing []string, prefix string) string {
	if prefix == "" {
		prefix = DefaultFieldPrefix
	}
	taken := make(map[string]bool, len(existing))
	for _, name := range existing {
		taken[name] = true
	}
	for n := len(existing) + 1; ; n++ {
		name := fmt.Sprintf("%s%d", prefix, n)
		if !taken[name] {
			return name
		}
	}
}
