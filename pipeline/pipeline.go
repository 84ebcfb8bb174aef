// Package pipeline drives a document through stamping, repair, placeholder
// reservation and signing. Every stage is a distinct type whose only way
// forward is a method returning the next stage, so a caller cannot sign a
// document that has not been reserved or reserve one that was never
// stamped.
package pipeline

import (
	"context"

	"github.com/georgepadayatti/pdfseal/errs"
	"github.com/georgepadayatti/pdfseal/keys"
	"github.com/georgepadayatti/pdfseal/pdf/reader"
	"github.com/georgepadayatti/pdfseal/repair"
	"github.com/georgepadayatti/pdfseal/sign/signers"
	"github.com/georgepadayatti/pdfseal/stamp"
)

// Raw is a parsed input document.
type Raw struct {
	doc *reader.Document
}

// Load parses pdf. Anything the reader rejects is an input error.
func Load(pdf []byte) (*Raw, error) {
	if len(pdf) == 0 {
		return nil, errs.Wrapf(errs.ErrInvalidPDF, "pipeline.Load", "empty document")
	}
	doc, err := reader.Parse(pdf)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidPDF, "pipeline.Load", err)
	}
	return &Raw{doc: doc}, nil
}

// PageCount returns the number of pages of the document.
func (r *Raw) PageCount() int { return r.doc.PageCount() }

// Signed reports whether the document already carries signatures.
func (r *Raw) Signed() bool { return len(r.doc.SignatureFieldNames()) > 0 }

// Stamp draws the provenance image onto the document.
func (r *Raw) Stamp(req stamp.Request) (*Stamped, error) {
	data, err := stamp.Apply(r.doc, req)
	if err != nil {
		return nil, err
	}
	return &Stamped{data: data}, nil
}

// Stamped is a document carrying a provenance stamp.
type Stamped struct {
	data []byte
}

// Bytes returns the stamped document.
func (s *Stamped) Bytes() []byte { return s.data }

// Repair rewrites the stamped document with rep. A nil repairer keeps the
// bytes as they are, which is required when earlier signatures must
// survive.
func (s *Stamped) Repair(ctx context.Context, rep repair.Repairer) (*Repaired, error) {
	data := s.data
	if rep != nil {
		out, err := rep.Repair(ctx, data)
		if err != nil {
			return nil, err
		}
		data = out
	}
	doc, err := reader.Parse(data)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUnparseablePDF, "pipeline.Repair", err)
	}
	return &Repaired{doc: doc}, nil
}

// Repaired is a clean document ready for a signature placeholder.
type Repaired struct {
	doc *reader.Document
}

// Bytes returns the repaired document.
func (r *Repaired) Bytes() []byte { return r.doc.Bytes() }

// Reserve appends the signature field and its empty slot.
func (r *Repaired) Reserve(opts signers.ReserveOptions) (*Reserved, error) {
	res, err := signers.Reserve(r.doc, opts)
	if err != nil {
		return nil, err
	}
	return &Reserved{res: res}, nil
}

// Reserved is a frozen document with an empty signature slot.
type Reserved struct {
	res *signers.Reservation
}

// FieldName returns the name of the reserved signature field.
func (r *Reserved) FieldName() string { return r.res.FieldName }

// Placeholder returns the byte layout of the reservation.
func (r *Reserved) Placeholder() signers.SignaturePlaceholder { return r.res.Placeholder }

// Sign fills the slot with a detached signature made with cred.
func (r *Reserved) Sign(cred *keys.Credential) (*Signed, error) {
	data, err := signers.Sign(r.res, cred)
	if err != nil {
		return nil, err
	}
	return &Signed{data: data, placeholder: r.res.Placeholder, fieldName: r.res.FieldName}, nil
}

// Signed is the final document.
type Signed struct {
	data        []byte
	placeholder signers.SignaturePlaceholder
	fieldName   string
}

// Bytes returns the signed document.
func (s *Signed) Bytes() []byte { return s.data }

// FieldName returns the name of the signature field that was filled.
func (s *Signed) FieldName() string { return s.fieldName }

// SelfCheck re-verifies the embedded signature against the document.
func (s *Signed) SelfCheck() error {
	return signers.SelfCheck(s.data, s.placeholder)
}
