// Package validation inspects the signatures of a PDF, evaluates their
// certificates and composes a verdict.
package validation

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"time"
)

// Common validation errors
var (
	ErrUnsupportedSubFilter = errors.New("unsupported signature sub-filter")
)

// CoverageStatus indicates what the signature covers.
type CoverageStatus int

const (
	CoverageUnknown    CoverageStatus = iota
	CoverageContiguous                // Signature covers everything up to signature
	CoverageEntireFile                // Signature covers the entire file
)

// String returns the string representation of the coverage.
func (c CoverageStatus) String() string {
	switch c {
	case CoverageContiguous:
		return "contiguous"
	case CoverageEntireFile:
		return "entire_file"
	default:
		return "unknown"
	}
}

// SignatureRecord is what an inspector learned about one signature.
type SignatureRecord struct {
	FieldName string
	SubFilter string
	ByteRange [4]int64

	DigestAlgorithm crypto.Hash
	// SignedDigest is the digest the signer committed to.
	SignedDigest []byte
	// ComputedDigest is the digest of the current bytes in ByteRange.
	ComputedDigest []byte

	// Intact is true when the covered bytes match the signature and the
	// signature value verifies.
	Intact           bool
	IntegrityProblem string
	Coverage         CoverageStatus

	// DocumentTimestamp marks an RFC 3161 document timestamp. Its signer
	// is a timestamp authority, not a party to the document.
	DocumentTimestamp bool
	// Unsupported is set when the inspector could not verify the
	// signature format at all.
	Unsupported bool

	Signer *x509.Certificate
	// Certificates holds every certificate carried by the signature.
	Certificates []*x509.Certificate

	SigningTime *time.Time
	Name        string
	Reason      string
	Location    string
}

// CoversWholeFile reports whether the byte range reaches the end of the file.
func (r SignatureRecord) CoversWholeFile() bool {
	return r.Coverage == CoverageEntireFile
}

func (r *SignatureRecord) fail(problem string) {
	r.Intact = false
	if r.IntegrityProblem == "" {
		r.IntegrityProblem = problem
	}
}

// SignatureInspector extracts signature records from a PDF.
type SignatureInspector interface {
	Inspect(ctx context.Context, data []byte) ([]SignatureRecord, error)
}
