package validation

import (
	"time"

	"github.com/georgepadayatti/pdfseal/keys"
	"github.com/georgepadayatti/pdfseal/provenance"
)

// Verdict messages, in priority order.
const (
	MessageNoSignature = "document has no digital signature"
	MessageModified    = "document modified after signing"
	MessageNotOurs     = "not signed by this system"
	MessageCertInvalid = "certificate invalid"
	MessageValid       = "document valid and signed by this system"
)

// CertificateStatus describes the signer certificate of the newest
// signature.
type CertificateStatus struct {
	Valid     bool       `json:"valid"`
	Issuer    string     `json:"issuer"`
	Subject   string     `json:"subject"`
	ValidFrom *time.Time `json:"validFrom,omitempty"`
	ValidTo   *time.Time `json:"validTo,omitempty"`
	// Expired is true when the validation time is past ValidTo.
	Expired bool `json:"expired"`
}

// SignatureSummary is the per-signature part of a verdict.
type SignatureSummary struct {
	Field              string     `json:"field"`
	SubFilter          string     `json:"subFilter"`
	ByteRange          [4]int64   `json:"byteRange"`
	Intact             bool       `json:"intact"`
	Problem            string     `json:"problem,omitempty"`
	CoversWholeFile    bool       `json:"coversWholeFile"`
	Signer             string     `json:"signer,omitempty"`
	Issuer             string     `json:"issuer,omitempty"`
	SigningTime        *time.Time `json:"signingTime,omitempty"`
	CertificateValid   bool       `json:"certificateValid"`
	CertificateProblem string     `json:"certificateProblem,omitempty"`
	IssuedBySystem     bool       `json:"issuedBySystem"`
	DocumentTimestamp  bool       `json:"documentTimestamp,omitempty"`
}

// Verdict is the outcome of validating a document. A negative verdict is a
// successful validation, not an error.
type Verdict struct {
	IsValid           bool               `json:"isValid"`
	HasSignatures     bool               `json:"hasSignatures"`
	SignatureCount    int                `json:"signatureCount"`
	IsModified        bool               `json:"isModified"`
	IsOurSystem       bool               `json:"isOurSystem"`
	CertificateStatus CertificateStatus  `json:"certificateStatus"`
	Message           string             `json:"message"`
	Signatures        []SignatureSummary `json:"signatures"`
	Provenance        *provenance.Marker `json:"provenance,omitempty"`
}

// Compose combines per-signature records and certificate evaluations
// (index-aligned) into a verdict. Integrity dominates provenance, which
// dominates certificate validity.
func Compose(records []SignatureRecord, evals []CertificateEvaluation, now time.Time) Verdict {
	v := Verdict{
		SignatureCount: len(records),
		Signatures:     make([]SignatureSummary, 0, len(records)),
	}
	if len(records) == 0 {
		v.Message = MessageNoSignature
		return v
	}
	v.HasSignatures = true

	coveredByIntact := false
	certsValid := true
	primary := -1
	for i, rec := range records {
		var eval CertificateEvaluation
		if i < len(evals) {
			eval = evals[i]
		}
		if !rec.Intact {
			v.IsModified = true
		} else if rec.CoversWholeFile() {
			coveredByIntact = true
		}
		v.Signatures = append(v.Signatures, summarize(rec, eval))
		// Document timestamps vouch for integrity only.
		if rec.DocumentTimestamp {
			continue
		}
		if eval.IssuedBySystem {
			v.IsOurSystem = true
		}
		if !eval.Valid {
			certsValid = false
		}
		if rec.Signer != nil {
			primary = i
		}
	}
	if !coveredByIntact {
		v.IsModified = true
	}

	v.CertificateStatus.Valid = certsValid
	if primary >= 0 {
		info := keys.Describe(records[primary].Signer, now)
		v.CertificateStatus.Issuer = info.Issuer
		v.CertificateStatus.Subject = info.Subject
		v.CertificateStatus.ValidFrom = &info.NotBefore
		v.CertificateStatus.ValidTo = &info.NotAfter
		v.CertificateStatus.Expired = info.IsExpired
	}

	switch {
	case v.IsModified:
		v.Message = MessageModified
	case !v.IsOurSystem:
		v.Message = MessageNotOurs
	case !certsValid:
		v.Message = MessageCertInvalid
	default:
		v.Message = MessageValid
	}
	v.IsValid = !v.IsModified && certsValid
	return v
}

func summarize(rec SignatureRecord, eval CertificateEvaluation) SignatureSummary {
	s := SignatureSummary{
		Field:              rec.FieldName,
		SubFilter:          rec.SubFilter,
		ByteRange:          rec.ByteRange,
		Intact:             rec.Intact,
		Problem:            rec.IntegrityProblem,
		CoversWholeFile:    rec.CoversWholeFile(),
		SigningTime:        rec.SigningTime,
		CertificateValid:   eval.Valid,
		CertificateProblem: eval.Problem,
		IssuedBySystem:     eval.IssuedBySystem,
		DocumentTimestamp:  rec.DocumentTimestamp,
	}
	if rec.Signer != nil {
		s.Signer = rec.Signer.Subject.String()
		s.Issuer = rec.Signer.Issuer.String()
	}
	return s
}
