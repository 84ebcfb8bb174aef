package validation

import (
	"bytes"
	"context"
	"crypto"
	"encoding/hex"
	"fmt"

	"github.com/georgepadayatti/pdfseal/errs"
	"github.com/georgepadayatti/pdfseal/pdf/generic"
	"github.com/georgepadayatti/pdfseal/pdf/reader"
	"github.com/georgepadayatti/pdfseal/sign/cms"
	"github.com/georgepadayatti/pdfseal/sign/signers"
)

// NativeInspector verifies signatures in-process. It understands
// adbe.pkcs7.detached, ETSI.CAdES.detached, adbe.pkcs7.sha1 and
// ETSI.RFC3161 document timestamps. Any other sub-filter yields a record
// marked Unsupported and not intact.
type NativeInspector struct{}

// Inspect implements SignatureInspector.
func (NativeInspector) Inspect(ctx context.Context, data []byte) ([]SignatureRecord, error) {
	const op = "validation.NativeInspector"
	doc, err := reader.Parse(data)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidPDF, op, err)
	}
	var records []SignatureRecord
	for _, sd := range doc.SignatureDictionaries() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records = append(records, inspectSignature(data, sd, sd.Dict.GetName("SubFilter")))
	}
	return records, nil
}

func inspectSignature(data []byte, sd reader.SignatureDictionary, subFilter string) SignatureRecord {
	rec := SignatureRecord{
		FieldName: sd.FieldName,
		SubFilter: subFilter,
		Intact:    true,
		Name:      textEntry(sd.Dict, "Name"),
		Reason:    textEntry(sd.Dict, "Reason"),
		Location:  textEntry(sd.Dict, "Location"),
	}
	rec.DocumentTimestamp = subFilter == signers.SubFilterETSIRFC3161 || sd.Dict.GetName("Type") == "DocTimeStamp"
	if m := textEntry(sd.Dict, "M"); m != "" {
		if t, err := generic.ParseDate(m); err == nil {
			rec.SigningTime = &t
		}
	}

	br, ok := sd.ByteRange()
	if !ok {
		rec.fail("malformed /ByteRange")
		return rec
	}
	rec.ByteRange = br
	if problem := checkByteRange(data, br, sd.Contents()); problem != "" {
		rec.fail(problem)
		return rec
	}
	rec.Coverage = coverageOf(br, int64(len(data)))

	switch subFilter {
	case signers.SubFilterPKCS7Detached, signers.SubFilterETSICAdESDetach, signers.SubFilterPKCS7SHA1, signers.SubFilterETSIRFC3161:
	default:
		rec.Unsupported = true
		rec.fail(fmt.Sprintf("%v: %q", ErrUnsupportedSubFilter, subFilter))
		return rec
	}

	sig, err := cms.Parse(sd.Contents())
	if err != nil {
		rec.fail(err.Error())
		return rec
	}
	rec.Signer = sig.Signer
	rec.Certificates = sig.Certificates
	rec.DigestAlgorithm = sig.DigestAlgorithm
	rec.SignedDigest = sig.SignedDigest
	if sig.SigningTime != nil {
		rec.SigningTime = sig.SigningTime
	}

	content := make([]byte, 0, br[1]+br[3])
	content = append(content, data[br[0]:br[0]+br[1]]...)
	content = append(content, data[br[2]:br[2]+br[3]]...)

	switch subFilter {
	case signers.SubFilterPKCS7SHA1:
		h := crypto.SHA1.New()
		h.Write(content)
		rec.ComputedDigest = h.Sum(nil)
		rec.SignedDigest = sig.EncapsulatedContent
		err = sig.VerifyEncapsulated(content)
	case signers.SubFilterETSIRFC3161:
		err = inspectTimestamp(&rec, sig, content)
	default:
		rec.ComputedDigest = sig.Digest(content)
		err = sig.VerifyDetached(content)
	}
	if err != nil {
		rec.fail(err.Error())
	}
	return rec
}

// inspectTimestamp fills rec from a document timestamp token. The imprint
// stands in for the signed digest and genTime for the signing time.
func inspectTimestamp(rec *SignatureRecord, sig *cms.Signature, content []byte) error {
	info, err := sig.Timestamp()
	if err != nil {
		return err
	}
	rec.SignedDigest = info.MessageImprint.HashedMessage
	genTime := info.GenTime
	rec.SigningTime = &genTime
	if hash, err := info.ImprintHash(); err == nil {
		rec.DigestAlgorithm = hash
		h := hash.New()
		h.Write(content)
		rec.ComputedDigest = h.Sum(nil)
	}
	_, err = sig.VerifyTimestamp(content)
	return err
}

// checkByteRange returns a description of what is wrong with br, or "".
// The gap between the two spans must be exactly the /Contents hex string.
func checkByteRange(data []byte, br [4]int64, contents []byte) string {
	size := int64(len(data))
	if br[0] != 0 || br[1] < 0 || br[2] < 0 || br[3] < 0 {
		return fmt.Sprintf("byte range %v does not start at offset 0", br)
	}
	if br[1] > br[2] || br[2] > size || br[3] > size-br[2] {
		return fmt.Sprintf("byte range %v exceeds the %d byte file", br, size)
	}
	gap := data[br[1]:br[2]]
	if len(gap) < 2 || gap[0] != '<' || gap[len(gap)-1] != '>' {
		return "byte range gap is not a hex string"
	}
	decoded := make([]byte, hex.DecodedLen(len(gap)-2))
	if _, err := hex.Decode(decoded, gap[1:len(gap)-1]); err != nil {
		return "byte range gap is not a hex string"
	}
	if !bytes.Equal(decoded, contents) {
		return "byte range gap does not hold the signature contents"
	}
	return ""
}

// coverageOf classifies a byte range that already passed checkByteRange
// or came from an external report. Offsets are compared by subtraction so
// hostile values cannot overflow.
func coverageOf(br [4]int64, size int64) CoverageStatus {
	if br[2] < 0 || br[3] < 0 || br[2] > size {
		return CoverageUnknown
	}
	if br[3] == size-br[2] {
		return CoverageEntireFile
	}
	return CoverageContiguous
}

func textEntry(dict *generic.DictionaryObject, key string) string {
	if s := dict.GetString(key); s != nil {
		return s.Text()
	}
	return ""
}
