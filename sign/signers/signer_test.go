package signers

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgepadayatti/pdfseal/errs"
	"github.com/georgepadayatti/pdfseal/internal/testpdf"
	"github.com/georgepadayatti/pdfseal/internal/testpki"
	"github.com/georgepadayatti/pdfseal/keys"
	"github.com/georgepadayatti/pdfseal/pdf/generic"
	"github.com/georgepadayatti/pdfseal/pdf/reader"
	"github.com/georgepadayatti/pdfseal/sign/cms"
)

func parse(t *testing.T, data []byte) *reader.Document {
	t.Helper()
	doc, err := reader.Parse(data)
	require.NoError(t, err)
	return doc
}

func userCredential(t *testing.T) *keys.Credential {
	t.Helper()
	cred, err := keys.LoadPKCS12(testpki.Get().User.PKCS12(), testpki.Passphrase)
	require.NoError(t, err)
	return cred
}

func TestReserveLayout(t *testing.T) {
	original := testpdf.Generate(2)
	signingTime := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	res, err := Reserve(parse(t, original), ReserveOptions{
		ReservedBytes: 2048,
		Reason:        "Aprobado",
		SigningTime:   signingTime,
		Page:          2,
	})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(res.Data, original), "original bytes must be kept")
	assert.Equal(t, "Sig1", res.FieldName)

	p := res.Placeholder
	assert.Equal(t, int64(0), p.ByteRangeBefore.Offset)
	assert.Equal(t, p.ByteRangeBefore.End(), p.ReservedSlot.Offset)
	assert.Equal(t, p.ReservedSlot.End(), p.ByteRangeAfter.Offset)
	assert.Equal(t, int64(len(res.Data)), p.ByteRangeAfter.End())
	assert.Equal(t, 4096, p.HexCapacity())

	slot := res.Data[p.ReservedSlot.Offset:p.ReservedSlot.End()]
	assert.Equal(t, byte('<'), slot[0])
	assert.Equal(t, byte('>'), slot[len(slot)-1])
	assert.Equal(t, bytes.Repeat([]byte{'0'}, 4096), slot[1:len(slot)-1])

	doc := parse(t, res.Data)
	sigs := doc.SignatureDictionaries()
	require.Len(t, sigs, 1)
	assert.Equal(t, "Sig1", sigs[0].FieldName)
	br, ok := sigs[0].ByteRange()
	require.True(t, ok)
	assert.Equal(t, p.ByteRange(), br)
	assert.Equal(t, SubFilterPKCS7Detached, sigs[0].Dict.GetName("SubFilter"))
	assert.Equal(t, FilterPPKLite, sigs[0].Dict.GetName("Filter"))
	assert.Equal(t, "Aprobado", sigs[0].Dict.GetString("Reason").Text())
	assert.Equal(t, generic.FormatDate(signingTime), sigs[0].Dict.GetString("M").Text())
	assert.Len(t, sigs[0].Contents(), 2048)

	form := doc.Arena().Dict(doc.Root().Get("AcroForm"))
	require.NotNil(t, form)
	flags, _ := form.GetInt("SigFlags")
	assert.Equal(t, int64(3), flags)

	_, page, err := doc.Page(2)
	require.NoError(t, err)
	annots := doc.Arena().Array(page.Get("Annots"))
	require.Len(t, annots, 1)
	widget := doc.Arena().Dict(annots[0])
	assert.Equal(t, "Widget", widget.GetName("Subtype"))
	f, _ := widget.GetInt("F")
	assert.Equal(t, int64(132), f)
}

func TestReserveErrors(t *testing.T) {
	doc := parse(t, testpdf.Generate(1))

	tests := []struct {
		name string
		opts ReserveOptions
		want *errs.Error
	}{
		{"too small", ReserveOptions{ReservedBytes: 512}, errs.ErrPlaceholderTooSmall},
		{"page out of range", ReserveOptions{Page: 3}, errs.ErrInvalidPageIndex},
		{"negative page", ReserveOptions{Page: -1}, errs.ErrInvalidPageIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reserve(doc, tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSignAndSelfCheck(t *testing.T) {
	res, err := Reserve(parse(t, testpdf.Generate(1)), ReserveOptions{})
	require.NoError(t, err)
	reserved := append([]byte(nil), res.Data...)

	signed, err := Sign(res, userCredential(t))
	require.NoError(t, err)

	assert.Len(t, signed, len(res.Data))
	assert.Equal(t, reserved, res.Data, "reservation must not be modified")
	p := res.Placeholder
	assert.Equal(t, res.Data[:p.ByteRangeBefore.End()], signed[:p.ByteRangeBefore.End()])
	assert.Equal(t, res.Data[p.ByteRangeAfter.Offset:], signed[p.ByteRangeAfter.Offset:])
	require.NoError(t, SelfCheck(signed, p))

	der, err := ExtractContents(signed, p)
	require.NoError(t, err)
	sig, err := cms.Parse(der)
	require.NoError(t, err)
	assert.Equal(t, "Ana Torres", sig.Signer.Subject.CommonName)
	assert.Len(t, sig.Certificates, 2)
}

func TestSelfCheckDetectsTampering(t *testing.T) {
	res, err := Reserve(parse(t, testpdf.Generate(1)), ReserveOptions{})
	require.NoError(t, err)
	signed, err := Sign(res, userCredential(t))
	require.NoError(t, err)

	tampered := append([]byte(nil), signed...)
	tampered[20] ^= 0x01
	err = SelfCheck(tampered, res.Placeholder)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrDigestMismatch)
}

func TestSignOverflow(t *testing.T) {
	res, err := Reserve(parse(t, testpdf.Generate(1)), ReserveOptions{ReservedBytes: MinReservedBytes})
	require.NoError(t, err)

	_, err = Sign(res, userCredential(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrReservedSlotOverflow)
}

func TestReserveDocumentTimestamp(t *testing.T) {
	res, err := Reserve(parse(t, testpdf.Generate(1)), ReserveOptions{SubFilter: SubFilterETSIRFC3161})
	require.NoError(t, err)

	sigs := parse(t, res.Data).SignatureDictionaries()
	require.Len(t, sigs, 1)
	assert.Equal(t, "DocTimeStamp", sigs[0].Dict.GetName("Type"))
	assert.Equal(t, SubFilterETSIRFC3161, sigs[0].Dict.GetName("SubFilter"))

	out, err := Embed(res, []byte{0x30, 0x03, 0x02, 0x01, 0xab})
	require.NoError(t, err)
	require.Len(t, out, len(res.Data))
	slot := out[res.Placeholder.ReservedSlot.Offset+1:]
	assert.True(t, bytes.HasPrefix(slot, []byte("30030201AB000")))

	_, err = Embed(res, make([]byte, DefaultReservedBytes+1))
	assert.ErrorIs(t, err, errs.ErrReservedSlotOverflow)
	_, err = Embed(nil, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
}

func TestSignKeyMismatch(t *testing.T) {
	id := testpki.Get().OtherKeyUser
	res, err := Reserve(parse(t, testpdf.Generate(1)), ReserveOptions{})
	require.NoError(t, err)

	_, err = Sign(res, &keys.Credential{PrivateKey: id.Key, Certificate: id.Cert, Chain: id.Chain()})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrKeyMismatch)
}

func TestSignWithoutCredential(t *testing.T) {
	res, err := Reserve(parse(t, testpdf.Generate(1)), ReserveOptions{})
	require.NoError(t, err)

	_, err = Sign(res, nil)
	assert.ErrorIs(t, err, errs.ErrMissingCertificate)
}

func TestSecondSignature(t *testing.T) {
	cred := userCredential(t)
	res1, err := Reserve(parse(t, testpdf.Generate(1)), ReserveOptions{})
	require.NoError(t, err)
	signed1, err := Sign(res1, cred)
	require.NoError(t, err)

	res2, err := Reserve(parse(t, signed1), ReserveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Sig2", res2.FieldName)
	signed2, err := Sign(res2, cred)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(signed2, signed1))
	assert.Error(t, SelfCheck(signed2, res1.Placeholder), "first byte range no longer reaches the end of the file")
	require.NoError(t, SelfCheck(signed2[:len(signed1)], res1.Placeholder))
	require.NoError(t, SelfCheck(signed2, res2.Placeholder))

	doc := parse(t, signed2)
	assert.Equal(t, []string{"Sig1", "Sig2"}, doc.SignatureFieldNames())
	assert.Len(t, doc.SignatureDictionaries(), 2)

	_, err = Reserve(doc, ReserveOptions{FieldName: "Sig1"})
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
}

func TestNextFieldName(t *testing.T) {
	assert.Equal(t, "Sig1", nextFieldName(nil, ""))
	assert.Equal(t, "Firma2", nextFieldName([]string{"Other"}, "Firma"))
	assert.Equal(t, "Sig3", nextFieldName([]string{"Sig2", "Foo"}, "Sig"))
}
