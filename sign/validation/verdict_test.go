package validation

import (
	"bytes"
	"crypto/x509"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgepadayatti/pdfseal/internal/testpki"
)

func TestCompose(t *testing.T) {
	user := testpki.Get().User.Cert
	intact := SignatureRecord{FieldName: "Sig1", Intact: true, Coverage: CoverageEntireFile, Signer: user}
	broken := SignatureRecord{FieldName: "Sig1", IntegrityProblem: "digest mismatch", Coverage: CoverageEntireFile, Signer: user}
	partial := SignatureRecord{FieldName: "Sig1", Intact: true, Coverage: CoverageContiguous, Signer: user}
	stamp := SignatureRecord{FieldName: "TS1", Intact: true, Coverage: CoverageEntireFile, Signer: user, DocumentTimestamp: true}
	brokenStamp := SignatureRecord{FieldName: "TS1", Coverage: CoverageEntireFile, Signer: user, DocumentTimestamp: true}

	ours := CertificateEvaluation{Valid: true, IssuedBySystem: true}
	foreign := CertificateEvaluation{Valid: true}
	expired := CertificateEvaluation{Problem: "expired", IssuedBySystem: true}
	foreignExpired := CertificateEvaluation{Problem: "expired"}

	tests := []struct {
		name      string
		records   []SignatureRecord
		evals     []CertificateEvaluation
		message   string
		valid     bool
		modified  bool
		ourSystem bool
	}{
		{"no signatures", nil, nil, MessageNoSignature, false, false, false},
		{"valid", []SignatureRecord{intact}, []CertificateEvaluation{ours}, MessageValid, true, false, true},
		{"modified dominates everything", []SignatureRecord{broken}, []CertificateEvaluation{foreignExpired}, MessageModified, false, true, false},
		{"modified even when ours", []SignatureRecord{broken}, []CertificateEvaluation{ours}, MessageModified, false, true, true},
		{"not covering the file", []SignatureRecord{partial}, []CertificateEvaluation{ours}, MessageModified, false, true, true},
		{"foreign but valid", []SignatureRecord{intact}, []CertificateEvaluation{foreign}, MessageNotOurs, true, false, false},
		{"foreign dominates certificate", []SignatureRecord{intact}, []CertificateEvaluation{foreignExpired}, MessageNotOurs, false, false, false},
		{"ours but expired", []SignatureRecord{intact}, []CertificateEvaluation{expired}, MessageCertInvalid, false, false, true},
		{"older broken revision", []SignatureRecord{{Intact: false, Coverage: CoverageContiguous, Signer: user}, intact}, []CertificateEvaluation{ours, ours}, MessageModified, false, true, true},
		{"two intact revisions", []SignatureRecord{partial, intact}, []CertificateEvaluation{ours, ours}, MessageValid, true, false, true},
		{"timestamp certificate is not judged", []SignatureRecord{partial, stamp}, []CertificateEvaluation{ours, foreignExpired}, MessageValid, true, false, true},
		{"timestamp does not make a document ours", []SignatureRecord{partial, stamp}, []CertificateEvaluation{foreign, ours}, MessageNotOurs, true, false, false},
		{"broken timestamp", []SignatureRecord{partial, brokenStamp}, []CertificateEvaluation{ours, foreign}, MessageModified, false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Compose(tt.records, tt.evals, time.Now())
			assert.Equal(t, tt.message, v.Message)
			assert.Equal(t, tt.valid, v.IsValid)
			assert.Equal(t, tt.modified, v.IsModified)
			assert.Equal(t, tt.ourSystem, v.IsOurSystem)
			assert.Equal(t, len(tt.records), v.SignatureCount)
			assert.Equal(t, len(tt.records) > 0, v.HasSignatures)
		})
	}
}

func TestVerdictJSON(t *testing.T) {
	user := testpki.Get().User.Cert
	v := Compose(
		[]SignatureRecord{{FieldName: "Sig1", Intact: true, Coverage: CoverageEntireFile, Signer: user}},
		[]CertificateEvaluation{{Valid: true, IssuedBySystem: true}},
		time.Now(),
	)
	data, err := json.Marshal(v)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"isValid", "hasSignatures", "signatureCount", "isModified", "isOurSystem", "certificateStatus", "message", "signatures"} {
		assert.Contains(t, decoded, key)
	}
	status := decoded["certificateStatus"].(map[string]any)
	for _, key := range []string{"valid", "issuer", "subject", "validFrom", "validTo", "expired"} {
		assert.Contains(t, status, key)
	}
	assert.NotContains(t, decoded, "provenance")
}

func TestComposeUsesValidationTime(t *testing.T) {
	user := testpki.Get().User.Cert
	records := []SignatureRecord{{FieldName: "Sig1", Intact: true, Coverage: CoverageEntireFile, Signer: user}}
	evals := []CertificateEvaluation{{Valid: true, IssuedBySystem: true}}

	assert.False(t, Compose(records, evals, user.NotBefore.Add(time.Hour)).CertificateStatus.Expired)
	assert.True(t, Compose(records, evals, user.NotAfter.Add(time.Hour)).CertificateStatus.Expired)
}

func TestIssuerMatches(t *testing.T) {
	pki := testpki.Get()
	assert.True(t, IssuerMatches(pki.User.Cert, testpki.CAName))
	assert.True(t, IssuerMatches(pki.User.Cert, "  digital sign ca "))
	assert.True(t, IssuerMatches(pki.User.Cert, "Digital Sign"), "organization matches too")
	assert.False(t, IssuerMatches(pki.ForeignUser.Cert, testpki.CAName))
	assert.False(t, IssuerMatches(pki.User.Cert, ""))
	assert.False(t, IssuerMatches(nil, testpki.CAName))
}

func TestEvaluateCertificates(t *testing.T) {
	pki := testpki.Get()

	eval := EvaluateCertificates(SignatureRecord{Signer: pki.User.Cert, Certificates: pki.User.Chain()}, testpki.CAName, nil, pki.User.Cert.NotBefore.Add(1))
	assert.True(t, eval.Valid, eval.Problem)
	assert.True(t, eval.IssuedBySystem)
	assert.Len(t, eval.Chain, 2)

	// The chain can be completed from the anchors.
	eval = EvaluateCertificates(SignatureRecord{Signer: pki.User.Cert, Certificates: []*x509.Certificate{pki.User.Cert}}, testpki.CAName, []*x509.Certificate{pki.CA.Cert}, pki.User.Cert.NotBefore.Add(1))
	assert.True(t, eval.Valid, eval.Problem)
	assert.Len(t, eval.Chain, 2)

	// A certificate claiming the CA as issuer but carrying a foreign parent.
	eval = EvaluateCertificates(SignatureRecord{Signer: pki.User.Cert, Certificates: []*x509.Certificate{pki.User.Cert, pki.ForeignCA.Cert}}, testpki.CAName, nil, pki.User.Cert.NotBefore.Add(1))
	assert.False(t, eval.Valid)
	assert.Contains(t, eval.Problem, "incomplete chain")
	assert.Len(t, eval.Chain, 1)

	// An intermediate that is not a root ends the chain only as an anchor.
	broken := renamedIssuer(t, pki.CA.Cert)
	rec := SignatureRecord{Signer: pki.User.Cert, Certificates: []*x509.Certificate{pki.User.Cert, broken}}
	eval = EvaluateCertificates(rec, testpki.CAName, nil, pki.User.Cert.NotBefore.Add(1))
	assert.False(t, eval.Valid)
	assert.Contains(t, eval.Problem, "incomplete chain")
	require.Len(t, eval.Chain, 2)
	assert.Same(t, broken, eval.Chain[1])

	eval = EvaluateCertificates(rec, testpki.CAName, []*x509.Certificate{broken}, pki.User.Cert.NotBefore.Add(1))
	assert.True(t, eval.Valid, eval.Problem)

	// The genuine anchor is preferred over the altered copy.
	eval = EvaluateCertificates(rec, testpki.CAName, []*x509.Certificate{pki.CA.Cert}, pki.User.Cert.NotBefore.Add(1))
	assert.True(t, eval.Valid, eval.Problem)
	require.Len(t, eval.Chain, 2)
	assert.True(t, eval.Chain[1].Equal(pki.CA.Cert))

	eval = EvaluateCertificates(SignatureRecord{}, testpki.CAName, nil, pki.User.Cert.NotBefore)
	assert.False(t, eval.Valid)
	assert.NotEmpty(t, eval.Problem)
}

// renamedIssuer returns a copy of cert whose issuer name differs in its
// last byte, so it no longer looks self-issued.
func renamedIssuer(t *testing.T, cert *x509.Certificate) *x509.Certificate {
	t.Helper()
	der := append([]byte(nil), cert.Raw...)
	at := bytes.Index(der, cert.RawIssuer)
	require.Positive(t, at)
	last := at + len(cert.RawIssuer) - 1
	if der[last] == 'B' {
		der[last] = 'C'
	} else {
		der[last] = 'B'
	}
	out, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	require.False(t, bytes.Equal(out.RawSubject, out.RawIssuer))
	return out
}
