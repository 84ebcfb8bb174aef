package cms

import (
	"crypto"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgepadayatti/pdfseal/errs"
	"github.com/georgepadayatti/pdfseal/internal/testpki"
)

func TestSignAndVerifyDetached(t *testing.T) {
	user := testpki.Get().User
	content := []byte("%PDF-1.7 signed bytes")

	der, err := Sign(content, user.Key, user.Chain(), nil)
	require.NoError(t, err)

	sig, err := Parse(der)
	require.NoError(t, err)
	assert.Equal(t, user.Cert.Raw, sig.Signer.Raw)
	assert.Len(t, sig.Certificates, 2)
	assert.Equal(t, crypto.SHA256, sig.DigestAlgorithm)
	sum := sha256.Sum256(content)
	assert.Equal(t, sum[:], sig.SignedDigest)
	require.NotNil(t, sig.SigningTime)
	assert.Empty(t, sig.EncapsulatedContent)

	assert.NoError(t, sig.VerifyDetached(content))
	err = sig.VerifyDetached([]byte("%PDF-1.7 signed bytez"))
	assert.ErrorIs(t, err, errs.ErrDigestMismatch)
}

func TestSignIncludesSigningCertificateV2(t *testing.T) {
	user := testpki.Get().User
	der, err := Sign([]byte("x"), user.Key, user.Chain(), nil)
	require.NoError(t, err)
	sig, err := Parse(der)
	require.NoError(t, err)

	var ess signingCertificateV2
	require.NoError(t, sig.P7.UnmarshalSignedAttribute(OIDSigningCertificateV2, &ess))
	require.Len(t, ess.Certs, 1)
	sum := sha256.Sum256(user.Cert.Raw)
	assert.Equal(t, sum[:], ess.Certs[0].CertHash)
}

func TestSignWithOtherDigest(t *testing.T) {
	user := testpki.Get().User
	content := []byte("content")
	der, err := Sign(content, user.Key, user.Chain(), &SignOptions{Digest: crypto.SHA512})
	require.NoError(t, err)
	sig, err := Parse(der)
	require.NoError(t, err)
	assert.Equal(t, crypto.SHA512, sig.DigestAlgorithm)
	assert.NoError(t, sig.VerifyDetached(content))
}

func TestVerifyDetachedIgnoresCertificateExpiry(t *testing.T) {
	expired := testpki.Get().ExpiredUser
	content := []byte("content")
	der, err := Sign(content, expired.Key, expired.Chain(), nil)
	require.NoError(t, err)
	sig, err := Parse(der)
	require.NoError(t, err)
	assert.NoError(t, sig.VerifyDetached(content))
}

func TestSignRejectsMismatchedKey(t *testing.T) {
	other := testpki.Get().OtherKeyUser
	_, err := Sign([]byte("x"), other.Key, other.Chain(), nil)
	assert.ErrorIs(t, err, errs.ErrKeyMismatch)
	assert.Equal(t, errs.KindCrypto, errs.KindOf(err))

	_, err = Sign([]byte("x"), other.Key, nil, nil)
	assert.ErrorIs(t, err, errs.ErrMissingCertificate)

	user := testpki.Get().User
	_, err = Sign([]byte("x"), user.Key, user.Chain(), &SignOptions{Digest: crypto.MD5})
	assert.ErrorIs(t, err, errs.ErrUnsupportedAlgorithm)
}

func TestParsePadding(t *testing.T) {
	user := testpki.Get().User
	der, err := Sign([]byte("x"), user.Key, user.Chain(), nil)
	require.NoError(t, err)

	padded := append(append([]byte{}, der...), make([]byte, 64)...)
	_, err = Parse(padded)
	assert.NoError(t, err)

	dirty := append(append([]byte{}, padded...), 0x01)
	_, err = Parse(dirty)
	assert.ErrorIs(t, err, errs.ErrMalformedContainer)
	assert.ErrorIs(t, err, ErrTrailingData)

	_, err = Parse([]byte{0x30, 0x03, 0x02})
	assert.ErrorIs(t, err, errs.ErrMalformedContainer)
}

func TestVerifyDetectsTamperedSignatureValue(t *testing.T) {
	user := testpki.Get().User
	content := []byte("content")
	der, err := Sign(content, user.Key, user.Chain(), nil)
	require.NoError(t, err)
	sig, err := Parse(der)
	require.NoError(t, err)

	sig.P7.Signers[0].EncryptedDigest[10] ^= 0xff
	err = sig.VerifyDetached(content)
	assert.ErrorIs(t, err, errs.ErrDigestMismatch)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestKeyMatches(t *testing.T) {
	pki := testpki.Get()
	assert.True(t, KeyMatches(pki.User.Cert, pki.User.Key))
	assert.False(t, KeyMatches(pki.User.Cert, pki.ForeignUser.Key))
	assert.False(t, KeyMatches(nil, pki.User.Key))
}

func TestHashForOID(t *testing.T) {
	for _, h := range []crypto.Hash{crypto.SHA1, crypto.SHA256, crypto.SHA384, crypto.SHA512} {
		oid, err := OIDForHash(h)
		require.NoError(t, err)
		back, err := HashForOID(oid)
		require.NoError(t, err)
		assert.Equal(t, h, back)
	}
	_, err := HashForOID([]int{1, 2, 3})
	assert.Error(t, err)
}
