// Package cms builds and parses the detached CMS SignedData blobs that are
// embedded in PDF signature dictionaries.
package cms

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"crypto/subtle"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.mozilla.org/pkcs7"

	"github.com/georgepadayatti/pdfseal/errs"
)

// Object identifiers not exported by the pkcs7 package.
var (
	OIDSigningCertificateV2 = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 47}
)

// Common errors
var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNoSigner         = errors.New("signed data must have exactly one signer")
	ErrTrailingData     = errors.New("non-zero bytes after the DER structure")
)

type signingCertificateV2 struct {
	Certs []essCertIDv2
}

type essCertIDv2 struct {
	HashAlgorithm algorithmIdentifier `asn1:"optional"`
	CertHash      []byte
	IssuerSerial  issuerSerial `asn1:"optional"`
}

type algorithmIdentifier struct {
	Algorithm asn1.ObjectIdentifier
}

type issuerSerial struct {
	Issuer       []asn1.RawValue
	SerialNumber *big.Int
}

// SignOptions controls CMS generation.
type SignOptions struct {
	// Digest defaults to SHA-256.
	Digest crypto.Hash
}

// Sign builds a detached SignedData over content. chain[0] is the signer
// certificate; the rest are included as intermediates.
func Sign(content []byte, signer crypto.Signer, chain []*x509.Certificate, opts *SignOptions) ([]byte, error) {
	const op = "cms.Sign"
	if len(chain) == 0 || chain[0] == nil {
		return nil, errs.Wrapf(errs.ErrMissingCertificate, op, "no signer certificate")
	}
	digest := crypto.SHA256
	if opts != nil && opts.Digest != 0 {
		digest = opts.Digest
	}
	digestOID, err := OIDForHash(digest)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUnsupportedAlgorithm, op, err)
	}
	if !KeyMatches(chain[0], signer) {
		return nil, errs.Wrapf(errs.ErrKeyMismatch, op, "private key does not match certificate %q", chain[0].Subject.CommonName)
	}

	essAttr, err := signingCertificateAttribute(chain[0], digest, digestOID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}

	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	sd.SetDigestAlgorithm(digestOID)
	cfg := pkcs7.SignerInfoConfig{ExtraSignedAttributes: []pkcs7.Attribute{essAttr}}
	if err := sd.AddSignerChain(chain[0], signer, chain[1:], cfg); err != nil {
		return nil, errs.Wrap(errs.ErrUnsupportedAlgorithm, op, err)
	}
	sd.Detach()
	der, err := sd.Finish()
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	return der, nil
}

func signingCertificateAttribute(cert *x509.Certificate, digest crypto.Hash, digestOID asn1.ObjectIdentifier) (pkcs7.Attribute, error) {
	h := digest.New()
	h.Write(cert.Raw)
	value := signingCertificateV2{
		Certs: []essCertIDv2{{
			HashAlgorithm: algorithmIdentifier{Algorithm: digestOID},
			CertHash:      h.Sum(nil),
			IssuerSerial: issuerSerial{
				Issuer: []asn1.RawValue{{
					Class:      asn1.ClassContextSpecific,
					Tag:        4, // directoryName
					IsCompound: true,
					Bytes:      cert.RawIssuer,
				}},
				SerialNumber: cert.SerialNumber,
			},
		}},
	}
	if _, err := asn1.Marshal(value); err != nil {
		return pkcs7.Attribute{}, err
	}
	return pkcs7.Attribute{Type: OIDSigningCertificateV2, Value: value}, nil
}

// Signature is a parsed SignedData with a single signer.
type Signature struct {
	P7           *pkcs7.PKCS7
	Signer       *x509.Certificate
	Certificates []*x509.Certificate
	// DigestAlgorithm is the signer's digest algorithm.
	DigestAlgorithm crypto.Hash
	// SignedDigest is the messageDigest signed attribute.
	SignedDigest []byte
	SigningTime  *time.Time
	// EncapsulatedContent is non-empty for signatures that embed their
	// content, such as adbe.pkcs7.sha1.
	EncapsulatedContent []byte
}

// Parse decodes der, which may be followed by zero padding as found in a
// PDF /Contents slot.
func Parse(der []byte) (*Signature, error) {
	const op = "cms.Parse"
	var outer asn1.RawValue
	if _, err := asn1.Unmarshal(der, &outer); err != nil {
		return nil, errs.Wrap(errs.ErrMalformedContainer, op, err)
	}
	for _, b := range der[len(outer.FullBytes):] {
		if b != 0 {
			return nil, errs.Wrap(errs.ErrMalformedContainer, op, ErrTrailingData)
		}
	}

	p7, err := pkcs7.Parse(outer.FullBytes)
	if err != nil {
		return nil, errs.Wrap(errs.ErrMalformedContainer, op, err)
	}
	if len(p7.Signers) != 1 {
		return nil, errs.Wrap(errs.ErrMalformedContainer, op, ErrNoSigner)
	}
	signer := p7.GetOnlySigner()
	if signer == nil {
		return nil, errs.Wrapf(errs.ErrMissingCertificate, op, "signer certificate not included")
	}
	hash, err := HashForOID(p7.Signers[0].DigestAlgorithm.Algorithm)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUnsupportedAlgorithm, op, err)
	}

	sig := &Signature{
		P7:                  p7,
		Signer:              signer,
		Certificates:        p7.Certificates,
		DigestAlgorithm:     hash,
		EncapsulatedContent: p7.Content,
	}
	var digest []byte
	if err := p7.UnmarshalSignedAttribute(pkcs7.OIDAttributeMessageDigest, &digest); err == nil {
		sig.SignedDigest = digest
	}
	var signingTime time.Time
	if err := p7.UnmarshalSignedAttribute(pkcs7.OIDAttributeSigningTime, &signingTime); err == nil {
		sig.SigningTime = &signingTime
	}
	return sig, nil
}

// Digest hashes content with the signer's digest algorithm.
func (s *Signature) Digest(content []byte) []byte {
	h := s.DigestAlgorithm.New()
	h.Write(content)
	return h.Sum(nil)
}

// VerifyDetached checks that the signature covers content. It compares the
// signed messageDigest with the digest of content and then verifies the
// signature value over the signed attributes. Certificate validity is not
// checked here.
func (s *Signature) VerifyDetached(content []byte) error {
	const op = "cms.VerifyDetached"
	if len(s.SignedDigest) == 0 {
		return errs.Wrapf(errs.ErrDigestMismatch, op, "no messageDigest attribute")
	}
	if subtle.ConstantTimeCompare(s.SignedDigest, s.Digest(content)) != 1 {
		return errs.Wrapf(errs.ErrDigestMismatch, op, "content digest does not match the signed digest")
	}
	return s.checkSignatureValue()
}

// VerifyEncapsulated checks a signature whose encapsulated content is the
// digest of content, as used by adbe.pkcs7.sha1.
func (s *Signature) VerifyEncapsulated(content []byte) error {
	const op = "cms.VerifyEncapsulated"
	if len(s.EncapsulatedContent) == 0 {
		return errs.Wrapf(errs.ErrDigestMismatch, op, "no encapsulated content")
	}
	h := crypto.SHA1.New()
	h.Write(content)
	if !bytes.Equal(h.Sum(nil), s.EncapsulatedContent) {
		return errs.Wrapf(errs.ErrDigestMismatch, op, "encapsulated digest does not match")
	}
	return s.VerifyDetached(s.EncapsulatedContent)
}

func (s *Signature) checkSignatureValue() error {
	const op = "cms.Verify"
	info := s.P7.Signers[0]
	attrs, err := asn1.Marshal(info.AuthenticatedAttributes)
	if err != nil || len(attrs) == 0 {
		return errs.Wrapf(errs.ErrDigestMismatch, op, "cannot encode signed attributes: %v", err)
	}
	// The signature covers the attributes encoded as a SET.
	attrs[0] = 0x31

	alg, err := signatureAlgorithm(s.Signer.PublicKeyAlgorithm, s.DigestAlgorithm)
	if err != nil {
		return errs.Wrap(errs.ErrUnsupportedAlgorithm, op, err)
	}
	if err := s.Signer.CheckSignature(alg, attrs, info.EncryptedDigest); err != nil {
		return errs.Wrap(errs.ErrDigestMismatch, op, fmt.Errorf("%w: %v", ErrInvalidSignature, err))
	}
	return nil
}

func signatureAlgorithm(pub x509.PublicKeyAlgorithm, hash crypto.Hash) (x509.SignatureAlgorithm, error) {
	switch pub {
	case x509.RSA:
		switch hash {
		case crypto.SHA1:
			return x509.SHA1WithRSA, nil
		case crypto.SHA256:
			return x509.SHA256WithRSA, nil
		case crypto.SHA384:
			return x509.SHA384WithRSA, nil
		case crypto.SHA512:
			return x509.SHA512WithRSA, nil
		}
	case x509.ECDSA:
		switch hash {
		case crypto.SHA1:
			return x509.ECDSAWithSHA1, nil
		case crypto.SHA256:
			return x509.ECDSAWithSHA256, nil
		case crypto.SHA384:
			return x509.ECDSAWithSHA384, nil
		case crypto.SHA512:
			return x509.ECDSAWithSHA512, nil
		}
	}
	return x509.UnknownSignatureAlgorithm, fmt.Errorf("unsupported key %v with digest %v", pub, hash)
}

// HashForOID maps a digest algorithm OID to its hash.
func HashForOID(oid asn1.ObjectIdentifier) (crypto.Hash, error) {
	switch {
	case oid.Equal(pkcs7.OIDDigestAlgorithmSHA1):
		return crypto.SHA1, nil
	case oid.Equal(pkcs7.OIDDigestAlgorithmSHA256):
		return crypto.SHA256, nil
	case oid.Equal(pkcs7.OIDDigestAlgorithmSHA384):
		return crypto.SHA384, nil
	case oid.Equal(pkcs7.OIDDigestAlgorithmSHA512):
		return crypto.SHA512, nil
	}
	return 0, fmt.Errorf("unsupported digest algorithm %s", oid)
}

// OIDForHash is the inverse of HashForOID.
func OIDForHash(h crypto.Hash) (asn1.ObjectIdentifier, error) {
	switch h {
	case crypto.SHA1:
		return pkcs7.OIDDigestAlgorithmSHA1, nil
	case crypto.SHA256:
		return pkcs7.OIDDigestAlgorithmSHA256, nil
	case crypto.SHA384:
		return pkcs7.OIDDigestAlgorithmSHA384, nil
	case crypto.SHA512:
		return pkcs7.OIDDigestAlgorithmSHA512, nil
	}
	return nil, fmt.Errorf("unsupported digest %v", h)
}

// KeyMatches reports whether key is the private half of cert's public key.
func KeyMatches(cert *x509.Certificate, key crypto.Signer) bool {
	if cert == nil || key == nil {
		return false
	}
	type equaler interface {
		Equal(crypto.PublicKey) bool
	}
	switch pub := key.Public().(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		return pub.(equaler).Equal(cert.PublicKey)
	}
	return false
}
