package cms

import (
	"bytes"
	"crypto"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/georgepadayatti/pdfseal/errs"
)

// OIDTSTInfo is the content type of an RFC 3161 timestamp token.
var OIDTSTInfo = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 4}

// MessageImprint is the hash a timestamp authority committed to.
type MessageImprint struct {
	HashAlgorithm pkix.AlgorithmIdentifier
	HashedMessage []byte
}

// TimestampInfo is the leading part of an RFC 3161 TSTInfo. Accuracy,
// ordering, nonce and extensions are not read.
type TimestampInfo struct {
	Version        int
	Policy         asn1.ObjectIdentifier
	MessageImprint MessageImprint
	SerialNumber   *big.Int
	GenTime        time.Time `asn1:"generalized"`
}

// Timestamp decodes the encapsulated TSTInfo of a timestamp token.
func (s *Signature) Timestamp() (*TimestampInfo, error) {
	const op = "cms.Timestamp"
	if len(s.EncapsulatedContent) == 0 {
		return nil, errs.Wrapf(errs.ErrMalformedContainer, op, "token carries no TSTInfo")
	}
	var info TimestampInfo
	if _, err := asn1.Unmarshal(s.EncapsulatedContent, &info); err != nil {
		return nil, errs.Wrap(errs.ErrMalformedContainer, op, err)
	}
	return &info, nil
}

// VerifyTimestamp checks a timestamp token over content: the message
// imprint must be the digest of content and the token signature must
// cover the TSTInfo.
func (s *Signature) VerifyTimestamp(content []byte) (*TimestampInfo, error) {
	const op = "cms.VerifyTimestamp"
	info, err := s.Timestamp()
	if err != nil {
		return nil, err
	}
	hash, err := HashForOID(info.MessageImprint.HashAlgorithm.Algorithm)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUnsupportedAlgorithm, op, err)
	}
	h := hash.New()
	h.Write(content)
	if !bytes.Equal(h.Sum(nil), info.MessageImprint.HashedMessage) {
		return nil, errs.Wrapf(errs.ErrDigestMismatch, op, "message imprint does not match the covered bytes")
	}
	if err := s.VerifyDetached(s.EncapsulatedContent); err != nil {
		return nil, err
	}
	return info, nil
}

// ImprintHash returns the digest algorithm of the message imprint.
func (i *TimestampInfo) ImprintHash() (crypto.Hash, error) {
	return HashForOID(i.MessageImprint.HashAlgorithm.Algorithm)
}
