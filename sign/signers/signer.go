package signers

import (
	"crypto"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/georgepadayatti/pdfseal/errs"
	"github.com/georgepadayatti/pdfseal/keys"
	"github.com/georgepadayatti/pdfseal/sign/cms"
)

// DefaultDigest is the message digest used for new signatures.
const DefaultDigest = crypto.SHA256

// Sign computes a detached CMS signature over the reservation's frozen
// byte ranges and writes it into the reserved slot. The returned document
// has exactly the length of res.Data; res itself is left untouched.
func Sign(res *Reservation, cred *keys.Credential) ([]byte, error) {
	const op = "signers.Sign"
	if res == nil {
		return nil, errs.Wrapf(errs.ErrInvalidRequest, op, "no reservation")
	}
	if cred == nil || cred.Certificate == nil || cred.PrivateKey == nil {
		return nil, errs.Wrapf(errs.ErrMissingCertificate, op, "no signing credential")
	}
	p := res.Placeholder
	content, err := p.SignedContent(res.Data)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}

	chain := cred.Chain
	if len(chain) == 0 || chain[0] != cred.Certificate {
		chain = append([]*x509.Certificate{cred.Certificate}, chain...)
	}
	der, err := cms.Sign(content, cred.PrivateKey, chain, &cms.SignOptions{Digest: DefaultDigest})
	if err != nil {
		return nil, err
	}
	return Embed(res, der)
}

// Embed writes der, hex encoded and padded with '0', into the reserved
// slot of res. It is used for CMS blobs produced elsewhere, such as a
// timestamp token over the reservation's byte ranges.
func Embed(res *Reservation, der []byte) ([]byte, error) {
	const op = "signers.Embed"
	if res == nil {
		return nil, errs.Wrapf(errs.ErrInvalidRequest, op, "no reservation")
	}
	p := res.Placeholder
	if _, err := p.SignedContent(res.Data); err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	hexSig := strings.ToUpper(hex.EncodeToString(der))
	if capacity := p.HexCapacity(); len(hexSig) > capacity {
		return nil, errs.Wrapf(errs.ErrReservedSlotOverflow, op,
			"signature needs %d hex digits, slot holds %d", len(hexSig), capacity)
	}

	out := make([]byte, len(res.Data))
	copy(out, res.Data)
	slot := out[p.ReservedSlot.Offset+1 : p.ReservedSlot.End()-1]
	copy(slot, hexSig)
	for i := len(hexSig); i < len(slot); i++ {
		slot[i] = '0'
	}
	return out, nil
}

// SelfCheck reads the signature back out of signed and verifies it against
// the byte ranges of p.
func SelfCheck(signed []byte, p SignaturePlaceholder) error {
	const op = "signers.SelfCheck"
	content, err := p.SignedContent(signed)
	if err != nil {
		return errs.Wrap(errs.ErrDigestMismatch, op, err)
	}
	der, err := ExtractContents(signed, p)
	if err != nil {
		return errs.Wrap(errs.ErrDigestMismatch, op, err)
	}
	sig, err := cms.Parse(der)
	if err != nil {
		return errs.Wrap(errs.ErrDigestMismatch, op, err)
	}
	return sig.VerifyDetached(content)
}

// ExtractContents decodes the hex string in the reserved slot, padding
// included.
func ExtractContents(data []byte, p SignaturePlaceholder) ([]byte, error) {
	if p.ReservedSlot.Offset < 0 || p.ReservedSlot.End() > int64(len(data)) || p.ReservedSlot.Length < 2 {
		return nil, errors.New("reserved slot outside file")
	}
	raw := data[p.ReservedSlot.Offset:p.ReservedSlot.End()]
	if raw[0] != '<' || raw[len(raw)-1] != '>' {
		return nil, errors.New("reserved slot is not a hex string")
	}
	hexPart := raw[1 : len(raw)-1]
	out := make([]byte, hex.DecodedLen(len(hexPart)))
	if _, err := hex.Decode(out, hexPart); err != nil {
		return nil, err
	}
	return out, nil
}
