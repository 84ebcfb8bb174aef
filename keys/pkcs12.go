package keys

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"errors"
	"strings"

	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/georgepadayatti/pdfseal/errs"
)

// Credential is a signing key with its certificate chain.
type Credential struct {
	PrivateKey  PrivateKey
	Certificate *x509.Certificate
	// Chain starts with Certificate and follows issuer links.
	Chain []*x509.Certificate
}

// Destroy drops the references to the key material.
func (c *Credential) Destroy() {
	if c == nil {
		return
	}
	c.PrivateKey = nil
	c.Certificate = nil
	c.Chain = nil
}

// LoadPKCS12 decodes a PKCS#12 container.
func LoadPKCS12(blob []byte, passphrase string) (*Credential, error) {
	const op = "keys.LoadPKCS12"
	if len(blob) == 0 {
		return nil, errs.Wrapf(errs.ErrMissingCertificate, op, "empty container")
	}
	if passphrase == "" {
		return nil, errs.Wrapf(errs.ErrBadPassphrase, op, "empty passphrase")
	}

	key, cert, caCerts, err := pkcs12.DecodeChain(blob, passphrase)
	if err != nil {
		switch {
		case errors.Is(err, pkcs12.ErrIncorrectPassword):
			return nil, errs.Wrap(errs.ErrBadPassphrase, op, err)
		case strings.Contains(err.Error(), "private key missing"):
			return nil, errs.Wrap(errs.ErrNoPrivateKey, op, err)
		default:
			return nil, errs.Wrap(errs.ErrMalformedContainer, op, err)
		}
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, errs.Wrapf(errs.ErrUnsupportedAlgorithm, op, "unsupported key type %T", key)
	}

	return &Credential{
		PrivateKey:  signer,
		Certificate: cert,
		Chain:       orderChain(cert, caCerts),
	}, nil
}

// orderChain returns leaf followed by the certificates that issued it, in
// issuer order. Certificates that do not link are appended at the end.
func orderChain(leaf *x509.Certificate, pool []*x509.Certificate) []*x509.Certificate {
	chain := []*x509.Certificate{leaf}
	used := make([]bool, len(pool))
	current := leaf
	for {
		next := -1
		for i, c := range pool {
			if used[i] || bytes.Equal(current.RawIssuer, current.RawSubject) {
				continue
			}
			if bytes.Equal(current.RawIssuer, c.RawSubject) && current.CheckSignatureFrom(c) == nil {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		used[next] = true
		current = pool[next]
		chain = append(chain, current)
	}
	for i, c := range pool {
		if !used[i] {
			chain = append(chain, c)
		}
	}
	return chain
}
