package validation

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"strings"
	"time"
)

// maxChainLength bounds chain building over untrusted certificate bags.
const maxChainLength = 16

// CertificateEvaluation is the certificate side of one signature.
type CertificateEvaluation struct {
	// Valid is true when every certificate in the chain is inside its
	// validity window and each is signed by the next.
	Valid   bool
	Problem string
	// IssuedBySystem is true when the signer's issuer names the system CA.
	IssuedBySystem bool
	// Chain is the signer's chain, leaf first, as far as it could be built.
	Chain []*x509.Certificate
}

// EvaluateCertificates checks the chain of rec's signer at now. anchors are
// tried before the certificates carried by the signature and may end a
// chain short of a root; when anchors are given, IssuedBySystem also
// requires the chain to reach one of them.
func EvaluateCertificates(rec SignatureRecord, caIdentity string, anchors []*x509.Certificate, now time.Time) CertificateEvaluation {
	if rec.Signer == nil {
		return CertificateEvaluation{Problem: "signature carries no signer certificate"}
	}
	pool := append(append([]*x509.Certificate(nil), anchors...), rec.Certificates...)
	chain := buildChain(rec.Signer, pool)
	eval := CertificateEvaluation{Valid: true, Chain: chain}
	if err := validateChain(chain, anchors, now); err != nil {
		eval.Valid = false
		eval.Problem = err.Error()
	}

	eval.IssuedBySystem = IssuerMatches(rec.Signer, caIdentity)
	if eval.IssuedBySystem && len(anchors) > 0 {
		eval.IssuedBySystem = reachesAnchor(chain, anchors)
	}
	return eval
}

// IssuerMatches reports whether the issuer common name or organization of
// cert equals identity, ignoring case.
func IssuerMatches(cert *x509.Certificate, identity string) bool {
	identity = strings.TrimSpace(identity)
	if cert == nil || identity == "" {
		return false
	}
	if strings.EqualFold(cert.Issuer.CommonName, identity) {
		return true
	}
	for _, org := range cert.Issuer.Organization {
		if strings.EqualFold(org, identity) {
			return true
		}
	}
	return false
}

// buildChain follows issuer links from leaf through pool.
func buildChain(leaf *x509.Certificate, pool []*x509.Certificate) []*x509.Certificate {
	chain := []*x509.Certificate{leaf}
	current := leaf
	for len(chain) < maxChainLength && !isSelfIssued(current) {
		var parent *x509.Certificate
		for _, candidate := range pool {
			if candidate.Equal(current) || !bytes.Equal(candidate.RawSubject, current.RawIssuer) {
				continue
			}
			if current.CheckSignatureFrom(candidate) == nil {
				parent = candidate
				break
			}
			if parent == nil {
				parent = candidate
			}
		}
		if parent == nil {
			break
		}
		chain = append(chain, parent)
		current = parent
	}
	return chain
}

// validateChain requires every link to be signed by the next certificate
// and the last one to be an anchor or a validly self-signed root.
func validateChain(chain, anchors []*x509.Certificate, now time.Time) error {
	for i, cert := range chain {
		if err := validateValidity(cert, now); err != nil {
			return err
		}
		if i == len(chain)-1 {
			switch {
			case isAnchor(cert, anchors):
			case isSelfIssued(cert):
				if err := cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature); err != nil {
					return fmt.Errorf("root certificate with subject %q is not validly self-signed: %v", cert.Subject, err)
				}
			default:
				return fmt.Errorf("incomplete chain: no issuer found for certificate with subject %q", cert.Subject)
			}
			continue
		}
		parent := chain[i+1]
		issuedBy, err := isIssuedBy(cert, parent)
		if err != nil {
			return fmt.Errorf("certificate with subject %q is not issued by %q: %v", cert.Subject, parent.Subject, err)
		}
		if !issuedBy {
			return fmt.Errorf("certificate with subject %q is not issued by %q", cert.Subject, parent.Subject)
		}
	}
	return nil
}

func validateValidity(cert *x509.Certificate, now time.Time) error {
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return fmt.Errorf("certificate with subject %q is not valid at %s; valid from %s to %s",
			cert.Subject, now.UTC().Format(time.RFC3339),
			cert.NotBefore.UTC().Format(time.RFC3339), cert.NotAfter.UTC().Format(time.RFC3339))
	}
	return nil
}

func isIssuedBy(subject, issuer *x509.Certificate) (bool, error) {
	if err := subject.CheckSignatureFrom(issuer); err != nil {
		return false, err
	}
	return bytes.Equal(issuer.RawSubject, subject.RawIssuer), nil
}

func isSelfIssued(cert *x509.Certificate) bool {
	return bytes.Equal(cert.RawSubject, cert.RawIssuer)
}

func reachesAnchor(chain, anchors []*x509.Certificate) bool {
	for _, cert := range chain {
		if isAnchor(cert, anchors) {
			return true
		}
	}
	return false
}

func isAnchor(cert *x509.Certificate, anchors []*x509.Certificate) bool {
	for _, anchor := range anchors {
		if cert.Equal(anchor) {
			return true
		}
	}
	return false
}
