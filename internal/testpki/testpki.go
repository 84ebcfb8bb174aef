// Package testpki builds a small certificate hierarchy for tests: the
// system CA, a foreign CA, and end-entity certificates issued by each.
package testpki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"time"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// CAName is the common name of the system CA.
const CAName = "Digital Sign CA"

// Passphrase protects every container produced here.
const Passphrase = "test-passphrase"

// Identity is a certificate with its key and issuer chain (leaf first,
// excluding the leaf itself).
type Identity struct {
	Cert    *x509.Certificate
	Key     *rsa.PrivateKey
	Parents []*x509.Certificate
}

// Chain returns the leaf followed by its parents.
func (id *Identity) Chain() []*x509.Certificate {
	return append([]*x509.Certificate{id.Cert}, id.Parents...)
}

// PKCS12 encodes the identity with Passphrase.
func (id *Identity) PKCS12() []byte {
	data, err := pkcs12.Modern.Encode(id.Key, id.Cert, id.Parents, Passphrase)
	if err != nil {
		panic(err)
	}
	return data
}

// PKI holds the test hierarchy.
type PKI struct {
	CA          *Identity
	ForeignCA   *Identity
	User        *Identity
	ForeignUser *Identity
	// ExpiredUser was issued by CA but is no longer valid.
	ExpiredUser *Identity
	// OtherKeyUser carries User's certificate with an unrelated key.
	OtherKeyUser *Identity
}

var (
	once sync.Once
	pki  *PKI
)

// Get returns the shared hierarchy, building it on first use.
func Get() *PKI {
	once.Do(func() {
		now := time.Now()
		ca := newCA(CAName, "Digital Sign", now)
		foreign := newCA("Acme Root CA", "Acme", now)
		user := issue(ca, "Ana Torres", now.Add(-time.Hour), now.AddDate(1, 0, 0))
		pki = &PKI{
			CA:           ca,
			ForeignCA:    foreign,
			User:         user,
			ForeignUser:  issue(foreign, "Bob Outsider", now.Add(-time.Hour), now.AddDate(1, 0, 0)),
			ExpiredUser:  issue(ca, "Carla Expired", now.AddDate(-2, 0, 0), now.AddDate(-1, 0, 0)),
			OtherKeyUser: &Identity{Cert: user.Cert, Key: newKey(), Parents: user.Parents},
		}
	})
	return pki
}

var serial int64 = 1000

func nextSerial() *big.Int {
	serial++
	return big.NewInt(serial)
}

func newKey() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}

func newCA(cn, org string, now time.Time) *Identity {
	key := newKey()
	tmpl := &x509.Certificate{
		SerialNumber:          nextSerial(),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{org}},
		NotBefore:             now.Add(-24 * time.Hour),
		NotAfter:              now.AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		panic(err)
	}
	return &Identity{Cert: cert, Key: key}
}

func issue(ca *Identity, cn string, notBefore, notAfter time.Time) *Identity {
	key := newKey()
	tmpl := &x509.Certificate{
		SerialNumber:   nextSerial(),
		Subject:        pkix.Name{CommonName: cn, Organization: []string{"Test Org"}},
		EmailAddresses: []string{"signer@example.com"},
		NotBefore:      notBefore,
		NotAfter:       notAfter,
		KeyUsage:       x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.Cert, &key.PublicKey, ca.Key)
	if err != nil {
		panic(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		panic(err)
	}
	return &Identity{Cert: cert, Key: key, Parents: []*x509.Certificate{ca.Cert}}
}
