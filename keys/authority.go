package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/georgepadayatti/pdfseal/errs"
)

// Issuance defaults.
const (
	DefaultCAName         = "Digital Sign CA"
	DefaultValidityDays   = 365
	DefaultCAValidityDays = 3650
	MinPassphraseLength   = 6
	keyBits               = 2048
	notBeforeBackdate     = 5 * time.Minute
)

// AuthorityOptions configures a new CA.
type AuthorityOptions struct {
	CommonName   string
	Organization string
	ValidityDays int
	Clock        clockwork.Clock
}

// Authority issues end-entity signing certificates.
type Authority struct {
	cert  *x509.Certificate
	key   *rsa.PrivateKey
	clock clockwork.Clock
}

// NewAuthority creates a self-signed RSA CA.
func NewAuthority(opts AuthorityOptions) (*Authority, error) {
	const op = "keys.NewAuthority"
	if opts.CommonName == "" {
		opts.CommonName = DefaultCAName
	}
	if opts.ValidityDays <= 0 {
		opts.ValidityDays = DefaultCAValidityDays
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	now := opts.Clock.Now()
	subject := pkix.Name{CommonName: opts.CommonName}
	if opts.Organization != "" {
		subject.Organization = []string{opts.Organization}
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		NotBefore:             now.Add(-notBeforeBackdate),
		NotAfter:              now.AddDate(0, 0, opts.ValidityDays),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	return &Authority{cert: cert, key: key, clock: opts.Clock}, nil
}

// LoadAuthority restores a CA from a PKCS#12 container.
func LoadAuthority(blob []byte, passphrase string, clock clockwork.Clock) (*Authority, error) {
	cred, err := LoadPKCS12(blob, passphrase)
	if err != nil {
		return nil, err
	}
	key, ok := cred.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, errs.Wrapf(errs.ErrUnsupportedAlgorithm, "keys.LoadAuthority", "CA key must be RSA, got %T", cred.PrivateKey)
	}
	if !cred.Certificate.IsCA {
		return nil, errs.Wrapf(errs.ErrMalformedContainer, "keys.LoadAuthority", "%q is not a CA certificate", cred.Certificate.Subject.CommonName)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Authority{cert: cred.Certificate, key: key, clock: clock}, nil
}

// Certificate returns the CA certificate.
func (a *Authority) Certificate() *x509.Certificate { return a.cert }

// Export encodes the CA and its key as PKCS#12.
func (a *Authority) Export(passphrase string) ([]byte, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, errs.Wrapf(errs.ErrInvalidRequest, "keys.Export", "passphrase must have at least %d characters", MinPassphraseLength)
	}
	data, err := pkcs12.Modern.Encode(a.key, a.cert, nil, passphrase)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, "keys.Export", err)
	}
	return data, nil
}

// IssueRequest describes the subject of a new signing certificate.
type IssueRequest struct {
	CommonName         string `json:"commonName"`
	Email              string `json:"email"`
	Organization       string `json:"organization"`
	OrganizationalUnit string `json:"organizationalUnit"`
	Locality           string `json:"locality"`
	State              string `json:"state"`
	Country            string `json:"country"`
	ValidityDays       int    `json:"validityDays"`
	Passphrase         string `json:"passphrase"`
}

// Validate checks the request.
func (r *IssueRequest) Validate() error {
	const op = "keys.Issue"
	if strings.TrimSpace(r.CommonName) == "" {
		return errs.Wrapf(errs.ErrInvalidRequest, op, "commonName is required")
	}
	if len(r.Passphrase) < MinPassphraseLength {
		return errs.Wrapf(errs.ErrInvalidRequest, op, "passphrase must have at least %d characters", MinPassphraseLength)
	}
	if len(r.Country) > 0 && len(r.Country) != 2 {
		return errs.Wrapf(errs.ErrInvalidRequest, op, "country must be a two letter code")
	}
	if r.ValidityDays < 0 {
		return errs.Wrapf(errs.ErrInvalidRequest, op, "validityDays must not be negative")
	}
	return nil
}

// Issued is a freshly issued certificate and its container.
type Issued struct {
	Certificate *x509.Certificate
	// PKCS12 holds the key, the certificate and the CA certificate.
	PKCS12 []byte
}

// Issue creates an RSA key and a certificate for req signed by the CA.
func (a *Authority) Issue(req IssueRequest) (*Issued, error) {
	const op = "keys.Issue"
	if err := req.Validate(); err != nil {
		return nil, err
	}
	days := req.ValidityDays
	if days == 0 {
		days = DefaultValidityDays
	}

	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	now := a.clock.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      subjectFor(req),
		NotBefore:    now.Add(-notBeforeBackdate),
		NotAfter:     now.AddDate(0, 0, days),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection},
	}
	if req.Email != "" {
		tmpl.EmailAddresses = []string{req.Email}
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, a.cert, &key.PublicKey, a.key)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	p12, err := pkcs12.Modern.Encode(key, cert, []*x509.Certificate{a.cert}, req.Passphrase)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	return &Issued{Certificate: cert, PKCS12: p12}, nil
}

func subjectFor(req IssueRequest) pkix.Name {
	name := pkix.Name{CommonName: strings.TrimSpace(req.CommonName)}
	add := func(dst *[]string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = []string{v}
		}
	}
	add(&name.Organization, req.Organization)
	add(&name.OrganizationalUnit, req.OrganizationalUnit)
	add(&name.Locality, req.Locality)
	add(&name.Province, req.State)
	add(&name.Country, strings.ToUpper(req.Country))
	return name
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 127)
	return rand.Int(rand.Reader, limit)
}
