package cli

import (
	"fmt"
	"os"

	"github.com/georgepadayatti/pdfseal/keys"
)

// CAPassphraseEnv is read when -ca-passphrase is not given.
const CAPassphraseEnv = "PDFSEAL_CA_PASSPHRASE"

// IssueOptions contains options for the issue command.
type IssueOptions struct {
	CAFile       string
	CAPassphrase string
	Output       string
	Seal         bool
	Request      keys.IssueRequest
}

// IssueCommand implements the 'issue' command.
func IssueCommand(args []string) int {
	issueFlags := newFlagSet("issue")

	var opts IssueOptions
	req := &opts.Request

	issueFlags.StringVar(&opts.CAFile, "ca", "", "PKCS#12 container of the issuing CA")
	issueFlags.StringVar(&opts.CAPassphrase, "ca-passphrase", "", "CA container passphrase (default $"+CAPassphraseEnv+")")
	issueFlags.StringVar(&opts.Output, "o", "", "Output file for the new PKCS#12 container")
	issueFlags.BoolVar(&opts.Seal, "seal", false, "Encrypt the container at rest with the passphrase")
	issueFlags.StringVar(&req.CommonName, "cn", "", "Common name of the holder")
	issueFlags.StringVar(&req.Email, "email", "", "Email of the holder")
	issueFlags.StringVar(&req.Organization, "org", "", "Organization")
	issueFlags.StringVar(&req.OrganizationalUnit, "ou", "", "Organizational unit")
	issueFlags.StringVar(&req.Locality, "locality", "", "Locality")
	issueFlags.StringVar(&req.State, "state", "", "State or province")
	issueFlags.StringVar(&req.Country, "country", "", "Two letter country code")
	issueFlags.IntVar(&req.ValidityDays, "days", keys.DefaultValidityDays, "Validity in days")
	issueFlags.StringVar(&req.Passphrase, "passphrase", "", "Passphrase for the new container (default $"+PassphraseEnv+")")

	issueFlags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: pdfseal issue [options]\n\n")
		fmt.Fprintln(stderr, "Issue a signing certificate and key as a PKCS#12 container.")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Options:")
		issueFlags.PrintDefaults()
	}

	if code, ok := parseFlags(issueFlags, args); !ok {
		return code
	}
	if opts.CAFile == "" || opts.Output == "" {
		issueFlags.Usage()
		return ExitFailure
	}
	req.Passphrase = passphraseFrom(req.Passphrase, PassphraseEnv)
	opts.CAPassphrase = passphraseFrom(opts.CAPassphrase, CAPassphraseEnv)

	issued, err := issueCertificate(&opts)
	if err != nil {
		return fail(err)
	}
	info := keys.Describe(issued.Certificate, issued.Certificate.NotBefore)
	fmt.Fprintf(stdout, "Issued certificate: %s\n", opts.Output)
	fmt.Fprintf(stdout, "  Subject: %s\n", info.Subject)
	fmt.Fprintf(stdout, "  Issuer: %s\n", info.Issuer)
	fmt.Fprintf(stdout, "  Serial: %s\n", info.Serial)
	fmt.Fprintf(stdout, "  Valid until: %s\n", info.NotAfter.Format("2006-01-02"))
	return ExitOK
}

func issueCertificate(opts *IssueOptions) (*keys.Issued, error) {
	blob, err := os.ReadFile(opts.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA container: %w", err)
	}
	authority, err := keys.LoadAuthority(blob, opts.CAPassphrase, nil)
	if err != nil {
		return nil, err
	}
	issued, err := authority.Issue(opts.Request)
	if err != nil {
		return nil, err
	}
	out := issued.PKCS12
	if opts.Seal {
		out, err = keys.Seal(out, opts.Request.Passphrase)
		if err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(opts.Output, out, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write output file: %w", err)
	}
	return issued, nil
}

// InitCAOptions contains options for the init-ca command.
type InitCAOptions struct {
	Output     string
	CertOutput string
	Passphrase string
	Authority  keys.AuthorityOptions
}

// InitCACommand implements the 'init-ca' command.
func InitCACommand(args []string) int {
	initFlags := newFlagSet("init-ca")

	var opts InitCAOptions

	initFlags.StringVar(&opts.Authority.CommonName, "cn", keys.DefaultCAName, "Common name of the CA")
	initFlags.StringVar(&opts.Authority.Organization, "org", "", "Organization of the CA")
	initFlags.IntVar(&opts.Authority.ValidityDays, "days", keys.DefaultCAValidityDays, "Validity in days")
	initFlags.StringVar(&opts.Passphrase, "passphrase", "", "Passphrase for the CA container (default $"+CAPassphraseEnv+")")
	initFlags.StringVar(&opts.Output, "o", "", "Output file for the CA PKCS#12 container")
	initFlags.StringVar(&opts.CertOutput, "cert", "", "Also write the CA certificate as PEM to this file")

	initFlags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: pdfseal init-ca [options]\n\n")
		fmt.Fprintln(stderr, "Create a self-signed certificate authority.")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Options:")
		initFlags.PrintDefaults()
	}

	if code, ok := parseFlags(initFlags, args); !ok {
		return code
	}
	if opts.Output == "" {
		initFlags.Usage()
		return ExitFailure
	}
	opts.Passphrase = passphraseFrom(opts.Passphrase, CAPassphraseEnv)

	authority, err := keys.NewAuthority(opts.Authority)
	if err != nil {
		return fail(err)
	}
	blob, err := authority.Export(opts.Passphrase)
	if err != nil {
		return fail(err)
	}
	if err := os.WriteFile(opts.Output, blob, 0o600); err != nil {
		return fail(fmt.Errorf("failed to write output file: %w", err))
	}
	if opts.CertOutput != "" {
		if err := os.WriteFile(opts.CertOutput, keys.EncodeCertificatePEM(authority.Certificate()), 0o644); err != nil {
			return fail(fmt.Errorf("failed to write certificate: %w", err))
		}
	}
	fmt.Fprintf(stdout, "Created certificate authority: %s\n", opts.Output)
	fmt.Fprintf(stdout, "  Subject: %s\n", authority.Certificate().Subject.String())
	return ExitOK
}
