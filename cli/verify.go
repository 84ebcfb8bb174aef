package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/georgepadayatti/pdfseal/pipeline"
	"github.com/georgepadayatti/pdfseal/sign/validation"
)

// VerifyOptions contains options for the verify command.
type VerifyOptions struct {
	ConfigFile string
	CACertFile string
	CAIdentity string
	JSON       bool
	Verbose    bool
}

// VerifyCommand implements the 'verify' command. It exits with
// ExitInvalid when the document is not valid.
func VerifyCommand(args []string) int {
	verifyFlags := newFlagSet("verify")

	var opts VerifyOptions

	verifyFlags.StringVar(&opts.ConfigFile, "config", "", "Configuration file (YAML)")
	verifyFlags.StringVar(&opts.CACertFile, "ca-cert", "", "Trust anchor for the system CA (PEM or DER)")
	verifyFlags.StringVar(&opts.CAIdentity, "ca-identity", "", "Issuer name that identifies this system")
	verifyFlags.BoolVar(&opts.JSON, "json", false, "Output the verdict in JSON format")
	verifyFlags.BoolVar(&opts.Verbose, "verbose", false, "Show per-signature details")

	verifyFlags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: pdfseal verify [options] <input.pdf>\n\n")
		fmt.Fprintln(stderr, "Validate the digital signature(s) of a PDF file.")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Options:")
		verifyFlags.PrintDefaults()
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Exit status is 0 for a valid document, 2 for an invalid one and 1 on error.")
	}

	if code, ok := parseFlags(verifyFlags, args); !ok {
		return code
	}
	if verifyFlags.NArg() < 1 {
		verifyFlags.Usage()
		return ExitFailure
	}

	verdict, err := verifyPDF(verifyFlags.Arg(0), &opts)
	if err != nil {
		return fail(err)
	}

	if opts.JSON {
		if err := outputJSON(verdict); err != nil {
			return fail(err)
		}
	} else {
		outputText(verdict, opts.Verbose)
	}

	if !verdict.IsValid {
		return ExitInvalid
	}
	return ExitOK
}

// verifyPDF performs the actual PDF verification.
func verifyPDF(inputPath string, opts *VerifyOptions) (*validation.Verdict, error) {
	cfg, logger, err := loadConfig(opts.ConfigFile, false)
	if err != nil {
		return nil, err
	}
	if opts.CACertFile != "" {
		cfg.Validation.CACertFile = opts.CACertFile
	}
	if opts.CAIdentity != "" {
		cfg.Validation.CAIdentity = opts.CAIdentity
	}

	engine, err := pipeline.NewEngine(cfg, pipeline.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	pdf, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	return engine.Validate(context.Background(), pdf)
}

// outputJSON outputs the verdict in JSON format.
func outputJSON(verdict *validation.Verdict) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(verdict)
}

// outputText outputs the verdict in human-readable text format.
func outputText(verdict *validation.Verdict, verbose bool) {
	fmt.Fprintf(stdout, "PDF Validation Result\n")
	fmt.Fprintf(stdout, "=====================\n\n")

	fmt.Fprintf(stdout, "  Status: %s %s\n", statusIcon(verdict), verdict.Message)
	fmt.Fprintf(stdout, "  Signatures: %d\n", verdict.SignatureCount)
	if !verdict.HasSignatures {
		return
	}
	fmt.Fprintf(stdout, "  Modified: %v\n", verdict.IsModified)
	fmt.Fprintf(stdout, "  Signed by this system: %v\n", verdict.IsOurSystem)

	cs := verdict.CertificateStatus
	fmt.Fprintf(stdout, "  Certificate: %s\n", boolToStatus(cs.Valid))
	if cs.Subject != "" {
		fmt.Fprintf(stdout, "    Subject: %s\n", cs.Subject)
		fmt.Fprintf(stdout, "    Issuer: %s\n", cs.Issuer)
	}
	if cs.ValidFrom != nil && cs.ValidTo != nil {
		fmt.Fprintf(stdout, "    Valid: %s to %s\n", cs.ValidFrom.Format(time.RFC3339), cs.ValidTo.Format(time.RFC3339))
	}

	if p := verdict.Provenance; p != nil {
		fmt.Fprintf(stdout, "\n  Provenance:\n")
		fmt.Fprintf(stdout, "    Signer: %s\n", p.SignerName)
		if p.SignerEmail != "" {
			fmt.Fprintf(stdout, "    Email: %s\n", p.SignerEmail)
		}
		if p.Organization != "" {
			fmt.Fprintf(stdout, "    Organization: %s\n", p.Organization)
		}
		fmt.Fprintf(stdout, "    Document ID: %s\n", p.DocumentID)
		fmt.Fprintf(stdout, "    Stamped: %s (page %d)\n", p.Timestamp, p.Position.Page)
	}

	if !verbose {
		fmt.Fprintln(stdout)
		return
	}
	for i, s := range verdict.Signatures {
		fmt.Fprintf(stdout, "\nSignature #%d\n", i+1)
		fmt.Fprintf(stdout, "------------\n")
		fmt.Fprintf(stdout, "  Field: %s\n", s.Field)
		fmt.Fprintf(stdout, "  SubFilter: %s\n", s.SubFilter)
		fmt.Fprintf(stdout, "  Byte range: %v\n", s.ByteRange)
		fmt.Fprintf(stdout, "  Integrity: %s\n", boolToStatus(s.Intact))
		if s.Problem != "" {
			fmt.Fprintf(stdout, "    - %s\n", s.Problem)
		}
		fmt.Fprintf(stdout, "  Covers whole file: %v\n", s.CoversWholeFile)
		if s.Signer != "" {
			fmt.Fprintf(stdout, "  Signer: %s\n", s.Signer)
		}
		if s.SigningTime != nil {
			fmt.Fprintf(stdout, "  Signing Time: %s\n", s.SigningTime.Format(time.RFC3339))
		}
		fmt.Fprintf(stdout, "  Certificate: %s\n", boolToStatus(s.CertificateValid))
		if s.CertificateProblem != "" {
			fmt.Fprintf(stdout, "    - %s\n", s.CertificateProblem)
		}
	}
	fmt.Fprintln(stdout)
}

// statusIcon returns an icon for the verdict.
func statusIcon(v *validation.Verdict) string {
	switch {
	case v.IsValid && v.IsOurSystem:
		return "[OK]"
	case v.IsValid:
		return "[WARN]"
	default:
		return "[FAIL]"
	}
}

// boolToStatus converts a boolean to a status string.
func boolToStatus(b bool) string {
	if b {
		return "OK"
	}
	return "FAILED"
}
