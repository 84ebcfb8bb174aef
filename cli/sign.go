package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/georgepadayatti/pdfseal/keys"
	"github.com/georgepadayatti/pdfseal/pipeline"
	"github.com/georgepadayatti/pdfseal/provenance"
)

// PassphraseEnv is read when -passphrase is not given.
const PassphraseEnv = "PDFSEAL_PASSPHRASE"

// SignOptions contains options for the sign command.
type SignOptions struct {
	ConfigFile   string
	P12File      string
	Passphrase   string
	Sealed       bool
	SignerName   string
	SignerEmail  string
	Organization string
	DocumentID   string
	Page         int
	X            float64
	Y            float64
	Width        float64
	Height       float64
	QRFile       string
	Verbose      bool
}

// SignCommand implements the 'sign' command.
func SignCommand(args []string) int {
	signFlags := newFlagSet("sign")

	var opts SignOptions

	signFlags.StringVar(&opts.ConfigFile, "config", "", "Configuration file (YAML)")
	signFlags.StringVar(&opts.P12File, "p12", "", "PKCS#12 container with the signing key and certificate")
	signFlags.StringVar(&opts.Passphrase, "passphrase", "", "Container passphrase (default $"+PassphraseEnv+")")
	signFlags.BoolVar(&opts.Sealed, "sealed", false, "The container was sealed with 'issue -seal'")
	signFlags.StringVar(&opts.SignerName, "signer", "", "Name of the signatory")
	signFlags.StringVar(&opts.SignerEmail, "email", "", "Email of the signatory")
	signFlags.StringVar(&opts.Organization, "org", "", "Organization of the signatory")
	signFlags.StringVar(&opts.DocumentID, "id", "", "Document identifier (default: random UUID)")
	signFlags.IntVar(&opts.Page, "page", 0, "Page for the QR stamp, 1-based")
	signFlags.Float64Var(&opts.X, "x", 0, "Horizontal position of the QR stamp")
	signFlags.Float64Var(&opts.Y, "y", 0, "Vertical position of the QR stamp")
	signFlags.Float64Var(&opts.Width, "w", 0, "Width of the QR stamp")
	signFlags.Float64Var(&opts.Height, "h", 0, "Height of the QR stamp")
	signFlags.StringVar(&opts.QRFile, "qr", "", "PNG to stamp instead of the generated QR code")
	signFlags.BoolVar(&opts.Verbose, "v", false, "Log pipeline stages to stderr")

	signFlags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: pdfseal sign [options] <input.pdf> <output.pdf>\n\n")
		fmt.Fprintln(stderr, "Stamp a provenance QR code onto a PDF and sign it.")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Options:")
		signFlags.PrintDefaults()
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Examples:")
		fmt.Fprintln(stderr, "  pdfseal sign -p12 ana.p12 -passphrase s3cret -signer \"Ana Torres\" in.pdf out.pdf")
		fmt.Fprintln(stderr, "  pdfseal sign -p12 ana.p12 -signer \"Ana Torres\" -page 2 -x 400 -y 40 in.pdf out.pdf")
	}

	if code, ok := parseFlags(signFlags, args); !ok {
		return code
	}
	if signFlags.NArg() < 2 || opts.P12File == "" {
		signFlags.Usage()
		return ExitFailure
	}
	set := map[string]bool{}
	signFlags.Visit(func(f *flag.Flag) { set[f.Name] = true })

	res, err := signPDF(signFlags.Arg(0), signFlags.Arg(1), &opts, set)
	if err != nil {
		return fail(err)
	}

	fmt.Fprintf(stdout, "Successfully signed PDF: %s\n", signFlags.Arg(1))
	fmt.Fprintf(stdout, "  Document ID: %s\n", res.DocumentID())
	fmt.Fprintf(stdout, "  Field: %s\n", res.FieldName)
	return ExitOK
}

// signPDF performs the actual PDF signing. set names the flags given on
// the command line; only those override the configured stamp placement.
func signPDF(inputPath, outputPath string, opts *SignOptions, set map[string]bool) (*pipeline.SignResult, error) {
	cfg, logger, err := loadConfig(opts.ConfigFile, opts.Verbose)
	if err != nil {
		return nil, err
	}
	defer logger.Sync() //nolint:errcheck

	engine, err := pipeline.NewEngine(cfg, pipeline.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	pdf, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	container, err := os.ReadFile(opts.P12File)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate container: %w", err)
	}
	passphrase := passphraseFrom(opts.Passphrase, PassphraseEnv)
	if opts.Sealed {
		container, err = keys.Open(container, passphrase)
		if err != nil {
			return nil, err
		}
	}

	placement := engine.DefaultPlacement()
	if set["page"] {
		placement.Page = opts.Page
	}
	if set["x"] {
		placement.X = opts.X
	}
	if set["y"] {
		placement.Y = opts.Y
	}
	if set["w"] {
		placement.Width = opts.Width
	}
	if set["h"] {
		placement.Height = opts.Height
	}

	req := pipeline.SignRequest{
		PDF:        pdf,
		PKCS12:     container,
		Passphrase: passphrase,
		Marker: provenance.Marker{
			SignerName:   opts.SignerName,
			SignerEmail:  opts.SignerEmail,
			Organization: opts.Organization,
			DocumentID:   opts.DocumentID,
		},
		Placement: &placement,
	}
	if opts.QRFile != "" {
		req.QRImage, err = os.ReadFile(opts.QRFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read QR image: %w", err)
		}
	}

	res, err := engine.Sign(context.Background(), req)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputPath, res.PDF, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write output file: %w", err)
	}
	return res, nil
}
