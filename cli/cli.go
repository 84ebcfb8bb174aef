// Package cli provides the pdfseal command-line interface.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/georgepadayatti/pdfseal/config"
	"github.com/georgepadayatti/pdfseal/logging"
)

// Version information
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitInvalid is returned by verify when the document is not valid.
	ExitInvalid = 2
)

// osExit is a variable for os.Exit to allow testing
var osExit = os.Exit

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Run executes the CLI with the given arguments and exits with the
// command's status when it is not zero.
func Run(args []string) {
	if code := run(args); code != ExitOK {
		osExit(code)
	}
}

func run(args []string) int {
	if len(args) < 2 {
		Usage()
		return ExitFailure
	}

	command := args[1]
	rest := args[2:]

	switch command {
	case "sign":
		return SignCommand(rest)
	case "verify":
		return VerifyCommand(rest)
	case "issue":
		return IssueCommand(rest)
	case "init-ca":
		return InitCACommand(rest)
	case "serve":
		return ServeCommand(rest)
	case "version":
		VersionCommand()
		return ExitOK
	case "help", "-h", "--help":
		Usage()
		return ExitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		Usage()
		return ExitFailure
	}
}

// Usage prints the CLI usage information.
func Usage() {
	fmt.Fprintf(stdout, "pdfseal - PDF signing and validation\n\n")
	fmt.Fprintf(stdout, "Usage: pdfseal <command> [options] <args>\n\n")
	fmt.Fprintln(stdout, "Commands:")
	fmt.Fprintln(stdout, "  sign     Stamp a provenance QR and sign a PDF")
	fmt.Fprintln(stdout, "  verify   Validate the signatures of a PDF")
	fmt.Fprintln(stdout, "  issue    Issue a signing certificate from a CA container")
	fmt.Fprintln(stdout, "  init-ca  Create a new certificate authority")
	fmt.Fprintln(stdout, "  serve    Run the HTTP API")
	fmt.Fprintln(stdout, "  version  Show version information")
	fmt.Fprintln(stdout, "  help     Show this help message")
	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "Use 'pdfseal <command> -help' for command-specific help")
	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "Examples:")
	fmt.Fprintln(stdout, "  pdfseal init-ca -passphrase secret -o ca.p12")
	fmt.Fprintln(stdout, "  pdfseal issue -ca ca.p12 -ca-passphrase secret -cn \"Ana Torres\" -passphrase s3cret -o ana.p12")
	fmt.Fprintln(stdout, "  pdfseal sign -p12 ana.p12 -passphrase s3cret -signer \"Ana Torres\" input.pdf output.pdf")
	fmt.Fprintln(stdout, "  pdfseal verify -json output.pdf")
}

// VersionCommand prints version information.
func VersionCommand() {
	fmt.Fprintf(stdout, "pdfseal version %s\n", Version)
	fmt.Fprintf(stdout, "Build time: %s\n", BuildTime)
}

// newFlagSet creates a flag set that reports errors instead of exiting.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseFlags parses args and returns the exit code to use when parsing
// did not succeed.
func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK, false
		}
		return ExitFailure, false
	}
	return ExitOK, true
}

// loadConfig loads the configuration and, when verbose, a logger built
// from it. Otherwise the logger discards everything.
func loadConfig(path string, verbose bool) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if !verbose {
		return cfg, zap.NewNop(), nil
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func fail(err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitFailure
}

// passphraseFrom returns flagValue, or the named environment variable when
// the flag is empty.
func passphraseFrom(flagValue, env string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(env)
}
