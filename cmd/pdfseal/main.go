// Command pdfseal stamps, signs and validates PDF documents.
//
// Usage:
//
//	pdfseal <command> [options] <args>
//
// Commands:
//
//	sign     Stamp a provenance QR and sign a PDF
//	verify   Validate the signatures of a PDF
//	issue    Issue a signing certificate from a CA container
//	init-ca  Create a new certificate authority
//	serve    Run the HTTP API
//	version  Show version information
//	help     Show help message
//
// Examples:
//
//	# Create a CA and a signing certificate
//	pdfseal init-ca -passphrase secret -o ca.p12
//	pdfseal issue -ca ca.p12 -ca-passphrase secret -cn "Ana Torres" -passphrase s3cret -o ana.p12
//
//	# Sign a PDF
//	pdfseal sign -p12 ana.p12 -passphrase s3cret -signer "Ana Torres" input.pdf output.pdf
//
//	# Verify with JSON output
//	pdfseal verify -json output.pdf
package main

import (
	"os"

	"github.com/georgepadayatti/pdfseal/cli"
)

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/pdfseal
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cli.Version = version
	cli.BuildTime = buildTime

	cli.Run(os.Args)
}
