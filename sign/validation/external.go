package validation

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/georgepadayatti/pdfseal/errs"
	"github.com/georgepadayatti/pdfseal/sign/signers"
)

// DefaultExternalTimeout bounds an external inspector run.
const DefaultExternalTimeout = 30 * time.Second

// FilePlaceholder in a command argument is replaced by the path of the PDF.
const FilePlaceholder = "{file}"

// ExternalInspector delegates to a command that prints a JSON report:
//
//	{"signatures": [{"field": "Sig1", "subFilter": "adbe.pkcs7.detached",
//	  "byteRange": [0, 10, 20, 30], "intact": true, "problem": "",
//	  "signingTime": "2025-01-02T15:04:05Z",
//	  "certificates": ["<base64 DER, signer first>"]}]}
type ExternalInspector struct {
	Command []string
	Timeout time.Duration
}

type externalReport struct {
	Signatures []externalSignature `json:"signatures"`
}

type externalSignature struct {
	Field        string     `json:"field"`
	SubFilter    string     `json:"subFilter"`
	ByteRange    []int64    `json:"byteRange"`
	Intact       bool       `json:"intact"`
	Problem      string     `json:"problem"`
	SigningTime  *time.Time `json:"signingTime,omitempty"`
	Certificates [][]byte   `json:"certificates"`
}

// Inspect implements SignatureInspector.
func (e *ExternalInspector) Inspect(ctx context.Context, data []byte) ([]SignatureRecord, error) {
	const op = "validation.ExternalInspector"
	if len(e.Command) == 0 {
		return nil, errs.Wrapf(errs.ErrExternalToolFailure, op, "no command configured")
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultExternalTimeout
	}

	dir, err := os.MkdirTemp("", "pdfseal-validate-")
	if err != nil {
		return nil, errs.Wrap(errs.ErrExternalToolFailure, op, err)
	}
	defer os.RemoveAll(dir)
	file := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(file, data, 0o600); err != nil {
		return nil, errs.Wrap(errs.ErrExternalToolFailure, op, err)
	}

	args := make([]string, len(e.Command)-1)
	for i, arg := range e.Command[1:] {
		args[i] = strings.ReplaceAll(arg, FilePlaceholder, file)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, e.Command[0], args...)
	cmd.WaitDelay = time.Second
	stdout, err := cmd.Output()
	if ctx.Err() != nil {
		return nil, errs.Wrapf(errs.ErrExternalToolFailure, op, "%s did not finish: %v", e.Command[0], ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, errs.Wrapf(errs.ErrExternalToolFailure, op, "%v: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, errs.Wrap(errs.ErrExternalToolFailure, op, err)
	}

	var report externalReport
	if err := json.Unmarshal(stdout, &report); err != nil {
		return nil, errs.Wrap(errs.ErrExternalToolFailure, op, fmt.Errorf("invalid report: %w", err))
	}
	records := make([]SignatureRecord, 0, len(report.Signatures))
	for i, s := range report.Signatures {
		rec, err := s.record(int64(len(data)))
		if err != nil {
			return nil, errs.Wrap(errs.ErrExternalToolFailure, op, fmt.Errorf("signature %d: %w", i, err))
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s externalSignature) record(size int64) (SignatureRecord, error) {
	rec := SignatureRecord{
		FieldName:        s.Field,
		SubFilter:        s.SubFilter,
		Intact:           s.Intact,
		IntegrityProblem: s.Problem,
		SigningTime:      s.SigningTime,
	}
	rec.DocumentTimestamp = s.SubFilter == signers.SubFilterETSIRFC3161
	if len(s.ByteRange) != 4 {
		return rec, fmt.Errorf("byteRange has %d elements", len(s.ByteRange))
	}
	copy(rec.ByteRange[:], s.ByteRange)
	rec.Coverage = coverageOf(rec.ByteRange, size)
	for _, der := range s.Certificates {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return rec, err
		}
		rec.Certificates = append(rec.Certificates, cert)
	}
	if len(rec.Certificates) > 0 {
		rec.Signer = rec.Certificates[0]
	}
	if !rec.Intact && rec.IntegrityProblem == "" {
		rec.IntegrityProblem = "reported as not intact"
	}
	return rec, nil
}

// FallbackInspector uses Primary and turns to Secondary only when Primary
// does not support a signature format.
type FallbackInspector struct {
	Primary   SignatureInspector
	Secondary SignatureInspector
}

// Inspect implements SignatureInspector.
func (f *FallbackInspector) Inspect(ctx context.Context, data []byte) ([]SignatureRecord, error) {
	records, err := f.Primary.Inspect(ctx, data)
	if f.Secondary != nil && (errors.Is(err, ErrUnsupportedSubFilter) || (err == nil && anyUnsupported(records))) {
		return f.Secondary.Inspect(ctx, data)
	}
	return records, err
}

func anyUnsupported(records []SignatureRecord) bool {
	for _, rec := range records {
		if rec.Unsupported {
			return true
		}
	}
	return false
}
