package repair

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/georgepadayatti/pdfseal/errs"
)

// DefaultTimeout bounds external repair runs.
const DefaultTimeout = 30 * time.Second

// Qpdf runs the qpdf command line tool with object streams disabled.
type Qpdf struct {
	Path    string
	Timeout time.Duration
}

// Name implements Repairer.
func (*Qpdf) Name() string { return "qpdf" }

// Repair implements Repairer. qpdf exits with 3 when it repaired the file
// with warnings, which still counts as success.
func (q *Qpdf) Repair(ctx context.Context, data []byte) ([]byte, error) {
	const op = "repair.Qpdf"
	path := q.Path
	if path == "" {
		path = "qpdf"
	}
	timeout := q.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	dir, err := os.MkdirTemp("", "pdfseal-repair-")
	if err != nil {
		return nil, errs.Wrap(errs.ErrExternalToolFailure, op, err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, errs.Wrap(errs.ErrExternalToolFailure, op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, path, "--object-streams=disable", in, out)
	cmd.WaitDelay = time.Second
	output, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return nil, errs.Wrapf(errs.ErrExternalToolFailure, op, "qpdf did not finish: %v", ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
			return nil, errs.Wrapf(errs.ErrExternalToolFailure, op, "%v: %s", err, truncate(output, 512))
		}
	}

	repaired, err := os.ReadFile(out)
	if err != nil {
		return nil, errs.Wrap(errs.ErrExternalToolFailure, op, err)
	}
	return repaired, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
