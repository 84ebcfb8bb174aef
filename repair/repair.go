// Package repair normalises stamped documents into a single clean
// revision before a signature placeholder is reserved.
package repair

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/georgepadayatti/pdfseal/config"
	"github.com/georgepadayatti/pdfseal/errs"
	"github.com/georgepadayatti/pdfseal/logging"
	"github.com/georgepadayatti/pdfseal/pdf/reader"
	"github.com/georgepadayatti/pdfseal/pdf/writer"
)

// Repairer rewrites a PDF into a structurally clean file.
type Repairer interface {
	Repair(ctx context.Context, data []byte) ([]byte, error)
	Name() string
}

// New selects the repairer named by cfg.Engine.
func New(cfg config.RepairConfig, logger *zap.Logger) (Repairer, error) {
	logger = logging.OrNop(logger)
	var r Repairer
	switch cfg.Engine {
	case "", "pdfcpu":
		r = Pdfcpu{}
	case "native":
		r = Native{}
	case "qpdf":
		r = &Qpdf{Path: cfg.QpdfPath, Timeout: cfg.Timeout}
	default:
		return nil, fmt.Errorf("repair: unknown engine %q", cfg.Engine)
	}
	return &checked{next: r, logger: logger}, nil
}

// checked re-parses every repaired file so callers only ever receive a
// document the reader accepts.
type checked struct {
	next   Repairer
	logger *zap.Logger
}

func (c *checked) Name() string { return c.next.Name() }

func (c *checked) Repair(ctx context.Context, data []byte) ([]byte, error) {
	start := time.Now()
	out, err := c.next.Repair(ctx, data)
	if err != nil {
		c.logger.Warn("repair failed", zap.String("engine", c.next.Name()), zap.Error(err))
		return nil, err
	}
	if err := Verify(out); err != nil {
		return nil, err
	}
	c.logger.Debug("repaired document",
		zap.String("engine", c.next.Name()),
		zap.Int("in_bytes", len(data)),
		zap.Int("out_bytes", len(out)),
		zap.Duration(logging.FieldDuration, time.Since(start)))
	return out, nil
}

// Verify checks that data parses without xref reconstruction.
func Verify(data []byte) error {
	doc, err := reader.Parse(data)
	if err != nil {
		return errs.Wrap(errs.ErrUnparseablePDF, "repair.Verify", err)
	}
	if doc.Reconstructed() {
		return errs.Wrapf(errs.ErrUnparseablePDF, "repair.Verify", "output has a broken cross-reference table")
	}
	return nil
}

// Native rewrites the document with the built-in writer.
type Native struct{}

// Name implements Repairer.
func (Native) Name() string { return "native" }

// Repair implements Repairer.
func (Native) Repair(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := reader.Parse(data)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUnparseablePDF, "repair.Native", err)
	}
	out, err := writer.Rewrite(doc)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, "repair.Native", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		return nil, errs.Wrapf(errs.ErrSerialization, "repair.Native", "rewrite produced no header")
	}
	return out, nil
}
