package pipeline

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/georgepadayatti/pdfseal/config"
	"github.com/georgepadayatti/pdfseal/errs"
	"github.com/georgepadayatti/pdfseal/keys"
	"github.com/georgepadayatti/pdfseal/logging"
	"github.com/georgepadayatti/pdfseal/provenance"
	"github.com/georgepadayatti/pdfseal/repair"
	"github.com/georgepadayatti/pdfseal/sign/signers"
	"github.com/georgepadayatti/pdfseal/sign/validation"
	"github.com/georgepadayatti/pdfseal/stamp"
)

// ErrNoAuthority is returned by Issue when no CA is configured.
var ErrNoAuthority = errors.New("pipeline: no issuing authority configured")

// QRRenderer turns a marker into a PNG image.
type QRRenderer func(m *provenance.Marker, pixels int) ([]byte, error)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Nil keeps the no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock sets the clock used for marker timestamps, signing times and
// certificate checks.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithRepairer replaces the repairer selected by the configuration.
func WithRepairer(r repair.Repairer) Option {
	return func(e *Engine) { e.repairer = r }
}

// WithValidator replaces the validator built from the configuration.
func WithValidator(v *validation.Validator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithAuthority sets the issuing CA. Its certificate becomes the trust
// anchor unless validation.ca-cert-file is set.
func WithAuthority(a *keys.Authority) Option {
	return func(e *Engine) { e.authority = a }
}

// WithQRRenderer replaces the QR renderer.
func WithQRRenderer(r QRRenderer) Option {
	return func(e *Engine) { e.qr = r }
}

// Engine signs and validates documents. It keeps no per-document state
// and is safe for concurrent use.
type Engine struct {
	cfg       *config.Config
	repairer  repair.Repairer
	validator *validation.Validator
	authority *keys.Authority
	qr        QRRenderer
	clock     clockwork.Clock
	logger    *zap.Logger
}

// NewEngine builds an engine from cfg. A nil cfg means config.Default().
func NewEngine(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger)
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.qr == nil {
		e.qr = (*provenance.Marker).RenderQR
	}
	if e.repairer == nil {
		r, err := repair.New(cfg.Repair, e.logger)
		if err != nil {
			return nil, err
		}
		e.repairer = r
	}
	if e.authority == nil && cfg.Authority.P12File != "" {
		blob, err := os.ReadFile(cfg.Authority.P12File)
		if err != nil {
			return nil, fmt.Errorf("failed to read authority: %w", err)
		}
		a, err := keys.LoadAuthority(blob, cfg.Authority.Passphrase, e.clock)
		if err != nil {
			return nil, err
		}
		e.authority = a
	}
	if e.validator == nil {
		v, err := newValidator(cfg.Validation, e.authority, e.clock, e.logger)
		if err != nil {
			return nil, err
		}
		e.validator = v
	}
	return e, nil
}

func newValidator(cfg config.ValidationConfig, authority *keys.Authority, clock clockwork.Clock, logger *zap.Logger) (*validation.Validator, error) {
	inspector, err := NewInspector(cfg)
	if err != nil {
		return nil, err
	}
	var anchors []*x509.Certificate
	switch {
	case cfg.CACertFile != "":
		anchors, err = keys.LoadCertsFromPemDer(cfg.CACertFile)
		if err != nil {
			return nil, err
		}
	case authority != nil:
		anchors = []*x509.Certificate{authority.Certificate()}
	}
	return &validation.Validator{
		Inspector:  inspector,
		CAIdentity: cfg.CAIdentity,
		Anchors:    anchors,
		Clock:      clock,
		Logger:     logger,
	}, nil
}

// NewInspector selects the signature inspector named by cfg.Inspector.
func NewInspector(cfg config.ValidationConfig) (validation.SignatureInspector, error) {
	external := &validation.ExternalInspector{Command: cfg.ExternalCommand, Timeout: cfg.ExternalTimeout}
	switch cfg.Inspector {
	case "", "native":
		return validation.NativeInspector{}, nil
	case "external":
		return external, nil
	case "fallback":
		return &validation.FallbackInspector{Primary: validation.NativeInspector{}, Secondary: external}, nil
	default:
		return nil, fmt.Errorf("unknown inspector %q", cfg.Inspector)
	}
}

// Authority returns the issuing CA, or nil.
func (e *Engine) Authority() *keys.Authority { return e.authority }

// Validator returns the validator used by Validate.
func (e *Engine) Validator() *validation.Validator { return e.validator }

// SignRequest is one signing job.
type SignRequest struct {
	PDF        []byte
	PKCS12     []byte
	Passphrase string
	// Marker describes the signer. DocumentID is generated when empty;
	// Position and Timestamp are always set by the engine.
	Marker provenance.Marker
	// Placement defaults to the configured stamp box.
	Placement *stamp.Placement
	// QRImage replaces the rendered marker QR when set.
	QRImage []byte
}

// SignResult is a signed document and what was stamped on it.
type SignResult struct {
	PDF       []byte
	FieldName string
	Marker    provenance.Marker
}

// DocumentID returns the identifier stamped on the document.
func (r *SignResult) DocumentID() string { return r.Marker.DocumentID }

// Sign stamps, repairs, reserves and signs req.PDF. The credential is only
// decoded once the placeholder is in place and is dropped on return.
func (e *Engine) Sign(ctx context.Context, req SignRequest) (*SignResult, error) {
	start := time.Now()
	if len(req.PKCS12) == 0 {
		return nil, errs.Wrapf(errs.ErrMissingCertificate, "pipeline.Sign", "no certificate container")
	}
	raw, err := Load(req.PDF)
	if err != nil {
		return nil, err
	}

	placement := e.DefaultPlacement()
	if req.Placement != nil {
		placement = *req.Placement
	}
	now := e.clock.Now()
	marker := req.Marker
	if marker.DocumentID == "" {
		marker.DocumentID = uuid.NewString()
	}
	marker.Position = provenance.Position{X: placement.X, Y: placement.Y, Page: placement.Page}
	marker.Timestamp = now.UTC().Format(time.RFC3339)
	marker.Normalize()
	if err := marker.Validate(); err != nil {
		return nil, err
	}
	logger := e.logger.With(zap.String(logging.FieldDocumentID, marker.DocumentID))

	png := req.QRImage
	if len(png) == 0 {
		png, err = e.qr(&marker, e.cfg.Stamp.QRPixels)
		if err != nil {
			return nil, err
		}
	}

	stamped, err := raw.Stamp(stamp.Request{PNG: png, Marker: marker, Placement: placement})
	if err != nil {
		logger.Warn("stamp failed", zap.String(logging.FieldStage, "stamp"), zap.Error(err))
		return nil, err
	}

	// Rewriting a signed file would break its existing signatures.
	repairer := e.repairer
	if raw.Signed() {
		logger.Debug("document already signed, skipping repair")
		repairer = nil
	}
	repaired, err := stamped.Repair(ctx, repairer)
	if err != nil {
		logger.Warn("repair failed", zap.String(logging.FieldStage, "repair"), zap.Error(err))
		return nil, err
	}

	reserved, err := repaired.Reserve(signers.ReserveOptions{
		ReservedBytes: e.cfg.Signing.ReservedBytes,
		FieldPrefix:   e.cfg.Signing.FieldPrefix,
		Name:          marker.SignerName,
		Reason:        e.cfg.Signing.Reason,
		Location:      e.cfg.Signing.Location,
		ContactInfo:   e.cfg.Signing.ContactInfo,
		SigningTime:   now,
		Page:          placement.Page,
	})
	if err != nil {
		logger.Warn("reservation failed", zap.String(logging.FieldStage, "reserve"), zap.Error(err))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cred, err := keys.LoadPKCS12(req.PKCS12, req.Passphrase)
	if err != nil {
		logger.Warn("credential rejected", zap.String(logging.FieldStage, "credential"), zap.Error(err))
		return nil, err
	}
	defer cred.Destroy()

	signed, err := reserved.Sign(cred)
	if err != nil {
		logger.Warn("signing failed", zap.String(logging.FieldStage, "sign"), zap.Error(err))
		return nil, err
	}
	if e.cfg.Signing.SelfCheck {
		if err := signed.SelfCheck(); err != nil {
			logger.Error("self-check failed", zap.String(logging.FieldStage, "self-check"), zap.Error(err))
			return nil, err
		}
	}

	logger.Info("document signed",
		zap.String("field", signed.FieldName()),
		zap.Int("bytes", len(signed.Bytes())),
		zap.Duration(logging.FieldDuration, time.Since(start)))
	return &SignResult{PDF: signed.Bytes(), FieldName: signed.FieldName(), Marker: marker}, nil
}

// DefaultPlacement returns the configured stamp box.
func (e *Engine) DefaultPlacement() stamp.Placement {
	s := e.cfg.Stamp
	return stamp.Placement{Page: s.Page, X: s.X, Y: s.Y, Width: s.Width, Height: s.Height}
}

// Validate inspects pdf and returns its verdict.
func (e *Engine) Validate(ctx context.Context, pdf []byte) (*validation.Verdict, error) {
	if len(pdf) == 0 {
		return nil, errs.Wrapf(errs.ErrInvalidPDF, "pipeline.Validate", "empty document")
	}
	return e.validator.Validate(ctx, pdf)
}

// Issue creates a signing certificate with the configured authority.
func (e *Engine) Issue(req keys.IssueRequest) (*keys.Issued, error) {
	if e.authority == nil {
		return nil, ErrNoAuthority
	}
	issued, err := e.authority.Issue(req)
	if err != nil {
		return nil, err
	}
	e.logger.Info("certificate issued",
		zap.String("subject", issued.Certificate.Subject.CommonName),
		zap.Time("not_after", issued.Certificate.NotAfter))
	return issued, nil
}
