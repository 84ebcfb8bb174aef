package validation

import (
	"context"
	"crypto/x509"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/georgepadayatti/pdfseal/logging"
	"github.com/georgepadayatti/pdfseal/pdf/reader"
	"github.com/georgepadayatti/pdfseal/provenance"
)

// DefaultCAIdentity is the name of the system's issuing authority.
const DefaultCAIdentity = "Digital Sign CA"

// Validator produces verdicts. The zero value uses the native inspector,
// the real clock and DefaultCAIdentity.
type Validator struct {
	Inspector  SignatureInspector
	CAIdentity string
	// Anchors are certificates of the system CA. When set, a signer only
	// counts as ours if its chain reaches one of them.
	Anchors []*x509.Certificate
	Clock   clockwork.Clock
	Logger  *zap.Logger
}

// Validate inspects data and composes a verdict. Errors are returned only
// when the document could not be inspected at all.
func (v *Validator) Validate(ctx context.Context, data []byte) (*Verdict, error) {
	start := time.Now()
	inspector := v.Inspector
	if inspector == nil {
		inspector = NativeInspector{}
	}
	clock := v.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	identity := v.CAIdentity
	if identity == "" {
		identity = DefaultCAIdentity
	}
	logger := logging.OrNop(v.Logger)

	records, err := inspector.Inspect(ctx, data)
	if err != nil {
		logger.Warn("signature inspection failed", zap.Error(err))
		return nil, err
	}
	now := clock.Now()
	evals := make([]CertificateEvaluation, len(records))
	for i, rec := range records {
		evals[i] = EvaluateCertificates(rec, identity, v.Anchors, now)
	}
	verdict := Compose(records, evals, now)
	verdict.Provenance = LatestMarker(data)

	logger.Info("document validated",
		zap.Int(logging.FieldSignatureCount, verdict.SignatureCount),
		zap.Bool("is_valid", verdict.IsValid),
		zap.Bool("is_modified", verdict.IsModified),
		zap.Bool("is_our_system", verdict.IsOurSystem),
		zap.Duration(logging.FieldDuration, time.Since(start)),
	)
	return &verdict, nil
}

// LatestMarker returns the newest provenance marker stamped on the
// document, or nil.
func LatestMarker(data []byte) *provenance.Marker {
	doc, err := reader.Parse(data)
	if err != nil {
		return nil
	}
	var latest *provenance.Marker
	for _, entry := range doc.ProvenanceEntries() {
		m, err := provenance.Unmarshal([]byte(entry))
		if err != nil {
			continue
		}
		if latest == nil || !m.Time().Before(latest.Time()) {
			latest = m
		}
	}
	return latest
}
