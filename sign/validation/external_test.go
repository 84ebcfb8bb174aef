package validation

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgepadayatti/pdfseal/errs"
	"github.com/georgepadayatti/pdfseal/internal/testpdf"
	"github.com/georgepadayatti/pdfseal/internal/testpki"
)

func fakeInspector(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported")
	}
	path := filepath.Join(t.TempDir(), "fake-inspector")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestExternalInspector(t *testing.T) {
	pdf := testpdf.Generate(1)
	leaf := base64.StdEncoding.EncodeToString(testpki.Get().User.Cert.Raw)
	ca := base64.StdEncoding.EncodeToString(testpki.Get().CA.Cert.Raw)
	report := fmt.Sprintf(`{"signatures":[{"field":"Firma1","subFilter":"ETSI.CAdES.detached","byteRange":[0,10,20,%d],"intact":true,"signingTime":"2025-01-02T15:04:05Z","certificates":["%s","%s"]}]}`,
		len(pdf)-20, leaf, ca)
	script := fmt.Sprintf("test -f \"$1\" || exit 9\ncat <<'EOF'\n%s\nEOF", report)

	inspector := &ExternalInspector{Command: []string{fakeInspector(t, script), FilePlaceholder}, Timeout: 5 * time.Second}
	records, err := inspector.Inspect(context.Background(), pdf)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "Firma1", rec.FieldName)
	assert.Equal(t, "ETSI.CAdES.detached", rec.SubFilter)
	assert.True(t, rec.Intact)
	assert.True(t, rec.CoversWholeFile())
	require.NotNil(t, rec.Signer)
	assert.Equal(t, "Ana Torres", rec.Signer.Subject.CommonName)
	assert.Len(t, rec.Certificates, 2)
	require.NotNil(t, rec.SigningTime)
	assert.Equal(t, 2025, rec.SigningTime.Year())

	verdict, err := (&Validator{Inspector: inspector}).Validate(context.Background(), pdf)
	require.NoError(t, err)
	assert.True(t, verdict.IsValid)
	assert.True(t, verdict.IsOurSystem)
}

func TestExternalInspectorFailures(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"non-zero exit", "echo broken >&2\nexit 1"},
		{"bad json", "echo 'not json'"},
		{"short byte range", `echo '{"signatures":[{"byteRange":[0,1]}]}'`},
		{"bad certificate", `echo '{"signatures":[{"byteRange":[0,1,2,3],"certificates":["AAAA"]}]}'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inspector := &ExternalInspector{Command: []string{fakeInspector(t, tt.script)}, Timeout: 5 * time.Second}
			_, err := inspector.Inspect(context.Background(), testpdf.Generate(1))
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrExternalToolFailure)
			assert.Equal(t, errs.KindExternalTool, errs.KindOf(err))
		})
	}
}

func TestExternalInspectorTimeout(t *testing.T) {
	inspector := &ExternalInspector{Command: []string{fakeInspector(t, "exec sleep 5")}, Timeout: 100 * time.Millisecond}
	start := time.Now()
	_, err := inspector.Inspect(context.Background(), testpdf.Generate(1))
	assert.ErrorIs(t, err, errs.ErrExternalToolFailure)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExternalInspectorRemovesTempFile(t *testing.T) {
	record := filepath.Join(t.TempDir(), "seen")
	script := fmt.Sprintf("echo \"$1\" > %s\nexit 1", record)
	inspector := &ExternalInspector{Command: []string{fakeInspector(t, script), FilePlaceholder}}
	_, err := inspector.Inspect(context.Background(), testpdf.Generate(1))
	require.Error(t, err)

	seen, err := os.ReadFile(record)
	require.NoError(t, err)
	path := string(seen[:len(seen)-1])
	require.NotEmpty(t, path)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "temporary file %s still exists", path)
}

func TestExternalInspectorWithoutCommand(t *testing.T) {
	_, err := (&ExternalInspector{}).Inspect(context.Background(), testpdf.Generate(1))
	assert.ErrorIs(t, err, errs.ErrExternalToolFailure)
}

type stubInspector struct {
	records []SignatureRecord
	err     error
	calls   int
}

func (s *stubInspector) Inspect(context.Context, []byte) ([]SignatureRecord, error) {
	s.calls++
	return s.records, s.err
}

func TestFallbackInspector(t *testing.T) {
	unsupported := errs.Wrap(errs.ErrUnsupportedAlgorithm, "test", fmt.Errorf("%w: %q", ErrUnsupportedSubFilter, "x"))

	t.Run("delegates unsupported formats", func(t *testing.T) {
		secondary := &stubInspector{records: []SignatureRecord{{FieldName: "Ext"}}}
		f := &FallbackInspector{Primary: &stubInspector{err: unsupported}, Secondary: secondary}
		records, err := f.Inspect(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, 1, secondary.calls)
		assert.Equal(t, "Ext", records[0].FieldName)
	})

	t.Run("delegates records with unknown sub-filters", func(t *testing.T) {
		primary := &stubInspector{records: []SignatureRecord{{FieldName: "Sig1", Intact: true}, {FieldName: "Sig2", Unsupported: true}}}
		secondary := &stubInspector{records: []SignatureRecord{{FieldName: "Ext1"}, {FieldName: "Ext2"}}}
		f := &FallbackInspector{Primary: primary, Secondary: secondary}
		records, err := f.Inspect(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, 1, secondary.calls)
		assert.Equal(t, "Ext2", records[1].FieldName)
	})

	t.Run("keeps unknown sub-filters without a secondary", func(t *testing.T) {
		f := &FallbackInspector{Primary: &stubInspector{records: []SignatureRecord{{FieldName: "Sig1", Unsupported: true}}}}
		records, err := f.Inspect(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.True(t, records[0].Unsupported)
	})

	t.Run("keeps other errors", func(t *testing.T) {
		secondary := &stubInspector{}
		f := &FallbackInspector{Primary: &stubInspector{err: errs.ErrInvalidPDF}, Secondary: secondary}
		_, err := f.Inspect(context.Background(), nil)
		assert.ErrorIs(t, err, errs.ErrInvalidPDF)
		assert.Zero(t, secondary.calls)
	})

	t.Run("primary success", func(t *testing.T) {
		secondary := &stubInspector{}
		f := &FallbackInspector{Primary: &stubInspector{records: []SignatureRecord{{FieldName: "Sig1"}}}, Secondary: secondary}
		records, err := f.Inspect(context.Background(), nil)
		require.NoError(t, err)
		assert.Len(t, records, 1)
		assert.Zero(t, secondary.calls)
	})
}
