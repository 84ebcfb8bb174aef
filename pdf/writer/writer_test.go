package writer_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgepadayatti/pdfseal/internal/testpdf"
	"github.com/georgepadayatti/pdfseal/pdf/generic"
	"github.com/georgepadayatti/pdfseal/pdf/reader"
	"github.com/georgepadayatti/pdfseal/pdf/writer"
)

// offsetProbe records the position it is written at.
type offsetProbe struct {
	at int64
}

func (p *offsetProbe) Write(w io.Writer) error {
	p.at = writer.Position(w)
	_, err := io.WriteString(w, "(probe)")
	return err
}

func TestIncrementalWriterReportsAbsoluteOffsets(t *testing.T) {
	doc, err := reader.Parse(testpdf.Generate(1))
	require.NoError(t, err)

	probe := &offsetProbe{}
	dict := generic.NewDictionary()
	dict.Set("Probe", probe)
	w := writer.NewIncrementalWriter(doc)
	w.AddObject(dict)

	data, err := w.Bytes()
	require.NoError(t, err)
	require.Greater(t, probe.at, int64(len(doc.Bytes())))
	assert.Equal(t, "(probe)", string(data[probe.at:probe.at+7]))
}

func TestIncrementalWriterTerminatesOriginal(t *testing.T) {
	original := bytes.TrimRight(testpdf.Generate(1), "\n")
	doc, err := reader.Parse(original)
	require.NoError(t, err)

	w := writer.NewIncrementalWriter(doc)
	ref := w.AddObject(generic.IntegerObject(7))
	data, err := w.Bytes()
	require.NoError(t, err)

	updated, err := reader.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, generic.IntegerObject(7), updated.Resolve(ref))
	assert.Contains(t, string(data), "%%EOF\n6 0 obj")
}

func TestIncrementalWriterKeepsPermanentID(t *testing.T) {
	doc, err := reader.Parse(testpdf.Generate(1))
	require.NoError(t, err)

	first, err := writer.NewIncrementalWriter(doc).Bytes()
	require.NoError(t, err)
	d1, err := reader.Parse(first)
	require.NoError(t, err)
	second, err := writer.NewIncrementalWriter(d1).Bytes()
	require.NoError(t, err)
	d2, err := reader.Parse(second)
	require.NoError(t, err)

	id1 := d1.Trailer().Get("ID").(generic.ArrayObject)
	id2 := d2.Trailer().Get("ID").(generic.ArrayObject)
	assert.Equal(t, id1[0], id2[0])
	assert.NotEqual(t, id1[1], id2[1])
}

func TestRewriteCoalescesUpdates(t *testing.T) {
	doc, err := reader.Parse(testpdf.GenerateWith(testpdf.Options{Pages: 2, Title: "Acta"}))
	require.NoError(t, err)

	w := writer.NewIncrementalWriter(doc)
	w.AddObject(generic.NewLiteralString("unreferenced"))
	rootRef, _ := doc.RootRef()
	root := doc.Root().Clone()
	root.Set("Lang", generic.NewLiteralString("es"))
	w.UpdateObject(rootRef, root)
	updated, err := w.Bytes()
	require.NoError(t, err)

	updatedDoc, err := reader.Parse(updated)
	require.NoError(t, err)
	out, err := writer.Rewrite(updatedDoc)
	require.NoError(t, err)

	assert.Equal(t, 1, bytes.Count(out, []byte("startxref")))
	assert.NotContains(t, string(out), "unreferenced")

	rewritten, err := reader.Parse(out)
	require.NoError(t, err)
	assert.False(t, rewritten.Reconstructed())
	assert.Equal(t, 2, rewritten.PageCount())
	assert.Equal(t, "es", rewritten.Root().GetString("Lang").Text())
	rootRef, _ = rewritten.RootRef()
	assert.Equal(t, 1, rootRef.ObjectNumber)
	assert.False(t, rewritten.Trailer().Has("Prev"))
	info := rewritten.Arena().Dict(rewritten.Trailer().Get("Info"))
	assert.Equal(t, "Acta", info.GetString("Title").Text())
}

func TestWriteDocumentRequiresRoot(t *testing.T) {
	var out writer.Output
	err := writer.WriteDocument(&out, "1.7", nil, generic.NewDictionary())
	assert.Error(t, err)
}
