package stamp

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgepadayatti/pdfseal/errs"
	"github.com/georgepadayatti/pdfseal/internal/testpdf"
	"github.com/georgepadayatti/pdfseal/pdf/filters"
	"github.com/georgepadayatti/pdfseal/pdf/generic"
	"github.com/georgepadayatti/pdfseal/pdf/reader"
	"github.com/georgepadayatti/pdfseal/provenance"
)

func testPNG(t *testing.T, alpha uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.NRGBA{A: alpha})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testRequest(t *testing.T, page int) Request {
	p := DefaultPlacement()
	p.Page = page
	return Request{
		PNG: testPNG(t, 255),
		Marker: provenance.Marker{
			SignerName: "Ana",
			DocumentID: "doc-42",
			Position:   provenance.Position{X: p.X, Y: p.Y, Page: p.Page},
			Timestamp:  "2024-01-02T03:04:05Z",
		},
		Placement: p,
	}
}

func parse(t *testing.T, data []byte) *reader.Document {
	t.Helper()
	doc, err := reader.Parse(data)
	require.NoError(t, err)
	return doc
}

func pageContents(t *testing.T, doc *reader.Document, page int) []string {
	t.Helper()
	_, dict, err := doc.Page(page)
	require.NoError(t, err)
	var out []string
	for _, item := range doc.Arena().Array(dict.Get("Contents")) {
		stream, ok := doc.Resolve(item).(*generic.StreamObject)
		require.True(t, ok)
		data, err := filters.DecodeStream(stream, doc.Arena())
		require.NoError(t, err)
		out = append(out, string(data))
	}
	return out
}

func TestApplyStampsRequestedPage(t *testing.T) {
	original := testpdf.Generate(2)
	out, err := Apply(parse(t, original), testRequest(t, 2))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, original))

	doc := parse(t, out)
	contents := pageContents(t, doc, 2)
	require.Len(t, contents, 3)
	assert.Equal(t, "q\n", contents[0])
	assert.Contains(t, contents[1], "(Page 2)")
	assert.Equal(t, "Q\nq 100 0 0 100 50 50 cm /Qr1 Do Q\n", contents[2])

	_, page, err := doc.Page(2)
	require.NoError(t, err)
	resources := doc.Arena().Dict(page.Get("Resources"))
	assert.True(t, resources.Has("Font"))
	xobj, ok := doc.Resolve(doc.Arena().Dict(resources.Get("XObject")).Get("Qr1")).(*generic.StreamObject)
	require.True(t, ok)
	assert.Equal(t, "Image", xobj.Dictionary.GetName("Subtype"))
	assert.False(t, xobj.Dictionary.Has("SMask"))

	entries := doc.ProvenanceEntries()
	require.Len(t, entries, 1)
	marker, err := provenance.Unmarshal([]byte(entries[0]))
	require.NoError(t, err)
	assert.Equal(t, "doc-42", marker.DocumentID)
	assert.Equal(t, provenance.DefaultSystemTag, marker.SystemTag)

	assert.Len(t, pageContents(t, doc, 1), 1)
}

func TestApplyCopiesInheritedResources(t *testing.T) {
	data := testpdf.GenerateWith(testpdf.Options{Pages: 1, InheritResources: true})
	out, err := Apply(parse(t, data), testRequest(t, 1))
	require.NoError(t, err)

	doc := parse(t, out)
	_, page, err := doc.Page(1)
	require.NoError(t, err)
	resources := doc.Arena().Dict(page.Get("Resources"))
	require.NotNil(t, resources)
	assert.True(t, resources.Has("Font"))
	assert.True(t, doc.Arena().Dict(resources.Get("XObject")).Has("Qr1"))
}

func TestApplyTwiceUsesFreshName(t *testing.T) {
	first, err := Apply(parse(t, testpdf.Generate(1)), testRequest(t, 1))
	require.NoError(t, err)
	second, err := Apply(parse(t, first), testRequest(t, 1))
	require.NoError(t, err)

	doc := parse(t, second)
	contents := pageContents(t, doc, 1)
	assert.Contains(t, contents[len(contents)-1], "/Qr2 Do")
	assert.Len(t, doc.ProvenanceEntries(), 2)
}

func TestApplyTranslucentImageAddsSoftMask(t *testing.T) {
	req := testRequest(t, 1)
	req.PNG = testPNG(t, 100)
	out, err := Apply(parse(t, testpdf.Generate(1)), req)
	require.NoError(t, err)

	doc := parse(t, out)
	_, page, _ := doc.Page(1)
	xobjects := doc.Arena().Dict(doc.Arena().Dict(page.Get("Resources")).Get("XObject"))
	img := doc.Arena().Dict(xobjects.Get("Qr1"))
	assert.True(t, img.Has("SMask"))
}

func TestApplyRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		want   error
	}{
		{"page zero", func(r *Request) { r.Placement.Page = 0 }, errs.ErrInvalidPageIndex},
		{"page past end", func(r *Request) { r.Placement.Page = 3 }, errs.ErrInvalidPageIndex},
		{"zero width", func(r *Request) { r.Placement.Width = 0 }, errs.ErrInvalidPlacement},
		{"negative height", func(r *Request) { r.Placement.Height = -5 }, errs.ErrInvalidPlacement},
		{"nan width", func(r *Request) { r.Placement.Width = math.NaN() }, errs.ErrInvalidPlacement},
		{"nan x", func(r *Request) { r.Placement.X = math.NaN() }, errs.ErrInvalidPlacement},
		{"infinite y", func(r *Request) { r.Placement.Y = math.Inf(-1) }, errs.ErrInvalidPlacement},
		{"infinite height", func(r *Request) { r.Placement.Height = math.Inf(1) }, errs.ErrInvalidPlacement},
		{"not an image", func(r *Request) { r.PNG = []byte("nope") }, errs.ErrInvalidImage},
		{"no signer", func(r *Request) { r.Marker.SignerName = "" }, errs.ErrInvalidMarker},
	}
	doc := parse(t, testpdf.Generate(2))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest(t, 1)
			tt.mutate(&req)
			_, err := Apply(doc, req)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, errs.KindInput, errs.KindOf(err))
		})
	}
}
