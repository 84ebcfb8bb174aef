package images

import (
	"bytes"
	"compress/zlib"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func inflate(t *testing.T, data []byte) []byte {
	t.Helper()
	r, err := zlib.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return out
}

func TestOpaquePNG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{B: 255, A: 255})

	pdfImg, err := NewPDFImageFromBytes(encodePNG(t, img))
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, pdfImg.OriginalFormat)
	assert.Equal(t, 2, pdfImg.Width)
	assert.Equal(t, 1, pdfImg.Height)
	assert.False(t, pdfImg.HasAlpha())
	assert.Nil(t, pdfImg.SMaskXObject())
	assert.Equal(t, []byte{255, 0, 0, 0, 0, 255}, inflate(t, pdfImg.Data))

	xobj := pdfImg.XObject(nil)
	assert.Equal(t, "Image", xobj.Dictionary.GetName("Subtype"))
	assert.Equal(t, "DeviceRGB", xobj.Dictionary.GetName("ColorSpace"))
	assert.False(t, xobj.Dictionary.Has("SMask"))
}

func TestTranslucentPNGHasSoftMask(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{G: 255, A: 128})

	pdfImg, err := NewPDFImageFromBytes(encodePNG(t, img))
	require.NoError(t, err)
	require.True(t, pdfImg.HasAlpha())
	assert.Equal(t, []byte{128}, inflate(t, pdfImg.AlphaData))

	smask := pdfImg.SMaskXObject()
	require.NotNil(t, smask)
	assert.Equal(t, "DeviceGray", smask.Dictionary.GetName("ColorSpace"))
}

func TestGrayPNG(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 3))
	pdfImg, err := NewPDFImageFromBytes(encodePNG(t, img))
	require.NoError(t, err)
	assert.Equal(t, ColorSpaceGray, pdfImg.ColorSpace)
	assert.Len(t, inflate(t, pdfImg.Data), 9)
}

func TestJPEGPassThrough(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 2)), nil))

	pdfImg, err := NewPDFImageFromBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "DCTDecode", pdfImg.Filter)
	assert.Equal(t, buf.Bytes(), pdfImg.Data)
	assert.Equal(t, 4, pdfImg.Width)
}

func TestInvalidImage(t *testing.T) {
	_, err := NewPDFImageFromBytes([]byte("not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = NewPDFImageFromBytes([]byte("\x89PNG\r\n\x1a\ngarbage"))
	assert.ErrorIs(t, err, ErrInvalidImage)
}
