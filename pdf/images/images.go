// Package images converts raster images into PDF image XObjects.
package images

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/georgepadayatti/pdfseal/pdf/generic"
)

// Common errors
var (
	ErrInvalidImage      = errors.New("invalid image data")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrInvalidDimensions = errors.New("invalid image dimensions")
)

// ColorSpace represents a PDF color space.
type ColorSpace string

const (
	ColorSpaceGray ColorSpace = "DeviceGray"
	ColorSpaceRGB  ColorSpace = "DeviceRGB"
	ColorSpaceCMYK ColorSpace = "DeviceCMYK"
)

// ImageFormat represents an image format.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "PNG"
	FormatJPEG ImageFormat = "JPEG"
)

// PDFImage represents an image ready for PDF embedding.
type PDFImage struct {
	Width            int
	Height           int
	BitsPerComponent int
	ColorSpace       ColorSpace
	// Data holds the encoded samples.
	Data []byte
	// Filter is "FlateDecode" or "DCTDecode".
	Filter string
	// AlphaData holds flate-compressed 8-bit alpha samples, nil when the
	// image is opaque.
	AlphaData      []byte
	OriginalFormat ImageFormat
}

// NewPDFImageFromBytes decodes PNG or JPEG data.
func NewPDFImageFromBytes(data []byte) (*PDFImage, error) {
	switch detectFormat(data) {
	case FormatPNG:
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
		out, err := NewPDFImageFromImage(img)
		if err != nil {
			return nil, err
		}
		out.OriginalFormat = FormatPNG
		return out, nil
	case FormatJPEG:
		return decodeJPEG(data)
	}
	return nil, ErrUnsupportedFormat
}

// NewPDFImageFromImage flattens img into 8-bit samples, splitting out an
// alpha channel when any pixel is translucent.
func NewPDFImageFromImage(img image.Image) (*PDFImage, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}

	colorSpace := ColorSpaceRGB
	components := 3
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		colorSpace = ColorSpaceGray
		components = 1
	}

	pixels := make([]byte, 0, width*height*components)
	alpha := make([]byte, 0, width*height)
	opaque := true
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if components == 1 {
				pixels = append(pixels, c.R)
			} else {
				pixels = append(pixels, c.R, c.G, c.B)
			}
			alpha = append(alpha, c.A)
			if c.A != 0xff {
				opaque = false
			}
		}
	}

	data, err := deflate(pixels)
	if err != nil {
		return nil, err
	}
	out := &PDFImage{
		Width:            width,
		Height:           height,
		BitsPerComponent: 8,
		ColorSpace:       colorSpace,
		Data:             data,
		Filter:           "FlateDecode",
	}
	if !opaque {
		if out.AlphaData, err = deflate(alpha); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeJPEG(data []byte) (*PDFImage, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	cs := ColorSpaceRGB
	switch cfg.ColorModel {
	case color.GrayModel:
		cs = ColorSpaceGray
	case color.CMYKModel:
		cs = ColorSpaceCMYK
	}
	return &PDFImage{
		Width:            cfg.Width,
		Height:           cfg.Height,
		BitsPerComponent: 8,
		ColorSpace:       cs,
		Data:             data,
		Filter:           "DCTDecode",
		OriginalFormat:   FormatJPEG,
	}, nil
}

// HasAlpha reports whether the image needs a soft mask.
func (img *PDFImage) HasAlpha() bool { return len(img.AlphaData) > 0 }

// XObject builds the image XObject stream. smask, when non-nil, is
// referenced as /SMask.
func (img *PDFImage) XObject(smask generic.PdfObject) *generic.StreamObject {
	dict := generic.NewDictionary()
	dict.Set("Type", generic.NameObject("XObject"))
	dict.Set("Subtype", generic.NameObject("Image"))
	dict.Set("Width", generic.IntegerObject(img.Width))
	dict.Set("Height", generic.IntegerObject(img.Height))
	dict.Set("ColorSpace", generic.NameObject(img.ColorSpace))
	dict.Set("BitsPerComponent", generic.IntegerObject(img.BitsPerComponent))
	dict.Set("Filter", generic.NameObject(img.Filter))
	if img.ColorSpace == ColorSpaceCMYK && img.Filter == "DCTDecode" {
		// Adobe JPEGs store inverted CMYK.
		dict.Set("Decode", generic.ArrayObject{
			generic.IntegerObject(1), generic.IntegerObject(0),
			generic.IntegerObject(1), generic.IntegerObject(0),
			generic.IntegerObject(1), generic.IntegerObject(0),
			generic.IntegerObject(1), generic.IntegerObject(0),
		})
	}
	if smask != nil {
		dict.Set("SMask", smask)
	}
	return generic.NewStream(dict, img.Data)
}

// SMaskXObject builds the soft mask stream, or nil for opaque images.
func (img *PDFImage) SMaskXObject() *generic.StreamObject {
	if !img.HasAlpha() {
		return nil
	}
	dict := generic.NewDictionary()
	dict.Set("Type", generic.NameObject("XObject"))
	dict.Set("Subtype", generic.NameObject("Image"))
	dict.Set("Width", generic.IntegerObject(img.Width))
	dict.Set("Height", generic.IntegerObject(img.Height))
	dict.Set("ColorSpace", generic.NameObject(ColorSpaceGray))
	dict.Set("BitsPerComponent", generic.IntegerObject(8))
	dict.Set("Filter", generic.NameObject("FlateDecode"))
	return generic.NewStream(dict, img.AlphaData)
}

func detectFormat(data []byte) ImageFormat {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG
	}
	return ""
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
