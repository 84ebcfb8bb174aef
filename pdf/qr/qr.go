// Package qr renders QR codes as PNG images.
package qr

import (
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrorCorrectionLevel represents the error correction level for QR codes.
type ErrorCorrectionLevel int

const (
	// ECLevelL provides ~7% error correction
	ECLevelL ErrorCorrectionLevel = iota
	// ECLevelM provides ~15% error correction
	ECLevelM
	// ECLevelQ provides ~25% error correction
	ECLevelQ
	// ECLevelH provides ~30% error correction
	ECLevelH
)

// DefaultSize is the default edge length in pixels.
const DefaultSize = 256

// ErrEmptyContent is returned when there is nothing to encode.
var ErrEmptyContent = errors.New("qr: empty content")

func (l ErrorCorrectionLevel) recovery() qrcode.RecoveryLevel {
	switch l {
	case ECLevelL:
		return qrcode.Low
	case ECLevelQ:
		return qrcode.High
	case ECLevelH:
		return qrcode.Highest
	}
	return qrcode.Medium
}

// EncodePNG renders content as a square PNG of size pixels.
func EncodePNG(content string, level ErrorCorrectionLevel, size int) ([]byte, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(content, level.recovery(), size)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}
	return png, nil
}
