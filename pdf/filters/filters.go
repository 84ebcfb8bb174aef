// Package filters decodes and encodes PDF stream data.
package filters

import (
	"bytes"
	"compress/zlib"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/georgepadayatti/pdfseal/pdf/generic"
)

// Common errors
var (
	ErrUnsupportedFilter = errors.New("unsupported filter")
	ErrDecodeFailed      = errors.New("decode failed")
)

// DecodeStream returns the decoded content of a stream. Filter chains are
// applied in order; arena, when non-nil, resolves indirect entries.
func DecodeStream(stream *generic.StreamObject, arena *generic.Arena) ([]byte, error) {
	names, params := filterChain(stream.Dictionary, arena)
	data := stream.Data
	for i, name := range names {
		var err error
		switch name {
		case "FlateDecode", "Fl":
			data, err = flateDecode(data, params[i])
		case "ASCIIHexDecode", "AHx":
			data, err = asciiHexDecode(data)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
		}
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// FlateEncode compresses data with zlib.
func FlateEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("flate encode failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flate encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

func filterChain(dict *generic.DictionaryObject, arena *generic.Arena) ([]string, []*generic.DictionaryObject) {
	resolve := func(o generic.PdfObject) generic.PdfObject {
		if arena == nil {
			return o
		}
		return arena.Resolve(o)
	}
	var names []string
	switch f := resolve(dict.Get("Filter")).(type) {
	case generic.NameObject:
		names = []string{string(f)}
	case generic.ArrayObject:
		for _, item := range f {
			if n, ok := resolve(item).(generic.NameObject); ok {
				names = append(names, string(n))
			}
		}
	}
	params := make([]*generic.DictionaryObject, len(names))
	switch p := resolve(dict.Get("DecodeParms")).(type) {
	case *generic.DictionaryObject:
		if len(params) > 0 {
			params[0] = p
		}
	case generic.ArrayObject:
		for i := range params {
			if i < len(p) {
				params[i], _ = resolve(p[i]).(*generic.DictionaryObject)
			}
		}
	}
	return names, params
}

func flateDecode(data []byte, params *generic.DictionaryObject) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	predictor, _ := params.GetInt("Predictor")
	if predictor < 10 {
		return buf.Bytes(), nil
	}
	columns := intParam(params, "Columns", 1)
	colors := intParam(params, "Colors", 1)
	bpc := intParam(params, "BitsPerComponent", 8)
	return decodePNGPredictor(buf.Bytes(), (columns*colors*bpc+7)/8, (colors*bpc+7)/8)
}

func intParam(params *generic.DictionaryObject, key string, def int) int {
	if v, ok := params.GetInt(key); ok && v > 0 {
		return int(v)
	}
	return def
}

// decodePNGPredictor undoes PNG row filters. Each row carries a leading
// filter-type byte.
func decodePNGPredictor(data []byte, rowLen, bpp int) ([]byte, error) {
	stride := rowLen + 1
	if len(data)%stride != 0 {
		return nil, fmt.Errorf("%w: predictor data length %d is not a multiple of %d", ErrDecodeFailed, len(data), stride)
	}
	out := make([]byte, 0, len(data)/stride*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for i := 0; i < len(data); i += stride {
		kind, row := data[i], data[i+1:i+stride]
		for j := range row {
			var left, upLeft byte
			if j >= bpp {
				left = cur[j-bpp]
				upLeft = prev[j-bpp]
			}
			up := prev[j]
			switch kind {
			case 1:
				cur[j] = row[j] + left
			case 2:
				cur[j] = row[j] + up
			case 3:
				cur[j] = row[j] + byte((int(left)+int(up))/2)
			case 4:
				cur[j] = row[j] + paeth(left, up, upLeft)
			default:
				cur[j] = row[j]
			}
		}
		out = append(out, cur...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func asciiHexDecode(data []byte) ([]byte, error) {
	digits := make([]byte, 0, len(data))
	for _, c := range data {
		if c == '>' {
			break
		}
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' && c != '\f' && c != 0 {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	if _, err := hex.Decode(out, digits); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return out, nil
}
