package generic

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/unicode/norm"
)

var utf16BOM = []byte{0xFE, 0xFF}

// NewTextString encodes s as a PDF text string. Input is NFC-normalised;
// pure ASCII is kept as a literal, anything else becomes UTF-16BE with a BOM.
func NewTextString(s string) *StringObject {
	s = norm.NFC.String(s)
	if isASCII(s) {
		return &StringObject{Value: []byte(s)}
	}
	enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		return &StringObject{Value: []byte(s)}
	}
	return &StringObject{Value: out}
}

// Text decodes the string as a PDF text string.
func (s *StringObject) Text() string {
	if s == nil {
		return ""
	}
	if bytes.HasPrefix(s.Value, utf16BOM) {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(s.Value)
		if err == nil {
			return string(out)
		}
	}
	return string(s.Value)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// FormatDate renders t as a PDF date string (D:YYYYMMDDHHmmSS+HH'mm').
func FormatDate(t time.Time) string {
	_, offset := t.Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	if offset == 0 {
		return t.Format("D:20060102150405") + "Z"
	}
	return fmt.Sprintf("%s%c%02d'%02d'", t.Format("D:20060102150405"), sign, offset/3600, (offset%3600)/60)
}

// ParseDate parses a PDF date string. Missing trailing fields default to
// their minimum.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "D:")
	if len(s) < 4 {
		return time.Time{}, fmt.Errorf("invalid PDF date %q", s)
	}
	digits := s
	rest := ""
	for i, c := range s {
		if c < '0' || c > '9' {
			digits, rest = s[:i], s[i:]
			break
		}
	}
	layout := "20060102150405"
	if len(digits) > len(layout) {
		digits = digits[:len(layout)]
	}
	pad := "00000101000000"
	full := digits + pad[len(digits):]
	t, err := time.Parse(layout, full)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid PDF date %q: %w", s, err)
	}
	rest = strings.ReplaceAll(rest, "'", "")
	if rest == "" || rest[0] == 'Z' {
		return t.UTC(), nil
	}
	if len(rest) >= 3 && (rest[0] == '+' || rest[0] == '-') {
		var hh, mm int
		fmt.Sscanf(rest[1:], "%02d%02d", &hh, &mm)
		offset := hh*3600 + mm*60
		if rest[0] == '-' {
			offset = -offset
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.FixedZone("", offset)), nil
	}
	return t.UTC(), nil
}
