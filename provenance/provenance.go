// Package provenance defines the marker stamped onto signed documents and
// its QR rendering.
package provenance

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/georgepadayatti/pdfseal/errs"
	"github.com/georgepadayatti/pdfseal/pdf/qr"
)

// DefaultSystemTag identifies markers produced by this system.
const DefaultSystemTag = "pdfseal"

const dataURIPrefix = "data:image/png;base64,"

// Position is where the marker was placed. Page is 1-based.
type Position struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Page int     `json:"page"`
}

// Marker identifies who signed a document and under what system. It is
// only trustworthy when it lies inside a signed byte range.
type Marker struct {
	SignerName   string   `json:"signerName"`
	SignerEmail  string   `json:"signerEmail,omitempty"`
	Organization string   `json:"organization,omitempty"`
	DocumentID   string   `json:"documentId"`
	Position     Position `json:"position"`
	Timestamp    string   `json:"timestampIso"`
	SystemTag    string   `json:"systemTag"`
}

// Normalize applies NFC to the text fields and fills the system tag.
func (m *Marker) Normalize() {
	m.SignerName = norm.NFC.String(strings.TrimSpace(m.SignerName))
	m.SignerEmail = strings.TrimSpace(m.SignerEmail)
	m.Organization = norm.NFC.String(strings.TrimSpace(m.Organization))
	m.DocumentID = strings.TrimSpace(m.DocumentID)
	if m.SystemTag == "" {
		m.SystemTag = DefaultSystemTag
	}
}

// Validate checks the required fields.
func (m *Marker) Validate() error {
	if m.SignerName == "" {
		return errs.Wrapf(errs.ErrInvalidMarker, "provenance.Validate", "signerName is required")
	}
	if m.DocumentID == "" {
		return errs.Wrapf(errs.ErrInvalidMarker, "provenance.Validate", "documentId is required")
	}
	if m.Timestamp != "" {
		if _, err := time.Parse(time.RFC3339, m.Timestamp); err != nil {
			return errs.Wrap(errs.ErrInvalidMarker, "provenance.Validate", err)
		}
	}
	return nil
}

// Time returns the parsed timestamp, or the zero time.
func (m *Marker) Time() time.Time {
	t, err := time.Parse(time.RFC3339, m.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Marshal encodes the marker as JSON.
func (m *Marker) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal decodes a JSON marker.
func Unmarshal(data []byte) (*Marker, error) {
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errs.Wrap(errs.ErrInvalidMarker, "provenance.Unmarshal", err)
	}
	return &m, nil
}

// RenderQR renders the marker JSON as a PNG QR code of the given size.
func (m *Marker) RenderQR(pixels int) ([]byte, error) {
	payload, err := m.Marshal()
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidMarker, "provenance.RenderQR", err)
	}
	png, err := qr.EncodePNG(string(payload), qr.ECLevelM, pixels)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidMarker, "provenance.RenderQR", err)
	}
	return png, nil
}

// DecodeImage decodes a base64 PNG, with or without a data URI prefix.
func DecodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, dataURIPrefix)
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidImage, "provenance.DecodeImage", err)
	}
	if len(data) == 0 {
		return nil, errs.Wrapf(errs.ErrInvalidImage, "provenance.DecodeImage", "empty image")
	}
	return data, nil
}
