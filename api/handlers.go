package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/georgepadayatti/pdfseal/errs"
	"github.com/georgepadayatti/pdfseal/keys"
	"github.com/georgepadayatti/pdfseal/pipeline"
	"github.com/georgepadayatti/pdfseal/provenance"
	"github.com/georgepadayatti/pdfseal/stamp"
)

// DocumentIDHeader carries the identifier stamped on a signed document.
const DocumentIDHeader = "X-Document-Id"

// SignatureFieldHeader names the signature field that was filled.
const SignatureFieldHeader = "X-Signature-Field"

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type certificateResponse struct {
	Certificate string    `json:"certificate"`
	Subject     string    `json:"subject"`
	Issuer      string    `json:"issuer"`
	Serial      string    `json:"serial"`
	ValidFrom   time.Time `json:"validFrom"`
	ValidTo     time.Time `json:"validTo"`
}

// health handles GET /healthz
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"authority": s.engine.Authority() != nil,
	})
}

// signDocument handles POST /v1/documents/sign
func (s *Server) signDocument(c *gin.Context) {
	document, name, err := formFile(c, "document")
	if err != nil {
		s.fail(c, err)
		return
	}
	container, _, err := formFile(c, "certificate")
	if err != nil {
		s.fail(c, err)
		return
	}
	placement, err := placementFrom(c, s.engine.DefaultPlacement())
	if err != nil {
		s.fail(c, err)
		return
	}
	req := pipeline.SignRequest{
		PDF:        document,
		PKCS12:     container,
		Passphrase: c.PostForm("passphrase"),
		Marker: provenance.Marker{
			SignerName:   c.PostForm("signerName"),
			SignerEmail:  c.PostForm("signerEmail"),
			Organization: c.PostForm("organization"),
			DocumentID:   c.PostForm("documentId"),
		},
		Placement: &placement,
	}
	if qr := c.PostForm("qr"); qr != "" {
		req.QRImage, err = provenance.DecodeImage(qr)
		if err != nil {
			s.fail(c, err)
			return
		}
	}

	res, err := s.engine.Sign(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header(DocumentIDHeader, res.DocumentID())
	c.Header(SignatureFieldHeader, res.FieldName)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", signedName(name)))
	c.Data(http.StatusOK, "application/pdf", res.PDF)
}

// validateDocument handles POST /v1/documents/validate
func (s *Server) validateDocument(c *gin.Context) {
	document, _, err := formFile(c, "document")
	if err != nil {
		s.fail(c, err)
		return
	}
	verdict, err := s.engine.Validate(c.Request.Context(), document)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, verdict)
}

// issueCertificate handles POST /v1/certificates
func (s *Server) issueCertificate(c *gin.Context) {
	var req keys.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errs.Wrap(errs.ErrInvalidRequest, "api.issueCertificate", err))
		return
	}
	issued, err := s.engine.Issue(req)
	if err != nil {
		s.fail(c, err)
		return
	}
	info := keys.Describe(issued.Certificate, time.Now())
	c.JSON(http.StatusCreated, certificateResponse{
		Certificate: base64.StdEncoding.EncodeToString(issued.PKCS12),
		Subject:     info.Subject,
		Issuer:      info.Issuer,
		Serial:      info.Serial,
		ValidFrom:   info.NotBefore,
		ValidTo:     info.NotAfter,
	})
}

// fail writes the error response for err.
func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), errorResponse{Error: err.Error(), Code: errs.CodeOf(err)})
}

// statusFor maps an error to an HTTP status by its kind.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pipeline.ErrNoAuthority):
		return http.StatusServiceUnavailable
	}
	switch errs.KindOf(err) {
	case errs.KindInput:
		return http.StatusBadRequest
	case errs.KindStructural, errs.KindCrypto:
		return http.StatusUnprocessableEntity
	case errs.KindExternalTool:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func formFile(c *gin.Context, field string) ([]byte, string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", err
		}
		return nil, "", errs.Wrapf(errs.ErrInvalidRequest, "api", "%s is required", field)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	return data, fh.Filename, nil
}

// placementFrom overrides def with the page, x, y, width and height form
// fields that are present.
func placementFrom(c *gin.Context, def stamp.Placement) (stamp.Placement, error) {
	p := def
	if v := c.PostForm("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return p, errs.Wrapf(errs.ErrInvalidPlacement, "api", "page: %v", err)
		}
		p.Page = page
	}
	floats := []struct {
		field string
		dst   *float64
	}{
		{"x", &p.X},
		{"y", &p.Y},
		{"width", &p.Width},
		{"height", &p.Height},
	}
	for _, f := range floats {
		v := c.PostForm(f.field)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, errs.Wrapf(errs.ErrInvalidPlacement, "api", "%s: %v", f.field, err)
		}
		*f.dst = n
	}
	return p, p.Validate()
}

func signedName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "document"
	}
	return base + "-signed.pdf"
}
