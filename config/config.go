// Package config loads the engine configuration from YAML, an optional
// .env file and PDFSEAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Common errors
var (
	ErrConfigurationError   = errors.New("configuration error")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidValue         = errors.New("invalid value")
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PDFSEAL_"

// MinReservedBytes is the smallest signature slot accepted.
const MinReservedBytes = 1024

// ConfigError represents a configuration error with context.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message, Err: ErrConfigurationError}
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level,omitempty"`

	// Format is the log format (json, console).
	Format string `yaml:"format" json:"format,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr,omitempty"`
	MaxUploadBytes  int64         `yaml:"max-upload-bytes" json:"max_upload_bytes,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout" json:"shutdown_timeout,omitempty"`
}

// SigningConfig controls placeholder reservation and the signature
// dictionary.
type SigningConfig struct {
	// ReservedBytes is the size of the CMS slot in bytes; the hex slot in
	// the file is twice as long.
	ReservedBytes int    `yaml:"reserved-bytes" json:"reserved_bytes,omitempty"`
	Reason        string `yaml:"reason" json:"reason,omitempty"`
	Location      string `yaml:"location" json:"location,omitempty"`
	ContactInfo   string `yaml:"contact-info" json:"contact_info,omitempty"`
	FieldPrefix   string `yaml:"field-prefix" json:"field_prefix,omitempty"`

	// SelfCheck re-verifies every signature right after embedding it.
	SelfCheck bool `yaml:"self-check" json:"self_check"`
}

// StampConfig is the default QR placement.
type StampConfig struct {
	Page     int     `yaml:"page" json:"page,omitempty"`
	X        float64 `yaml:"x" json:"x"`
	Y        float64 `yaml:"y" json:"y"`
	Width    float64 `yaml:"width" json:"width,omitempty"`
	Height   float64 `yaml:"height" json:"height,omitempty"`
	QRPixels int     `yaml:"qr-pixels" json:"qr_pixels,omitempty"`
}

// RepairConfig selects how stamped documents are normalised before
// reservation.
type RepairConfig struct {
	// Engine is one of "pdfcpu", "native" or "qpdf".
	Engine   string        `yaml:"engine" json:"engine,omitempty"`
	QpdfPath string        `yaml:"qpdf-path" json:"qpdf_path,omitempty"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout,omitempty"`
}

// ValidationConfig controls signature inspection and the provenance check.
type ValidationConfig struct {
	// CAIdentity is compared against the issuer CN and O of signer
	// certificates.
	CAIdentity string `yaml:"ca-identity" json:"ca_identity,omitempty"`
	// CACertFile is a PEM or DER trust anchor. Empty means the authority
	// certificate, when one is configured.
	CACertFile string `yaml:"ca-cert-file" json:"ca_cert_file,omitempty"`
	// Inspector is one of "native", "external" or "fallback".
	Inspector       string        `yaml:"inspector" json:"inspector,omitempty"`
	ExternalCommand []string      `yaml:"external-command" json:"external_command,omitempty"`
	ExternalTimeout time.Duration `yaml:"external-timeout" json:"external_timeout,omitempty"`
}

// AuthorityConfig points at the issuing CA container.
type AuthorityConfig struct {
	P12File    string `yaml:"p12-file" json:"p12_file,omitempty"`
	Passphrase string `yaml:"passphrase" json:"-"`
}

// Config contains the complete application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" json:"log"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Signing    SigningConfig    `yaml:"signing" json:"signing"`
	Stamp      StampConfig      `yaml:"stamp" json:"stamp"`
	Repair     RepairConfig     `yaml:"repair" json:"repair"`
	Validation ValidationConfig `yaml:"validation" json:"validation"`
	Authority  AuthorityConfig  `yaml:"authority" json:"authority"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Server: ServerConfig{
			Addr:            ":8080",
			MaxUploadBytes:  32 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Signing: SigningConfig{
			ReservedBytes: 8192,
			Reason:        "Firmado digitalmente",
			FieldPrefix:   "Sig",
			SelfCheck:     true,
		},
		Stamp: StampConfig{Page: 1, X: 50, Y: 50, Width: 100, Height: 100, QRPixels: 256},
		Repair: RepairConfig{
			Engine:   "pdfcpu",
			QpdfPath: "qpdf",
			Timeout:  30 * time.Second,
		},
		Validation: ValidationConfig{
			CAIdentity:      "Digital Sign CA",
			Inspector:       "native",
			ExternalTimeout: 30 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty), a .env file in the working directory (if present)
// and PDFSEAL_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{Message: "failed to parse config", Err: err}
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &ConfigError{Message: "failed to read .env", Err: err}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig overlays YAML data onto the defaults and validates the
// result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Message: "failed to parse config", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies PDFSEAL_* overrides read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("SERVER_ADDR", &c.Server.Addr)
	str("SIGNING_REASON", &c.Signing.Reason)
	str("SIGNING_LOCATION", &c.Signing.Location)
	str("REPAIR_ENGINE", &c.Repair.Engine)
	str("REPAIR_QPDF_PATH", &c.Repair.QpdfPath)
	str("VALIDATION_CA_IDENTITY", &c.Validation.CAIdentity)
	str("VALIDATION_CA_CERT_FILE", &c.Validation.CACertFile)
	str("VALIDATION_INSPECTOR", &c.Validation.Inspector)
	str("AUTHORITY_P12_FILE", &c.Authority.P12File)
	str("AUTHORITY_PASSPHRASE", &c.Authority.Passphrase)

	if v, ok := lookup(EnvPrefix + "VALIDATION_EXTERNAL_COMMAND"); ok {
		c.Validation.ExternalCommand = strings.Fields(v)
	}
	if v, ok := lookup(EnvPrefix + "SERVER_MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &ConfigError{Field: "server.max-upload-bytes", Message: "not an integer", Err: ErrInvalidValue}
		}
		c.Server.MaxUploadBytes = n
	}
	if v, ok := lookup(EnvPrefix + "SIGNING_RESERVED_BYTES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: "signing.reserved-bytes", Message: "not an integer", Err: ErrInvalidValue}
		}
		c.Signing.ReservedBytes = n
	}
	if v, ok := lookup(EnvPrefix + "REPAIR_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &ConfigError{Field: "repair.timeout", Message: "not a duration", Err: ErrInvalidValue}
		}
		c.Repair.Timeout = d
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log.format", "must be json or console")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return invalid("server.max-upload-bytes", "must be positive")
	}
	if c.Signing.ReservedBytes < MinReservedBytes {
		return invalid("signing.reserved-bytes", fmt.Sprintf("must be at least %d", MinReservedBytes))
	}
	if c.Signing.FieldPrefix == "" {
		return missing("signing.field-prefix")
	}
	if c.Stamp.Page < 1 {
		return invalid("stamp.page", "pages are numbered from 1")
	}
	if c.Stamp.Width <= 0 || c.Stamp.Height <= 0 {
		return invalid("stamp", "width and height must be positive")
	}
	switch c.Repair.Engine {
	case "pdfcpu", "native":
	case "qpdf":
		if c.Repair.QpdfPath == "" {
			return missing("repair.qpdf-path")
		}
	default:
		return invalid("repair.engine", "must be pdfcpu, native or qpdf")
	}
	if c.Repair.Timeout <= 0 {
		return invalid("repair.timeout", "must be positive")
	}
	if c.Validation.CAIdentity == "" {
		return missing("validation.ca-identity")
	}
	switch c.Validation.Inspector {
	case "native":
	case "external", "fallback":
		if len(c.Validation.ExternalCommand) == 0 {
			return missing("validation.external-command")
		}
	default:
		return invalid("validation.inspector", "must be native, external or fallback")
	}
	if c.Authority.P12File != "" && c.Authority.Passphrase == "" {
		return missing("authority.passphrase")
	}
	return nil
}

func missing(field string) error {
	return &ConfigError{Field: field, Message: "required field is missing", Err: ErrMissingRequiredField}
}

func invalid(field, msg string) error {
	return &ConfigError{Field: field, Message: msg, Err: ErrInvalidValue}
}
