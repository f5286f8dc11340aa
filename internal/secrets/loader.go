// Package secrets loads key material from local files or AWS SSM Parameter Store.
package secrets

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ErrNotConfigured is returned for a Source naming neither a file nor a parameter.
var ErrNotConfigured = errors.New("secret source not configured")

// ParameterGetter is the subset of the SSM client used by Loader.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Source names where one secret lives. SSMParameter wins when both are set.
type Source struct {
	Path         string // local file, for development
	SSMParameter string // SecureString parameter name, for production
}

// IsZero reports whether the source names nothing.
func (s Source) IsZero() bool {
	return s.Path == "" && s.SSMParameter == ""
}

func (s Source) String() string {
	if s.SSMParameter != "" {
		return "ssm:" + s.SSMParameter
	}
	return s.Path
}

// Config lists the secrets used by the server. Zero sources are skipped.
type Config struct {
	SigningKey Source // PEM encoded EC private key for bearer tokens
	TLSCert    Source
	TLSKey     Source
}

// Material holds loaded secret bytes.
type Material struct {
	SigningKey []byte
	TLSCert    []byte
	TLSKey     []byte
}

// Loader reads secrets from files and SSM.
type Loader struct {
	ssm ParameterGetter
}

// NewLoader creates a loader. client may be nil when no source uses SSM.
func NewLoader(client ParameterGetter) *Loader {
	return &Loader{ssm: client}
}

// Load returns the bytes of one secret.
func (l *Loader) Load(ctx context.Context, src Source) ([]byte, error) {
	switch {
	case src.SSMParameter != "":
		return l.getParameter(ctx, src.SSMParameter)
	case src.Path != "":
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", src.Path, err)
		}
		return data, nil
	default:
		return nil, ErrNotConfigured
	}
}

// LoadAll loads every configured secret in cfg.
func (l *Loader) LoadAll(ctx context.Context, cfg Config) (*Material, error) {
	m := &Material{}

	targets := []struct {
		name string
		src  Source
		dst  *[]byte
	}{
		{"signing key", cfg.SigningKey, &m.SigningKey},
		{"TLS certificate", cfg.TLSCert, &m.TLSCert},
		{"TLS key", cfg.TLSKey, &m.TLSKey},
	}

	for _, t := range targets {
		if t.src.IsZero() {
			continue
		}
		data, err := l.Load(ctx, t.src)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s from %s: %w", t.name, t.src, err)
		}
		*t.dst = data
	}

	if (m.TLSCert == nil) != (m.TLSKey == nil) {
		return nil, errors.New("TLS certificate and key must be configured together")
	}

	return m, nil
}

func (l *Loader) getParameter(ctx context.Context, name string) ([]byte, error) {
	if l.ssm == nil {
		return nil, fmt.Errorf("parameter %s requested but no SSM client configured", name)
	}

	output, err := l.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if output.Parameter == nil || output.Parameter.Value == nil {
		return nil, fmt.Errorf("parameter %s has no value", name)
	}
	return []byte(*output.Parameter.Value), nil
}

// TLSConfig returns a server TLS configuration, or nil when no certificate
// was loaded.
func (m *Material) TLSConfig() (*tls.Config, error) {
	if m.TLSCert == nil {
		return nil, nil
	}

	cert, err := tls.X509KeyPair(m.TLSCert, m.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
