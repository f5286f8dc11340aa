package commands

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/wolfeidau/coursecert/internal/render"
	"github.com/wolfeidau/coursecert/internal/secrets"
)

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns         int32         `help:"maximum number of connections in pool" default:"10"`
	MinConns         int32         `help:"minimum number of connections in pool" default:"1"`
	MaxConnLifetime  time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime  time.Duration `help:"maximum connection idle time" default:"15m"`
	StatementTimeout time.Duration `help:"server side limit for each certificate query" default:"5s" env:"COURSECERT_POSTGRES_STATEMENT_TIMEOUT"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"COURSECERT_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	if s.MinConns > s.MaxConns {
		return fmt.Errorf("min conns (%d) cannot exceed max conns (%d)", s.MinConns, s.MaxConns)
	}
	return nil
}

type AWSStoreFlags struct {
	Region string `help:"AWS region" default:"" env:"AWS_REGION"`

	// DynamoDB Configuration
	CertificatesTable string `help:"DynamoDB table name for certificates" env:"COURSECERT_AWS_CERTIFICATES_TABLE"`

	// Endpoint overrides for local development
	DynamoDBEndpointURL string `help:"DynamoDB endpoint URL override (for LocalStack)" default:"" env:"COURSECERT_AWS_DYNAMODB_ENDPOINT_URL"`
	SSMEndpointURL      string `help:"SSM endpoint URL override (for LocalStack)" default:"" env:"COURSECERT_AWS_SSM_ENDPOINT_URL"`
}

func (s *AWSStoreFlags) Validate() error {
	if s.CertificatesTable == "" {
		return errors.New("DynamoDB certificates table name is required (--aws-certificates-table or COURSECERT_AWS_CERTIFICATES_TABLE)")
	}
	return nil
}

// BlobFlags configures where certificate PDFs are kept.
type BlobFlags struct {
	Type        string `help:"blob store type (memory or s3)" default:"memory" env:"COURSECERT_BLOB_TYPE" enum:"memory,s3"`
	Bucket      string `help:"S3 bucket for certificate PDFs" default:"certificates" env:"COURSECERT_BLOB_BUCKET"`
	EndpointURL string `help:"S3 endpoint URL override (for LocalStack)" default:"" env:"COURSECERT_BLOB_ENDPOINT_URL"`
	PathStyle   bool   `help:"use path style S3 addressing" default:"false" env:"COURSECERT_BLOB_PATH_STYLE"`
	Disabled    bool   `help:"run without blob storage; saving and signed links are unavailable" default:"false" env:"COURSECERT_BLOB_DISABLED"`
}

func (s *BlobFlags) Validate() error {
	if s.Type == "s3" && s.Bucket == "" {
		return errors.New("S3 bucket is required (--blob-bucket or COURSECERT_BLOB_BUCKET)")
	}
	return nil
}

// RenderFlags configures the certificate document.
type RenderFlags struct {
	SignerName  string `help:"name printed in the signature block" default:"" env:"COURSECERT_RENDER_SIGNER_NAME"`
	SignerTitle string `help:"title printed under the signer name" default:"" env:"COURSECERT_RENDER_SIGNER_TITLE"`
	BrandName   string `help:"brand text used when no logo is available" default:"" env:"COURSECERT_RENDER_BRAND_NAME"`
	LogoURL     string `help:"logo image URL or local file" default:"" env:"COURSECERT_RENDER_LOGO_URL"`
	LogoCache   string `help:"directory for the logo HTTP cache, memory when empty" default:"" env:"COURSECERT_RENDER_LOGO_CACHE"`
	Locale      string `help:"default locale for dates and page text" default:"en_US" env:"COURSECERT_RENDER_LOCALE"`
	Catalog     string `help:"YAML file mapping course keys to titles" default:"" env:"COURSECERT_RENDER_CATALOG" type:"path"`
	NameFont    string `help:"TrueType font for recipient names in scripts the built-in font lacks" default:"" env:"COURSECERT_RENDER_NAME_FONT" type:"path"`
}

func (s *RenderFlags) Validate() error {
	if _, ok := render.ParseLocale(s.Locale); !ok {
		return fmt.Errorf("unsupported locale %q (--render-locale)", s.Locale)
	}
	return nil
}

// AuthFlags configures bearer tokens and GitHub login.
type AuthFlags struct {
	SigningKeyFile string `help:"PEM encoded EC P-256 key for bearer tokens, generated when unset" default:"" env:"COURSECERT_AUTH_SIGNING_KEY_FILE"`
	SigningKeySSM  string `help:"SSM SecureString parameter holding the signing key" default:"" env:"COURSECERT_AUTH_SIGNING_KEY_SSM"`
	TLSCertFile    string `help:"path to TLS cert file" default:"" env:"COURSECERT_TLS_CERT"`
	TLSKeyFile     string `help:"path to TLS key file" default:"" env:"COURSECERT_TLS_KEY"`
	TLSCertSSM     string `help:"SSM parameter holding the TLS cert" default:"" env:"COURSECERT_TLS_CERT_SSM"`
	TLSKeySSM      string `help:"SSM parameter holding the TLS key" default:"" env:"COURSECERT_TLS_KEY_SSM"`

	// GitHub OAuth configuration
	ClientID     string        `help:"GitHub client ID, login is disabled when unset" default:"" env:"COURSECERT_GITHUB_CLIENT_ID"`
	ClientSecret string        `help:"GitHub client secret" default:"" env:"COURSECERT_GITHUB_CLIENT_SECRET"`
	CallbackURL  string        `help:"GitHub callback URL" default:"" env:"COURSECERT_GITHUB_CALLBACK_URL"`
	SessionTTL   time.Duration `help:"session TTL" default:"168h" env:"COURSECERT_SESSION_TTL"`
}

func (s *AuthFlags) Validate() error {
	if s.ClientID != "" {
		if s.ClientSecret == "" {
			return errors.New("GitHub client secret is required with a client ID (--auth-client-secret or COURSECERT_GITHUB_CLIENT_SECRET)")
		}
		if _, err := url.ParseRequestURI(s.CallbackURL); err != nil {
			return fmt.Errorf("invalid GitHub callback URL %q: %w", s.CallbackURL, err)
		}
	}
	if s.SessionTTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	return nil
}

// Secrets returns the secret sources named by the flags.
func (s *AuthFlags) Secrets() secrets.Config {
	return secrets.Config{
		SigningKey: secrets.Source{Path: s.SigningKeyFile, SSMParameter: s.SigningKeySSM},
		TLSCert:    secrets.Source{Path: s.TLSCertFile, SSMParameter: s.TLSCertSSM},
		TLSKey:     secrets.Source{Path: s.TLSKeyFile, SSMParameter: s.TLSKeySSM},
	}
}

func (s *AuthFlags) usesSSM() bool {
	return s.SigningKeySSM != "" || s.TLSCertSSM != "" || s.TLSKeySSM != ""
}
