package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/coursecert/cmd/cli/internal/credentials"
	"github.com/wolfeidau/coursecert/internal/auth"
)

// TokenCmd mints a bearer token with the server's signing key, for scripted
// registration.
type TokenCmd struct {
	SigningKey     string        `help:"PEM encoded EC P-256 signing key of the server" required:"" type:"existingfile" env:"COURSECERT_SIGNING_KEY_FILE"`
	AccountID      string        `help:"account ID the token is issued for" required:""`
	Name           string        `help:"display name carried in the token" default:""`
	Email          string        `help:"email carried in the token" default:""`
	Issuer         string        `help:"issuer, the server base URL" default:"http://localhost:8080" env:"COURSECERT_SERVER"`
	TTL            time.Duration `help:"Token lifetime" default:"1h"`
	Save           bool          `help:"save the token in the credential store for the issuer" default:"false"`
	CredentialsDir string        `help:"credential store directory, ~/.coursecert when unset" default:"" env:"COURSECERT_CREDENTIALS_DIR"`
}

func (t *TokenCmd) Run(ctx context.Context) error {
	accountID, err := uuid.Parse(t.AccountID)
	if err != nil {
		return fmt.Errorf("invalid account ID: %w", err)
	}

	keyPEM, err := os.ReadFile(t.SigningKey)
	if err != nil {
		return fmt.Errorf("failed to read signing key: %w", err)
	}

	keys, err := auth.NewKeyManagerFromPEM(keyPEM)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	token, expiresAt, err := keys.IssueToken(t.Issuer, &auth.Identity{
		AccountID: accountID,
		Name:      t.Name,
		Email:     t.Email,
	}, t.TTL)
	if err != nil {
		return err
	}

	if t.Save {
		store, err := credentials.NewStore(t.CredentialsDir)
		if err != nil {
			return err
		}
		if err := store.Save(credentials.Token{Server: t.Issuer, Token: token, ExpiresAt: expiresAt}); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Saved token for %s, expires %s\n", t.Issuer, expiresAt.Format(time.RFC3339))
	}

	fmt.Println(token)
	return nil
}
