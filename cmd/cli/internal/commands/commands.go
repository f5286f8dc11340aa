package commands

import (
	"errors"
	"fmt"

	"github.com/wolfeidau/coursecert/cmd/cli/internal/credentials"
	"github.com/wolfeidau/coursecert/internal/client"
)

type Globals struct {
	Debug   bool
	Version string
}

// ServerFlags select the certificate server and how to authenticate to it.
type ServerFlags struct {
	Server         string `help:"Server URL" default:"http://localhost:8080" env:"COURSECERT_SERVER"`
	Token          string `help:"bearer token, read from the credential store when unset" default:"" env:"COURSECERT_TOKEN"`
	CredentialsDir string `help:"credential store directory, ~/.coursecert when unset" default:"" env:"COURSECERT_CREDENTIALS_DIR"`
}

// apiClient creates a client for the selected server. With requireToken the
// token comes from --token or the credential store and must exist.
func (f *ServerFlags) apiClient(globals *Globals, requireToken bool) (*client.APIClient, error) {
	token := f.Token
	if token == "" && requireToken {
		store, err := credentials.NewStore(f.CredentialsDir)
		if err != nil {
			return nil, err
		}
		stored, err := store.Get(f.Server)
		switch {
		case errors.Is(err, credentials.ErrTokenNotFound), errors.Is(err, credentials.ErrTokenExpired):
			return nil, fmt.Errorf("%w: run 'coursecert token --save' or pass --token", err)
		case err != nil:
			return nil, err
		}
		token = stored.Token
	}

	return client.NewAPIClient(client.Config{
		ServerURL: f.Server,
		Token:     token,
		Debug:     globals.Debug,
	})
}
