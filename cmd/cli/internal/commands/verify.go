package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wolfeidau/coursecert/internal/certificate"
)

// VerifyCmd looks up a certificate on a server. It fails when the
// certificate is unknown so scripts can rely on the exit code.
type VerifyCmd struct {
	ServerFlags `embed:""`

	CertID string `arg:"" help:"certificate ID"`
	JSON   bool   `help:"print the raw verification result" default:"false"`
}

func (v *VerifyCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := v.apiClient(globals, false)
	if err != nil {
		return err
	}

	res, err := c.Verify(ctx, v.CertID)
	if err != nil {
		return fmt.Errorf("failed to verify certificate: %w", err)
	}

	if v.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printVerifyResult(os.Stdout, v.CertID, res)
	}

	if !res.Found {
		return fmt.Errorf("certificate %s not found", v.CertID)
	}
	return nil
}

func printVerifyResult(w io.Writer, certID string, res *certificate.VerifyResult) {
	if !res.Found {
		fmt.Fprintf(w, "NOT FOUND  %s\n", certID)
		return
	}

	rec := res.Record
	fmt.Fprintf(w, "VALID      %s\n", rec.CertID)
	fmt.Fprintf(w, "Name:      %s\n", rec.FullName)
	fmt.Fprintf(w, "Course:    %s\n", rec.CourseKey)
	fmt.Fprintf(w, "Issued:    %s\n", rec.IssuedAt.Format(time.DateOnly))
	if res.SignedURL != "" {
		fmt.Fprintf(w, "Download:  %s\n", res.SignedURL)
	}
}
