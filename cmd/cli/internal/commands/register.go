package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/coursecert/internal/client"
	"github.com/wolfeidau/coursecert/internal/models"
)

// RegisterCmd records certificate metadata for the token's account.
type RegisterCmd struct {
	ServerFlags `embed:""`

	CertID      string `help:"certificate ID" required:""`
	FullName    string `help:"recipient name, the account name when unset" default:""`
	CourseKey   string `help:"course key" default:""`
	StoragePath string `help:"object key of an uploaded PDF" default:""`
}

func (r *RegisterCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := r.apiClient(globals, true)
	if err != nil {
		return err
	}

	req := client.RegisterRequest{
		CertID:    r.CertID,
		FullName:  r.FullName,
		CourseKey: r.CourseKey,
	}
	if r.StoragePath != "" {
		req.StoragePath = &r.StoragePath
	}

	if err := c.Register(ctx, req); err != nil {
		return fmt.Errorf("failed to register certificate: %w", err)
	}

	fmt.Printf("Registered certificate %s\n", r.CertID)
	return nil
}

// ListCmd lists the certificates of the token's account.
type ListCmd struct {
	ServerFlags `embed:""`

	Limit int `help:"maximum number of certificates" default:"20"`
}

func (l *ListCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := l.apiClient(globals, true)
	if err != nil {
		return err
	}

	certs, err := c.List(ctx, l.Limit)
	if err != nil {
		return fmt.Errorf("failed to list certificates: %w", err)
	}

	printCertificates(os.Stdout, certs)
	return nil
}

func printCertificates(w io.Writer, certs []*models.PublicCertificate) {
	if len(certs) == 0 {
		fmt.Fprintln(w, "No certificates found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CERT ID\tCOURSE\tNAME\tISSUED\tSTORED")
	for _, cert := range certs {
		stored := "no"
		if cert.StoragePath != "" {
			stored = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			cert.CertID, cert.CourseKey, cert.FullName, cert.IssuedAt.Format(time.DateOnly), stored)
	}
	_ = tw.Flush()
}

// EnsureBucketCmd asks the server to create the certificate bucket.
type EnsureBucketCmd struct {
	ServerFlags `embed:""`
}

func (e *EnsureBucketCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := e.apiClient(globals, true)
	if err != nil {
		return err
	}

	if err := c.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure certificate bucket: %w", err)
	}

	fmt.Println("Certificate bucket is ready")
	return nil
}
