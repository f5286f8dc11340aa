package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wolfeidau/coursecert/internal/certificate"
	"github.com/wolfeidau/coursecert/internal/client"
	"github.com/wolfeidau/coursecert/internal/render"
)

// RenderCmd renders a certificate PDF locally without registering it.
type RenderCmd struct {
	Name          string `help:"recipient name printed on the certificate" required:""`
	CourseKey     string `help:"course key" default:""`
	CourseTitle   string `help:"course title, resolved from the catalog when unset" default:""`
	CertID        string `help:"certificate ID, generated from the course key when unset" default:""`
	Locale        string `help:"locale for dates and page text" default:"en_US"`
	Out           string `help:"output file, <cert-id>.pdf when unset" short:"o" default:""`
	Catalog       string `help:"YAML file mapping course keys to titles" default:"" type:"path"`
	LogoURL       string `help:"logo image URL or local file" default:"" env:"COURSECERT_RENDER_LOGO_URL"`
	BrandName     string `help:"brand text used when no logo is available" default:"" env:"COURSECERT_RENDER_BRAND_NAME"`
	SignerName    string `help:"name printed in the signature block" default:"" env:"COURSECERT_RENDER_SIGNER_NAME"`
	SignerTitle   string `help:"title printed under the signer name" default:"" env:"COURSECERT_RENDER_SIGNER_TITLE"`
	VerifyBaseURL string `help:"verification page printed in the footer" default:"http://localhost:8080/verify" env:"COURSECERT_VERIFY_BASE_URL"`
}

func (c *RenderCmd) Run(ctx context.Context) error {
	locale, ok := render.ParseLocale(c.Locale)
	if !ok {
		return fmt.Errorf("unsupported locale %q", c.Locale)
	}

	catalog := render.DefaultCatalog()
	if c.Catalog != "" {
		var err error
		if catalog, err = render.LoadCatalog(c.Catalog); err != nil {
			return fmt.Errorf("failed to load course catalog: %w", err)
		}
	}

	courseKey := certificate.NormalizeCourseKey(c.CourseKey)
	certID := c.CertID
	if certID == "" {
		certID = certificate.NewCertID(courseKey)
	}

	renderer := render.New(render.Config{
		SignerName:    c.SignerName,
		SignerTitle:   c.SignerTitle,
		VerifyBaseURL: c.VerifyBaseURL,
		LogoURL:       c.LogoURL,
		BrandName:     c.BrandName,
		DefaultLocale: locale,
	}, catalog, render.NewLogoLoader(client.NewCachingHTTPClient("")))

	pdf, err := renderer.Render(ctx, render.Document{
		FullName:    c.Name,
		CourseTitle: c.CourseTitle,
		CourseKey:   courseKey,
		IssuedAt:    time.Now(),
		CertID:      certID,
	})
	if err != nil {
		return err
	}

	out := c.Out
	if out == "" {
		out = certID + ".pdf"
	}
	if err := os.WriteFile(out, pdf, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	fmt.Printf("Rendered certificate %s to %s\n", certID, out)
	return nil
}
