// Package render produces the certificate PDF.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/goodsign/monday"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/coursecert/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// A4 landscape in millimetres.
const (
	pageWidth  = 297.0
	pageHeight = 210.0
	margin     = 10.0
	logoWidth  = 28.0
)

// DefaultBrandName is printed in place of a logo that cannot be embedded.
const DefaultBrandName = "Course Academy"

var ErrMissingField = errors.New("missing required document field")

type rgb struct{ r, g, b int }

var (
	colorNavy  = rgb{24, 42, 84}
	colorGold  = rgb{184, 146, 62}
	colorInk   = rgb{33, 37, 41}
	colorMuted = rgb{108, 117, 125}
)

// Config holds the values shared by every document a Renderer produces.
type Config struct {
	SignerName    string
	SignerTitle   string
	VerifyBaseURL string // e.g. https://example.com/verify
	LogoURL       string // http(s) URL or local file, optional
	BrandName     string
	DefaultLocale monday.Locale
	NameFont      []byte // optional UTF-8 TrueType face for the recipient name
}

// Document holds the per-recipient values of a certificate.
type Document struct {
	FullName    string
	CourseTitle string // optional, resolved from CourseKey when empty
	CourseKey   string
	IssuedAt    time.Time
	CertID      string
	Locale      monday.Locale // optional, Config.DefaultLocale when empty
}

// Renderer builds single page A4 landscape certificates.
type Renderer struct {
	cfg      Config
	catalog  *Catalog
	logos    *LogoLoader
	compress bool
}

// New creates a renderer. A nil catalog uses DefaultCatalog and a nil loader
// disables the logo.
func New(cfg Config, catalog *Catalog, logos *LogoLoader) *Renderer {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if cfg.BrandName == "" {
		cfg.BrandName = DefaultBrandName
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = DefaultLocale
	}
	return &Renderer{cfg: cfg, catalog: catalog, logos: logos, compress: true}
}

// Render returns the PDF bytes for doc. Identical inputs produce identical
// bytes as long as the logo source is unchanged.
func (r *Renderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	start := time.Now()

	if strings.TrimSpace(doc.CertID) == "" {
		return nil, fmt.Errorf("%w: cert id", ErrMissingField)
	}
	if strings.TrimSpace(doc.FullName) == "" {
		return nil, fmt.Errorf("%w: full name", ErrMissingField)
	}
	if doc.IssuedAt.IsZero() {
		return nil, fmt.Errorf("%w: issued at", ErrMissingField)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	locale := doc.Locale
	if locale == "" {
		locale = r.cfg.DefaultLocale
	}

	issuedAt := doc.IssuedAt.UTC()

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(issuedAt)
	pdf.SetModificationDate(issuedAt)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(margin, margin, margin)

	nameFamily, nameStyle, err := r.registerFonts(pdf)
	if err != nil {
		return nil, err
	}

	title := r.catalog.ResolveTitle(doc.CourseTitle, doc.CourseKey)
	verifyURL := VerificationURL(r.cfg.VerifyBaseURL, doc.CertID)

	pdf.SetTitle("Certificate of Completion - "+title, true)
	pdf.SetSubject(doc.CertID, true)
	pdf.SetAuthor(r.cfg.BrandName, true)
	pdf.SetCreator("coursecert", true)

	pdf.AddPage()

	drawFrame(pdf)

	logoEmbedded := r.drawLogo(ctx, pdf)
	if !logoEmbedded {
		telemetry.GetMetrics().LogoFallbackTotal.Add(ctx, 1)
	}

	// title block
	setColor(pdf.SetTextColor, colorNavy)
	pdf.SetFont(fontSans, "B", 30)
	centered(pdf, 62, 14, "CERTIFICATE OF COMPLETION")

	setColor(pdf.SetTextColor, colorMuted)
	pdf.SetFont(fontSans, "", 14)
	centered(pdf, 82, 8, "This certifies that")

	// recipient
	setColor(pdf.SetTextColor, colorInk)
	name := strings.TrimSpace(doc.FullName)
	pdf.SetFont(nameFamily, nameStyle, fitFontSize(pdf, nameFamily, nameStyle, name, 34, 16, pageWidth-70))
	centered(pdf, 94, 16, name)

	setColor(pdf.SetDrawColor, colorGold)
	pdf.SetLineWidth(0.6)
	pdf.Line(70, 112, pageWidth-70, 112)

	// completion sentence
	setColor(pdf.SetTextColor, colorInk)
	pdf.SetFont(fontSans, "", 14)
	centered(pdf, 118, 8, "has successfully completed the course")

	pdf.SetFont(fontSans, "B", 18)
	pdf.SetXY(40, 127)
	pdf.MultiCell(pageWidth-80, 9, title, "", "C", false)

	pdf.SetFont(fontSans, "", 12)
	setColor(pdf.SetTextColor, colorMuted)
	centered(pdf, 147, 7, "Issued on "+FormatDate(issuedAt, locale))

	r.drawSigner(pdf)
	drawFooter(pdf, verifyURL, doc.CertID)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}

	telemetry.GetMetrics().RenderDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.Bool("logo", logoEmbedded)))

	log.Debug().
		Str("cert_id", doc.CertID).
		Str("course_title", title).
		Str("locale", string(locale)).
		Int("size", buf.Len()).
		Msg("certificate rendered")

	return buf.Bytes(), nil
}

// VerificationURL appends the certificate id as the cid query parameter.
func VerificationURL(base, certID string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?cid=" + url.QueryEscape(certID)
	}
	q := u.Query()
	q.Set("cid", certID)
	u.RawQuery = q.Encode()
	return u.String()
}

func drawFrame(pdf *fpdf.Fpdf) {
	setColor(pdf.SetDrawColor, colorNavy)
	pdf.SetLineWidth(2.2)
	pdf.Rect(margin, margin, pageWidth-2*margin, pageHeight-2*margin, "D")

	setColor(pdf.SetDrawColor, colorGold)
	pdf.SetLineWidth(0.5)
	inset := margin + 5
	pdf.Rect(inset, inset, pageWidth-2*inset, pageHeight-2*inset, "D")

	// corner ornaments
	const arm = 12.0
	pdf.SetLineWidth(1.2)
	for _, c := range [][2]float64{
		{inset, inset}, {pageWidth - inset, inset},
		{inset, pageHeight - inset}, {pageWidth - inset, pageHeight - inset},
	} {
		dx, dy := arm, arm
		if c[0] > pageWidth/2 {
			dx = -arm
		}
		if c[1] > pageHeight/2 {
			dy = -arm
		}
		pdf.Line(c[0]+dx/4, c[1]+dy/4, c[0]+dx, c[1]+dy/4)
		pdf.Line(c[0]+dx/4, c[1]+dy/4, c[0]+dx/4, c[1]+dy)
	}
}

// drawLogo embeds the configured logo or prints the brand name.
func (r *Renderer) drawLogo(ctx context.Context, pdf *fpdf.Fpdf) bool {
	if r.logos != nil && r.cfg.LogoURL != "" {
		if logo, ok := r.logos.Load(ctx, r.cfg.LogoURL); ok {
			opts := fpdf.ImageOptions{ImageType: logo.ImageType}
			info := pdf.RegisterImageOptionsReader("logo", opts, bytes.NewReader(logo.Data))
			if !pdf.Err() && info != nil {
				h := info.Height() * logoWidth / info.Width()
				pdf.ImageOptions("logo", (pageWidth-logoWidth)/2, 24, logoWidth, h, false, opts, 0, "")
				return true
			}

			log.Warn().Err(pdf.Error()).Msg("logo could not be decoded, using text brand mark")
			pdf.ClearError()
		}
	}

	setColor(pdf.SetTextColor, colorGold)
	pdf.SetFont(fontSans, "B", 16)
	centered(pdf, 34, 8, strings.ToUpper(r.cfg.BrandName))
	return false
}

func (r *Renderer) drawSigner(pdf *fpdf.Fpdf) {
	const (
		x = pageWidth/2 + 25
		w = 80.0
		y = 170.0
	)

	setColor(pdf.SetDrawColor, colorInk)
	pdf.SetLineWidth(0.3)
	pdf.Line(x, y, x+w, y)

	setColor(pdf.SetTextColor, colorInk)
	pdf.SetFont(fontSans, "B", 12)
	pdf.SetXY(x, y+1.5)
	pdf.CellFormat(w, 6, r.cfg.SignerName, "", 0, "C", false, 0, "")

	setColor(pdf.SetTextColor, colorMuted)
	pdf.SetFont(fontSans, "", 10)
	pdf.SetXY(x, y+7.5)
	pdf.CellFormat(w, 5, r.cfg.SignerTitle, "", 0, "C", false, 0, "")
}

func drawFooter(pdf *fpdf.Fpdf, verifyURL, certID string) {
	const x = pageWidth/2 - 105

	setColor(pdf.SetTextColor, colorMuted)
	pdf.SetFont(fontSans, "", 8)
	pdf.SetXY(x, 168)
	pdf.CellFormat(90, 4, "Verify this certificate at:", "", 0, "L", false, 0, "")

	setColor(pdf.SetTextColor, colorNavy)
	pdf.SetXY(x, 172)
	pdf.CellFormat(90, 4, verifyURL, "", 0, "L", false, 0, verifyURL)

	setColor(pdf.SetTextColor, colorMuted)
	pdf.SetXY(x, 177)
	pdf.CellFormat(90, 4, "Certificate ID: "+certID, "", 0, "L", false, 0, "")
}

func centered(pdf *fpdf.Fpdf, y, h float64, text string) {
	pdf.SetXY(margin, y)
	pdf.CellFormat(pageWidth-2*margin, h, text, "", 0, "C", false, 0, "")
}

// fitFontSize shrinks the font until text fits within maxWidth.
func fitFontSize(pdf *fpdf.Fpdf, family, style, text string, size, minSize, maxWidth float64) float64 {
	for ; size > minSize; size-- {
		pdf.SetFont(family, style, size)
		if pdf.GetStringWidth(text) <= maxWidth {
			break
		}
	}
	return size
}

func setColor(set func(r, g, b int), c rgb) {
	set(c.r, c.g, c.b)
}
