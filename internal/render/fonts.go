package render

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-pdf/fpdf"
)

// DejaVu faces cover Latin, Greek and Cyrillic. Names in other scripts need
// Config.NameFont.
var (
	//go:embed fonts/DejaVuSans.ttf
	sansRegular []byte

	//go:embed fonts/DejaVuSans-Bold.ttf
	sansBold []byte

	//go:embed fonts/DejaVuSerif-Bold.ttf
	serifBold []byte
)

const (
	fontSans  = "dejavusans"
	fontSerif = "dejavuserif"
	fontName  = "recipient"
)

// registerFonts adds the UTF-8 faces used by the certificate layout and
// returns the family and style for the recipient name.
func (r *Renderer) registerFonts(pdf *fpdf.Fpdf) (family, style string, err error) {
	pdf.AddUTF8FontFromBytes(fontSans, "", sansRegular)
	pdf.AddUTF8FontFromBytes(fontSans, "B", sansBold)
	pdf.AddUTF8FontFromBytes(fontSerif, "B", serifBold)

	family, style = fontSerif, "B"
	if len(r.cfg.NameFont) > 0 {
		pdf.AddUTF8FontFromBytes(fontName, "", r.cfg.NameFont)
		family, style = fontName, ""
	}

	// fpdf skips faces it cannot parse, selecting one reports it
	pdf.SetFont(family, style, 12)
	if err := pdf.Error(); err != nil {
		return "", "", fmt.Errorf("failed to load fonts: %w", err)
	}
	return family, style, nil
}

// LoadFont reads a TrueType file for Config.NameFont and checks that it can
// be embedded.
func LoadFont(path string) ([]byte, error) {
	ttf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font: %w", err)
	}
	if err := checkFont(ttf); err != nil {
		return nil, fmt.Errorf("font %s: %w", path, err)
	}
	return ttf, nil
}

func checkFont(ttf []byte) (err error) {
	// the TrueType parser indexes without bounds checks on truncated input
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed TrueType data: %v", r)
		}
	}()

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.AddUTF8FontFromBytes(fontName, "", ttf)
	pdf.SetFont(fontName, "", 12)
	return pdf.Error()
}
