package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	logoFetchTimeout = 5 * time.Second
	maxLogoSize      = 2 << 20
)

// Logo is a raster image ready for embedding.
type Logo struct {
	Data      []byte
	ImageType string // PNG, JPG or GIF
}

// LogoLoader fetches the brand logo from a URL or a local file.
type LogoLoader struct {
	client *http.Client
}

// NewLogoLoader creates a loader using client for remote logos, usually the
// caching client so that repeated renders do not refetch.
func NewLogoLoader(client *http.Client) *LogoLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &LogoLoader{client: client}
}

// Load returns the logo at src. Any failure is logged and reported as false
// so the caller can fall back to a text brand mark.
func (l *LogoLoader) Load(ctx context.Context, src string) (*Logo, bool) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, false
	}

	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		data, err = l.fetch(ctx, src)
	} else {
		data, err = readLogoFile(src)
	}
	if err != nil {
		log.Warn().Err(err).Str("logo", src).Msg("logo unavailable, using text brand mark")
		return nil, false
	}

	imageType, ok := sniffImageType(data)
	if !ok {
		log.Warn().
			Str("logo", src).
			Str("content_type", http.DetectContentType(data)).
			Msg("logo is not a PNG, JPEG or GIF image, using text brand mark")
		return nil, false
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		log.Warn().Err(err).Str("logo", src).Msg("logo is not a valid image, using text brand mark")
		return nil, false
	}

	return &Logo{Data: data, ImageType: imageType}, true
}

func (l *LogoLoader) fetch(ctx context.Context, src string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, logoFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid logo url: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch logo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch logo: unexpected status %d", resp.StatusCode)
	}

	return readLimited(resp.Body)
}

func readLogoFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open logo: %w", err)
	}
	defer f.Close()

	return readLimited(f)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxLogoSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read logo: %w", err)
	}
	if len(data) > maxLogoSize {
		return nil, fmt.Errorf("logo exceeds %d bytes", maxLogoSize)
	}
	return data, nil
}

// sniffImageType maps the detected content type to an fpdf image type.
func sniffImageType(data []byte) (string, bool) {
	switch http.DetectContentType(data) {
	case "image/png":
		return "PNG", true
	case "image/jpeg":
		return "JPG", true
	case "image/gif":
		return "GIF", true
	default:
		return "", false
	}
}
