package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/hlog"
	"github.com/wolfeidau/coursecert/internal/blob"
	"github.com/wolfeidau/coursecert/internal/models"
	"github.com/wolfeidau/coursecert/internal/render"
)

//go:embed templates/*.html
var templateFS embed.FS

var verifyTemplate = template.Must(template.ParseFS(templateFS, "templates/verify.html"))

const (
	stateFound   = "found"
	stateMissing = "missing"
	stateFailed  = "failed"
)

type verifyPage struct {
	Lang        string
	State       string
	CertID      string
	Record      *models.PublicCertificate
	CourseTitle string
	IssuedOn    string
	SignedURL   string
	LinkTTL     string
}

// handleVerifyPage renders the public lookup page for ?cid=.
func (s *Server) handleVerifyPage(w http.ResponseWriter, r *http.Request) {
	locale := render.MatchLocale(r.Header.Get("Accept-Language"), s.defaultLocale)
	certID := strings.TrimSpace(r.URL.Query().Get("cid"))

	page := verifyPage{
		Lang:    strings.ReplaceAll(string(locale), "_", "-"),
		CertID:  certID,
		LinkTTL: fmt.Sprintf("%d minutes", int(blob.VerifyURLTTL.Minutes())),
	}
	status := http.StatusOK

	if certID != "" {
		result, err := s.verifier.Verify(r.Context(), certID)
		switch {
		case err != nil:
			hlog.FromRequest(r).Error().Err(err).Str("cert_id", certID).Msg("verification page lookup failed")
			page.State = stateFailed
			status = http.StatusInternalServerError
		case !result.Found:
			page.State = stateMissing
		default:
			page.State = stateFound
			page.Record = result.Record
			page.SignedURL = result.SignedURL
			page.IssuedOn = render.FormatDate(result.Record.IssuedAt, locale)
			page.CourseTitle = result.Record.CourseKey
			if title, ok := s.catalog.Lookup(result.Record.CourseKey); ok {
				page.CourseTitle = title
			}
		}
	}

	var buf bytes.Buffer
	if err := verifyTemplate.Execute(&buf, page); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to render verification page")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// handleVerifyForm redirects a submitted lookup to the shareable GET URL.
func (s *Server) handleVerifyForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	target := "/verify"
	if cid := strings.TrimSpace(r.PostFormValue("cid")); cid != "" {
		target += "?cid=" + url.QueryEscape(cid)
	}

	http.Redirect(w, r, target, http.StatusSeeOther)
}
