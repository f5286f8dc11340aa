package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/wolfeidau/coursecert/internal/auth"
	"github.com/wolfeidau/coursecert/internal/certificate"
	"github.com/wolfeidau/coursecert/internal/models"
	"github.com/wolfeidau/coursecert/internal/render"
)

type registerRequest struct {
	CertID      string  `json:"certId"`
	FullName    string  `json:"fullName,omitempty"`
	CourseKey   string  `json:"courseKey,omitempty"`
	StoragePath *string `json:"storagePath,omitempty"`
}

type issueRequest struct {
	CertID      string `json:"certId,omitempty"` // save only
	CourseKey   string `json:"courseKey,omitempty"`
	CourseTitle string `json:"courseTitle,omitempty"`
	FullName    string `json:"fullName,omitempty"`
	Sign        *bool  `json:"sign,omitempty"` // save only, defaults to true
}

type saveResponse struct {
	OK          bool   `json:"ok"`
	CertID      string `json:"certId"`
	StoragePath string `json:"storagePath"`
	SignedURL   string `json:"signedUrl,omitempty"`
}

type listResponse struct {
	Certificates []*models.PublicCertificate `json:"certificates"`
}

// identity returns the caller or writes a 401. Checked before the body is
// read so unauthenticated requests fail the same way whatever they send.
func identity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, certificate.ErrUnauthenticated)
		return nil, false
	}
	return id, true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	_, err := s.coordinator.Register(r.Context(), id, certificate.RegisterInput{
		CertID:      req.CertID,
		FullName:    req.FullName,
		CourseKey:   req.CourseKey,
		StoragePath: req.StoragePath,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req issueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	issued, err := s.coordinator.Issue(r.Context(), id, certificate.IssueInput{
		CourseKey:   req.CourseKey,
		CourseTitle: req.CourseTitle,
		FullName:    req.FullName,
		Locale:      render.MatchLocale(r.Header.Get("Accept-Language"), s.defaultLocale),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	certID := issued.Certificate.CertID

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, certID+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(issued.PDF)))
	w.Header().Set("X-Certificate-Id", certID)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(issued.PDF)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req issueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sign := true
	if req.Sign != nil {
		sign = *req.Sign
	}

	saved, err := s.coordinator.Save(r.Context(), id, certificate.IssueInput{
		CertID:      req.CertID,
		CourseKey:   req.CourseKey,
		CourseTitle: req.CourseTitle,
		FullName:    req.FullName,
		Locale:      render.MatchLocale(r.Header.Get("Accept-Language"), s.defaultLocale),
		Sign:        sign,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, saveResponse{
		OK:          true,
		CertID:      saved.Certificate.CertID,
		StoragePath: saved.StoragePath,
		SignedURL:   saved.SignedURL,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", certificate.ErrValidation))
			return
		}
		limit = n
	}

	certs, err := s.coordinator.List(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := listResponse{Certificates: make([]*models.PublicCertificate, 0, len(certs))}
	for _, cert := range certs {
		resp.Certificates = append(resp.Certificates, cert.Public())
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	result, err := s.verifier.Verify(r.Context(), r.URL.Query().Get("cid"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEnsureBucket(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity(w, r); !ok {
		return
	}

	if s.blobs == nil {
		writeError(w, r, fmt.Errorf("%w: blob storage", certificate.ErrConfiguration))
		return
	}

	if err := s.blobs.EnsureBucket(r.Context()); err != nil {
		writeError(w, r, fmt.Errorf("failed to ensure certificate bucket: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
