package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"
	"github.com/wolfeidau/coursecert/internal/certificate"
)

type errorResponse struct {
	Error string `json:"error"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps a coordinator or verifier error to a status code and the
// message shown to the client.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, certificate.ErrUnauthenticated):
		return http.StatusUnauthorized, certificate.ErrUnauthenticated.Error()
	case errors.Is(err, certificate.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, certificate.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, certificate.ErrConfiguration):
		return http.StatusInternalServerError, certificate.ErrConfiguration.Error()
	case errors.Is(err, certificate.ErrLookup):
		return http.StatusInternalServerError, certificate.ErrLookup.Error()
	case errors.Is(err, certificate.ErrRender):
		return http.StatusInternalServerError, certificate.ErrRender.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %s", certificate.ErrValidation, err)
	}
	return nil
}
