package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aretw0/preceptor/pkg/domain"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrArtifactsNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionComplete), errors.Is(err, domain.ErrAlreadyFinalized):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownPhase), errors.Is(err, domain.ErrNotTerminal):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
