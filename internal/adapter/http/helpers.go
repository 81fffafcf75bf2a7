package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/StratForge/internal/domain"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
	"github.com/Strob0t/StratForge/internal/middleware"
	"github.com/Strob0t/StratForge/internal/port/generator"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

// requireActor writes a 401 and returns "" when the request carries no actor.
func requireActor(w http.ResponseWriter, r *http.Request) string {
	actor := middleware.ActorIDFromContext(r.Context())
	if actor == "" {
		writeError(w, http.StatusUnauthorized, "X-Actor-ID header is required")
	}
	return actor
}

// pillarTypeParam parses the {type} URL parameter, accepting lower case.
func pillarTypeParam(w http.ResponseWriter, r *http.Request) (strategy.PillarType, bool) {
	t, err := strategy.ParsePillarType(strings.ToUpper(chi.URLParam(r, "type")))
	if err != nil {
		writeDomainError(w, err, "")
		return "", false
	}
	return t, true
}

// limitParam reads ?limit=, returning 0 when absent.
func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 500 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return 0, false
	}
	return n, true
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeDomainError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if notFoundMsg == "" {
			notFoundMsg = "not found"
		}
		writeError(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "a pipeline run is already in progress for this strategy")
	case errors.Is(err, domain.ErrValidation):
		msg := strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
		writeError(w, http.StatusBadRequest, msg)
	case errors.Is(err, generator.ErrGeneration):
		slog.Warn("generation failed", "error", err)
		writeError(w, http.StatusBadGateway, "content generation failed")
	case strings.Contains(err.Error(), "invalid input syntax"):
		writeError(w, http.StatusBadRequest, "invalid identifier format")
	default:
		writeInternalError(w, err)
	}
}

// writeInternalError logs the actual error server-side and returns a generic message to the client.
func writeInternalError(w http.ResponseWriter, err error) {
	slog.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
