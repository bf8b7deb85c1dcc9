package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/passby/internal/auth"
	"github.com/and161185/passby/internal/errs"
)

// Error codes of the {"error", "message"} body.
const (
	codeInvalidRequest = "invalid_request"
	codeSelf           = "self_operation"
	codeUnauthorized   = "unauthorized"
	codeAlreadyMatched = "already_matched"
	codeNotFound       = "not_found"
	codeThrottled      = "throttled"
	codeInternal       = "internal"
)

const maxBody = 64 << 10

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

// fail maps a service error to its HTTP status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errs.ErrSelf):
		writeError(w, http.StatusBadRequest, codeSelf, "operation targets the caller")
	case errors.Is(err, errs.ErrValidation):
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
	case errors.Is(err, errs.ErrConflict):
		writeError(w, http.StatusConflict, codeAlreadyMatched, "users are matched")
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, errs.ErrThrottled):
		writeError(w, http.StatusTooManyRequests, codeThrottled, "too many requests")
	default:
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func decode(r *http.Request, w http.ResponseWriter, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json", errs.ErrValidation)
	}
	return nil
}

func callerID(r *http.Request) uuid.UUID {
	id, _ := auth.UserIDFromCtx(r.Context())
	return id
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.FromString(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: bad user id", errs.ErrValidation)
	}
	return id, nil
}

func pathUserID(r *http.Request) (uuid.UUID, error) {
	return parseID(chi.URLParam(r, "userID"))
}
