package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/eihwaz/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

var errStatuses = []struct {
	target error
	status int
}{
	{apperr.ErrUnknownParent, http.StatusNotFound},
	{apperr.ErrNotFound, http.StatusNotFound},
	{apperr.ErrDuplicateName, http.StatusConflict},
	{apperr.ErrCycle, http.StatusConflict},
	{apperr.ErrSelfParent, http.StatusConflict},
	{apperr.ErrRootUndeletable, http.StatusBadRequest},
	{apperr.ErrRootImmutable, http.StatusBadRequest},
	{apperr.ErrPermissionDenied, http.StatusForbidden},
}

// writeError renders a domain error response. Known sentinels map to their
// HTTP status with their own message; anything else is a storage failure,
// logged and returned as an opaque 500.
func writeError(w http.ResponseWriter, op string, err error) {
	for _, m := range errStatuses {
		if errors.Is(err, m.target) {
			writeJSON(w, m.status, errorBody(m.target.Error()))
			return
		}
	}
	slog.Error(op+" failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}
