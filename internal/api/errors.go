package api

import (
	"encoding/json"
	"net/http"

	pceerrors "pce/internal/errors"
)

// ErrorResponse is the JSON shape of every error the API returns.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}

// WriteError writes an error response, mapping pipeline error codes to
// HTTP status codes.
func WriteError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	resp := ErrorResponse{Error: err.Error(), Code: string(pceerrors.InternalError)}
	status := http.StatusInternalServerError

	if perr, ok := err.(*pceerrors.PceError); ok {
		resp.Code = string(perr.Code)
		resp.Details = perr.Details
		status = statusFor(perr.Code)
	}

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func statusFor(code pceerrors.ErrorCode) int {
	switch code {
	case pceerrors.InvalidConfig:
		return http.StatusBadRequest
	case pceerrors.SourceUnavailable, pceerrors.CacheUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
