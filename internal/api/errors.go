package api

import (
	"encoding/json"
	"net/http"
)

// Error is the JSON body of every API failure.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest             = "bad_request"
	ErrCodeNotFound               = "not_found"
	ErrCodeUnauthorized           = "unauthorised"
	ErrCodeForbidden              = "forbidden"
	ErrCodePasswordChangeRequired = "password_change_required"
	ErrCodeConflict               = "conflict"
	ErrCodeInternal               = "internal_error"
)

var defaultErrCodes = map[int]string{
	http.StatusBadRequest:          ErrCodeBadRequest,
	http.StatusUnauthorized:        ErrCodeUnauthorized,
	http.StatusForbidden:           ErrCodeForbidden,
	http.StatusNotFound:            ErrCodeNotFound,
	http.StatusConflict:            ErrCodeConflict,
	http.StatusInternalServerError: ErrCodeInternal,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck // client may be gone
	}
}

// writeError writes an Error using the default code for status.
func writeError(w http.ResponseWriter, status int, message string) {
	writeErrorCode(w, status, defaultErrCodes[status], message)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	if code == "" {
		code = ErrCodeInternal
	}
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// kioskResponse is the body of a check-in answer.
type kioskResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Time    string `json:"time,omitempty"`
}
