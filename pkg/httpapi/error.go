package httpapi

import (
	"encoding/json"
	"net/http"
)

// ErrorDetail is the structured form of a 4xx "detail" payload.
type ErrorDetail struct {
	Code    string   `json:"code"`
	Missing []string `json:"missing,omitempty"`
}

// ErrorEnvelope wraps either a plain string or an ErrorDetail.
type ErrorEnvelope struct {
	Detail any `json:"detail"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, message string) error {
	return WriteJSON(w, status, &ErrorEnvelope{Detail: message})
}

func WriteErrorDetail(w http.ResponseWriter, status int, code string, missing []string) error {
	return WriteJSON(w, status, &ErrorEnvelope{Detail: ErrorDetail{Code: code, Missing: missing}})
}
