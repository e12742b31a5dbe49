// Package httpjson holds the JSON response helpers shared by the HTTP
// handlers.
package httpjson

import (
	"encoding/json"
	"errors"
	"net/http"

	derrors "auditflow/pkg/domain-errors"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// Write encodes v with the given status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps a coded domain error to its status and JSON envelope.
// Uncoded errors come out as 500 internal.
func WriteError(w http.ResponseWriter, err error) {
	code := derrors.CodeOf(err)
	message := "internal error"
	var de *derrors.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	Write(w, derrors.ToHTTPStatus(code), errorEnvelope{
		Error: errorBody{Code: string(code), Message: message},
	})
}
