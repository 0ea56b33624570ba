// Package shared centralizes JSON responses and domain-error translation so
// every handler produces the same envelopes.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "custodia/pkg/domain-errors"
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:            http.StatusBadRequest,
	dErrors.CodeInvalidInput:          http.StatusBadRequest,
	dErrors.CodeNotFound:              http.StatusNotFound,
	dErrors.CodeConflict:              http.StatusConflict,
	dErrors.CodeLegalHoldActive:       http.StatusLocked,
	dErrors.CodeTenantContextRequired: http.StatusUnauthorized,
	dErrors.CodeImmutableRecord:       http.StatusConflict,
	dErrors.CodeDestructionFailed:     http.StatusBadGateway,
	dErrors.CodeInvariantViolation:    http.StatusInternalServerError,
	dErrors.CodeInternal:              http.StatusInternalServerError,
}

// WriteError translates a domain error into its HTTP status and envelope.
// Uncoded errors collapse to an opaque 500; internal detail never leaks.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorDetails(w, err, nil)
}

// WriteErrorDetails is WriteError with extra caller-safe detail fields, e.g.
// a blocking hold's expiry.
func WriteErrorDetails(w http.ResponseWriter, err error, details map[string]any) {
	code := dErrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := "internal error"
	var de *dErrors.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	if code == dErrors.CodeInternal {
		message = "internal error"
	}

	WriteJSON(w, status, ErrorResponse{
		Error:   string(code),
		Message: message,
		Details: details,
	})
}

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// DecodeJSON decodes a request body, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}
