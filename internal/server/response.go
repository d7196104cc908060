package server

import (
	"encoding/json"
	"net/http"

	"assetbank/internal/constants"
	"assetbank/internal/services"
)

// APIError is the error envelope every failure response carries.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

// APIErrorBody holds the machine-readable code, a message, and optional
// per-error details.
type APIErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error envelope
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, APIError{Error: APIErrorBody{Code: code, Message: message}})
}

// WriteErrorDetails writes an error envelope carrying details
func WriteErrorDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	WriteJSON(w, status, APIError{Error: APIErrorBody{Code: code, Message: message, Details: details}})
}

// handleServiceError maps service errors to HTTP responses.
// It extracts the error code from ServiceError and maps it to the appropriate HTTP status.
func (s *Server) handleServiceError(w http.ResponseWriter, err error) {
	code, isServiceErr := services.IsServiceError(err)
	if !isServiceErr {
		s.logger.Error("unexpected error: %v", err)
		WriteError(w, http.StatusInternalServerError, constants.ErrCodeInternalError, "Unexpected server error.")
		return
	}

	status := http.StatusInternalServerError
	switch code {
	case constants.ErrCodeAssetNotFound, constants.ErrCodeFileNotFound:
		status = http.StatusNotFound
	case constants.ErrCodeInvalidHash, constants.ErrCodeInvalidQuery,
		constants.ErrCodeInvalidBody, constants.ErrCodeInvalidJSON,
		constants.ErrCodeHashMismatch, constants.ErrCodeBadRequest:
		status = http.StatusBadRequest
	case constants.ErrCodeScanRunning:
		status = http.StatusConflict
	case constants.ErrCodeDependencyMissing:
		status = http.StatusServiceUnavailable
	case constants.ErrCodeBackendUnsupported:
		status = http.StatusNotImplemented
	}

	WriteError(w, status, code, err.Error())
}
