package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-tasmota/internal/automation"
	"github.com/nerrad567/gray-logic-tasmota/internal/bridges/tasmota"
	"github.com/nerrad567/gray-logic-tasmota/internal/command"
	"github.com/nerrad567/gray-logic-tasmota/internal/correlator"
	"github.com/nerrad567/gray-logic-tasmota/internal/device"
	"github.com/nerrad567/gray-logic-tasmota/internal/discovery"
	"github.com/nerrad567/gray-logic-tasmota/internal/transport"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// Step is set when a routine stopped at a failing step.
	Step int `json:"step,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeUnsupported    = "unsupported"
	ErrCodeTimeout        = "device_timeout"
	ErrCodeUnreachable    = "device_unreachable"
	ErrCodeProtocol       = "protocol_error"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps an error from the device stack onto a response.
// Anything unrecognised is logged and reported as 500 without detail.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	resp := classify(err)
	if resp.Status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		resp.Message = "internal server error"
	}
	writeJSON(w, resp.Status, resp)
}

func classify(err error) Error {
	status, code := http.StatusInternalServerError, ErrCodeInternal

	var capErr *device.CapabilityError
	switch {
	case errors.Is(err, tasmota.ErrNotManaged),
		errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, automation.ErrExecutionNotFound):
		status, code = http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, device.ErrDeviceExists),
		errors.Is(err, device.ErrTopicInUse):
		status, code = http.StatusConflict, ErrCodeConflict
	case errors.As(err, &capErr):
		status, code = http.StatusUnprocessableEntity, ErrCodeUnsupported
	case errors.Is(err, automation.ErrInvalidRoutine),
		errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, device.ErrInvalidName),
		errors.Is(err, device.ErrInvalidTransport),
		errors.Is(err, device.ErrInvalidCapabilities),
		errors.Is(err, device.ErrUnknownPreset),
		errors.Is(err, command.ErrOutOfRange),
		errors.Is(err, command.ErrInvalidValue),
		errors.Is(err, discovery.ErrInvalidTimeout):
		status, code = http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, correlator.ErrTimeout):
		status, code = http.StatusGatewayTimeout, ErrCodeTimeout
	case errors.Is(err, correlator.ErrProtocol):
		status, code = http.StatusBadGateway, ErrCodeProtocol
	case errors.Is(err, transport.ErrConnection),
		errors.Is(err, transport.ErrAuthentication),
		errors.Is(err, transport.ErrClosed),
		errors.Is(err, device.ErrClosed):
		status, code = http.StatusBadGateway, ErrCodeUnreachable
	case errors.Is(err, discovery.ErrUnavailable),
		errors.Is(err, tasmota.ErrClosed):
		status, code = http.StatusServiceUnavailable, ErrCodeUnavailable
	}

	resp := Error{Status: status, Code: code, Message: err.Error()}
	var re *automation.RoutineError
	if errors.As(err, &re) {
		resp.Step = re.Step
	}
	return resp
}
