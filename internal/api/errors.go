package api

import (
	"net/http"

	"github.com/pyhostd/pyhostd/internal/protocol"
)

// statusForKind maps the stable error taxonomy to an HTTP status code, the
// way markcallen's mapBridgeError maps Bridge errors to a gRPC code (spec
// §4.6 error mapping).
func statusForKind(kind protocol.ErrorKind) int {
	switch kind {
	case protocol.KindInvalidInput, protocol.KindSyntaxError, protocol.KindNameError:
		return http.StatusBadRequest
	case protocol.KindUnauthorized:
		return http.StatusUnauthorized
	case protocol.KindForbidden, protocol.KindSandboxViolation, protocol.KindSignatureInvalid:
		return http.StatusForbidden
	case protocol.KindRateLimited:
		return http.StatusTooManyRequests
	case protocol.KindPoolExhausted:
		return http.StatusServiceUnavailable
	case protocol.KindTimeout, protocol.KindWorkerUnavailable:
		return http.StatusGatewayTimeout
	case protocol.KindRuntimeError:
		return http.StatusOK // a successfully-dispatched execution that failed inside user code
	default:
		return http.StatusInternalServerError
	}
}

// writeErrorKind sends a StandardResponse carrying the taxonomy kind, at
// the HTTP status that kind maps to.
func writeErrorKind(w http.ResponseWriter, kind protocol.ErrorKind, message string) {
	jsonResponse(w, statusForKind(kind), StandardResponse{Success: false, Error: message, Kind: kind})
}
