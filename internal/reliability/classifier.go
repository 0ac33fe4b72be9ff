// Package reliability classifies failures from remote endpoints and devices
// into the small set of kinds the studio reports to clients. Nothing here
// retries.
package reliability

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Kind is a failure class.
type Kind string

const (
	KindNone           Kind = ""
	KindPermission     Kind = "permission_denied"
	KindEntitlement    Kind = "entitlement_required"
	KindInvalidRequest Kind = "invalid_request"
	KindTransient      Kind = "transient"
	KindStreamFault    Kind = "stream_fault"
)

var (
	ErrPermission     = errors.New("permission denied")
	ErrEntitlement    = errors.New("credential not entitled for this model")
	ErrInvalidRequest = errors.New("invalid request")
	ErrTransient      = errors.New("transient upstream failure")
	ErrStreamFault    = errors.New("stream fault")
)

// entitlementMarker is the upstream message for a key that cannot reach a model.
const entitlementMarker = "Requested entity was not found"

// Classify maps err to a Kind. Wrapped sentinels win; otherwise the error
// text is inspected for upstream status markers.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrPermission):
		return KindPermission
	case errors.Is(err, ErrEntitlement):
		return KindEntitlement
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrStreamFault):
		return KindStreamFault
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage classifies a raw upstream error message.
func ClassifyMessage(msg string) Kind {
	if strings.Contains(msg, entitlementMarker) {
		return KindEntitlement
	}
	upper := strings.ToUpper(msg)
	switch {
	case strings.Contains(upper, "PERMISSION_DENIED"):
		return KindPermission
	case strings.Contains(upper, "INVALID_ARGUMENT"), strings.Contains(upper, "FAILED_PRECONDITION"):
		return KindInvalidRequest
	default:
		return KindTransient
	}
}

// IsEntitlement reports whether err means the selected credential must change.
func IsEntitlement(err error) bool {
	return Classify(err) == KindEntitlement
}

// IsTransientHTTPStatus reports upstream statuses that may succeed later.
func IsTransientHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// KindFromHTTPStatus classifies a raw upstream HTTP status.
func KindFromHTTPStatus(code int) Kind {
	switch {
	case code < 400:
		return KindNone
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindPermission
	case code == http.StatusNotFound:
		return KindEntitlement
	case IsTransientHTTPStatus(code):
		return KindTransient
	default:
		return KindInvalidRequest
	}
}

// HTTPStatus is the status the service answers with for a failure of kind k.
func HTTPStatus(k Kind) int {
	switch k {
	case KindNone:
		return http.StatusOK
	case KindPermission:
		return http.StatusForbidden
	case KindEntitlement:
		return http.StatusPaymentRequired
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindStreamFault:
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}
