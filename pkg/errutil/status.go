package errutil

import "net/http"

type CoreStatus string

const (
	StatusUnknown          CoreStatus = "UNKNOWN"
	StatusBadRequest       CoreStatus = "BAD_REQUEST"
	StatusValidationFailed CoreStatus = "VALIDATION_FAILED"
	StatusUnauthorized     CoreStatus = "UNAUTHORIZED"
	StatusForbidden        CoreStatus = "FORBIDDEN"
	StatusNotFound         CoreStatus = "NOT_FOUND"
	StatusConflict         CoreStatus = "CONFLICT"
	StatusInternal         CoreStatus = "INTERNAL"
	StatusTimeout          CoreStatus = "TIMEOUT"

	// Business rule outcomes.
	StatusExpired            CoreStatus = "EXPIRED"
	StatusAlreadyCompleted   CoreStatus = "ALREADY_COMPLETED"
	StatusAlreadyRedeemed    CoreStatus = "ALREADY_REDEEMED"
	StatusUsageLimitExceeded CoreStatus = "USAGE_LIMIT_EXCEEDED"
	StatusInvalidFormat      CoreStatus = "INVALID_FORMAT"
	StatusPersistence        CoreStatus = "PERSISTENCE_ERROR"
)

// HTTPStatus converts the CoreStatus to the HTTP status code rendered to clients.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed, StatusInvalidFormat:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict, StatusAlreadyCompleted, StatusAlreadyRedeemed, StatusUsageLimitExceeded:
		return http.StatusConflict
	case StatusExpired:
		return http.StatusGone
	case StatusTimeout:
		return http.StatusGatewayTimeout
	case StatusPersistence, StatusInternal, StatusUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
