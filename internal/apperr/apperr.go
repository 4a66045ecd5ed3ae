package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrRecordNotFound     = errors.New("record not found")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrPaymentInitiation  = errors.New("payment could not be initiated")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrDuplicate          = errors.New("duplicate record")
	ErrUpstream           = errors.New("upstream service error")
)

func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrChecksumMismatch):
		return "checksum_mismatch"

	case errors.Is(err, ErrRecordNotFound):
		return "not_found"

	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"

	case errors.Is(err, ErrInvalidRequest):
		return "bad_request"

	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"

	case errors.Is(err, ErrDuplicate):
		return "duplicate"

	case errors.Is(err, ErrPaymentInitiation):
		return "payment_initiation"

	// Timeouts are classified before the generic gateway error so a wrapped
	// deadline still reads as a timeout.
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, ErrGatewayUnavailable):
		return "gateway_unavailable"

	case errors.Is(err, ErrUpstream):
		return "upstream"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch Kind(err) {
	case "":
		return http.StatusOK
	case "checksum_mismatch", "malformed_payload", "bad_request", "canceled":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "invalid_transition", "duplicate":
		return http.StatusConflict
	case "payment_initiation", "gateway_unavailable", "upstream":
		return http.StatusBadGateway
	case "timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
