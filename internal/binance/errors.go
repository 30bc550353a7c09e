package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Binance API error codes the client cares about
const (
	codeDisconnected      = -1001
	codeTooManyRequests   = -1003
	codeTooManyOrders     = -1015
	codeServiceShutdown   = -1016
	codeBadTimestamp      = -1021
	codeBadSignature      = -1022
	codeIllegalChars      = -1100
	codeMandatoryParam    = -1102
	codeBadPrecision      = -1111
	codeUnknownOrder      = -2011
	codeUnauthorized      = -2014
	codeInvalidAPIKey     = -2015
)

// APIError is a Binance API error response ({"code":-xxxx,"msg":"..."})
// together with the HTTP status it arrived with.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance API error %d (http %d): %s", e.Code, e.StatusCode, e.Msg)
}

// parseAPIError extracts an APIError from a non-200 response body. Bodies
// that are not the usual code/msg JSON still yield an APIError carrying the
// raw body as the message.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == 0 {
		apiErr.Msg = string(body)
	}
	return apiErr
}

// IsUnknownOrder reports whether err means the order no longer exists on the
// exchange (already filled, already cancelled, or never known).
func IsUnknownOrder(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == codeUnknownOrder
}

// isRetryable reports whether a failed request may succeed on retry.
// Auth, timestamp and parameter errors are permanent: retrying cannot change
// their outcome, so they are surfaced immediately.
func isRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		// Transport-level failure (network, timeout).
		return true
	}
	switch apiErr.Code {
	case codeBadTimestamp, codeBadSignature, codeUnauthorized, codeInvalidAPIKey,
		codeIllegalChars, codeMandatoryParam, codeBadPrecision, codeUnknownOrder:
		return false
	case codeDisconnected, codeTooManyRequests, codeTooManyOrders, codeServiceShutdown:
		return true
	}
	return apiErr.StatusCode == http.StatusTooManyRequests ||
		apiErr.StatusCode == 418 ||
		apiErr.StatusCode >= 500
}
