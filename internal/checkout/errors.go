package checkout

import (
	"errors"
	"fmt"
)

const (
	ReasonMissingEmail = "missing email"
	ReasonEmptyCart    = "empty cart"

	// DefaultFailureMessage is shown when the order API gives no usable detail.
	DefaultFailureMessage = "Failed to place order."
)

var (
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	ErrIllegalTransition  = errors.New("illegal transition of checkout status")
)

// ValidationError is returned before any network call when the input cannot
// form an order.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ApiError is a create-order response outside 2xx, or a 2xx response whose body
// could not be read as an order. Message is user facing.
type ApiError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ApiError) Error() string {
	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

// NetworkError is a create-order call that never produced a response.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return DefaultFailureMessage
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Detail returns the underlying cause for logs; Error stays user facing.
func (e *NetworkError) Detail() string {
	return fmt.Sprintf("order request failed: %v", e.Err)
}

// ambiguous reports whether the order may have been created despite err.
func ambiguous(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || (apiErr.StatusCode >= 200 && apiErr.StatusCode < 300)
	}
	return true
}
