package client

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// AlreadySubmittedCode is the gateway error code for a repeated submission.
const AlreadySubmittedCode = "ALREADY_SUBMITTED"

var (
	ErrInvalidResponse = errors.New("invalid response json")
	ErrClosed          = errors.New("transport closed")
)

// APIError is a non-2xx reply from the gateway, decoded from the response
// envelope when possible.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway returned status %d", e.Status)
	}
	return fmt.Sprintf("gateway returned status %d: %s (%s)", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func newAPIError(status int, body gjson.Result) *APIError {
	return &APIError{
		Status:  status,
		Code:    body.Get("error.code").String(),
		Message: body.Get("error.message").String(),
	}
}
