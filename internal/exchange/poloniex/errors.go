package poloniex

import (
	"encoding/json"
	"errors"
	"fmt"
)

// APIError is a structured error body returned by the venue.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"message"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("poloniex api error %d (http %d): %s", e.Code, e.Status, e.Msg)
}

func parseAPIError(status int, body []byte) error {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && (apiErr.Code != 0 || apiErr.Msg != "") {
		apiErr.Status = status
		return apiErr
	}
	return fmt.Errorf("poloniex http error %d: %s", status, string(body))
}

// AsAPIError unwraps a structured venue error if err carries one.
func AsAPIError(err error) (APIError, bool) {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return APIError{}, false
}
