package github

import (
	"fmt"
	"net/http"

	"ghusers/internal/errors"
)

// apiError is a non-2xx response. Operations translate the statuses they
// understand; everything else goes through classify.
type apiError struct {
	Status      int    `json:"-"`
	Message     string `json:"message"`
	RateLimited bool   `json:"-"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("github: %d %s", e.Status, e.Message)
}

func (c *Client) classify(op string, err error) error {
	apiErr, ok := err.(*apiError)
	if !ok {
		// Already typed by do.
		return err
	}

	switch {
	case apiErr.Status == http.StatusTooManyRequests,
		apiErr.Status == http.StatusForbidden && apiErr.RateLimited,
		apiErr.Status >= 500:
		return errors.Transient(op, apiErr)
	case apiErr.Status == http.StatusUnauthorized, apiErr.Status == http.StatusForbidden:
		e := errors.Unauthorized(op + ": credential rejected")
		e.Err = apiErr
		return e
	}
	return errors.Internal(op, apiErr)
}
