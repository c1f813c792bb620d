package validation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"ghusers/internal/errors"
)

const (
	MaxUsernameLength = 64
	MaxStatusLength   = 64
)

type Validator interface {
	Validate() error
}

// UserRequest is the body of create and edit requests.
type UserRequest struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

// Validate trims both fields in place and refuses empty, oversized, invalid
// UTF-8 or control-character input.
func (u *UserRequest) Validate() error {
	u.Username = strings.TrimSpace(u.Username)
	u.Status = strings.TrimSpace(u.Status)

	problems := map[string]string{}
	if msg := checkField(u.Username, MaxUsernameLength); msg != "" {
		problems["username"] = msg
	}
	if msg := checkField(u.Status, MaxStatusLength); msg != "" {
		problems["status"] = msg
	}
	if len(problems) > 0 {
		return errors.ValidationError("invalid user", problems)
	}
	return nil
}

func checkField(value string, max int) string {
	if value == "" {
		return "is required"
	}
	if !utf8.ValidString(value) {
		return "must be valid UTF-8"
	}
	if len([]rune(value)) > max {
		return fmt.Sprintf("must be at most %d characters", max)
	}
	if strings.IndexFunc(value, unicode.IsControl) >= 0 {
		return "must not contain control characters"
	}
	return ""
}

// User validates a username and status pair and returns the trimmed values.
func User(username, status string) (string, string, error) {
	req := UserRequest{Username: username, Status: status}
	if err := req.Validate(); err != nil {
		return "", "", err
	}
	return req.Username, req.Status, nil
}

func DecodeUserRequest(r *http.Request) (*UserRequest, error) {
	var req UserRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, errors.ValidationError("invalid request body", nil)
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return &req, nil
}
