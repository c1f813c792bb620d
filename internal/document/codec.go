// internal/document/codec.go
package document

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"ghusers/internal/errors"
)

// Decode turns a store payload (base64 text, possibly wrapped across lines)
// into a Document.
func Decode(payload []byte) (Document, error) {
	clean := bytes.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, payload)

	raw := make([]byte, base64.StdEncoding.DecodedLen(len(clean)))
	n, err := base64.StdEncoding.Decode(raw, clean)
	if err != nil {
		return Document{}, errors.DecodeError(fmt.Errorf("base64: %w", err))
	}

	dec := json.NewDecoder(bytes.NewReader(raw[:n]))
	dec.DisallowUnknownFields()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return Document{}, errors.DecodeError(fmt.Errorf("json: %w", err))
	}
	if dec.More() {
		return Document{}, errors.DecodeError(fmt.Errorf("json: trailing data after document"))
	}
	if doc.Users == nil {
		doc.Users = []User{}
	}

	if err := checkIDs(doc); err != nil {
		return Document{}, errors.DecodeError(err)
	}
	return doc, nil
}

// Encode renders doc in its canonical form: compact JSON, fixed field order,
// then base64. Equal documents always encode to equal bytes.
func Encode(doc Document) ([]byte, error) {
	if doc.Users == nil {
		doc.Users = []User{}
	}
	if err := checkIDs(doc); err != nil {
		return nil, errors.Internal("refusing to encode document", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Internal("marshaling document", err)
	}

	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

func checkIDs(doc Document) error {
	seen := make(map[int]bool, len(doc.Users))
	for _, u := range doc.Users {
		if u.ID <= 0 {
			return fmt.Errorf("user %q has non-positive id %d", u.Username, u.ID)
		}
		if seen[u.ID] {
			return fmt.Errorf("duplicate user id %d", u.ID)
		}
		seen[u.ID] = true
	}
	return nil
}
