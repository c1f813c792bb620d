// internal/document/mutate.go
package document

import (
	"fmt"

	"ghusers/internal/errors"
)

// Insert appends a user whose id is one past the largest id in doc.
func Insert(doc Document, username, status string) (Document, User, error) {
	u := User{
		ID:       doc.MaxID() + 1,
		Username: username,
		Status:   status,
	}

	next := doc.Clone()
	next.Users = append(next.Users, u)
	return next, u, nil
}

// Update replaces the username and status of the user with the given id.
func Update(doc Document, id int, username, status string) (Document, error) {
	i := doc.indexOf(id)
	if i < 0 {
		return doc, errors.NotFound(fmt.Sprintf("user not found: %d", id))
	}

	next := doc.Clone()
	next.Users[i].Username = username
	next.Users[i].Status = status
	return next, nil
}

// Remove drops the user with the given id. Removing an absent id is an error.
func Remove(doc Document, id int) (Document, error) {
	i := doc.indexOf(id)
	if i < 0 {
		return doc, errors.NotFound(fmt.Sprintf("user not found: %d", id))
	}

	next := Document{Users: make([]User, 0, len(doc.Users)-1)}
	next.Users = append(next.Users, doc.Users[:i]...)
	next.Users = append(next.Users, doc.Users[i+1:]...)
	return next, nil
}

// Find returns the user with the given id.
func Find(doc Document, id int) (User, error) {
	i := doc.indexOf(id)
	if i < 0 {
		return User{}, errors.NotFound(fmt.Sprintf("user not found: %d", id))
	}
	return doc.Users[i], nil
}
