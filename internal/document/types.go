// internal/document/types.go
package document

// Document is the whole stored file. It is read, transformed and written as
// one unit.
type Document struct {
	Users []User `json:"users"`
}

// User is a single record. IDs are unique within a document; a new record
// gets one past the current maximum.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

// Mutation transforms a document. Implementations must not modify their input.
type Mutation func(doc Document) (Document, error)

// Clone returns a copy that shares no backing array with d.
func (d Document) Clone() Document {
	users := make([]User, len(d.Users))
	copy(users, d.Users)
	return Document{Users: users}
}

// MaxID returns the largest id in the document, or 0 when it is empty.
func (d Document) MaxID() int {
	max := 0
	for _, u := range d.Users {
		if u.ID > max {
			max = u.ID
		}
	}
	return max
}

func (d Document) indexOf(id int) int {
	for i, u := range d.Users {
		if u.ID == id {
			return i
		}
	}
	return -1
}
