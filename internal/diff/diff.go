// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
	"sort"

	"ghusers/internal/document"
)

// Line is one user record that differs between two documents.
type Line struct {
	Type LineType
	Old  document.User // zero for additions
	New  document.User // zero for deletions
}

// ID is the id of the record the line is about.
func (l Line) ID() int {
	if l.Type == Deletion {
		return l.Old.ID
	}
	return l.New.ID
}

// LineType indicates whether a record was added, removed, or changed
type LineType int

const (
	Modification LineType = iota
	Addition
	Deletion
)

// DiffResult contains the complete diff information
type DiffResult struct {
	Lines []Line
	Stats struct {
		Additions int
		Deletions int
		Changes   int
	}
}

// Empty reports whether the two documents held the same records.
func (r *DiffResult) Empty() bool {
	return len(r.Lines) == 0
}

// Documents compares two documents record by record, matching on id.
// Lines come out in id order.
func Documents(oldDoc, newDoc document.Document) *DiffResult {
	before := make(map[int]document.User, len(oldDoc.Users))
	for _, u := range oldDoc.Users {
		before[u.ID] = u
	}

	result := &DiffResult{}
	seen := make(map[int]bool, len(newDoc.Users))
	for _, u := range newDoc.Users {
		seen[u.ID] = true
		old, ok := before[u.ID]
		switch {
		case !ok:
			result.Lines = append(result.Lines, Line{Type: Addition, New: u})
			result.Stats.Additions++
		case old != u:
			result.Lines = append(result.Lines, Line{Type: Modification, Old: old, New: u})
			result.Stats.Changes++
		}
	}
	for _, u := range oldDoc.Users {
		if !seen[u.ID] {
			result.Lines = append(result.Lines, Line{Type: Deletion, Old: u})
			result.Stats.Deletions++
		}
	}

	sort.SliceStable(result.Lines, func(i, j int) bool {
		return result.Lines[i].ID() < result.Lines[j].ID()
	})
	return result
}

// Format returns a string representation of the diff
func (r *DiffResult) Format() string {
	var buf bytes.Buffer

	for _, line := range r.Lines {
		switch line.Type {
		case Addition:
			fmt.Fprintf(&buf, "+ %d %s %s\n", line.New.ID, line.New.Username, line.New.Status)
		case Deletion:
			fmt.Fprintf(&buf, "- %d %s %s\n", line.Old.ID, line.Old.Username, line.Old.Status)
		case Modification:
			fmt.Fprintf(&buf, "~ %d %s %s -> %s %s\n", line.New.ID,
				line.Old.Username, line.Old.Status,
				line.New.Username, line.New.Status)
		}
	}

	return buf.String()
}
