package txn

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// Namer hands out transaction branch names. The counter keeps names from one
// process distinct; the ULID's random part keeps processes apart.
type Namer struct {
	prefix  string
	counter atomic.Uint64
}

func NewNamer(prefix string) *Namer {
	if prefix == "" {
		prefix = "txn"
	}
	return &Namer{prefix: prefix}
}

func (n *Namer) Next() string {
	seq := n.counter.Add(1)
	return fmt.Sprintf("%s-%d-%s", n.prefix, seq, strings.ToLower(ulid.Make().String()))
}
