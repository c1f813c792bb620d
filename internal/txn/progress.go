// internal/txn/progress.go
package txn

import (
	"encoding/json"
	"sync"
	"time"
)

// Phase is a step of the transaction state machine.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseBranchCreated Phase = "branch_created"
	PhaseDocumentRead  Phase = "document_read"
	PhaseMutated       Phase = "mutated"
	PhaseWritten       Phase = "written"
	PhaseMerged        Phase = "merged"
	PhaseFailed        Phase = "failed"
	PhaseCleanedUp     Phase = "cleaned_up"
	PhaseBackoff       Phase = "backoff"
)

// Outcome qualifies PhaseCleanedUp.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeRetry   Outcome = "retry"
	OutcomeAborted Outcome = "aborted"
)

// Progress is one observable step of a transaction.
type Progress struct {
	Transaction string
	Attempt     int
	Phase       Phase
	Branch      string
	Outcome     Outcome
	Delay       time.Duration
	Err         error
}

func (p Progress) MarshalJSON() ([]byte, error) {
	out := struct {
		Transaction string  `json:"transaction"`
		Attempt     int     `json:"attempt"`
		Phase       Phase   `json:"phase"`
		Branch      string  `json:"branch,omitempty"`
		Outcome     Outcome `json:"outcome,omitempty"`
		DelayMillis int64   `json:"delay_ms,omitempty"`
		Error       string  `json:"error,omitempty"`
	}{
		Transaction: p.Transaction,
		Attempt:     p.Attempt,
		Phase:       p.Phase,
		Branch:      p.Branch,
		Outcome:     p.Outcome,
		DelayMillis: p.Delay.Milliseconds(),
	}
	if p.Err != nil {
		out.Error = p.Err.Error()
	}
	return json.Marshal(out)
}

// Broadcaster fans progress events out to any number of subscribers. A
// subscriber that falls behind loses events rather than stalling the
// transaction that publishes them.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan Progress
	nextID int
	buffer int
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		subs:   make(map[int]chan Progress),
		buffer: buffer,
	}
}

// Publish delivers p to every subscriber without blocking.
func (b *Broadcaster) Publish(p Progress) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Progress, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Progress, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
