package executor

import (
	"sync"
	"time"
)

// TxLogEntry is one append-only transaction-log row (§4.5 step 6): every
// Intent state transition, with a monotonic sequence number.
type TxLogEntry struct {
	Seq      uint64
	IntentID string
	State    string
	At       time.Time
	Detail   string
}

// TxLog is the Executor's append-only transaction log. Entries are never
// mutated or removed once appended.
type TxLog struct {
	mu      sync.Mutex
	seq     uint64
	entries []TxLogEntry
}

func NewTxLog() *TxLog { return &TxLog{} }

// Append records a transition and returns the entry with its assigned
// sequence number.
func (t *TxLog) Append(intentID, state, detail string, at time.Time) TxLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	e := TxLogEntry{Seq: t.seq, IntentID: intentID, State: state, At: at, Detail: detail}
	t.entries = append(t.entries, e)
	return e
}

// Entries returns a snapshot copy of the log.
func (t *TxLog) Entries() []TxLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TxLogEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// ForIntent filters the log to one Intent's transitions, in order.
func (t *TxLog) ForIntent(intentID string) []TxLogEntry {
	all := t.Entries()
	out := make([]TxLogEntry, 0, len(all))
	for _, e := range all {
		if e.IntentID == intentID {
			out = append(out, e)
		}
	}
	return out
}
