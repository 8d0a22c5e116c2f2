package llm

import (
	"sync"
	"time"
)

const DefaultAuditCapacity = 50

// AuditEntry pairs a prompt with the raw text a model returned for it.
type AuditEntry struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditTrail keeps the most recent successful exchanges. Once full, the
// oldest entry is dropped for each new one.
type AuditTrail struct {
	mu       sync.Mutex
	capacity int
	entries  []AuditEntry
}

func NewAuditTrail(capacity int) *AuditTrail {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &AuditTrail{capacity: capacity}
}

func (a *AuditTrail) Add(entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = append(a.entries, entry)
	if over := len(a.entries) - a.capacity; over > 0 {
		a.entries = append([]AuditEntry{}, a.entries[over:]...)
	}
}

// Entries returns the trail newest first.
func (a *AuditTrail) Entries() []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]AuditEntry, len(a.entries))
	for i, e := range a.entries {
		out[len(a.entries)-1-i] = e
	}
	return out
}

func (a *AuditTrail) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func (a *AuditTrail) Capacity() int { return a.capacity }
