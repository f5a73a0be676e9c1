package collab

import (
	"sync"

	"github.com/google/uuid"
)

// Log is the bounded, append-only record of non-ephemeral session actions
// for the current process lifetime. Each session keeps at most cap items;
// the oldest is evicted first.
type Log struct {
	mu        sync.RWMutex
	cap       int
	bySession map[string][]ActivityItem
}

func NewLog(capPerSession int) *Log {
	if capPerSession <= 0 {
		capPerSession = 50
	}

	return &Log{
		cap:       capPerSession,
		bySession: make(map[string][]ActivityItem),
	}
}

// records an action, assigning the item id, and evicts the oldest entry
// once the session is at capacity
func (l *Log) Append(item ActivityItem) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	items := append(l.bySession[item.SessionID], item)

	if len(items) > l.cap {
		items = items[len(items)-l.cap:]
	}

	l.bySession[item.SessionID] = items
}

// returns up to limit most recent items for a session in chronological
// order; limit <= 0 means everything retained
func (l *Log) Recent(sessionID string, limit int) []ActivityItem {
	l.mu.RLock()
	defer l.mu.RUnlock()

	items := l.bySession[sessionID]

	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}

	out := make([]ActivityItem, len(items))
	copy(out, items)

	return out
}

// discards the history of an ended session
func (l *Log) DropSession(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.bySession, sessionID)
}
