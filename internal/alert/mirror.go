package alert

import (
	"sort"
	"sync"

	"telegram-stock-alert/internal/types"
)

// Mirror is the in-memory copy of the alert store, grouped by user. The
// evaluator reads it every tick; the authoring conversation and the trigger
// path write it. Evaluation always iterates a snapshot, never the live
// slices.
type Mirror struct {
	mu     sync.RWMutex
	byUser map[int64][]types.Alert
}

func NewMirror() *Mirror {
	return &Mirror{byUser: make(map[int64][]types.Alert)}
}

// ReplaceAll swaps in a freshly loaded set of alerts. Used at startup and by
// the scheduled reload that heals store/mirror drift.
func (m *Mirror) ReplaceAll(alerts map[int64][]types.Alert) {
	copied := make(map[int64][]types.Alert, len(alerts))
	for userID, list := range alerts {
		copied[userID] = append([]types.Alert(nil), list...)
	}

	m.mu.Lock()
	m.byUser = copied
	m.mu.Unlock()
}

// Add appends an alert to its owner's list.
func (m *Mirror) Add(a types.Alert) {
	m.mu.Lock()
	m.byUser[a.UserID] = append(m.byUser[a.UserID], a)
	m.mu.Unlock()
}

// Remove deletes an alert by owner and id, reporting whether it was present.
func (m *Mirror) Remove(userID, alertID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.byUser[userID]
	for i, a := range list {
		if a.ID == alertID {
			m.byUser[userID] = append(list[:i], list[i+1:]...)
			if len(m.byUser[userID]) == 0 {
				delete(m.byUser, userID)
			}
			return true
		}
	}
	return false
}

// Snapshot returns a deep copy safe to iterate while the mirror mutates.
func (m *Mirror) Snapshot() map[int64][]types.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	copied := make(map[int64][]types.Alert, len(m.byUser))
	for userID, list := range m.byUser {
		copied[userID] = append([]types.Alert(nil), list...)
	}
	return copied
}

// Tickers returns the distinct tickers across all alerts, sorted for stable
// request URLs.
func (m *Mirror) Tickers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, list := range m.byUser {
		for _, a := range list {
			seen[a.Ticker] = struct{}{}
		}
	}

	tickers := make([]string, 0, len(seen))
	for ticker := range seen {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}

// Count returns the total number of mirrored alerts.
func (m *Mirror) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, list := range m.byUser {
		total += len(list)
	}
	return total
}
