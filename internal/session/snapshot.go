package session

import (
	"github.com/secureguard/secureguard/internal/models"
)

// Snapshot is a point-in-time copy of the session for display. It never
// carries tokens.
type Snapshot struct {
	Status  Status              `json:"status"`
	User    *models.UserProfile `json:"user,omitempty"`
	Pending bool                `json:"pending"`
	// Reason tells why the last session ended: logout or expired
	Reason  string `json:"reason,omitempty"`
	Version uint64 `json:"version"`
}

// Authenticated reports whether a user is signed in
func (s Snapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// Loading reports whether no decision can be made yet
func (s Snapshot) Loading() bool {
	return s.Status == StatusLoading || s.Status == StatusUninitialized
}

// HasRole reports whether the snapshot's user has exactly role
func (s Snapshot) HasRole(role string) bool {
	return s.User != nil && s.User.Role == role
}

// HasPermission reports whether the snapshot's user carries permission
func (s Snapshot) HasPermission(permission string) bool {
	return s.User != nil && s.User.HasPermission(permission)
}

// Snapshot returns the current session state
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		Status:  m.status,
		User:    m.user.Clone(),
		Pending: m.pending > 0,
		Reason:  m.reason,
		Version: m.version,
	}
}

// Subscribe returns a channel that receives the current snapshot and every
// later change. A slow reader only sees the latest state. Call the returned
// func to stop; it closes the channel.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Snapshot, 1)
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = ch
	ch <- m.snapshotLocked()

	var once bool
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if once {
			return
		}
		once = true
		delete(m.subscribers, id)
		close(ch)
	}
}

// publishLocked bumps the version and hands the new snapshot to subscribers
func (m *Manager) publishLocked() {
	m.version++
	snap := m.snapshotLocked()

	for _, ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
			// Replace the unread snapshot with the newer one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
