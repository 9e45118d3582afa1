package dashboard

import (
	"sync"

	"github.com/secureguard/secureguard/internal/guard"
)

// Navigation tells connected browsers to leave the current page
type Navigation struct {
	Location string `json:"navigate"`
	Reason   string `json:"reason"`
}

// Navigator sends browsers on the session feed to the login page when the
// session is forcibly ended. Create it before the session manager so it can be
// passed to session.WithNavigator, then hand it to the server with WithNavigator.
type Navigator struct {
	mu        sync.Mutex
	listeners map[int]chan Navigation
	nextID    int
}

// NewNavigator creates a navigator with no listeners
func NewNavigator() *Navigator {
	return &Navigator{listeners: make(map[int]chan Navigation)}
}

// NavigateToLogin pushes the login page to every connected browser
func (n *Navigator) NavigateToLogin(reason string) {
	nav := Navigation{Location: guard.LoginPath, Reason: reason}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.listeners {
		// Only the latest navigation matters
		select {
		case <-ch:
		default:
		}
		ch <- nav
	}
}

// listen registers a feed connection
func (n *Navigator) listen() (<-chan Navigation, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	ch := make(chan Navigation, 1)
	n.listeners[id] = ch

	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}
