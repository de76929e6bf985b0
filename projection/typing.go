package projection

import (
	"chat-relay/domain"
	"sync"
	"time"
)

// TypingIndicator is the ephemeral "someone is typing" state of the open
// conversation. It self-expires: if no StopTyping arrives within the quiet
// window (dropped signal, sender disconnected mid-keystroke), Active turns
// false on its own instead of leaving a stuck indicator.
type TypingIndicator struct {
	mu          sync.Mutex
	quietWindow time.Duration
	typist      domain.UserID
	expiresAt   time.Time
	now         func() time.Time
}

func NewTypingIndicator(quietWindow time.Duration) *TypingIndicator {
	return &TypingIndicator{quietWindow: quietWindow, now: time.Now}
}

// Set records a typing signal; each signal pushes the expiry forward.
func (t *TypingIndicator) Set(typist domain.UserID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typist = typist
	t.expiresAt = t.now().Add(t.quietWindow)
}

func (t *TypingIndicator) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typist = ""
	t.expiresAt = time.Time{}
}

// Active reports whether the indicator should currently be shown.
func (t *TypingIndicator) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expiresAt.After(t.now())
}

// Typist returns who is typing, or "" when the indicator expired.
func (t *TypingIndicator) Typist() domain.UserID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.expiresAt.After(t.now()) {
		return ""
	}
	return t.typist
}
