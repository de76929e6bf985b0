package projection

import (
	"sync"
	"time"
)

// TypingDebouncer collapses rapid keystrokes into a single outgoing typing
// emission. The first keystroke fires onStart; every further keystroke only
// pushes the quiet timer back. Once the typist stays quiet for the window,
// onStop fires automatically, so a receiver never depends on the client
// remembering to send an explicit stop.
type TypingDebouncer struct {
	mu          sync.Mutex
	quietWindow time.Duration
	typing      bool
	timer       *time.Timer
	onStart     func()
	onStop      func()
}

func NewTypingDebouncer(quietWindow time.Duration, onStart, onStop func()) *TypingDebouncer {
	return &TypingDebouncer{quietWindow: quietWindow, onStart: onStart, onStop: onStop}
}

// Keystroke registers typing activity.
func (d *TypingDebouncer) Keystroke() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.typing {
		d.typing = true
		d.onStart()
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quietWindow, d.quiet)
}

func (d *TypingDebouncer) quiet() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.typing {
		return
	}
	d.typing = false
	d.onStop()
}

// Flush emits the stop immediately, typically right before sending the
// composed message.
func (d *TypingDebouncer) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.typing {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.typing = false
	d.onStop()
}
