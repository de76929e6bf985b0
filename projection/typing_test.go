package projection

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTypingIndicator_Expires_On_Its_Own(t *testing.T) {
	req := require.New(t)
	indicator := NewTypingIndicator(50 * time.Millisecond)

	// Given a typing signal with no stop ever arriving
	indicator.Set("alice")
	req.True(indicator.Active())
	req.Equal("alice", string(indicator.Typist()))

	// When the quiet window elapses
	time.Sleep(80 * time.Millisecond)

	// Then the indicator went away by itself
	req.False(indicator.Active())
	req.Empty(indicator.Typist())
}

func TestTypingIndicator_Each_Signal_Pushes_The_Expiry(t *testing.T) {
	req := require.New(t)
	indicator := NewTypingIndicator(60 * time.Millisecond)

	indicator.Set("alice")
	time.Sleep(40 * time.Millisecond)

	// When a fresh signal arrives before expiry
	indicator.Set("alice")
	time.Sleep(40 * time.Millisecond)

	// Then the window restarted from the second signal
	req.True(indicator.Active())
}

func TestTypingIndicator_Clear(t *testing.T) {
	req := require.New(t)
	indicator := NewTypingIndicator(time.Minute)

	indicator.Set("alice")
	indicator.Clear()

	req.False(indicator.Active())
}

func TestTypingDebouncer_Collapses_Keystrokes_Into_One_Start(t *testing.T) {
	req := require.New(t)
	var starts, stops atomic.Int32
	debouncer := NewTypingDebouncer(50*time.Millisecond,
		func() { starts.Add(1) },
		func() { stops.Add(1) },
	)

	// When several keystrokes happen in quick succession
	debouncer.Keystroke()
	debouncer.Keystroke()
	debouncer.Keystroke()

	// Then only the first one fired a start
	req.Equal(int32(1), starts.Load())
	req.Equal(int32(0), stops.Load())

	// And staying quiet fires the stop automatically
	time.Sleep(90 * time.Millisecond)
	req.Equal(int32(1), stops.Load())
}

func TestTypingDebouncer_Flush_Stops_Immediately(t *testing.T) {
	req := require.New(t)
	var starts, stops atomic.Int32
	debouncer := NewTypingDebouncer(time.Minute,
		func() { starts.Add(1) },
		func() { stops.Add(1) },
	)

	// Given an active typing state
	debouncer.Keystroke()

	// When the composed message is sent
	debouncer.Flush()

	// Then the stop fired without waiting for the quiet window
	req.Equal(int32(1), starts.Load())
	req.Equal(int32(1), stops.Load())

	// And a second flush is a no-op
	debouncer.Flush()
	req.Equal(int32(1), stops.Load())
}
