package scanning

import "time"

// Modifiers represents modifier key state on a key event.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModControl
	ModAlt
	ModMeta
)

// KeyEvent is a single raw keyboard event from the host UI layer.
// A handheld scanner in keyboard-emulation mode produces these the same way a
// human typist does, only faster.
type KeyEvent struct {
	// Char is the printable character produced by the key, if any.
	// Zero for non-character keys (arrows, function keys, bare modifiers).
	Char rune

	// Terminator indicates the designated end-of-scan key (Enter).
	Terminator bool

	// Modifiers indicates which modifier keys were held. Shift is not
	// tracked: it is part of producing the character, not a chord.
	Modifiers Modifiers

	// Timestamp is when the event arrived at the input boundary.
	// If zero, the classifier substitutes its own clock.
	Timestamp time.Time
}

// NewKeyEvent creates a printable-character event.
func NewKeyEvent(char rune, ts time.Time) KeyEvent {
	return KeyEvent{Char: char, Timestamp: ts}
}

// NewTerminatorEvent creates an end-of-scan event.
func NewTerminatorEvent(ts time.Time) KeyEvent {
	return KeyEvent{Terminator: true, Timestamp: ts}
}

// chorded reports whether a non-shift modifier was held. Chorded keys are
// shortcuts, not scan data.
func (e KeyEvent) chorded() bool {
	return e.Modifiers&(ModControl|ModAlt|ModMeta) != 0
}

// printable reports whether the event carries a character that can belong to
// a serial number.
func (e KeyEvent) printable() bool {
	return !e.Terminator && e.Char != 0 && !e.chorded()
}
