package trigger

import "fmt"

// Piano range walked by the cursor (A0..C8).
const (
	LowNote  = 21
	HighNote = 108
)

// Cursor is the cyclic note index. The zero value is not valid; use NewCursor.
type Cursor struct {
	note uint8
}

func NewCursor() Cursor { return Cursor{note: LowNote} }

func (c *Cursor) Note() uint8 { return c.note }

// Advance moves to the next note, wrapping from HighNote back to LowNote.
func (c *Cursor) Advance() {
	c.note++
	if c.note > HighNote {
		c.note = LowNote
	}
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName renders a MIDI pitch in scientific notation, e.g. 21 -> "A0".
func NoteName(pitch uint8) string {
	if pitch > 127 {
		return fmt.Sprintf("?%d", pitch)
	}
	return fmt.Sprintf("%s%d", noteNames[pitch%12], int(pitch/12)-1)
}
