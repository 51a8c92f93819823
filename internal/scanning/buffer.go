package scanning

import "time"

// pendingScan accumulates the characters of the in-progress scan along with
// the arrival time of the last accepted character. It is owned exclusively by
// the Classifier.
type pendingScan struct {
	chars     []rune
	lastKeyAt time.Time
}

func (p *pendingScan) append(char rune, at time.Time) {
	p.chars = append(p.chars, char)
	p.lastKeyAt = at
}

// take returns the accumulated content and resets the buffer.
func (p *pendingScan) take() string {
	s := string(p.chars)
	p.reset()
	return s
}

func (p *pendingScan) reset() {
	p.chars = p.chars[:0]
	p.lastKeyAt = time.Time{}
}

func (p *pendingScan) empty() bool {
	return len(p.chars) == 0
}
