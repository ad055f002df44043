// Package partition plans how a worker's slice of the candidate space is laid
// out: its first message, the index below which bytes stay fixed, and the
// step between consecutive candidates.
package partition

import (
	"errors"
	"fmt"
	"strings"

	"example.org/distmagic/alphabet"
	"example.org/distmagic/counter"
)

// ErrInvalid is wrapped by every planning error.
var ErrInvalid = errors.New("partition: invalid plan")

// Strategy selects how ranks share the enumeration order.
type Strategy int

const (
	// Contiguous gives every rank a private block selected by a rank field
	// written right after the prefix. Step is 1.
	Contiguous Strategy = iota
	// Interleaved starts rank r at base+r and steps by the worker count.
	Interleaved
)

func (s Strategy) String() string {
	switch s {
	case Contiguous:
		return "contiguous"
	case Interleaved:
		return "interleaved"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy accepts the strategy names and their historical aliases
// "quick-sequential" and "stepover".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "contiguous", "quick-sequential", "sequential":
		return Contiguous, nil
	case "interleaved", "stepover":
		return Interleaved, nil
	default:
		return 0, fmt.Errorf("%w: unknown strategy %q", ErrInvalid, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Layout is the part of the run configuration the planner needs.
type Layout struct {
	Alphabet *alphabet.Alphabet
	Prefix   []byte
	Length   int
	Strategy Strategy
}

// Plan is one worker's starting point.
type Plan struct {
	Strategy Strategy
	// Base is the common starting message shared by all ranks. In a
	// contiguous plan with a rank field, that field holds first symbols, so
	// Base equals rank 0's Message.
	Base []byte
	// Message is this rank's first candidate. It has the same length as Base.
	Message []byte
	// Lo is the first index the counter may change.
	Lo int
	// SelectorWidth is the width of the rank field (Contiguous only).
	SelectorWidth int
	Step          uint64

	alpha *alphabet.Alphabet
}

// Base builds the common base message: the prefix followed by successive
// alphabet symbols starting at the first one.
func Base(l Layout) []byte {
	buf := make([]byte, l.Length)
	n := copy(buf, l.Prefix)
	c := l.Alphabet.First()
	for i := n; i < len(buf); i++ {
		buf[i] = c
		c, _ = l.Alphabet.Next(c)
	}
	return buf
}

// SelectorWidth returns how many symbols of the given radix are needed to
// write every rank below total.
func SelectorWidth(radix, total int) int {
	w := 0
	for v := total - 1; v > 0; v /= radix {
		w++
	}
	return w
}

// New plans the slice of rank out of total workers.
func New(l Layout, rank, total int) (*Plan, error) {
	switch {
	case l.Alphabet == nil:
		return nil, fmt.Errorf("%w: no alphabet", ErrInvalid)
	case total < 1:
		return nil, fmt.Errorf("%w: worker count %d", ErrInvalid, total)
	case rank < 0 || rank >= total:
		return nil, fmt.Errorf("%w: rank %d outside [0, %d)", ErrInvalid, rank, total)
	case len(l.Prefix) >= l.Length:
		return nil, fmt.Errorf("%w: prefix of %d bytes leaves no room in a %d byte message", ErrInvalid, len(l.Prefix), l.Length)
	}

	p := &Plan{Strategy: l.Strategy, Base: Base(l), alpha: l.Alphabet}
	p.Message = append([]byte(nil), p.Base...)
	fixed := len(l.Prefix)

	switch l.Strategy {
	case Contiguous:
		p.SelectorWidth = SelectorWidth(l.Alphabet.Radix(), total)
		p.Lo = fixed + p.SelectorWidth
		p.Step = 1
		if p.Lo >= l.Length {
			return nil, fmt.Errorf("%w: %d byte rank field after a %d byte prefix leaves no counter in a %d byte message",
				ErrInvalid, p.SelectorWidth, fixed, l.Length)
		}
		if p.SelectorWidth == 0 {
			break
		}
		for i := fixed; i < p.Lo; i++ {
			p.Base[i] = l.Alphabet.First()
			p.Message[i] = l.Alphabet.First()
		}
		c, err := counter.New(l.Alphabet, p.Message[:p.Lo], fixed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if err := c.Advance(uint64(rank)); err != nil {
			return nil, fmt.Errorf("%w: rank %d does not fit its field: %v", ErrInvalid, rank, err)
		}
	case Interleaved:
		p.Lo = fixed
		p.Step = uint64(total)
		c, err := counter.New(l.Alphabet, p.Message, fixed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if err := c.Advance(uint64(rank)); err != nil {
			return nil, fmt.Errorf("%w: offset %d overflows the suffix: %v", ErrInvalid, rank, err)
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalid, l.Strategy)
	}
	return p, nil
}

// Counter returns a counter over a fresh copy of the plan's initial message.
func (p *Plan) Counter() (*counter.Counter, error) {
	buf := append([]byte(nil), p.Message...)
	return counter.New(p.alpha, buf, p.Lo)
}

// NextMessage returns the candidate that follows the initial one, or nil if
// the slice holds a single candidate.
func (p *Plan) NextMessage() []byte {
	c, err := p.Counter()
	if err != nil {
		return nil
	}
	if err := c.Advance(p.Step); err != nil {
		return nil
	}
	return c.Bytes()
}
