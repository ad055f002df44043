// Package counter implements the variable-radix increment used to walk the
// candidate message space.
package counter

import (
	"errors"
	"fmt"

	"example.org/distmagic/alphabet"
)

// ErrOverflow is returned when a carry would propagate past the first
// mutable byte. The bytes before that index are never modified.
var ErrOverflow = errors.New("counter: search space exhausted")

// Counter treats buf[lo:] as a big-endian number written in the symbols of
// an alphabet. buf is owned by the counter and mutated in place.
type Counter struct {
	alpha     *alphabet.Alphabet
	buf       []byte
	lo        int
	exhausted bool
}

// New wraps buf. Every byte in buf[lo:] must be a member of a.
func New(a *alphabet.Alphabet, buf []byte, lo int) (*Counter, error) {
	if lo < 0 || lo >= len(buf) {
		return nil, fmt.Errorf("counter: first mutable index %d outside buffer of %d bytes", lo, len(buf))
	}
	for i := lo; i < len(buf); i++ {
		if !a.Contains(buf[i]) {
			return nil, fmt.Errorf("counter: byte %q at %d is not in alphabet %s", buf[i], i, a.Name())
		}
	}
	return &Counter{alpha: a, buf: buf, lo: lo}, nil
}

// Bytes returns the underlying buffer. Callers must copy it to keep a value
// across increments.
func (c *Counter) Bytes() []byte { return c.buf }

// Lo returns the index of the most significant mutable byte.
func (c *Counter) Lo() int { return c.lo }

// Width returns the number of mutable bytes.
func (c *Counter) Width() int { return len(c.buf) - c.lo }

// Exhausted reports whether a previous call overflowed.
func (c *Counter) Exhausted() bool { return c.exhausted }

// Increment advances the value by one, carrying toward lower indices.
func (c *Counter) Increment() error {
	if c.exhausted {
		return ErrOverflow
	}
	for i := len(c.buf) - 1; i >= c.lo; i-- {
		next, carry := c.alpha.Next(c.buf[i])
		c.buf[i] = next
		if !carry {
			return nil
		}
	}
	c.exhausted = true
	return ErrOverflow
}

// Advance adds k to the value. It leaves the buffer in the same state as k
// calls to Increment, but costs one pass over at most Width bytes.
func (c *Counter) Advance(k uint64) error {
	if c.exhausted {
		return ErrOverflow
	}
	r := uint64(c.alpha.Radix())
	carry := k
	for i := len(c.buf) - 1; i >= c.lo && carry > 0; i-- {
		d := uint64(c.alpha.Index(c.buf[i])) + carry%r
		carry /= r
		if d >= r {
			d -= r
			carry++
		}
		c.buf[i] = c.alpha.Symbol(int(d))
	}
	if carry > 0 {
		c.exhausted = true
		return ErrOverflow
	}
	return nil
}
