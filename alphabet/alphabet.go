// Package alphabet provides the cyclic numeral systems used to enumerate
// candidate message suffixes.
//
// An Alphabet is an ordered set of distinct byte symbols. The first symbol
// plays the role of zero, and the successor of the last symbol wraps back to
// the first one with a carry, exactly like a positional numeral system whose
// radix is the alphabet size.
package alphabet

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknown is returned by Lookup for names that are not registered.
var ErrUnknown = errors.New("unknown alphabet")

// Alphabet is a table-driven cyclic numeral system. The zero value is not
// usable; build one with New or use one of the predefined variants.
type Alphabet struct {
	name    string
	symbols []byte
	index   [256]int16
}

// New builds an alphabet from an ordered list of distinct symbols.
func New(name string, symbols string) (*Alphabet, error) {
	if len(symbols) < 2 {
		return nil, fmt.Errorf("alphabet %q: need at least 2 symbols, got %d", name, len(symbols))
	}
	a := &Alphabet{name: name, symbols: []byte(symbols)}
	for i := range a.index {
		a.index[i] = -1
	}
	for i, s := range a.symbols {
		if a.index[s] >= 0 {
			return nil, fmt.Errorf("alphabet %q: duplicate symbol %q", name, s)
		}
		a.index[s] = int16(i)
	}
	return a, nil
}

func mustNew(name, symbols string) *Alphabet {
	a, err := New(name, symbols)
	if err != nil {
		panic(err)
	}
	return a
}

// Name returns the registry name of the alphabet.
func (a *Alphabet) Name() string { return a.name }

// Radix returns the number of symbols.
func (a *Alphabet) Radix() int { return len(a.symbols) }

// First returns the zero symbol.
func (a *Alphabet) First() byte { return a.symbols[0] }

// Last returns the symbol whose successor carries.
func (a *Alphabet) Last() byte { return a.symbols[len(a.symbols)-1] }

// Contains reports whether b is a symbol of the alphabet.
func (a *Alphabet) Contains(b byte) bool { return a.index[b] >= 0 }

// Index returns the digit value of b, or -1 if b is not a symbol.
func (a *Alphabet) Index(b byte) int { return int(a.index[b]) }

// Symbol returns the symbol with digit value i. It panics if i is out of range.
func (a *Alphabet) Symbol(i int) byte { return a.symbols[i] }

// Symbols returns a copy of the ordered symbol set.
func (a *Alphabet) Symbols() []byte {
	out := make([]byte, len(a.symbols))
	copy(out, a.symbols)
	return out
}

// Next returns the successor of b and whether the step wrapped around to the
// first symbol. b must be a member of the alphabet.
func (a *Alphabet) Next(b byte) (byte, bool) {
	i := int(a.index[b]) + 1
	if i == len(a.symbols) {
		return a.symbols[0], true
	}
	return a.symbols[i], false
}

func (a *Alphabet) String() string { return a.name }

func span(lo, hi byte) string {
	b := make([]byte, 0, int(hi-lo)+1)
	for c := lo; c <= hi; c++ {
		b = append(b, c)
	}
	return string(b)
}

// The six supported variants.
var (
	Digits           = mustNew("digits", span('0', '9'))
	Lower            = mustNew("lower", span('a', 'z'))
	Upper            = mustNew("upper", span('A', 'Z'))
	Mixed            = mustNew("mixed", span('A', 'Z')+span('a', 'z'))
	MixedDigits      = mustNew("mixed-digits", span('0', '9')+span('A', 'Z')+span('a', 'z'))
	MixedDigitsPunct = mustNew("mixed-digits-punct", span('!', '9')+span('A', 'Z')+span('a', 'z'))
)

var registry = map[string]*Alphabet{
	Digits.name:           Digits,
	Lower.name:            Lower,
	Upper.name:            Upper,
	Mixed.name:            Mixed,
	MixedDigits.name:      MixedDigits,
	MixedDigitsPunct.name: MixedDigitsPunct,
}

// Lookup returns the predefined alphabet registered under name.
func Lookup(name string) (*Alphabet, error) {
	a, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknown, name, Names())
	}
	return a, nil
}

// Names lists the predefined alphabets in lexical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
