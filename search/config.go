package search

import (
	"errors"
	"fmt"
	"strconv"

	"example.org/distmagic/alphabet"
	"example.org/distmagic/partition"
	"github.com/go-playground/validator/v10"
	"github.com/zeebo/xxh3"
)

// MaxMessageLen is the capacity of the candidate buffer.
const MaxMessageLen = 64

var (
	// ErrConfig is wrapped by every configuration error.
	ErrConfig = errors.New("invalid search configuration")
	// ErrExhausted means a worker ran out of candidates in its slice.
	ErrExhausted = errors.New("search space exhausted for this worker")
)

var validate = validator.New()

// Options is the serialisable form of a run configuration, as found in
// config files and RPC arguments.
type Options struct {
	Alphabet           string `json:"alphabet" yaml:"alphabet" validate:"required,oneof=digits lower upper mixed mixed-digits mixed-digits-punct"`
	Prefix             string `json:"prefix" yaml:"prefix"`
	MessageLen         int    `json:"messageLen" yaml:"messageLen" validate:"min=1,max=64"`
	Strategy           string `json:"strategy" yaml:"strategy" validate:"required,oneof=contiguous interleaved quick-sequential sequential stepover"`
	ContinueAfterMatch bool   `json:"continueAfterMatch" yaml:"continueAfterMatch"`
}

var defaultPrefixes = map[string]string{
	"digits":             "1",
	"lower":              "lowercase",
	"upper":              "UPPERCASE",
	"mixed":              "MixedCase",
	"mixed-digits":       "MixCaseDig0",
	"mixed-digits-punct": "MixC!0",
}

// DefaultPrefix returns the literal prefix traditionally used with the named
// alphabet.
func DefaultPrefix(alphabetName string) string {
	return defaultPrefixes[alphabetName]
}

// DefaultOptions returns 16 byte messages over the named alphabet with its
// default prefix, partitioned contiguously, stopping on the first match.
func DefaultOptions(alphabetName string) Options {
	return Options{
		Alphabet:   alphabetName,
		Prefix:     DefaultPrefix(alphabetName),
		MessageLen: 16,
		Strategy:   partition.Contiguous.String(),
	}
}

// Config is the immutable configuration of a run. Build it once with
// NewConfig and share it by pointer.
type Config struct {
	Alphabet           *alphabet.Alphabet
	Prefix             []byte
	Length             int
	Strategy           partition.Strategy
	ContinueAfterMatch bool
}

// NewConfig validates o and compiles it.
func NewConfig(o Options) (*Config, error) {
	if err := validate.Struct(o); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	a, err := alphabet.Lookup(o.Alphabet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	s, err := partition.ParseStrategy(o.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if len(o.Prefix) >= o.MessageLen {
		return nil, fmt.Errorf("%w: prefix %q is %d bytes, message length is %d", ErrConfig, o.Prefix, len(o.Prefix), o.MessageLen)
	}
	return &Config{
		Alphabet:           a,
		Prefix:             []byte(o.Prefix),
		Length:             o.MessageLen,
		Strategy:           s,
		ContinueAfterMatch: o.ContinueAfterMatch,
	}, nil
}

// Options converts c back to its serialisable form.
func (c *Config) Options() Options {
	return Options{
		Alphabet:           c.Alphabet.Name(),
		Prefix:             string(c.Prefix),
		MessageLen:         c.Length,
		Strategy:           c.Strategy.String(),
		ContinueAfterMatch: c.ContinueAfterMatch,
	}
}

// Layout returns the planner's view of c.
func (c *Config) Layout() partition.Layout {
	return partition.Layout{
		Alphabet: c.Alphabet,
		Prefix:   c.Prefix,
		Length:   c.Length,
		Strategy: c.Strategy,
	}
}

// Fingerprint identifies the candidate space c describes. Two processes
// with equal fingerprints enumerate the same messages for the same rank.
func (c *Config) Fingerprint() uint64 {
	b := make([]byte, 0, 64+len(c.Prefix))
	b = append(b, c.Alphabet.Name()...)
	b = append(b, 0)
	b = strconv.AppendInt(b, int64(c.Length), 10)
	b = append(b, 0)
	b = append(b, c.Strategy.String()...)
	b = append(b, 0)
	b = append(b, c.Prefix...)
	return xxh3.Hash(b)
}
