package counter

import (
	"errors"
	"math/rand"
	"testing"

	"example.org/distmagic/alphabet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCounter(t *testing.T, a *alphabet.Alphabet, s string, lo int) *Counter {
	t.Helper()
	c, err := New(a, []byte(s), lo)
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(alphabet.Lower, []byte("abc"), 3)
	assert.Error(t, err)

	_, err = New(alphabet.Lower, []byte("abc"), -1)
	assert.Error(t, err)

	_, err = New(alphabet.Lower, []byte("aB"), 0)
	assert.Error(t, err)

	// Bytes before lo are not checked.
	_, err = New(alphabet.Lower, []byte("XYab"), 2)
	assert.NoError(t, err)
}

func TestIncrement_Carry(t *testing.T) {
	tests := []struct {
		name string
		a    *alphabet.Alphabet
		in   string
		lo   int
		want string
	}{
		{"lower single z", alphabet.Lower, "az", 0, "ba"},
		{"lower no carry", alphabet.Lower, "aa", 0, "ab"},
		{"lower double carry", alphabet.Lower, "azz", 0, "baa"},
		{"digits", alphabet.Digits, "099", 0, "100"},
		{"punct z", alphabet.MixedDigitsPunct, "!z", 0, "\"!"},
		{"punct 9", alphabet.MixedDigitsPunct, "!9", 0, "!A"},
		{"mixed-digits z", alphabet.MixedDigits, "0z", 0, "10"},
		{"prefix untouched", alphabet.Lower, "PREaz", 3, "PREba"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCounter(t, tt.a, tt.in, tt.lo)
			require.NoError(t, c.Increment())
			assert.Equal(t, tt.want, string(c.Bytes()))
		})
	}
}

func TestIncrement_Overflow(t *testing.T) {
	c := newCounter(t, alphabet.Lower, "PRzz", 2)
	err := c.Increment()
	assert.True(t, errors.Is(err, ErrOverflow))
	assert.True(t, c.Exhausted())
	assert.Equal(t, "PR", string(c.Bytes()[:2]), "fixed prefix must not change")

	// Stays exhausted.
	assert.ErrorIs(t, c.Increment(), ErrOverflow)
	assert.ErrorIs(t, c.Advance(1), ErrOverflow)
}

func TestAdvance_Overflow(t *testing.T) {
	c := newCounter(t, alphabet.Digits, "xx98", 2)
	require.NoError(t, c.Advance(1))
	assert.Equal(t, "xx99", string(c.Bytes()))
	assert.ErrorIs(t, c.Advance(1), ErrOverflow)
	assert.Equal(t, "xx", string(c.Bytes()[:2]))

	c = newCounter(t, alphabet.Digits, "00", 0)
	require.NoError(t, c.Advance(99))
	assert.Equal(t, "99", string(c.Bytes()))

	c = newCounter(t, alphabet.Digits, "00", 0)
	assert.ErrorIs(t, c.Advance(100), ErrOverflow)
}

func TestAdvance_MatchesRepeatedIncrement(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, name := range alphabet.Names() {
		a, err := alphabet.Lookup(name)
		require.NoError(t, err)

		t.Run(name, func(t *testing.T) {
			for trial := 0; trial < 20; trial++ {
				start := make([]byte, 6)
				for i := range start {
					start[i] = a.Symbol(rng.Intn(a.Radix() / 2))
				}
				k := uint64(rng.Intn(5000))

				stepped := newCounter(t, a, string(start), 0)
				for i := uint64(0); i < k; i++ {
					require.NoError(t, stepped.Increment())
				}
				jumped := newCounter(t, a, string(start), 0)
				require.NoError(t, jumped.Advance(k))

				assert.Equal(t, string(stepped.Bytes()), string(jumped.Bytes()), "k=%d", k)
			}
		})
	}
}

func TestIncrement_Associative(t *testing.T) {
	const k = 500
	for split := 0; split <= k; split += 125 {
		a := newCounter(t, alphabet.MixedDigitsPunct, "MixC!0!!!", 6)
		for i := 0; i < split; i++ {
			require.NoError(t, a.Increment())
		}
		for i := split; i < k; i++ {
			require.NoError(t, a.Increment())
		}

		b := newCounter(t, alphabet.MixedDigitsPunct, "MixC!0!!!", 6)
		require.NoError(t, b.Advance(uint64(split)))
		require.NoError(t, b.Advance(uint64(k-split)))

		assert.Equal(t, string(a.Bytes()), string(b.Bytes()))
	}
}

func TestAdvance_Zero(t *testing.T) {
	c := newCounter(t, alphabet.Upper, "ABC", 0)
	require.NoError(t, c.Advance(0))
	assert.Equal(t, "ABC", string(c.Bytes()))
}

func BenchmarkIncrement(b *testing.B) {
	c, err := New(alphabet.MixedDigitsPunct, []byte("MixC!0!\"#$%&'()*"), 6)
	require.NoError(b, err)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.Increment(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAdvance64(b *testing.B) {
	c, err := New(alphabet.MixedDigitsPunct, []byte("MixC!0!\"#$%&'()*"), 6)
	require.NoError(b, err)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.Advance(64); err != nil {
			b.Fatal(err)
		}
	}
}
