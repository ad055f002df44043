package magic

import (
	"crypto/sha1"
	"encoding/hex"
	"math/rand"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var magicPattern = regexp.MustCompile(`^0{1,7}e[0-9]+$`)

func mustHex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestMatch_KnownDigests(t *testing.T) {
	tests := []struct {
		name string
		hex  string
		want bool
	}{
		{"documented sample", "0e26379374770352024666148968868586665768", true},
		{"sample with zero tail byte", "0e26379374770352024666148968868586665700", true},
		{"one leading zero byte", "000e263793747703520246661489688685866657", true},
		{"odd zero count", "00e6970695351422324349039381794949865825", true},
		{"two leading zero bytes", "00000e3793747703520246661489688685866657", true},
		{"three zero nibbles then e", "000e020953910813163007469412523550522310", true},
		{"byte 0 is 1e", "1e26379374770352024666148968868586665768", false},
		{"byte 0 is e-digit", "e026379374770352024666148968868586665768", false},
		{"hex letter in tail", "0e2637937477035202466614896886858666576a", false},
		{"hex letter in byte 1", "0ea6379374770352024666148968868586665768", false},
		{"high nibble letter late", "0e263793747703520246661489688685866657f8", false},
		{"no e", "0026379374770352024666148968868586665768", false},
		{"all zero", "0000000000000000000000000000000000000000", false},
		{"three zero bytes then 0e", "0000000e11111111111111111111111111111111", true},
		{"three zero bytes then e-digit", "000000e111111111111111111111111111111111", true},
		{"four zero bytes then 0e", "000000000e111111111111111111111111111111", false},
		{"four zero bytes then e-digit", "00000000e1111111111111111111111111111111", false},
		{"e-digit as last byte", "00000000000000000000000000000000000000e1", false},
		{"0e as last byte", "000000000000000000000000000000000000000e", false},
		{"double e", "0ee6379374770352024666148968868586665768", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustHex(t, tt.hex)
			require.Len(t, d, DigestSize)
			assert.Equal(t, tt.want, Match(d))
			assert.Equal(t, magicPattern.MatchString(tt.hex), Match(d), "disagrees with the regexp")
		})
	}
}

func TestMatch_RejectsOnFirstByte(t *testing.T) {
	d := make([]byte, DigestSize)
	for b := 0; b < 256; b++ {
		d[0] = byte(b)
		for i := 1; i < len(d); i++ {
			d[i] = 0x11
		}
		got := Match(d)
		if b == 0x0e {
			assert.True(t, got)
		} else {
			assert.False(t, got, "byte 0 = %#02x", b)
		}
	}
}

// The generator builds digests that pass the leading checks often enough for
// the tail comparison to be exercised.
func randomNearMagic(rng *rand.Rand) []byte {
	d := make([]byte, DigestSize)
	zeros := rng.Intn(6)
	for i := 0; i < zeros; i++ {
		d[i] = 0
	}
	switch rng.Intn(3) {
	case 0:
		d[zeros] = 0x0e
	case 1:
		d[zeros] = 0xe0 | byte(rng.Intn(10))
	default:
		d[zeros] = byte(rng.Intn(256))
	}
	for i := zeros + 1; i < len(d); i++ {
		if rng.Intn(40) == 0 {
			d[i] = byte(rng.Intn(256))
		} else {
			d[i] = byte(rng.Intn(10)<<4 | rng.Intn(10))
		}
	}
	return d
}

func TestMatch_AgreesWithRegexp(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	matched := 0
	for i := 0; i < 50000; i++ {
		var d []byte
		if i%2 == 0 {
			d = randomNearMagic(rng)
		} else {
			d = make([]byte, DigestSize)
			rng.Read(d)
		}
		want := magicPattern.MatchString(Hex(d))
		require.Equal(t, want, Match(d), "digest %s", Hex(d))
		if want {
			matched++
		}
	}
	assert.Greater(t, matched, 0)
}

func TestMatch_Idempotent(t *testing.T) {
	d := mustHex(t, "0e26379374770352024666148968868586665768")
	orig := append([]byte(nil), d...)
	first := Match(d)
	assert.Equal(t, first, Match(d))
	assert.Equal(t, orig, d, "Match must not modify its input")
}

func TestMatch_KnownMessages(t *testing.T) {
	// Messages known to produce magic SHA-1 digests.
	for _, msg := range []string{
		"1023456852390915",
		"MixedCaseERWqTVQ",
		"MixCaseDigJiRR9d",
		"UPPERCASFFLIIQWR",
		"Punctuati0t..jsI",
	} {
		sum := sha1.Sum([]byte(msg))
		assert.True(t, Match(sum[:]), "%s -> %s", msg, Hex(sum[:]))
		assert.Equal(t, Match(sum[:]), Match(sum[:]))
	}
}

func TestDigitBytes(t *testing.T) {
	assert.True(t, IsDigitByte(0x00))
	assert.True(t, IsDigitByte(0x99))
	assert.False(t, IsDigitByte(0x9a))
	assert.False(t, IsDigitByte(0xa9))

	assert.True(t, IsEDigitByte(0xe0))
	assert.True(t, IsEDigitByte(0xe9))
	assert.False(t, IsEDigitByte(0xea))
	assert.False(t, IsEDigitByte(0x0e))
}

func BenchmarkMatch(b *testing.B) {
	rng := rand.New(rand.NewSource(3))
	digests := make([][]byte, 1024)
	for i := range digests {
		digests[i] = make([]byte, DigestSize)
		rng.Read(digests[i])
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Match(digests[i&1023])
	}
}
