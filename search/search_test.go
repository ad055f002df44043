package search

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"example.org/distmagic/alphabet"
	"example.org/distmagic/counter"
	"example.org/distmagic/magic"
	"example.org/distmagic/partition"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var magicDigest = func() (d [magic.DigestSize]byte) {
	b, _ := hex.DecodeString("0e26379374770352024666148968868586665768")
	copy(d[:], b)
	return d
}()

// stubDigest returns a magic digest for the listed messages and a
// non-matching one for everything else.
func stubDigest(targets ...string) DigestFunc {
	set := make(map[string]bool, len(targets))
	for _, t := range targets {
		set[t] = true
	}
	return func(msg []byte) [magic.DigestSize]byte {
		if set[string(msg)] {
			return magicDigest
		}
		return [magic.DigestSize]byte{0xff}
	}
}

func mustConfig(t *testing.T, o Options) *Config {
	t.Helper()
	cfg, err := NewConfig(o)
	require.NoError(t, err)
	return cfg
}

// advanced returns base moved k steps forward within buf[lo:].
func advanced(t *testing.T, a *alphabet.Alphabet, base []byte, lo int, k uint64) string {
	t.Helper()
	c, err := counter.New(a, append([]byte(nil), base...), lo)
	require.NoError(t, err)
	require.NoError(t, c.Advance(k))
	return string(c.Bytes())
}

type stopRecorder struct {
	calls atomic.Int32
	err   error
}

func (s *stopRecorder) RequestGlobalStop(context.Context) error {
	s.calls.Add(1)
	return s.err
}

func TestRun_EndToEndStub(t *testing.T) {
	cfg := mustConfig(t, Options{Alphabet: "mixed-digits-punct", MessageLen: 16, Strategy: "contiguous"})
	base := partition.Base(cfg.Layout())
	require.Equal(t, "!\"#$%&'()*+,-./0", string(base))
	target := advanced(t, alphabet.MixedDigitsPunct, base, 0, 1000)

	s, err := New(cfg, Identity{Rank: 0, Total: 1, Host: "test"}, WithDigest(stubDigest(target)))
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, target, string(res.Message))
	assert.Equal(t, "0e26379374770352024666148968868586665768", res.DigestHex)
	assert.GreaterOrEqual(t, res.ElapsedMillis, int64(0))
	assert.Equal(t, uint64(1001), res.Attempts)
	assert.Equal(t, 0, res.Rank)
	assert.Equal(t, "test", res.Host)
	assert.Equal(t, 1, res.Total)
}

func TestRun_RealSHA1(t *testing.T) {
	// Five increments away from a message with a known magic SHA-1 digest.
	cfg := mustConfig(t, Options{Alphabet: "digits", Prefix: "102345685239091", MessageLen: 16, Strategy: "contiguous"})
	s, err := New(cfg, Identity{Rank: 0, Total: 1})
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1023456852390915", string(res.Message))
	assert.Equal(t, "0e26379374770352024666148968868586665768", res.DigestHex)
	assert.Equal(t, uint64(6), res.Attempts)
}

func TestRun_MessageDigestPredicateIsDeterministic(t *testing.T) {
	msg := []byte("1023456852390915")
	a, b := SHA1(msg), SHA1(msg)
	assert.Equal(t, a, b)
	assert.Equal(t, magic.Match(a[:]), magic.Match(b[:]))
}

func TestRun_StopOnlyWithPeers(t *testing.T) {
	cfg := mustConfig(t, Options{Alphabet: "lower", MessageLen: 6, Strategy: "interleaved"})
	target := advanced(t, alphabet.Lower, partition.Base(cfg.Layout()), 0, 0)

	solo := &stopRecorder{}
	s, err := New(cfg, Identity{Rank: 0, Total: 1}, WithDigest(stubDigest(target)), WithStopper(solo))
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(0), solo.calls.Load())

	peers := &stopRecorder{err: errors.New("transport down")}
	s, err = New(cfg, Identity{Rank: 0, Total: 3}, WithDigest(stubDigest(target)), WithStopper(peers))
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err, "a failed stop broadcast is not fatal")
	assert.True(t, res.Found)
	assert.Equal(t, int32(1), peers.calls.Load())
}

func TestRun_ContinueAfterMatch(t *testing.T) {
	cfg := mustConfig(t, Options{Alphabet: "lower", MessageLen: 8, Strategy: "contiguous", ContinueAfterMatch: true})
	base := partition.Base(cfg.Layout())
	targets := []string{
		advanced(t, alphabet.Lower, base, 0, 10),
		advanced(t, alphabet.Lower, base, 0, 20),
		advanced(t, alphabet.Lower, base, 0, 30),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var mu sync.Mutex
	var got []string
	handler := func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(r.Message))
		if len(got) == len(targets) {
			cancel()
		}
	}
	stopper := &stopRecorder{}
	s, err := New(cfg, Identity{Rank: 0, Total: 2},
		WithDigest(stubDigest(targets...)), WithMatchHandler(handler), WithStopper(stopper))
	require.NoError(t, err)

	res, err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Found)
	assert.Equal(t, targets[2], string(res.Message))
	assert.Equal(t, targets, got)
	assert.Equal(t, int32(0), stopper.calls.Load(), "continuing runs never stop their peers")
}

func TestRun_Exhausted(t *testing.T) {
	cfg := mustConfig(t, Options{Alphabet: "digits", Prefix: "12", MessageLen: 3, Strategy: "contiguous"})
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	s, err := New(cfg, Identity{Rank: 0, Total: 1}, WithDigest(stubDigest()), WithMetrics(m))
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, counter.ErrOverflow)
	assert.False(t, res.Found)
	assert.Equal(t, uint64(10), res.Attempts)

	assert.Equal(t, float64(10), testutil.ToFloat64(m.Attempts))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Exhausted))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Matches))
}

func TestRun_InterleavedVisitsItsStripe(t *testing.T) {
	cfg := mustConfig(t, Options{Alphabet: "digits", Prefix: "7", MessageLen: 4, Strategy: "interleaved"})
	base := partition.Base(cfg.Layout())
	require.Equal(t, "7012", string(base))

	var visited []string
	digest := func(msg []byte) [magic.DigestSize]byte {
		visited = append(visited, string(msg))
		return [magic.DigestSize]byte{0xff}
	}
	s, err := New(cfg, Identity{Rank: 1, Total: 3}, WithDigest(digest))
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.ErrorIs(t, err, ErrExhausted)

	require.NotEmpty(t, visited)
	for i, v := range visited {
		assert.Equal(t, advanced(t, alphabet.Digits, base, 1, uint64(1+3*i)), v)
	}
	// 012 + 1 + 3k <= 999
	assert.Len(t, visited, (999-13)/3+1)
}

func TestRun_Cancelled(t *testing.T) {
	cfg := mustConfig(t, DefaultOptions("mixed-digits-punct"))
	s, err := New(cfg, Identity{Rank: 0, Total: 1}, WithDigest(stubDigest()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Found)
}

func TestNew_RejectsBadIdentity(t *testing.T) {
	cfg := mustConfig(t, DefaultOptions("lower"))
	for _, id := range []Identity{{Rank: 0, Total: 0}, {Rank: 2, Total: 2}, {Rank: -1, Total: 1}} {
		_, err := New(cfg, id)
		assert.ErrorIs(t, err, ErrConfig, "%+v", id)
	}
}

func TestRunLocal_FirstMatchWins(t *testing.T) {
	cfg := mustConfig(t, Options{Alphabet: "upper", MessageLen: 8, Strategy: "interleaved"})
	base := partition.Base(cfg.Layout())
	target := advanced(t, alphabet.Upper, base, 0, 4*500+2) // rank 2's stripe

	res, err := RunLocal(context.Background(), cfg, 4, "local", WithDigest(stubDigest(target)))
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, target, string(res.Message))
	assert.Equal(t, 2, res.Rank)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, "local", res.Host)
}

func TestRunLocal_AllExhausted(t *testing.T) {
	cfg := mustConfig(t, Options{Alphabet: "digits", Prefix: "5", MessageLen: 4, Strategy: "contiguous"})
	_, err := RunLocal(context.Background(), cfg, 3, "local", WithDigest(stubDigest()))
	assert.ErrorIs(t, err, ErrExhausted)

	_, err = RunLocal(context.Background(), cfg, 0, "local")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestRun_ProgressLoggingDoesNotBreakLoop(t *testing.T) {
	cfg := mustConfig(t, Options{Alphabet: "lower", MessageLen: 8, Strategy: "contiguous"})
	target := advanced(t, alphabet.Lower, partition.Base(cfg.Layout()), 0, 3*checkEvery+5)
	s, err := New(cfg, Identity{Rank: 0, Total: 1},
		WithDigest(stubDigest(target)), WithProgressInterval(1))
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, target, string(res.Message))
}
