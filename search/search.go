// Package search runs the per-worker enumeration loop: digest the current
// candidate, test it for a magic digest, and advance by the worker's step.
package search

import (
	"context"
	"crypto/sha1"
	"fmt"
	"log/slog"
	"time"

	"example.org/distmagic/logging"
	"example.org/distmagic/magic"
	"example.org/distmagic/partition"
	"golang.org/x/time/rate"
)

// checkEvery is how many attempts pass between cancellation checks. Must be
// a power of two.
const checkEvery = 1 << 12

// DigestFunc maps a candidate message to its digest. It must be pure.
type DigestFunc func(msg []byte) [magic.DigestSize]byte

// SHA1 is the production digest.
var SHA1 DigestFunc = sha1.Sum

// Identity is a worker's place in the run, fixed for its lifetime.
type Identity struct {
	Rank  int
	Total int
	Host  string
}

func (id Identity) validate() error {
	if id.Total < 1 || id.Rank < 0 || id.Rank >= id.Total {
		return fmt.Errorf("%w: rank %d of %d workers", ErrConfig, id.Rank, id.Total)
	}
	return nil
}

// Stopper asks every peer to stop. Delivery is best effort.
type Stopper interface {
	RequestGlobalStop(ctx context.Context) error
}

// StopFunc adapts a function to Stopper.
type StopFunc func(ctx context.Context) error

func (f StopFunc) RequestGlobalStop(ctx context.Context) error { return f(ctx) }

// Result reports a match, or the absence of one.
type Result struct {
	Found         bool   `json:"found"`
	Message       []byte `json:"message"`
	DigestHex     string `json:"digestHex"`
	ElapsedMillis int64  `json:"elapsedMillis"`
	Rank          int    `json:"rank"`
	Host          string `json:"host"`
	Total         int    `json:"totalWorkers"`
	Attempts      uint64 `json:"attempts"`
}

func (r Result) String() string {
	if !r.Found {
		return fmt.Sprintf("no match by rank %d (%s) of %d after %d attempts", r.Rank, r.Host, r.Total, r.Attempts)
	}
	return fmt.Sprintf("solution %q found by rank %d (%s) of %d in %d ms, hash: %s",
		r.Message, r.Rank, r.Host, r.Total, r.ElapsedMillis, r.DigestHex)
}

// Option customises a Searcher.
type Option func(*Searcher)

// WithDigest replaces the digest function.
func WithDigest(d DigestFunc) Option { return func(s *Searcher) { s.digest = d } }

// WithStopper sets who is asked to stop the peers after a match.
func WithStopper(st Stopper) Option { return func(s *Searcher) { s.stopper = st } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Searcher) { s.logger = l } }

// WithMetrics sets the counters updated by the loop.
func WithMetrics(m *Metrics) Option { return func(s *Searcher) { s.metrics = m } }

// WithMatchHandler registers a function called with every match before the
// loop decides whether to stop.
func WithMatchHandler(fn func(Result)) Option { return func(s *Searcher) { s.onMatch = fn } }

// WithProgressInterval sets how often progress is logged. Zero disables it.
func WithProgressInterval(d time.Duration) Option { return func(s *Searcher) { s.progressEvery = d } }

// Searcher owns one worker's slice of the candidate space.
type Searcher struct {
	cfg  *Config
	id   Identity
	plan *partition.Plan

	digest        DigestFunc
	stopper       Stopper
	logger        *slog.Logger
	metrics       *Metrics
	onMatch       func(Result)
	progressEvery time.Duration
}

// New plans the slice of id within cfg.
func New(cfg *Config, id Identity, opts ...Option) (*Searcher, error) {
	if err := id.validate(); err != nil {
		return nil, err
	}
	plan, err := partition.New(cfg.Layout(), id.Rank, id.Total)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	s := &Searcher{
		cfg:           cfg,
		id:            id,
		plan:          plan,
		digest:        SHA1,
		logger:        logging.Discard(),
		progressEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Plan returns the worker's starting point.
func (s *Searcher) Plan() *partition.Plan { return s.plan }

// Identity returns the worker identity the searcher was built for.
func (s *Searcher) Identity() Identity { return s.id }

// Run enumerates candidates until a match is found, the slice is exhausted
// or ctx is done.
//
// When the configuration continues after a match, every match goes to the
// match handler and Run only returns on exhaustion or cancellation, with
// the last match found (if any) and the reason.
func (s *Searcher) Run(ctx context.Context) (Result, error) {
	ctr, err := s.plan.Counter()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	buf := ctr.Bytes()
	step := s.plan.Step

	s.logger.Info("search starting",
		"strategy", s.plan.Strategy,
		"base", string(s.plan.Base),
		"initial", string(s.plan.Message),
		"next", string(s.plan.NextMessage()),
		"step", step,
		"rank", s.id.Rank,
		"host", s.id.Host,
		"total", s.id.Total)

	progress := rate.Sometimes{Interval: s.progressEvery}
	start := time.Now()
	var attempts, counted uint64
	last := Result{Rank: s.id.Rank, Host: s.id.Host, Total: s.id.Total}

	for {
		if attempts&(checkEvery-1) == 0 {
			s.metrics.addAttempts(attempts - counted)
			counted = attempts
			if err := ctx.Err(); err != nil {
				last.Attempts = attempts
				return last, err
			}
			if attempts > 0 && s.progressEvery > 0 {
				progress.Do(func() {
					elapsed := time.Since(start)
					s.logger.Info("search progress",
						"rank", s.id.Rank,
						"attempts", attempts,
						"current", string(buf),
						"rate", float64(attempts)/elapsed.Seconds())
				})
			}
		}

		sum := s.digest(buf)
		attempts++

		if magic.Match(sum[:]) {
			s.metrics.addAttempts(attempts - counted)
			counted = attempts
			s.metrics.match()
			res := Result{
				Found:         true,
				Message:       append([]byte(nil), buf...),
				DigestHex:     magic.Hex(sum[:]),
				ElapsedMillis: time.Since(start).Milliseconds(),
				Rank:          s.id.Rank,
				Host:          s.id.Host,
				Total:         s.id.Total,
				Attempts:      attempts,
			}
			s.logger.Info("magic digest found",
				"message", string(res.Message),
				"digest", res.DigestHex,
				"elapsed_ms", res.ElapsedMillis,
				"rank", res.Rank,
				"host", res.Host,
				"total", res.Total)
			if s.onMatch != nil {
				s.onMatch(res)
			}
			if !s.cfg.ContinueAfterMatch {
				s.requestStop(ctx)
				return res, nil
			}
			last = res
		}

		if step == 1 {
			err = ctr.Increment()
		} else {
			err = ctr.Advance(step)
		}
		if err != nil {
			s.metrics.addAttempts(attempts - counted)
			s.metrics.exhausted()
			last.Attempts = attempts
			return last, fmt.Errorf("%w: rank %d after %d attempts: %w", ErrExhausted, s.id.Rank, attempts, err)
		}
	}
}

func (s *Searcher) requestStop(ctx context.Context) {
	if s.id.Total <= 1 || s.stopper == nil {
		return
	}
	if err := s.stopper.RequestGlobalStop(ctx); err != nil {
		s.logger.Warn("global stop request failed", "rank", s.id.Rank, "error", err)
	}
}
