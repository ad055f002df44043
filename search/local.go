package search

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RunLocal runs total workers in this process, one goroutine per rank, each
// with its own buffer. The global stop cancels the shared context. It
// returns the first match reported.
//
// A worker that exhausts its slice stops alone; its error is returned only
// if nobody found a match.
func RunLocal(ctx context.Context, cfg *Config, total int, host string, opts ...Option) (Result, error) {
	if total < 1 {
		return Result{}, fmt.Errorf("%w: %d local workers", ErrConfig, total)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := StopFunc(func(context.Context) error {
		cancel()
		return nil
	})
	opts = append(opts[:len(opts):len(opts)], WithStopper(stop))

	searchers := make([]*Searcher, total)
	for r := range searchers {
		s, err := New(cfg, Identity{Rank: r, Total: total, Host: host}, opts...)
		if err != nil {
			return Result{}, err
		}
		searchers[r] = s
	}

	var (
		mu    sync.Mutex
		found []Result
		errs  []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range searchers {
		g.Go(func() error {
			res, err := s.Run(gctx)
			mu.Lock()
			defer mu.Unlock()
			if res.Found {
				found = append(found, res)
			}
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(found) > 0 {
		return found[0], nil
	}
	if err := ctx.Err(); err != nil && len(errs) == 0 {
		return Result{Total: total, Host: host}, err
	}
	return Result{Total: total, Host: host}, errors.Join(errs...)
}
