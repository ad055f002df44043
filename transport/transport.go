// Package transport supplies a worker's identity and relays the request to
// stop every peer once a match is found.
package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"example.org/distmagic/search"
)

var (
	// ErrNoIdentity is returned when the environment does not describe the
	// worker's place in the run.
	ErrNoIdentity = errors.New("transport: worker identity unavailable")
	// ErrStopUnsupported is returned by providers that cannot reach peers.
	ErrStopUnsupported = errors.New("transport: global stop not supported")
)

// Provider is the runtime a worker is launched by.
type Provider interface {
	Identity(ctx context.Context) (search.Identity, error)
	search.Stopper
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}

// Local is a single worker with no peers.
type Local struct {
	Host string
}

func (l Local) Identity(context.Context) (search.Identity, error) {
	host := l.Host
	if host == "" {
		host = hostname()
	}
	return search.Identity{Rank: 0, Total: 1, Host: host}, nil
}

// RequestGlobalStop has nobody to notify.
func (Local) RequestGlobalStop(context.Context) error { return nil }

// envPair names the rank and size variables exported by a process launcher.
type envPair struct {
	launcher   string
	rank, size string
}

var envPairs = []envPair{
	{"open-mpi", "OMPI_COMM_WORLD_RANK", "OMPI_COMM_WORLD_SIZE"},
	{"pmi", "PMI_RANK", "PMI_SIZE"},
	{"slurm", "SLURM_PROCID", "SLURM_NTASKS"},
}

// Env reads the identity a parallel launcher (mpirun, srun, hydra) exports to
// each process. Launchers give no way to signal peers from the environment,
// so RequestGlobalStop returns ErrStopUnsupported; the caller exiting is what
// ends the job under most launchers.
type Env struct {
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// Host overrides the host label.
	Host string
}

func (e Env) getenv(k string) string {
	if e.Getenv != nil {
		return e.Getenv(k)
	}
	return os.Getenv(k)
}

func (e Env) Identity(context.Context) (search.Identity, error) {
	for _, p := range envPairs {
		rs, ss := e.getenv(p.rank), e.getenv(p.size)
		if rs == "" && ss == "" {
			continue
		}
		rank, err := strconv.Atoi(rs)
		if err != nil {
			return search.Identity{}, fmt.Errorf("%w: %s=%q: %v", ErrNoIdentity, p.rank, rs, err)
		}
		size, err := strconv.Atoi(ss)
		if err != nil {
			return search.Identity{}, fmt.Errorf("%w: %s=%q: %v", ErrNoIdentity, p.size, ss, err)
		}
		if size < 1 || rank < 0 || rank >= size {
			return search.Identity{}, fmt.Errorf("%w: %s rank %d of %d", ErrNoIdentity, p.launcher, rank, size)
		}
		host := e.Host
		if host == "" {
			host = hostname()
		}
		return search.Identity{Rank: rank, Total: size, Host: host}, nil
	}
	return search.Identity{}, fmt.Errorf("%w: none of the launcher variables are set", ErrNoIdentity)
}

func (Env) RequestGlobalStop(context.Context) error { return ErrStopUnsupported }
