package distmagic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/rpc"
	"sync"
	"time"

	"example.org/distmagic/logging"
	"example.org/distmagic/recorder"
	"example.org/distmagic/search"
)

type WorkerConfig struct {
	WorkerID         string `json:"WorkerID" yaml:"workerID" validate:"required"`
	ListenAddr       string `json:"ListenAddr" yaml:"listenAddr" validate:"required"`
	CoordAddr        string `json:"CoordAddr" yaml:"coordAddr" validate:"required"`
	TracerServerAddr string `json:"TracerServerAddr" yaml:"tracerServerAddr"`
	TracerSecret     []byte `json:"TracerSecret" yaml:"tracerSecret"`
	LogLevel         string `json:"LogLevel" yaml:"logLevel"`
}

// Tracing actions recorded by a worker.

type WorkerSearch struct {
	SearchID string
	Rank     int
	Total    int
}

type WorkerResult struct {
	SearchID  string
	Rank      int
	Message   []byte
	DigestHex string
}

type WorkerCancel struct {
	SearchID string
	Rank     int
}

const (
	// pendingCancelTTL bounds how long a cancel waits for its search to
	// arrive.
	pendingCancelTTL = time.Minute
	// finishedHistory is how many finished search IDs are remembered so
	// that late cancels for them are ignored.
	finishedHistory = 1024
)

// Worker runs the searches the coordinator assigns to it. It is registered
// as the "Worker" RPC service.
type Worker struct {
	Tracer  recorder.Recorder
	Logger  *slog.Logger
	Metrics *search.Metrics
	Digest  search.DigestFunc

	id        string
	coordAddr string

	mu            sync.Mutex
	coord         *rpc.Client
	running       map[string]context.CancelFunc
	cancelled     map[string]time.Time
	finished      map[string]bool
	finishedOrder []string
	now           func() time.Time
}

func NewWorker(config WorkerConfig, tracer recorder.Recorder, logger *slog.Logger, metrics *search.Metrics) *Worker {
	if tracer == nil {
		tracer = recorder.Nop{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Worker{
		Tracer:    tracer,
		Logger:    logger.With("worker_id", config.WorkerID),
		Metrics:   metrics,
		Digest:    search.SHA1,
		id:        config.WorkerID,
		coordAddr: config.CoordAddr,
		running:   make(map[string]context.CancelFunc),
		cancelled: make(map[string]time.Time),
		finished:  make(map[string]bool),
		now:       time.Now,
	}
}

func (w *Worker) coordinator() (*rpc.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.coord != nil {
		return w.coord, nil
	}
	client, err := rpc.DialHTTP("tcp", w.coordAddr)
	if err != nil {
		return nil, fmt.Errorf("dialing coordinator %s: %w", w.coordAddr, err)
	}
	w.coord = client
	return client, nil
}

// callCoordinator calls the coordinator, redialing once if the cached
// connection was shut down.
func (w *Worker) callCoordinator(ctx context.Context, method string, args interface{}, reply interface{}) error {
	for attempt := 0; ; attempt++ {
		client, err := w.coordinator()
		if err != nil {
			return err
		}
		call := client.Go(method, args, reply, nil)
		select {
		case <-call.Done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if errors.Is(call.Error, rpc.ErrShutdown) && attempt == 0 {
			w.mu.Lock()
			if w.coord == client {
				w.coord = nil
			}
			w.mu.Unlock()
			continue
		}
		return call.Error
	}
}

// start registers a cancellable search, or reports false when the search
// was cancelled before it arrived.
func (w *Worker) start(id string) (context.Context, context.CancelFunc, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prunePendingLocked()
	ctx, cancel := context.WithCancel(context.Background())
	if _, ok := w.cancelled[id]; ok {
		delete(w.cancelled, id)
		w.finishLocked(id)
		cancel()
		return ctx, cancel, false
	}
	w.running[id] = cancel
	return ctx, cancel, true
}

func (w *Worker) done(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.running, id)
	w.finishLocked(id)
}

// finishLocked remembers id as finished, forgetting the oldest IDs beyond
// finishedHistory.
func (w *Worker) finishLocked(id string) {
	if w.finished[id] {
		return
	}
	w.finished[id] = true
	w.finishedOrder = append(w.finishedOrder, id)
	if len(w.finishedOrder) > finishedHistory {
		delete(w.finished, w.finishedOrder[0])
		w.finishedOrder = w.finishedOrder[1:]
	}
}

// prunePendingLocked drops cancels whose search never arrived.
func (w *Worker) prunePendingLocked() {
	now := w.now()
	for id, at := range w.cancelled {
		if now.Sub(at) > pendingCancelTTL {
			delete(w.cancelled, id)
		}
	}
}

func (w *Worker) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.cancelled)
}

func (w *Worker) active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.running)
}

// Search scans the share of the message space given by args.Rank and
// args.Total. It returns when a match is found, the share is exhausted, or
// the search is cancelled.
func (w *Worker) Search(args *WorkerSearchArgs, reply *WorkerSearchReply) error {
	w.Tracer.RecordAction(WorkerSearch{SearchID: args.SearchID, Rank: args.Rank, Total: args.Total})

	cfg, err := search.NewConfig(args.Options)
	if err != nil {
		return err
	}
	if fp := cfg.Fingerprint(); fp != args.Fingerprint {
		return fmt.Errorf("fingerprint %x does not match coordinator's %x", fp, args.Fingerprint)
	}

	ctx, cancel, ok := w.start(args.SearchID)
	defer cancel()
	if !ok {
		reply.Result = search.Result{Rank: args.Rank, Total: args.Total, Host: w.id}
		return nil
	}
	defer w.done(args.SearchID)

	logger := w.Logger.With("search_id", args.SearchID)
	stop := search.StopFunc(func(ctx context.Context) error {
		var ack Ack
		return w.callCoordinator(ctx, "Coordinator.Stop", &StopArgs{SearchID: args.SearchID, Rank: args.Rank}, &ack)
	})
	searcher, err := search.New(cfg,
		search.Identity{Rank: args.Rank, Total: args.Total, Host: w.id},
		search.WithDigest(w.Digest),
		search.WithLogger(logger),
		search.WithMetrics(w.Metrics),
		search.WithStopper(stop),
		search.WithMatchHandler(func(res search.Result) { w.report(ctx, args, cfg.Fingerprint(), res) }),
	)
	if err != nil {
		return err
	}

	res, err := searcher.Run(ctx)
	reply.Result = res
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (w *Worker) report(ctx context.Context, args *WorkerSearchArgs, fingerprint uint64, res search.Result) {
	w.Tracer.RecordAction(WorkerResult{
		SearchID:  args.SearchID,
		Rank:      args.Rank,
		Message:   res.Message,
		DigestHex: res.DigestHex,
	})
	var ack Ack
	err := w.callCoordinator(ctx, "Coordinator.Result", &ResultArgs{
		SearchID:    args.SearchID,
		Fingerprint: fingerprint,
		Result:      res,
	}, &ack)
	if err != nil {
		w.Logger.Error("result not delivered", "search_id", args.SearchID, "error", err)
	}
}

// Cancel stops the worker's part of a search. Cancelling a search that has
// not started yet keeps it from starting, if it arrives within
// pendingCancelTTL. Cancels for finished searches are ignored.
func (w *Worker) Cancel(args *CancelArgs, reply *Ack) error {
	w.Tracer.RecordAction(WorkerCancel{SearchID: args.SearchID, Rank: args.Rank})
	w.mu.Lock()
	defer w.mu.Unlock()
	if cancel, ok := w.running[args.SearchID]; ok {
		cancel()
		reply.OK = true
		return nil
	}
	if w.finished[args.SearchID] {
		return nil
	}
	w.prunePendingLocked()
	w.cancelled[args.SearchID] = w.now()
	return nil
}
