package distmagic

import (
	"errors"
	"fmt"
	"log/slog"
	"net/rpc"
	"sync"
	"time"

	"example.org/distmagic/logging"
	"example.org/distmagic/recorder"
	"example.org/distmagic/search"
	"github.com/google/uuid"
)

type WorkerAddr string

type CoordinatorConfig struct {
	ClientAPIListenAddr string       `json:"ClientAPIListenAddr" yaml:"clientAPIListenAddr" validate:"required"`
	WorkerAPIListenAddr string       `json:"WorkerAPIListenAddr" yaml:"workerAPIListenAddr" validate:"required"`
	Workers             []WorkerAddr `json:"Workers" yaml:"workers" validate:"min=1,dive,required"`
	TracerServerAddr    string       `json:"TracerServerAddr" yaml:"tracerServerAddr"`
	TracerSecret        []byte       `json:"TracerSecret" yaml:"tracerSecret"`
	DialTimeoutSeconds  int          `json:"DialTimeoutSeconds" yaml:"dialTimeoutSeconds" validate:"gte=0"`
	LogLevel            string       `json:"LogLevel" yaml:"logLevel"`
}

// Tracing actions recorded by the coordinator.

type CoordinatorSearch struct {
	SearchID string
	Options  search.Options
}

type CoordinatorWorkerSearch struct {
	SearchID string
	Rank     int
	Total    int
}

type CoordinatorWorkerResult struct {
	SearchID  string
	Rank      int
	Message   []byte
	DigestHex string
}

type CoordinatorWorkerCancel struct {
	SearchID string
	Rank     int
}

type CoordinatorSuccess struct {
	SearchID  string
	Rank      int
	Message   []byte
	DigestHex string
}

// RPC arguments.

type SearchArgs struct {
	Options search.Options
}

type SearchReply struct {
	SearchID string
	Result   search.Result
}

type WorkerSearchArgs struct {
	SearchID    string
	Options     search.Options
	Fingerprint uint64
	Rank        int
	Total       int
}

type WorkerSearchReply struct {
	Result search.Result
}

type ResultArgs struct {
	SearchID    string
	Fingerprint uint64
	Result      search.Result
}

type StopArgs struct {
	SearchID string
	Rank     int
}

type CancelArgs struct {
	SearchID string
	Rank     int
}

// Ack is the empty reply of notification RPCs.
type Ack struct {
	OK bool
}

var (
	ErrUnknownSearch = errors.New("unknown search")
	ErrCancelled     = errors.New("search cancelled")
	ErrNoResult      = errors.New("worker reported a match that never arrived")
)

type activeSearch struct {
	id          string
	fingerprint uint64
	total       int
	results     chan search.Result
	failures    chan error
	cancelled   chan struct{}
	// finished is closed once every worker's Search call has returned.
	finished    chan struct{}
	stopOnce    sync.Once
	cancelOnce  sync.Once
}

// Coordinator hands every worker its rank, waits for the first match and
// relays stop requests. It is registered as the "Coordinator" RPC service.
type Coordinator struct {
	Tracer recorder.Recorder
	Logger *slog.Logger

	config      CoordinatorConfig
	dialTimeout time.Duration

	mu       sync.Mutex
	workers  []*rpc.Client
	searches map[string]*activeSearch
}

func NewCoordinator(config CoordinatorConfig, tracer recorder.Recorder, logger *slog.Logger) *Coordinator {
	if tracer == nil {
		tracer = recorder.Nop{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	timeout := time.Duration(config.DialTimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Coordinator{
		Tracer:      tracer,
		Logger:      logger,
		config:      config,
		dialTimeout: timeout,
		workers:     make([]*rpc.Client, len(config.Workers)),
		searches:    make(map[string]*activeSearch),
	}
}

// connect dials every worker not yet connected, retrying until the dial
// timeout expires. Dialing happens without holding co.mu.
func (co *Coordinator) connect() ([]*rpc.Client, error) {
	deadline := time.Now().Add(co.dialTimeout)
	for {
		co.mu.Lock()
		clients := append([]*rpc.Client(nil), co.workers...)
		co.mu.Unlock()

		connected := 0
		var lastErr error
		for index, worker := range co.config.Workers {
			if clients[index] != nil {
				connected++
				continue
			}
			client, err := rpc.DialHTTP("tcp", string(worker))
			if err != nil {
				lastErr = err
				continue
			}
			co.mu.Lock()
			if co.workers[index] == nil {
				co.workers[index] = client
			} else {
				// another search connected first
				client.Close()
			}
			clients[index] = co.workers[index]
			co.mu.Unlock()
			connected++
		}
		if connected == len(co.config.Workers) {
			return clients, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("connected to %d of %d workers: %w", connected, len(co.config.Workers), lastErr)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// dropWorker forgets a broken connection so the next search redials it.
func (co *Coordinator) dropWorker(rank int, client *rpc.Client) {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.workers[rank] == client {
		client.Close()
		co.workers[rank] = nil
	}
}

func (co *Coordinator) lookup(id string) *activeSearch {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.searches[id]
}

func (co *Coordinator) forget(id string) {
	co.mu.Lock()
	defer co.mu.Unlock()
	delete(co.searches, id)
}

// Search starts a search on every worker and blocks until the first match,
// a client cancel, or the failure of every worker.
func (co *Coordinator) Search(args *SearchArgs, reply *SearchReply) error {
	cfg, err := search.NewConfig(args.Options)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	co.Tracer.RecordAction(CoordinatorSearch{SearchID: id, Options: args.Options})

	workers, err := co.connect()
	if err != nil {
		return err
	}
	total := len(workers)
	s := &activeSearch{
		id:          id,
		fingerprint: cfg.Fingerprint(),
		total:       total,
		results:     make(chan search.Result, total),
		failures:    make(chan error, total),
		cancelled:   make(chan struct{}),
		finished:    make(chan struct{}),
	}
	co.mu.Lock()
	co.searches[id] = s
	co.mu.Unlock()

	co.Logger.Info("search started", "search_id", id, "workers", total, "strategy", cfg.Strategy, "alphabet", cfg.Alphabet.Name())
	var running sync.WaitGroup
	for rank, worker := range workers {
		running.Add(1)
		go func(rank int, worker *rpc.Client) {
			defer running.Done()
			co.runWorker(s, args.Options, rank, worker)
		}(rank, worker)
	}
	// A worker reports its match before its Search call returns, so no
	// result can arrive for the search after this point.
	go func() {
		running.Wait()
		co.forget(id)
		close(s.finished)
	}()

	var errs []error
	for {
		select {
		case res := <-s.results:
			co.succeed(id, res, reply)
			return nil
		case err := <-s.failures:
			errs = append(errs, err)
			if len(errs) == total {
				return errors.Join(errs...)
			}
		case <-s.finished:
			// Every worker has returned, so everything they sent is buffered.
			select {
			case res := <-s.results:
				co.succeed(id, res, reply)
				return nil
			default:
			}
			for len(errs) < total {
				select {
				case err := <-s.failures:
					errs = append(errs, err)
				default:
					errs = append(errs, ErrNoResult)
				}
			}
			return errors.Join(errs...)
		case <-s.cancelled:
			reply.SearchID = id
			return ErrCancelled
		}
	}
}

func (co *Coordinator) succeed(id string, res search.Result, reply *SearchReply) {
	co.Tracer.RecordAction(CoordinatorSuccess{
		SearchID:  id,
		Rank:      res.Rank,
		Message:   res.Message,
		DigestHex: res.DigestHex,
	})
	co.Logger.Info("search succeeded", "search_id", id, "result", res.String())
	reply.SearchID = id
	reply.Result = res
}

func (co *Coordinator) runWorker(s *activeSearch, opts search.Options, rank int, worker *rpc.Client) {
	co.Tracer.RecordAction(CoordinatorWorkerSearch{SearchID: s.id, Rank: rank, Total: s.total})
	args := &WorkerSearchArgs{
		SearchID:    s.id,
		Options:     opts,
		Fingerprint: s.fingerprint,
		Rank:        rank,
		Total:       s.total,
	}
	var reply WorkerSearchReply
	call := worker.Go("Worker.Search", args, &reply, nil)
	<-call.Done
	if call.Error != nil {
		if errors.Is(call.Error, rpc.ErrShutdown) {
			co.dropWorker(rank, worker)
		}
		co.Logger.Warn("worker search failed", "search_id", s.id, "rank", rank, "error", call.Error)
		s.failures <- fmt.Errorf("rank %d: %w", rank, call.Error)
		return
	}
	if !reply.Result.Found {
		s.failures <- fmt.Errorf("rank %d: stopped without a match after %d attempts", rank, reply.Result.Attempts)
	}
}

// Result receives a match from a worker.
func (co *Coordinator) Result(args *ResultArgs, reply *Ack) error {
	s := co.lookup(args.SearchID)
	if s == nil {
		co.Logger.Info("result for finished search", "search_id", args.SearchID, "rank", args.Result.Rank)
		reply.OK = false
		return nil
	}
	if args.Fingerprint != s.fingerprint {
		return fmt.Errorf("rank %d searched with fingerprint %x, want %x", args.Result.Rank, args.Fingerprint, s.fingerprint)
	}
	co.Tracer.RecordAction(CoordinatorWorkerResult{
		SearchID:  args.SearchID,
		Rank:      args.Result.Rank,
		Message:   args.Result.Message,
		DigestHex: args.Result.DigestHex,
	})
	select {
	case s.results <- args.Result:
	default:
		// Only the first result is waited for; later ones are logged.
		co.Logger.Info("additional match", "search_id", s.id, "result", args.Result.String())
	}
	reply.OK = true
	return nil
}

// Stop cancels every worker of the search except the one asking.
func (co *Coordinator) Stop(args *StopArgs, reply *Ack) error {
	s := co.lookup(args.SearchID)
	if s == nil {
		return fmt.Errorf("%w %s", ErrUnknownSearch, args.SearchID)
	}
	s.stopOnce.Do(func() { co.cancelWorkers(s, args.Rank) })
	reply.OK = true
	return nil
}

// Cancel stops a search on behalf of the client.
func (co *Coordinator) Cancel(args *CancelArgs, reply *Ack) error {
	s := co.lookup(args.SearchID)
	if s == nil {
		return fmt.Errorf("%w %s", ErrUnknownSearch, args.SearchID)
	}
	s.stopOnce.Do(func() { co.cancelWorkers(s, -1) })
	co.forget(s.id)
	s.cancelOnce.Do(func() { close(s.cancelled) })
	reply.OK = true
	return nil
}

func (co *Coordinator) cancelWorkers(s *activeSearch, except int) {
	co.mu.Lock()
	workers := append([]*rpc.Client(nil), co.workers...)
	co.mu.Unlock()

	var wg sync.WaitGroup
	for rank, worker := range workers {
		if rank == except || worker == nil {
			continue
		}
		co.Tracer.RecordAction(CoordinatorWorkerCancel{SearchID: s.id, Rank: rank})
		wg.Add(1)
		go func(rank int, worker *rpc.Client) {
			defer wg.Done()
			var ack Ack
			if err := worker.Call("Worker.Cancel", &CancelArgs{SearchID: s.id, Rank: rank}, &ack); err != nil {
				co.Logger.Warn("cancel not delivered", "search_id", s.id, "rank", rank, "error", err)
			}
		}(rank, worker)
	}
	wg.Wait()
}
