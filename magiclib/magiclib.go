// Package magiclib wraps the RPCs a client makes to the coordinator.
package magiclib

import (
	"errors"
	"fmt"
	"net/rpc"
	"sync"

	"example.org/distmagic/recorder"
	"example.org/distmagic/search"
)

// The RPC types mirror those of the coordinator; they are declared here so
// that the library does not import the server package.

type searchArgs struct {
	Options search.Options
}

type searchReply struct {
	SearchID string
	Result   search.Result
}

type cancelArgs struct {
	SearchID string
	Rank     int
}

type ack struct {
	OK bool
}

type MagicSearchBegin struct {
	Options search.Options
}

type MagicSearch struct {
	Options search.Options
}

type MagicSuccess struct {
	SearchID  string
	Message   []byte
	DigestHex string
}

type MagicSearchComplete struct {
	SearchID string
	Found    bool
	Message  []byte
	Err      string
}

type MagicCancel struct {
	SearchID string
}

// SearchResult is delivered on the notify channel for every search
// request, whether it found a match or failed.
type SearchResult struct {
	SearchID string
	Options  search.Options
	Result   search.Result
	Err      error
}

// NotifyChannel is used for notifying the client about search results.
type NotifyChannel chan SearchResult

var ErrClosed = errors.New("magiclib: closed")

// MagicLib represents a connection to the coordinator.
type MagicLib struct {
	Notifications NotifyChannel
	coordAddr     string
	connection    *rpc.Client

	mu      sync.Mutex
	pending sync.WaitGroup
	closed  chan struct{}
}

func NewMagicLib() *MagicLib {
	return &MagicLib{closed: make(chan struct{})}
}

// Initialize connects to the coordinator at coordAddr. Results are
// delivered on the returned channel, which has capacity chCapacity.
func (d *MagicLib) Initialize(coordAddr string, chCapacity uint) (NotifyChannel, error) {
	connection, err := rpc.DialHTTP("tcp", coordAddr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", coordAddr, err)
	}
	d.Notifications = make(NotifyChannel, chCapacity)
	d.coordAddr = coordAddr
	d.connection = connection
	return d.Notifications, nil
}

// Search asks the coordinator to find a message with a magic digest. It
// returns once the request is validated and sent; the outcome arrives on
// the notify channel.
func (d *MagicLib) Search(tracer recorder.Recorder, opts search.Options) error {
	if _, err := search.NewConfig(opts); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.closed:
		return ErrClosed
	default:
	}
	if d.connection == nil {
		return errors.New("magiclib: not initialized")
	}

	tracer.RecordAction(MagicSearchBegin{Options: opts})
	d.pending.Add(1)
	go d.search(tracer, opts)
	return nil
}

func (d *MagicLib) search(tracer recorder.Recorder, opts search.Options) {
	defer d.pending.Done()
	tracer.RecordAction(MagicSearch{Options: opts})

	var reply searchReply
	err := d.connection.Call("Coordinator.Search", &searchArgs{Options: opts}, &reply)
	if err == nil {
		tracer.RecordAction(MagicSuccess{
			SearchID:  reply.SearchID,
			Message:   reply.Result.Message,
			DigestHex: reply.Result.DigestHex,
		})
	}
	complete := MagicSearchComplete{SearchID: reply.SearchID, Found: reply.Result.Found, Message: reply.Result.Message}
	if err != nil {
		complete.Err = err.Error()
	}
	tracer.RecordAction(complete)

	select {
	case d.Notifications <- SearchResult{SearchID: reply.SearchID, Options: opts, Result: reply.Result, Err: err}:
	case <-d.closed:
	}
}

// Cancel stops a search started with Search. The search identifier is
// only known once the coordinator replies, so Cancel is mostly useful for
// searches that continue after a match.
func (d *MagicLib) Cancel(tracer recorder.Recorder, searchID string) error {
	if d.connection == nil {
		return errors.New("magiclib: not initialized")
	}
	tracer.RecordAction(MagicCancel{SearchID: searchID})
	var reply ack
	return d.connection.Call("Coordinator.Cancel", &cancelArgs{SearchID: searchID}, &reply)
}

// Close stops the library from talking to the coordinator and from
// delivering results, then closes the notify channel.
func (d *MagicLib) Close() error {
	d.mu.Lock()
	select {
	case <-d.closed:
		d.mu.Unlock()
		return ErrClosed
	default:
	}
	close(d.closed)
	d.mu.Unlock()

	var err error
	if d.connection != nil {
		if cerr := d.connection.Close(); cerr != nil {
			err = fmt.Errorf("magiclib close: %w", cerr)
		}
	}
	d.pending.Wait()
	if d.Notifications != nil {
		close(d.Notifications)
	}
	return err
}
