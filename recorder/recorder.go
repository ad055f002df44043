// Package recorder abstracts the distributed action tracer so that search
// components can record actions without a tracing server.
package recorder

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/DistributedClocks/tracing"
)

// Recorder records a tracing action. *tracing.Tracer implements it.
type Recorder interface {
	RecordAction(action interface{})
}

// Tracer is a Recorder that holds a connection to release.
type Tracer interface {
	Recorder
	Close() error
}

// New connects to the tracing server named in config. With no server address
// it falls back to logging actions at debug level.
func New(config tracing.TracerConfig, logger *slog.Logger) Tracer {
	if config.ServerAddress == "" {
		return Log{Logger: logger, Identity: config.TracerIdentity}
	}
	return tracing.NewTracer(config)
}

// Nop discards every action.
type Nop struct{}

func (Nop) RecordAction(interface{}) {}
func (Nop) Close() error             { return nil }

// Log writes actions to a structured logger.
type Log struct {
	Logger   *slog.Logger
	Identity string
}

func (l Log) RecordAction(action interface{}) {
	if l.Logger == nil {
		return
	}
	l.Logger.Debug("trace action",
		"tracer", l.Identity,
		"type", fmt.Sprintf("%T", action),
		"action", fmt.Sprintf("%+v", action))
}

func (Log) Close() error { return nil }

// Memory keeps actions in order. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	actions []interface{}
}

func (m *Memory) RecordAction(action interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
}

func (m *Memory) Close() error { return nil }

// Actions returns a snapshot of the recorded actions.
func (m *Memory) Actions() []interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]interface{}(nil), m.actions...)
}
