package distmagic

import (
	"errors"
	"log/slog"

	"example.org/distmagic/logging"
	"example.org/distmagic/magiclib"
	"example.org/distmagic/recorder"
	"example.org/distmagic/search"
	"github.com/DistributedClocks/tracing"
)

const ChCapacity = 10

type ClientConfig struct {
	ClientID         string `json:"ClientID" yaml:"clientID" validate:"required"`
	CoordAddr        string `json:"CoordAddr" yaml:"coordAddr" validate:"required"`
	TracerServerAddr string `json:"TracerServerAddr" yaml:"tracerServerAddr"`
	TracerSecret     []byte `json:"TracerSecret" yaml:"tracerSecret"`
	LogLevel         string `json:"LogLevel" yaml:"logLevel"`
}

type Client struct {
	NotifyChannel magiclib.NotifyChannel
	id            string
	coordAddr     string
	lib           *magiclib.MagicLib
	tracer        recorder.Tracer
	logger        *slog.Logger
	initialized   bool
	tracerConfig  tracing.TracerConfig
}

func NewClient(config ClientConfig, lib *magiclib.MagicLib, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		id:        config.ClientID,
		coordAddr: config.CoordAddr,
		lib:       lib,
		logger:    logger,
		tracerConfig: tracing.TracerConfig{
			ServerAddress:  config.TracerServerAddr,
			TracerIdentity: config.ClientID,
			Secret:         config.TracerSecret,
		},
	}
}

// UseTracer replaces the tracer Initialize would otherwise create.
func (c *Client) UseTracer(t recorder.Tracer) {
	c.tracer = t
}

func (c *Client) Initialize() error {
	if c.initialized {
		return errors.New("client has been initialized before")
	}
	ch, err := c.lib.Initialize(c.coordAddr, ChCapacity)
	if err != nil {
		return err
	}
	if c.tracer == nil {
		c.tracer = recorder.New(c.tracerConfig, c.logger)
	}
	c.NotifyChannel = ch
	c.initialized = true
	return nil
}

func (c *Client) Search(opts search.Options) error {
	if !c.initialized {
		return errors.New("client is not initialized")
	}
	return c.lib.Search(c.tracer, opts)
}

func (c *Client) Cancel(searchID string) error {
	if !c.initialized {
		return errors.New("client is not initialized")
	}
	return c.lib.Cancel(c.tracer, searchID)
}

func (c *Client) Close() error {
	if !c.initialized {
		return errors.New("client is not initialized")
	}
	if err := c.lib.Close(); err != nil {
		return err
	}
	if err := c.tracer.Close(); err != nil {
		return err
	}
	c.initialized = false
	return nil
}
