// Package socketio provides the "socketio" sink, which emits the collected
// data as a Socket.IO event.
package socketio

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

const (
	defaultEvent   = "flowgrid"
	defaultTimeout = 10 * time.Second
)

// SocketIOSink connects, emits one event and disconnects on every run. When
// ack_event is set it also waits for the server to answer with that event.
type SocketIOSink struct {
	entity.Base
	baseURL            string
	path               string
	namespace          string
	event              string
	ackEvent           string
	timeout            time.Duration
	insecureSkipVerify bool
}

// New builds a SocketIOSink. Options: url (required), namespace, event,
// ack_event, timeout, insecure_skip_verify.
func New(base entity.Base) (entity.Entity, error) {
	rawURL, err := base.Config.String("url", "")
	if err != nil {
		return nil, err
	}
	if rawURL == "" {
		return nil, errors.New("socketio sink requires 'url'")
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("url %q must include a scheme and a host", rawURL)
	}

	s := &SocketIOSink{
		Base:    base,
		baseURL: fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host),
		path:    parsedURL.Path,
	}
	if s.namespace, err = base.Config.String("namespace", "/"); err != nil {
		return nil, err
	}
	if s.event, err = base.Config.String("event", defaultEvent); err != nil {
		return nil, err
	}
	if s.ackEvent, err = base.Config.String("ack_event", ""); err != nil {
		return nil, err
	}
	if s.timeout, err = base.Config.Duration("timeout", defaultTimeout); err != nil {
		return nil, err
	}
	if s.insecureSkipVerify, err = base.Config.Bool("insecure_skip_verify", false); err != nil {
		return nil, err
	}
	return s, nil
}

// Consume implements entity.Sink.
func (s *SocketIOSink) Consume(ctx context.Context, data *datamap.Map) error {
	logger := ctxlog.FromContext(ctx).With("sink", s.ID, "url", s.baseURL, "event", s.event)
	logger.Debug("Handler started")
	defer logger.Debug("Handler finished")

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := socket.DefaultOptions()
	if s.path != "" {
		opts.SetPath(s.path)
	}
	if s.insecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(s.baseURL, opts)
	io := manager.Socket(s.namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Successfully connected", "namespace", s.namespace, "sid", io.Id())
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connection refused")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connected <- err
	})

	acked := make(chan struct{}, 1)
	if s.ackEvent != "" {
		io.Once(types.EventName(s.ackEvent), func(...any) {
			acked <- struct{}{}
		})
	}

	io.Connect()
	select {
	case err := <-connected:
		if err != nil {
			return fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-opCtx.Done():
		return fmt.Errorf("timed out after %v waiting for socket.io connection", s.timeout)
	}

	logger.Info("Emitting event", "keys", data.Len())
	io.Emit(s.event, data.Plain())
	if s.ackEvent == "" {
		return nil
	}

	select {
	case <-acked:
		logger.Info("Received acknowledgement event", "ackEvent", s.ackEvent)
		return nil
	case <-opCtx.Done():
		return fmt.Errorf("timed out after connecting while waiting for event '%s'", s.ackEvent)
	}
}

// Register registers the sink with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSink("socketio", New)
}
