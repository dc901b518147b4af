// Package http_client provides the "http" source, which fetches a JSON
// document over HTTP and emits it under the source id with its key order
// preserved.
package http_client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

const defaultTimeout = 30 * time.Second

// HTTPSource performs one GET request per run.
type HTTPSource struct {
	entity.Base
	url     string
	headers map[string]string
	client  *resty.Client
}

// New builds an HTTPSource. Options: url (required), timeout, headers.
func New(base entity.Base) (entity.Entity, error) {
	url, err := base.Config.String("url", "")
	if err != nil {
		return nil, err
	}
	if url == "" {
		return nil, errors.New("http source requires 'url'")
	}
	timeout, err := base.Config.Duration("timeout", defaultTimeout)
	if err != nil {
		return nil, err
	}
	rawHeaders, err := base.Config.Map("headers")
	if err != nil {
		return nil, err
	}
	headers := make(map[string]string, len(rawHeaders))
	for k, v := range rawHeaders {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("header %q: expected string, got %T", k, v)
		}
		headers[k] = s
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &HTTPSource{Base: base, url: url, headers: headers, client: client}, nil
}

// Produce implements entity.Source.
func (s *HTTPSource) Produce(ctx context.Context) (*datamap.Map, error) {
	logger := ctxlog.FromContext(ctx).With("source", s.ID, "url", s.url)
	logger.Debug("Making HTTP request")

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeaders(s.headers).
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	logger.Debug("Received HTTP response", "status", resp.Status())
	if resp.IsError() {
		return nil, fmt.Errorf("request to %s failed with status %d", s.url, resp.StatusCode())
	}

	body, err := datamap.FromJSON(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	out := datamap.New()
	out.Set(s.ID, body)
	return out, nil
}

// Register registers the source with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSource("http", New)
}
