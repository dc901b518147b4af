// Package s3 provides the "s3" sink, which uploads the collected data as a
// JSON object to a pre-signed URL.
package s3

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

const (
	defaultTimeout     = 60 * time.Second
	defaultContentType = "application/json"
)

// UploadSink PUTs one object per run. The URL carries its own credentials.
type UploadSink struct {
	entity.Base
	uploadURL   string
	contentType string
	client      *resty.Client
}

// New builds an UploadSink. Options: upload_url (required), content_type,
// timeout.
func New(base entity.Base) (entity.Entity, error) {
	uploadURL, err := base.Config.String("upload_url", "")
	if err != nil {
		return nil, err
	}
	if uploadURL == "" {
		return nil, errors.New("s3 sink requires 'upload_url'")
	}
	contentType, err := base.Config.String("content_type", defaultContentType)
	if err != nil {
		return nil, err
	}
	timeout, err := base.Config.Duration("timeout", defaultTimeout)
	if err != nil {
		return nil, err
	}
	return &UploadSink{
		Base:        base,
		uploadURL:   uploadURL,
		contentType: contentType,
		client:      resty.New().SetTimeout(timeout),
	}, nil
}

// Consume implements entity.Sink.
func (s *UploadSink) Consume(ctx context.Context, data *datamap.Map) error {
	logger := ctxlog.FromContext(ctx).With("sink", s.ID, "action", "upload")

	body, err := data.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	logger.Info("Uploading data to S3", "size", len(body), "contentType", s.contentType)

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", s.contentType).
		SetBody(body).
		Put(s.uploadURL)
	if err != nil {
		return fmt.Errorf("failed to execute S3 upload request: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("S3 upload failed with status: %s", resp.Status())
	}

	logger.Info("Successfully uploaded data", "status", resp.Status())
	return nil
}

// Register registers the sink with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSink("s3", New)
}
