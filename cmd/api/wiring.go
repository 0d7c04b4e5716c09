package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/booknova-api/pkg/config"
	"github.com/noah-isme/booknova-api/pkg/events"
	"github.com/noah-isme/booknova-api/pkg/storage"
)

// newPublisher connects to RabbitMQ when enabled and otherwise logs events.
func newPublisher(ctx context.Context, cfg *config.Config, logr *zap.Logger) (events.Publisher, error) {
	if !cfg.AMQP.Enabled {
		return events.NewLogPublisher(logr.Named("events")), nil
	}
	publisher, err := events.NewAMQPPublisher(ctx, cfg.AMQP, logr.Named("amqp"))
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	return publisher, nil
}

func newExportStore(ctx context.Context, cfg config.ExportsConfig) (storage.Store, error) {
	switch cfg.Storage {
	case config.StorageS3:
		client, err := storage.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return storage.NewS3Storage(client, cfg.S3.Bucket, cfg.S3.Prefix), nil
	case config.StorageLocal, "":
		return storage.NewLocalStorage(cfg.StorageDir)
	default:
		return nil, fmt.Errorf("unsupported export storage %q", cfg.Storage)
	}
}
