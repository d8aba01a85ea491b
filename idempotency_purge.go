package main

import (
	"context"
	"time"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/models"
	"github.com/sirupsen/logrus"
)

type idempotencyPurgeConfig struct {
	ttl      time.Duration
	interval time.Duration
}

func getIdempotencyPurgeConfig() idempotencyPurgeConfig {
	cfg := idempotencyPurgeConfig{
		ttl:      48 * time.Hour,
		interval: time.Hour,
	}
	if n := config.IntFromEnv("IDEMPOTENCY_KEY_TTL_HOURS", 0); n > 0 {
		cfg.ttl = time.Duration(n) * time.Hour
	}
	if n := config.IntFromEnv("IDEMPOTENCY_PURGE_INTERVAL_MINUTES", 0); n > 0 {
		cfg.interval = time.Duration(n) * time.Minute
	}
	return cfg
}

// runIdempotencyPurge deletes expired idempotency keys until ctx is done.
func runIdempotencyPurge(ctx context.Context, logger *logrus.Logger, cfg idempotencyPurgeConfig) {
	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if config.GetDB() == nil {
			continue
		}
		purged, err := models.PurgeIdempotencyKeys(ctx, cfg.ttl)
		if err != nil {
			config.LogError(logger, "IdempotencyPurge", "runIdempotencyPurge", cfg.ttl.String(), nil, err)
			continue
		}
		if purged > 0 {
			logger.WithFields(logrus.Fields{
				"field":  "IdempotencyPurge",
				"purged": purged,
			}).Info("removed expired idempotency keys")
		}
	}
}
