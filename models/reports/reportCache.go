package reports

import (
	"context"
	"time"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/utils"
	"github.com/sirupsen/logrus"
)

func reportCacheEnabled() bool {
	return config.BoolFromEnv("ENABLE_REPORT_CACHE", false)
}

func reportCacheTTL() time.Duration {
	// Env: REPORT_CACHE_TTL_SECONDS (default 120s)
	return time.Duration(config.IntFromEnv("REPORT_CACHE_TTL_SECONDS", 120)) * time.Second
}

func logSlowReport(ctx context.Context, name string, started time.Time, extra map[string]any) {
	d := time.Since(started)
	if d.Milliseconds() < int64(config.IntFromEnv("REPORT_SLOW_MS", 500)) {
		return
	}
	biz, _ := utils.GetBusinessIdFromContext(ctx)
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	config.GetLogger().WithFields(logrus.Fields{
		"report":         name,
		"ms":             d.Milliseconds(),
		"business_id":    biz,
		"correlation_id": cid,
		"extra":          extra,
	}).Warn("slow_report")
}

func cacheGet[T any](ctx context.Context, key string, dest *T) bool {
	if !reportCacheEnabled() {
		return false
	}
	ok, err := config.GetRedisObject(ctx, key, dest)
	if err != nil {
		config.LogError(config.GetLogger(), "reports", "cacheGet", key, nil, err)
		return false
	}
	return ok
}

func cacheSet(ctx context.Context, key string, obj any) {
	if !reportCacheEnabled() {
		return
	}
	if err := config.SetRedisObject(ctx, key, obj, reportCacheTTL()); err != nil {
		config.LogError(config.GetLogger(), "reports", "cacheSet", key, nil, err)
	}
}
