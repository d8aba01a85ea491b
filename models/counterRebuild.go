package models

import (
	"context"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/sirupsen/logrus"
)

type counterHighWater struct {
	BusinessId string
	Prefix     string
	DateKey    string
	MaxSeq     int
}

// RebuildCounters raises every counter to the highest sequence stored on a document,
// cancelled ones included. An empty businessId rebuilds all businesses.
func RebuildCounters(ctx context.Context, store *GormCounterStore, businessId string) (int, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&Invoice{}).
		Select("business_id, prefix, date_key, MAX(sequence_no) AS max_seq").
		Group("business_id, prefix, date_key")
	if businessId != "" {
		q = q.Where("business_id = ?", businessId)
	}
	var rows []counterHighWater
	if err := q.Scan(&rows).Error; err != nil {
		return 0, err
	}

	// with a shared namespace several prefixes land on one row; Raise keeps the max
	for _, r := range rows {
		if err := store.Raise(ctx, r.BusinessId, r.Prefix, r.DateKey, r.MaxSeq); err != nil {
			return 0, err
		}
	}
	config.GetLogger().WithFields(logrus.Fields{
		"module":      "InvoiceNumberCounter",
		"funcName":    "RebuildCounters",
		"business_id": businessId,
		"rows":        len(rows),
	}).Info("counters rebuilt")
	return len(rows), nil
}

// ImportLegacyCounters copies the old date-keyed counter blob of a business into the
// counter table under prefix. Counters only move up.
func ImportLegacyCounters(ctx context.Context, legacy *LegacyCounterStore, store *GormCounterStore, businessId string, prefix string) (int, error) {
	state, err := legacy.Load(ctx, businessId, prefix)
	if err != nil {
		return 0, err
	}
	for dateKey, value := range state.DailyCounters {
		if err := store.Raise(ctx, businessId, prefix, dateKey, value); err != nil {
			return 0, err
		}
	}
	return len(state.DailyCounters), nil
}
