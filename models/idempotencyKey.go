package models

import (
	"context"
	"errors"
	"time"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

const (
	createInvoiceHandler    = "CreateInvoice"
	maxIdempotencyKeyLength = 255
)

var ErrIdempotencyInProgress = errors.New("a request with this idempotency key is still in progress")

// IdempotencyKey records a client supplied key so a retried submit returns the
// document it already created instead of taking another number.
// Unique constraint: (business_id, handler_name, request_key).
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	BusinessId  string            `gorm:"size:64;not null;uniqueIndex:uniq_idem,priority:1" json:"business_id"`
	HandlerName string            `gorm:"size:100;not null;uniqueIndex:uniq_idem,priority:2" json:"handler_name"`
	RequestKey  string            `gorm:"size:255;not null;uniqueIndex:uniq_idem,priority:3" json:"request_key"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	ResourceId  *int              `json:"resource_id"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// claimIdempotencyKey returns (existing, nil) when the key already succeeded, and
// (nil, nil) when the caller now owns the key and should do the work.
func claimIdempotencyKey(ctx context.Context, businessId string, handler string, key string) (*IdempotencyKey, error) {
	db := config.GetDB()
	row := IdempotencyKey{
		BusinessId:  businessId,
		HandlerName: handler,
		RequestKey:  key,
		Status:      IdempotencyStatusStarted,
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 {
		return nil, nil
	}

	var existing IdempotencyKey
	if err := db.WithContext(ctx).
		Where("business_id = ? AND handler_name = ? AND request_key = ?", businessId, handler, key).
		Take(&existing).Error; err != nil {
		return nil, err
	}
	switch existing.Status {
	case IdempotencyStatusSucceeded:
		return &existing, nil
	case IdempotencyStatusFailed:
		// a failed attempt may be retried; only one retry wins the swap
		res := db.WithContext(ctx).Model(&IdempotencyKey{}).
			Where("id = ? AND status = ?", existing.ID, IdempotencyStatusFailed).
			Updates(map[string]interface{}{"Status": IdempotencyStatusStarted, "LastError": nil})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			return nil, nil
		}
	}
	return nil, ErrIdempotencyInProgress
}

func finishIdempotencyKey(ctx context.Context, businessId string, handler string, key string, resourceId *int, cause error) {
	values := map[string]interface{}{
		"Status":     IdempotencyStatusSucceeded,
		"ResourceId": resourceId,
		"LastError":  nil,
	}
	if cause != nil {
		msg := cause.Error()
		values["Status"] = IdempotencyStatusFailed
		values["LastError"] = &msg
	}
	// the request may be gone by now; the key must still be settled
	err := config.GetDB().WithContext(context.WithoutCancel(ctx)).Model(&IdempotencyKey{}).
		Where("business_id = ? AND handler_name = ? AND request_key = ?", businessId, handler, key).
		Updates(values).Error
	if err != nil {
		config.LogError(config.GetLogger(), "IdempotencyKey", "finishIdempotencyKey", key, businessId, err)
	}
}

// CreateInvoiceOnce is CreateInvoice guarded by a client key. A repeated key returns the
// first document and replayed=true. An empty key behaves like CreateInvoice.
func CreateInvoiceOnce(ctx context.Context, store InvoiceNumberCounterStore, key string, input *NewInvoice) (invoice *Invoice, replayed bool, err error) {
	if key == "" {
		invoice, err = CreateInvoice(ctx, store, input)
		return invoice, false, err
	}
	if len(key) > maxIdempotencyKeyLength {
		return nil, false, invalidInput("idempotency key longer than %d characters", maxIdempotencyKeyLength)
	}
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, false, err
	}

	existing, err := claimIdempotencyKey(ctx, businessId, createInvoiceHandler, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if existing.ResourceId == nil {
			return nil, false, ErrIdempotencyInProgress
		}
		invoice, err = GetInvoice(ctx, *existing.ResourceId)
		return invoice, true, err
	}

	invoice, err = CreateInvoice(ctx, store, input)
	if err != nil {
		finishIdempotencyKey(ctx, businessId, createInvoiceHandler, key, nil, err)
		return nil, false, err
	}
	finishIdempotencyKey(ctx, businessId, createInvoiceHandler, key, &invoice.ID, nil)
	return invoice, false, nil
}

// PurgeIdempotencyKeys deletes keys older than olderThan and returns how many went.
func PurgeIdempotencyKeys(ctx context.Context, olderThan time.Duration) (int64, error) {
	db := config.GetDB()
	res := db.WithContext(utils.SetSkipBusinessScopeInContext(ctx, true)).
		Where("updated_at < ?", time.Now().Add(-olderThan)).
		Delete(&IdempotencyKey{})
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
