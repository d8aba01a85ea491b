package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

// DefaultPhoneRegion is used when a phone number has no country code.
const DefaultPhoneRegion = "IN"

// NormalizePhoneNumber returns the E.164 form of a phone number, e.g. +919876543210.
func NormalizePhoneNumber(phoneNumber, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = DefaultPhoneRegion
	}
	p, err := libphonenumber.Parse(strings.TrimSpace(phoneNumber), countryCode)
	if err != nil {
		return "", err
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", fmt.Errorf("phone number is not valid")
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

// ConvertToDate returns midnight of t's calendar day in the given location.
func ConvertToDate(t time.Time, location *time.Location) time.Time {
	if location == nil {
		location = config.AppLocation()
	}
	localTime := t.In(location)
	return time.Date(localTime.Year(), localTime.Month(), localTime.Day(), 0, 0, 0, 0, location)
}

// ParseDate accepts YYYY-MM-DD or RFC3339 and returns the calendar day in the app location.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty date string")
	}
	loc := config.AppLocation()
	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", value)
	}
	return ConvertToDate(t, loc), nil
}

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}

	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}

	return dec, nil
}

const businessLockTTL = 30 * time.Second

var (
	localLocksMu sync.Mutex
	localLocks   = map[string]*sync.Mutex{}
)

func localLock(key string) *sync.Mutex {
	localLocksMu.Lock()
	defer localLocksMu.Unlock()
	m, ok := localLocks[key]
	if !ok {
		m = &sync.Mutex{}
		localLocks[key] = m
	}
	return m
}

// BusinessLock serializes work of one lockType per business and returns the release func.
// Uses redislock when Redis is connected, otherwise an in-process mutex.
func BusinessLock(ctx context.Context, businessId string, lockType string, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	lockKey := fmt.Sprintf("%s:%s", lockType, businessId)

	locker := config.GetRedisLock()
	if locker == nil {
		m := localLock(lockKey)
		m.Lock()
		return m.Unlock, nil
	}

	lock, err := locker.Obtain(ctx, lockKey, businessLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for businessID", businessId, err)
		return nil, ErrLockNotObtained
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for businessID", businessId, err)
		return nil, err
	}
	return func() {
		// ctx may already be cancelled here
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			config.LogError(logger, moduleName, functionName, "Release lock", businessId, err)
		}
	}, nil
}
