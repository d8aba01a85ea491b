package models

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SharedCounterScope is the scope every prefix uses when counters are shared.
const SharedCounterScope = "*"

// InvoiceNumberCounterStore persists counter state per business and prefix.
type InvoiceNumberCounterStore interface {
	// Load returns the counters for prefix. It never changes them.
	Load(ctx context.Context, businessId string, prefix string) (InvoiceNumberCounterState, error)
	// Reserve advances the counter of dateKey by one and returns the new value.
	Reserve(ctx context.Context, businessId string, prefix string, dateKey string) (int, error)
}

func counterScope(prefix string, shared bool) string {
	if shared {
		return SharedCounterScope
	}
	return prefix
}

// InvoiceNumberCounter is one row per business, scope and day.
type InvoiceNumberCounter struct {
	BusinessId string    `gorm:"primaryKey;size:64" json:"business_id"`
	Scope      string    `gorm:"primaryKey;size:10" json:"scope"`
	DateKey    string    `gorm:"primaryKey;size:8" json:"date_key"`
	LastValue  int       `gorm:"not null;default:0" json:"last_value"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GormCounterStore keeps counters in invoice_number_counters. Reserve increments in
// a single UPDATE so concurrent commits serialize on the row.
type GormCounterStore struct {
	db     *gorm.DB
	shared bool
}

// NewGormCounterStore uses db, or config.GetDB() at call time when db is nil.
func NewGormCounterStore(db *gorm.DB, shared bool) *GormCounterStore {
	return &GormCounterStore{db: db, shared: shared}
}

func (s *GormCounterStore) conn() *gorm.DB {
	if s.db != nil {
		return s.db
	}
	return config.GetDB()
}

func (s *GormCounterStore) Load(ctx context.Context, businessId string, prefix string) (InvoiceNumberCounterState, error) {
	var rows []InvoiceNumberCounter
	err := s.conn().WithContext(ctx).
		Where("business_id = ? AND scope = ?", businessId, counterScope(prefix, s.shared)).
		Find(&rows).Error
	if err != nil {
		return InvoiceNumberCounterState{}, err
	}
	state := NewInvoiceNumberCounterState(prefix)
	for _, r := range rows {
		state.DailyCounters[r.DateKey] = r.LastValue
	}
	return state, nil
}

func (s *GormCounterStore) Reserve(ctx context.Context, businessId string, prefix string, dateKey string) (int, error) {
	scope := counterScope(prefix, s.shared)
	var next int
	err := s.conn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := InvoiceNumberCounter{BusinessId: businessId, Scope: scope, DateKey: dateKey}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
		res := tx.Model(&InvoiceNumberCounter{}).
			Where("business_id = ? AND scope = ? AND date_key = ?", businessId, scope, dateKey).
			Updates(map[string]interface{}{
				"last_value": gorm.Expr("last_value + ?", 1),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errors.New("invoice number counter row missing after insert")
		}
		var current InvoiceNumberCounter
		if err := tx.Where("business_id = ? AND scope = ? AND date_key = ?", businessId, scope, dateKey).
			Take(&current).Error; err != nil {
			return err
		}
		next = current.LastValue
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Raise moves a counter up to at least value. Used when rebuilding counters from
// stored documents; it never lowers a counter.
func (s *GormCounterStore) Raise(ctx context.Context, businessId string, prefix string, dateKey string, value int) error {
	return s.raiseScope(ctx, businessId, counterScope(prefix, s.shared), dateKey, value)
}

func (s *GormCounterStore) raiseScope(ctx context.Context, businessId string, scope string, dateKey string, value int) error {
	return s.conn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := InvoiceNumberCounter{BusinessId: businessId, Scope: scope, DateKey: dateKey}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
		return tx.Model(&InvoiceNumberCounter{}).
			Where("business_id = ? AND scope = ? AND date_key = ? AND last_value < ?", businessId, scope, dateKey, value).
			Updates(map[string]interface{}{
				"last_value": value,
				"updated_at": time.Now(),
			}).Error
	})
}

// MemoryCounterStore keeps counters in process. Safe for concurrent use.
type MemoryCounterStore struct {
	mu     sync.Mutex
	shared bool
	states map[string]InvoiceNumberCounterState
}

func NewMemoryCounterStore(shared bool) *MemoryCounterStore {
	return &MemoryCounterStore{shared: shared, states: map[string]InvoiceNumberCounterState{}}
}

func (s *MemoryCounterStore) key(businessId string, prefix string) string {
	return businessId + "|" + counterScope(prefix, s.shared)
}

func (s *MemoryCounterStore) Load(_ context.Context, businessId string, prefix string) (InvoiceNumberCounterState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[s.key(businessId, prefix)]
	if !ok {
		return NewInvoiceNumberCounterState(prefix), nil
	}
	out := state.clone()
	out.Prefix = prefix
	return out, nil
}

func (s *MemoryCounterStore) Reserve(_ context.Context, businessId string, prefix string, dateKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(businessId, prefix)
	state, ok := s.states[k]
	if !ok {
		state = NewInvoiceNumberCounterState(prefix)
	}
	next := state.NextSequence(dateKey)
	s.states[k] = state.withCounter(dateKey, next)
	return next, nil
}

// KeyValueStore is a per-business string store, e.g. the app_settings table.
type KeyValueStore interface {
	GetValue(ctx context.Context, businessId string, key string) (string, bool, error)
	SetValue(ctx context.Context, businessId string, key string, value string) error
}

// LegacyCounterKey holds the old JSON counter blob, keyed by date only.
const LegacyCounterKey = "invoiceCounters"

// LegacyCounterStore reads and writes the old counter blob with a plain
// read-modify-write. It has no lock, so two concurrent Reserve calls can return
// the same value, and all prefixes share one map. Only used to import old data.
type LegacyCounterStore struct {
	kv KeyValueStore
}

func NewLegacyCounterStore(kv KeyValueStore) *LegacyCounterStore {
	return &LegacyCounterStore{kv: kv}
}

func (s *LegacyCounterStore) read(ctx context.Context, businessId string) (map[string]int, error) {
	raw, ok, err := s.kv.GetValue(ctx, businessId, LegacyCounterKey)
	if err != nil {
		return nil, err
	}
	counters := map[string]int{}
	if !ok || raw == "" {
		return counters, nil
	}
	if err := json.Unmarshal([]byte(raw), &counters); err != nil {
		return nil, err
	}
	return counters, nil
}

func (s *LegacyCounterStore) Load(ctx context.Context, businessId string, prefix string) (InvoiceNumberCounterState, error) {
	counters, err := s.read(ctx, businessId)
	if err != nil {
		return InvoiceNumberCounterState{}, err
	}
	return InvoiceNumberCounterState{Prefix: prefix, DailyCounters: counters}, nil
}

func (s *LegacyCounterStore) Reserve(ctx context.Context, businessId string, prefix string, dateKey string) (int, error) {
	counters, err := s.read(ctx, businessId)
	if err != nil {
		return 0, err
	}
	next := counters[dateKey] + 1
	counters[dateKey] = next
	raw, err := json.Marshal(counters)
	if err != nil {
		return 0, err
	}
	if err := s.kv.SetValue(ctx, businessId, LegacyCounterKey, string(raw)); err != nil {
		return 0, err
	}
	return next, nil
}
