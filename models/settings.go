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

const numberingSettingsCacheTTL = 24 * time.Hour

// NumberingSettings holds the document prefixes and the round-off default of a business.
type NumberingSettings struct {
	ID              int       `gorm:"primary_key" json:"id"`
	BusinessId      string    `gorm:"size:64;uniqueIndex;not null" json:"business_id"`
	InvoicePrefix   string    `gorm:"size:3;not null" json:"invoice_prefix"`
	ProformaPrefix  string    `gorm:"size:3;not null" json:"proforma_prefix"`
	QuotationPrefix string    `gorm:"size:3;not null" json:"quotation_prefix"`
	PurchasePrefix  string    `gorm:"size:3;not null" json:"purchase_prefix"`
	RoundOffDefault *bool     `gorm:"not null;default:true" json:"round_off_default"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewNumberingSettings struct {
	InvoicePrefix   string `json:"invoice_prefix" binding:"max=20"`
	ProformaPrefix  string `json:"proforma_prefix" binding:"max=20"`
	QuotationPrefix string `json:"quotation_prefix" binding:"max=20"`
	PurchasePrefix  string `json:"purchase_prefix" binding:"max=20"`
	RoundOffDefault *bool  `json:"round_off_default" binding:"required"`
}

func numberingSettingsCacheKey(businessId string) string {
	return "NumberingSettings:" + businessId
}

func defaultNumberingSettings(businessId string) *NumberingSettings {
	roundOff := config.RoundOffDefault()
	return &NumberingSettings{
		BusinessId:      businessId,
		InvoicePrefix:   DocumentTypeInvoice.DefaultPrefix(),
		ProformaPrefix:  DocumentTypeProforma.DefaultPrefix(),
		QuotationPrefix: DocumentTypeQuotation.DefaultPrefix(),
		PurchasePrefix:  DocumentTypePurchase.DefaultPrefix(),
		RoundOffDefault: &roundOff,
	}
}

// PrefixFor returns the normalised prefix of a document type.
func (s *NumberingSettings) PrefixFor(docType DocumentType) (string, error) {
	var raw string
	switch docType {
	case DocumentTypeInvoice:
		raw = s.InvoicePrefix
	case DocumentTypeProforma:
		raw = s.ProformaPrefix
	case DocumentTypeQuotation:
		raw = s.QuotationPrefix
	case DocumentTypePurchase:
		raw = s.PurchasePrefix
	default:
		return "", ErrUnknownDocumentType
	}
	return NormalizePrefix(raw, docType.DefaultPrefix())
}

func (s *NumberingSettings) RoundOff() bool {
	if s.RoundOffDefault == nil {
		return config.RoundOffDefault()
	}
	return *s.RoundOffDefault
}

func (s *NumberingSettings) AfterSave(tx *gorm.DB) error {
	return config.RemoveRedisKey(tx.Statement.Context, numberingSettingsCacheKey(s.BusinessId))
}

// GetNumberingSettings returns the stored settings, or defaults when none are saved.
func GetNumberingSettings(ctx context.Context) (*NumberingSettings, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}

	var result NumberingSettings
	exists, err := config.GetRedisObject(ctx, numberingSettingsCacheKey(businessId), &result)
	if err != nil {
		config.LogError(config.GetLogger(), "NumberingSettings", "GetNumberingSettings", "redis get", businessId, err)
	} else if exists {
		return &result, nil
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Where("business_id = ?", businessId).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return defaultNumberingSettings(businessId), nil
	}
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(ctx, numberingSettingsCacheKey(businessId), &result, numberingSettingsCacheTTL); err != nil {
		config.LogError(config.GetLogger(), "NumberingSettings", "GetNumberingSettings", "redis set", businessId, err)
	}
	return &result, nil
}

// UpdateNumberingSettings stores normalised prefixes. Existing documents keep their numbers
// and every prefix keeps its own counters.
func UpdateNumberingSettings(ctx context.Context, input *NewNumberingSettings) (*NumberingSettings, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	settings := NumberingSettings{BusinessId: businessId, RoundOffDefault: input.RoundOffDefault}
	prefixes := []struct {
		docType DocumentType
		raw     string
		dest    *string
	}{
		{DocumentTypeInvoice, input.InvoicePrefix, &settings.InvoicePrefix},
		{DocumentTypeProforma, input.ProformaPrefix, &settings.ProformaPrefix},
		{DocumentTypeQuotation, input.QuotationPrefix, &settings.QuotationPrefix},
		{DocumentTypePurchase, input.PurchasePrefix, &settings.PurchasePrefix},
	}
	for _, p := range prefixes {
		prefix, err := NormalizePrefix(p.raw, p.docType.DefaultPrefix())
		if err != nil {
			return nil, err
		}
		*p.dest = prefix
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "business_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"invoice_prefix", "proforma_prefix", "quotation_prefix", "purchase_prefix", "round_off_default", "updated_at"}),
	}).Create(&settings).Error
	if err != nil {
		return nil, err
	}
	// the upsert does not reload the id on conflict
	var saved NumberingSettings
	if err := db.WithContext(ctx).Where("business_id = ?", businessId).First(&saved).Error; err != nil {
		return nil, err
	}
	return &saved, nil
}

// AppSetting is a free-form per-business key/value row.
type AppSetting struct {
	BusinessId string    `gorm:"primaryKey;size:64" json:"business_id"`
	Key        string    `gorm:"primaryKey;size:100" json:"key"`
	Value      string    `gorm:"type:text" json:"value"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GormKeyValueStore implements KeyValueStore on app_settings.
type GormKeyValueStore struct {
	db *gorm.DB
}

func NewGormKeyValueStore(db *gorm.DB) *GormKeyValueStore {
	return &GormKeyValueStore{db: db}
}

func (s *GormKeyValueStore) GetValue(ctx context.Context, businessId string, key string) (string, bool, error) {
	var row AppSetting
	err := s.db.WithContext(ctx).Where("business_id = ? AND `key` = ?", businessId, key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Value, true, nil
}

func (s *GormKeyValueStore) SetValue(ctx context.Context, businessId string, key string, value string) error {
	row := AppSetting{BusinessId: businessId, Key: key, Value: value}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "business_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}
