package models

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/utils"
)

var gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)

type Customer struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;index;not null" json:"business_id"`
	Name       string    `gorm:"size:100;not null" json:"name"`
	Phone      string    `gorm:"size:20;index" json:"phone"`
	Email      string    `gorm:"size:100" json:"email"`
	Gstin      string    `gorm:"size:15" json:"gstin"`
	State      string    `gorm:"size:50" json:"state"`
	Address    string    `gorm:"type:text" json:"address"`
	Notes      string    `gorm:"type:text" json:"notes"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name    string `json:"name" binding:"required,max=100"`
	Phone   string `json:"phone" binding:"max=20"`
	Email   string `json:"email" binding:"omitempty,email,max=100"`
	Gstin   string `json:"gstin" binding:"max=15"`
	State   string `json:"state" binding:"max=50"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

// normalize trims the input and puts phone into E.164 and GSTIN into upper case.
func (input *NewCustomer) normalize() error {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	input.State = strings.TrimSpace(input.State)
	input.Gstin = strings.ToUpper(strings.TrimSpace(input.Gstin))
	if p := strings.TrimSpace(input.Phone); p != "" {
		phone, err := utils.NormalizePhoneNumber(p, utils.DefaultPhoneRegion)
		if err != nil {
			return invalidInput("phone %q: %v", p, err)
		}
		input.Phone = phone
	}
	return nil
}

// validate input for both create & update. (id = 0 for create)
func (input *NewCustomer) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := input.normalize(); err != nil {
		return err
	}
	if input.Gstin != "" && !gstinPattern.MatchString(input.Gstin) {
		return invalidInput("gstin %q is not a valid GSTIN", input.Gstin)
	}
	if id > 0 {
		if err := utils.ValidateResourceId[Customer](ctx, businessId, id); err != nil {
			return err
		}
	}
	if input.Phone != "" {
		if err := utils.ValidateUnique[Customer](ctx, businessId, "phone", input.Phone, id, ErrDuplicateCustomer); err != nil {
			return err
		}
	}
	return nil
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	customer := Customer{
		BusinessId: businessId,
		Name:       input.Name,
		Phone:      input.Phone,
		Email:      input.Email,
		Gstin:      input.Gstin,
		State:      input.State,
		Address:    input.Address,
		Notes:      input.Notes,
		IsActive:   utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func UpdateCustomer(ctx context.Context, id int, input *NewCustomer) (*Customer, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	customer, err := utils.FetchModel[Customer](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	err = db.WithContext(ctx).Model(customer).Updates(map[string]interface{}{
		"Name":    input.Name,
		"Phone":   input.Phone,
		"Email":   input.Email,
		"Gstin":   input.Gstin,
		"State":   input.State,
		"Address": input.Address,
		"Notes":   input.Notes,
	}).Error
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[Customer](ctx, businessId, id)
}

// DeleteCustomer refuses customers that documents still point at.
func DeleteCustomer(ctx context.Context, id int) (*Customer, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	result, err := utils.FetchModel[Customer](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	count, err := utils.ResourceCountWhere[Invoice](ctx, businessId, "customer_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrResourceInUse
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[Customer](ctx, businessId, id)
}

// GetCustomers filters by a name or phone fragment.
func GetCustomers(ctx context.Context, search *string) ([]*Customer, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if search != nil && len(*search) > 0 {
		like := "%" + *search + "%"
		dbCtx = dbCtx.Where("name LIKE ? OR phone LIKE ?", like, like)
	}
	var results []*Customer
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
