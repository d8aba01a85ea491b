package config

import (
	"context"
	"strings"

	"github.com/invoiceflow/invoiceflow_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BusinessScopePlugin adds "business_id = <ctx business>" to queries, updates and
// deletes on models that carry a business_id column, unless the statement already
// filters on it. Raw SQL is not touched.
type BusinessScopePlugin struct{}

func NewBusinessScopePlugin() *BusinessScopePlugin { return &BusinessScopePlugin{} }

func (p *BusinessScopePlugin) Name() string { return "business_scope" }

func (p *BusinessScopePlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("business_scope:query", businessScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("business_scope:row", businessScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("business_scope:update", businessScopeCallback); err != nil {
		return err
	}
	return db.Callback().Delete().Before("gorm:delete").Register("business_scope:delete", businessScopeCallback)
}

func businessScopeCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Statement.Schema == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil || skipBusinessScope(ctx) {
		return
	}
	businessId, _ := appctx.GetString(ctx, appctx.ContextKeyBusinessId)
	if businessId == "" {
		return
	}
	if db.Statement.Schema.LookUpField("business_id") == nil {
		return
	}
	if c, ok := db.Statement.Clauses["WHERE"]; ok {
		if w, ok := c.Expression.(clause.Where); ok && whereMentionsBusiness(w.Exprs) {
			return
		}
	}
	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "business_id"},
				Value:  businessId,
			},
		},
	})
}

func skipBusinessScope(ctx context.Context) bool {
	skip, _ := appctx.GetBool(ctx, appctx.ContextKeySkipBusinessScope)
	return skip
}

func whereMentionsBusiness(exprs []clause.Expression) bool {
	for _, e := range exprs {
		switch v := e.(type) {
		case clause.Eq:
			if isBusinessColumn(v.Column) {
				return true
			}
		case clause.IN:
			if isBusinessColumn(v.Column) {
				return true
			}
		case clause.AndConditions:
			if whereMentionsBusiness(v.Exprs) {
				return true
			}
		case clause.OrConditions:
			if whereMentionsBusiness(v.Exprs) {
				return true
			}
		case clause.Expr:
			if strings.Contains(strings.ToLower(v.SQL), "business_id") {
				return true
			}
		case clause.NamedExpr:
			if strings.Contains(strings.ToLower(v.SQL), "business_id") {
				return true
			}
		}
	}
	return false
}

func isBusinessColumn(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "business_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "business_id")
	}
	return false
}
