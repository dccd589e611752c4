// Package tenant guards tenant ownership at the persistence layer.
//
// A DB bound with Bind carries its tenant through every statement. The guard
// callbacks registered by Register then reject inserts of rows owned by another
// tenant, add the tenant filter to unfiltered queries, and refuse updates or
// deletes that carry no tenant condition.
//
// Usage:
//
//	_ = tenant.Register(gormDB)
//	tx := tenant.Bind(gormDB, tenantID)
//	tx.Create(&rows) // fails with TENANT_MISMATCH if any row has another tenant_id
package tenant

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Statement settings read by the guard
const (
	settingKey = "ledger:tenant_id"
	systemKey  = "ledger:tenant_system"
)

// DefaultColumn is the tenant column of every ledger table
const DefaultColumn = "tenant_id"

// ErrTenantIDRequired is returned when a statement needs a tenant and none is bound
var ErrTenantIDRequired = errors.New("tenant_id is required but no tenant is bound")

// ErrTenantConditionRequired is returned for updates and deletes without a tenant filter
var ErrTenantConditionRequired = errors.New("update or delete without a tenant_id condition")

// Bind returns a reusable session whose statements are owned by tenantID
func Bind(db *gorm.DB, tenantID uuid.UUID) *gorm.DB {
	return db.Set(settingKey, tenantID).Session(&gorm.Session{})
}

// System returns a reusable session the guard ignores. It is meant for
// cross-tenant maintenance such as relaying and pruning the outbox.
func System(db *gorm.DB) *gorm.DB {
	return db.Set(systemKey, true).Session(&gorm.Session{})
}

func isSystem(db *gorm.DB) bool {
	v, ok := db.Get(systemKey)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Scope filters a query to tenantID and binds the tenant for the guard
func Scope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Set(settingKey, tenantID).Where(DefaultColumn+" = ?", tenantID)
	}
}

// BoundTenant returns the tenant bound to db, if any
func BoundTenant(db *gorm.DB) (uuid.UUID, bool) {
	v, ok := db.Get(settingKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}
