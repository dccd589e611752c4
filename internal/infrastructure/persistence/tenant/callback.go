package tenant

import (
	"reflect"
	"strings"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Guard enforces tenant ownership through GORM callbacks
type Guard struct {
	tenantColumn string
}

// NewGuard creates a guard for the given tenant column
func NewGuard(tenantColumn string) *Guard {
	if tenantColumn == "" {
		tenantColumn = DefaultColumn
	}
	return &Guard{tenantColumn: tenantColumn}
}

// Register installs the default guard on db
func Register(db *gorm.DB) error {
	return NewGuard(DefaultColumn).RegisterCallbacks(db)
}

// RegisterCallbacks registers the guard callbacks with GORM
func (g *Guard) RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("tenant:before_create", g.beforeCreate); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("tenant:before_query", g.beforeQuery); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("tenant:before_row", g.beforeQuery); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("tenant:before_update", g.requireCondition); err != nil {
		return err
	}
	return cb.Delete().Before("gorm:delete").Register("tenant:before_delete", g.requireCondition)
}

// beforeCreate checks that every inserted row belongs to one tenant, the bound one when set
func (g *Guard) beforeCreate(db *gorm.DB) {
	field := g.tenantField(db)
	if field == nil {
		return
	}

	bound, hasBound := BoundTenant(db)
	owner := bound
	check := func(rv reflect.Value) bool {
		v, zero := field.ValueOf(db.Statement.Context, rv)
		id, ok := v.(uuid.UUID)
		if zero || !ok || id == uuid.Nil {
			_ = db.AddError(ErrTenantIDRequired)
			return false
		}
		if owner == uuid.Nil {
			owner = id
			return true
		}
		if id != owner {
			if hasBound {
				_ = db.AddError(ledger.NewTenantMismatchError("row for tenant %s written in a session bound to tenant %s", id, bound))
			} else {
				_ = db.AddError(ledger.NewTenantMismatchError("one insert mixes tenants %s and %s", owner, id))
			}
			return false
		}
		return true
	}

	rv := reflect.Indirect(db.Statement.ReflectValue)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if !check(reflect.Indirect(rv.Index(i))) {
				return
			}
		}
	case reflect.Struct:
		check(rv)
	}
}

// beforeQuery adds the bound tenant filter to queries that do not filter by tenant
func (g *Guard) beforeQuery(db *gorm.DB) {
	if db.Statement.Unscoped || g.tenantField(db) == nil {
		return
	}
	bound, ok := BoundTenant(db)
	if !ok || g.hasTenantCondition(db) {
		return
	}
	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: clause.CurrentTable, Name: g.tenantColumn},
				Value:  bound,
			},
		},
	})
}

// requireCondition rejects updates and deletes on tenant tables with no tenant filter
func (g *Guard) requireCondition(db *gorm.DB) {
	if g.tenantField(db) == nil {
		return
	}
	if g.hasTenantCondition(db) {
		return
	}
	if bound, ok := BoundTenant(db); ok {
		db.Statement.AddClause(clause.Where{
			Exprs: []clause.Expression{clause.Eq{
				Column: clause.Column{Table: clause.CurrentTable, Name: g.tenantColumn},
				Value:  bound,
			}},
		})
		return
	}
	_ = db.AddError(ErrTenantConditionRequired)
}

func (g *Guard) tenantField(db *gorm.DB) *schema.Field {
	if db.Statement.Schema == nil || isSystem(db) {
		return nil
	}
	return db.Statement.Schema.LookUpField(g.tenantColumn)
}

// hasTenantCondition checks if a tenant_id condition is already present
func (g *Guard) hasTenantCondition(db *gorm.DB) bool {
	whereClause, ok := db.Statement.Clauses["WHERE"]
	if !ok {
		return false
	}
	where, ok := whereClause.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, expr := range where.Exprs {
		if g.exprContainsTenant(expr) {
			return true
		}
	}
	return false
}

// exprContainsTenant checks if an expression references the tenant column
func (g *Guard) exprContainsTenant(expr clause.Expression) bool {
	switch e := expr.(type) {
	case clause.Eq:
		return g.isTenantColumn(e.Column)
	case clause.Neq:
		return g.isTenantColumn(e.Column)
	case clause.IN:
		return g.isTenantColumn(e.Column)
	case clause.Expr:
		return strings.Contains(e.SQL, g.tenantColumn)
	case clause.NamedExpr:
		return strings.Contains(e.SQL, g.tenantColumn)
	case clause.AndConditions:
		for _, cond := range e.Exprs {
			if g.exprContainsTenant(cond) {
				return true
			}
		}
	case clause.OrConditions:
		// every branch must be tenant-filtered
		if len(e.Exprs) == 0 {
			return false
		}
		for _, cond := range e.Exprs {
			if !g.exprContainsTenant(cond) {
				return false
			}
		}
		return true
	}
	return false
}

func (g *Guard) isTenantColumn(col any) bool {
	switch c := col.(type) {
	case clause.Column:
		return c.Name == g.tenantColumn
	case string:
		return c == g.tenantColumn
	}
	return false
}
