package telemetry

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

// registrar is the exported surface of gorm's unexported callback type
type registrar interface {
	Register(name string, fn func(*gorm.DB)) error
}

// gormHook locates one statement processor. op is the SQL verb recorded for
// it, empty for row/raw statements whose verb is read from the SQL.
type gormHook struct {
	kind   string
	op     string
	before func(*gorm.DB) registrar
	after  func(*gorm.DB) registrar
}

var gormHooks = []gormHook{
	{
		kind:   "create",
		op:     "INSERT",
		before: func(db *gorm.DB) registrar { return db.Callback().Create().Before("gorm:create") },
		after:  func(db *gorm.DB) registrar { return db.Callback().Create().After("gorm:create") },
	},
	{
		kind:   "query",
		op:     "SELECT",
		before: func(db *gorm.DB) registrar { return db.Callback().Query().Before("gorm:query") },
		after:  func(db *gorm.DB) registrar { return db.Callback().Query().After("gorm:query") },
	},
	{
		kind:   "update",
		op:     "UPDATE",
		before: func(db *gorm.DB) registrar { return db.Callback().Update().Before("gorm:update") },
		after:  func(db *gorm.DB) registrar { return db.Callback().Update().After("gorm:update") },
	},
	{
		kind:   "delete",
		op:     "DELETE",
		before: func(db *gorm.DB) registrar { return db.Callback().Delete().Before("gorm:delete") },
		after:  func(db *gorm.DB) registrar { return db.Callback().Delete().After("gorm:delete") },
	},
	{
		kind:   "row",
		before: func(db *gorm.DB) registrar { return db.Callback().Row().Before("gorm:row") },
		after:  func(db *gorm.DB) registrar { return db.Callback().Row().After("gorm:row") },
	},
	{
		kind:   "raw",
		before: func(db *gorm.DB) registrar { return db.Callback().Raw().Before("gorm:raw") },
		after:  func(db *gorm.DB) registrar { return db.Callback().Raw().After("gorm:raw") },
	},
}

// registerAround stamps the start time before every statement and calls
// after with the statement's SQL verb once it has run. Callbacks are named
// <prefix>:before_<kind> and <prefix>:after_<kind>. After callbacks run in
// registration order, so plugins that must observe each other's state
// register first.
func registerAround(db *gorm.DB, prefix string, after func(db *gorm.DB, op string)) error {
	for _, h := range gormHooks {
		if err := h.before(db).Register(prefix+":before_"+h.kind, stampStart); err != nil {
			return err
		}
		op := h.op
		if err := h.after(db).Register(prefix+":after_"+h.kind, func(db *gorm.DB) {
			if op == "" {
				after(db, detectOperationType(db.Statement.SQL.String()))
				return
			}
			after(db, op)
		}); err != nil {
			return err
		}
	}
	return nil
}

type queryStartKey struct{}

func stampStart(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, queryStartKey{}, time.Now())
}

// queryElapsed is the time since stampStart ran for this statement
func queryElapsed(db *gorm.DB) (time.Duration, bool) {
	if db.Statement.Context == nil {
		return 0, false
	}
	start, ok := db.Statement.Context.Value(queryStartKey{}).(time.Time)
	if !ok {
		return 0, false
	}
	return time.Since(start), true
}

// detectOperationType reads the SQL verb of a row/raw statement
func detectOperationType(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, op) {
			return op
		}
	}
	if strings.HasPrefix(sql, "WITH") {
		return "SELECT"
	}
	return "OTHER"
}
