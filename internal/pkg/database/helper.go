package database

import (
	"fmt"

	"gorm.io/gorm"
)

// OrderBy returns a scope that orders by the given column
func OrderBy(field string, desc bool) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if desc {
			return db.Order(fmt.Sprintf("%s DESC", field))
		}
		return db.Order(fmt.Sprintf("%s ASC", field))
	}
}

// WhereIf returns a scope that applies the condition only when condition is true
func WhereIf(condition bool, query interface{}, args ...interface{}) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if condition {
			return db.Where(query, args...)
		}
		return db
	}
}
