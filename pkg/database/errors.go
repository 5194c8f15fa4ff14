package database

import (
	"errors"

	"github.com/mattn/go-sqlite3"
	mssql "github.com/microsoft/go-mssqldb"
	"gorm.io/gorm"
)

// SQL Server raises 2627 for a unique constraint and 2601 for a unique
// index such as idx_order_idempotency.
const (
	mssqlUniqueConstraint = 2627
	mssqlUniqueIndex      = 2601
)

// IsDuplicateKey reports whether err is a unique violation. TranslateError
// turns mysql and postgres violations into gorm.ErrDuplicatedKey, but the
// sqlite and sqlserver dialects only recognise pointer errors while their
// drivers return values, so those are matched here by code.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var lite sqlite3.Error
	if errors.As(err, &lite) {
		return lite.ExtendedCode == sqlite3.ErrConstraintUnique ||
			lite.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var ms mssql.Error
	if errors.As(err, &ms) {
		return ms.Number == mssqlUniqueConstraint || ms.Number == mssqlUniqueIndex
	}
	return false
}
