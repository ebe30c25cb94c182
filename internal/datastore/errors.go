package datastore

import (
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/tphakala/spamguard-go/internal/errors"
)

// Sentinel errors for store operations. Messages are shown to API clients.
var (
	ErrUsernameTaken      = errors.NewStd("Username already exists")
	ErrEmailTaken         = errors.NewStd("Email already registered")
	ErrRegistrationFailed = errors.NewStd("Registration failed")
	ErrUserNotFound       = errors.NewStd("user not found")
)

// mysqlDuplicateEntry is ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a unique constraint violation from
// either supported driver.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	return false
}

// duplicateUserError maps a constraint violation to the field it names
func duplicateUserError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "username"):
		return ErrUsernameTaken
	case strings.Contains(msg, "email"):
		return ErrEmailTaken
	}
	return ErrRegistrationFailed
}

// dbError creates a categorised database error with context pairs
func dbError(err error, operation string, kv ...any) error {
	b := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			b = b.Context(key, kv[i+1])
		}
	}
	return b.Build()
}

// userError wraps a user-facing sentinel in a category that is not reported
func userError(sentinel error, category errors.ErrorCategory, operation string) error {
	return errors.New(sentinel).
		Component("datastore").
		Category(category).
		Context("operation", operation).
		Build()
}
