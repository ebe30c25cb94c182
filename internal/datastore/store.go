package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/logger"
	"github.com/tphakala/spamguard-go/internal/observability/metrics"
)

// Store runs user and history queries against a Manager's database.
type Store struct {
	db      *gorm.DB
	metrics *metrics.DatastoreMetrics
	log     logger.Logger
}

// NewStore wraps db. m may be nil.
func NewStore(db *gorm.DB, m *metrics.DatastoreMetrics) *Store {
	return &Store{db: db, metrics: m, log: GetLogger()}
}

// observe records duration and outcome of one operation
func (s *Store) observe(op string, start time.Time, err error) {
	s.metrics.RecordOperation(op, time.Since(start).Seconds(), err)
}

// CreateUser inserts a new account. Username and email must both be unused.
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (user *User, err error) {
	defer func(start time.Time) { s.observe("create_user", start, err) }(time.Now())

	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, dbError(err, "create_user")
	}
	if count > 0 {
		return nil, userError(ErrUsernameTaken, errors.CategoryConflict, "create_user")
	}
	if err := db.Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, dbError(err, "create_user")
	}
	if count > 0 {
		return nil, userError(ErrEmailTaken, errors.CategoryConflict, "create_user")
	}

	user = &User{Username: username, Email: email, PasswordHash: passwordHash}
	if err := db.Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			// lost a race with a concurrent registration
			return nil, userError(duplicateUserError(err), errors.CategoryConflict, "create_user")
		}
		s.log.Error("user insert failed", logger.String("username", username), logger.Error(err))
		return nil, dbError(fmt.Errorf("%w: %w", ErrRegistrationFailed, err), "create_user")
	}

	s.log.Info("user registered", logger.String("username", username), logger.Int("user_id", int(user.ID)))
	return user, nil
}

// GetUserByUsername looks up an account by its login name.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, notFoundOr(err, "get_user")
	}
	return &user, nil
}

// GetUserByID looks up an account by primary key.
func (s *Store) GetUserByID(ctx context.Context, id uint) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, notFoundOr(err, "get_user")
	}
	return &user, nil
}

// ListUsers returns all accounts ordered by ID.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, dbError(err, "list_users")
	}
	return users, nil
}

// DeleteUser removes an account together with its history.
func (s *Store) DeleteUser(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&SearchHistory{}).Error; err != nil {
			return dbError(err, "delete_user", "user_id", id)
		}
		res := tx.Delete(&User{}, id)
		if res.Error != nil {
			return dbError(res.Error, "delete_user", "user_id", id)
		}
		if res.RowsAffected == 0 {
			return userError(ErrUserNotFound, errors.CategoryNotFound, "delete_user")
		}
		return nil
	})
}

// SaveSearch stores one history entry. InputText is cut to MaxInputLength
// runes and SearchedAt is set when zero.
func (s *Store) SaveSearch(ctx context.Context, entry *SearchHistory) (err error) {
	defer func(start time.Time) { s.observe("save_search", start, err) }(time.Now())

	entry.InputText = truncateRunes(entry.InputText, MaxInputLength)
	if entry.SearchedAt.IsZero() {
		entry.SearchedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return dbError(err, "save_search", "user_id", entry.UserID)
	}
	return nil
}

// GetUserHistory returns the newest entries first. limit <= 0 means
// DefaultHistoryLimit.
func (s *Store) GetUserHistory(ctx context.Context, userID uint, limit int) (history []SearchHistory, err error) {
	defer func(start time.Time) { s.observe("get_history", start, err) }(time.Now())

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	err = s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("searched_at DESC, id DESC").
		Limit(limit).
		Find(&history).Error
	if err != nil {
		return nil, dbError(err, "get_history", "user_id", userID)
	}
	return history, nil
}

type groupCount struct {
	Label string
	Total int64
}

// GetUserStats counts a user's searches in total, per type and per result.
func (s *Store) GetUserStats(ctx context.Context, userID uint) (*UserStats, error) {
	db := s.db.WithContext(ctx).Model(&SearchHistory{}).Where("user_id = ?", userID)

	stats := &UserStats{
		ByType:   make(map[string]int64),
		ByResult: make(map[string]int64),
	}
	if err := db.Session(&gorm.Session{}).Count(&stats.TotalSearches).Error; err != nil {
		return nil, dbError(err, "get_stats", "user_id", userID)
	}

	for column, into := range map[string]map[string]int64{
		"search_type": stats.ByType,
		"result":      stats.ByResult,
	} {
		var rows []groupCount
		err := db.Session(&gorm.Session{}).
			Select(column + " AS label, COUNT(*) AS total").
			Group(column).
			Scan(&rows).Error
		if err != nil {
			return nil, dbError(err, "get_stats", "user_id", userID, "group", column)
		}
		for _, r := range rows {
			into[r.Label] = r.Total
		}
	}
	return stats, nil
}

// DeleteHistoryItem removes one entry owned by userID. It reports false
// when no such entry exists for that user.
func (s *Store) DeleteHistoryItem(ctx context.Context, userID, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&SearchHistory{})
	if res.Error != nil {
		return false, dbError(res.Error, "delete_history", "user_id", userID, "id", id)
	}
	return res.RowsAffected > 0, nil
}

// ClearUserHistory removes all of a user's entries and returns how many
// were deleted.
func (s *Store) ClearUserHistory(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&SearchHistory{})
	if res.Error != nil {
		return 0, dbError(res.Error, "clear_history", "user_id", userID)
	}
	s.log.Info("history cleared", logger.Int("user_id", int(userID)), logger.Int64("deleted", res.RowsAffected))
	return res.RowsAffected, nil
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return userError(ErrUserNotFound, errors.CategoryNotFound, op)
	}
	return dbError(err, op)
}
