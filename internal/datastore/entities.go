package datastore

import "time"

// MaxInputLength caps the stored input text, in runes.
const MaxInputLength = 500

// DefaultHistoryLimit applies when GetUserHistory is called with limit <= 0.
const DefaultHistoryLimit = 50

// User is a registered account.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (User) TableName() string {
	return "users"
}

// SearchHistory is one classification performed by a signed-in user.
type SearchHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index" json:"user_id"`
	SearchType   string    `gorm:"size:16;not null;index" json:"search_type"`
	InputText    string    `gorm:"type:text;not null" json:"input_text"`
	Result       string    `gorm:"size:32;not null" json:"result"`
	Confidence   float64   `json:"confidence"`
	Verification string    `gorm:"size:128" json:"verification"`
	Reason       *string   `gorm:"type:text" json:"reason"`
	SearchedAt   time.Time `gorm:"not null;index" json:"searched_at"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE,OnUpdate:CASCADE" json:"-"`
}

// TableName returns the table name for GORM.
func (SearchHistory) TableName() string {
	return "search_history"
}

// UserStats summarises a user's history.
type UserStats struct {
	TotalSearches int64            `json:"total_searches"`
	ByType        map[string]int64 `json:"by_type"`
	ByResult      map[string]int64 `json:"by_result"`
}

// truncateRunes shortens s to at most n runes
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
