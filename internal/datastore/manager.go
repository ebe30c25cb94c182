// Package datastore persists user accounts and classification history
// with GORM on SQLite or MySQL.
package datastore

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/spamguard-go/internal/conf"
	"github.com/tphakala/spamguard-go/internal/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// Manager owns a database connection and its schema.
type Manager interface {
	// Initialize creates or updates the schema.
	Initialize() error
	// DB returns the underlying GORM database.
	DB() *gorm.DB
	// Path describes the database location for logs.
	Path() string
	Close() error
	IsMySQL() bool
}

// Open creates the manager for the configured backend and initializes it.
func Open(settings *conf.DatabaseSettings) (Manager, error) {
	var (
		m   Manager
		err error
	)
	switch settings.Type {
	case conf.DatabaseMySQL:
		m, err = NewMySQLManager(&settings.MySQL)
	default:
		m, err = NewSQLiteManager(settings.SQLite.Path)
	}
	if err != nil {
		return nil, err
	}
	if err := m.Initialize(); err != nil {
		_ = m.Close()
		return nil, err
	}
	GetLogger().Info("database ready",
		logger.String("path", m.Path()),
		logger.Bool("mysql", m.IsMySQL()))
	return m, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(GetLogger().Module("sql"), slowQueryThreshold),
	}
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}, &SearchHistory{}); err != nil {
		return dbError(fmt.Errorf("failed to migrate schema: %w", err), "migrate")
	}
	return nil
}

// SQLiteManager handles a SQLite database file.
type SQLiteManager struct {
	db     *gorm.DB
	dbPath string
}

// NewSQLiteManager opens path, creating the parent directory when needed.
// ":memory:" opens a private in-memory database.
func NewSQLiteManager(path string) (*SQLiteManager, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, dbError(err, "create_db_dir", "path", dir)
			}
		}
		// WAL journal, busy timeout and foreign key enforcement
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
	} else {
		dsn = "file::memory:?_foreign_keys=ON"
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to open SQLite database: %w", err), "open", "path", path)
	}

	if path == ":memory:" {
		// every pooled connection would get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, dbError(err, "open", "path", path)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return &SQLiteManager{db: db, dbPath: path}, nil
}

// Initialize implements Manager.
func (m *SQLiteManager) Initialize() error { return migrate(m.db) }

// DB implements Manager.
func (m *SQLiteManager) DB() *gorm.DB { return m.db }

// Path implements Manager.
func (m *SQLiteManager) Path() string { return m.dbPath }

// IsMySQL implements Manager.
func (m *SQLiteManager) IsMySQL() bool { return false }

// Close implements Manager.
func (m *SQLiteManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// MySQLManager handles a MySQL database.
type MySQLManager struct {
	db       *gorm.DB
	location string
}

// MySQLDSN builds the driver DSN from settings.
func MySQLDSN(cfg *conf.MySQLSettings) string {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, addr, cfg.Database)
}

// NewMySQLManager connects to MySQL and configures the pool.
func NewMySQLManager(cfg *conf.MySQLSettings) (*MySQLManager, error) {
	location := fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Database)

	db, err := gorm.Open(mysql.Open(MySQLDSN(cfg)), gormConfig())
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to open MySQL database: %w", err), "open", "location", location)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to get underlying database: %w", err), "open", "location", location)
	}
	sqlDB.SetMaxOpenConns(max(1, cfg.MaxOpenConns))
	sqlDB.SetMaxIdleConns(max(1, cfg.MaxIdleConns))
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &MySQLManager{db: db, location: location}, nil
}

// Initialize implements Manager.
func (m *MySQLManager) Initialize() error { return migrate(m.db) }

// DB implements Manager.
func (m *MySQLManager) DB() *gorm.DB { return m.db }

// Path implements Manager.
func (m *MySQLManager) Path() string { return m.location }

// IsMySQL implements Manager.
func (m *MySQLManager) IsMySQL() bool { return true }

// Close implements Manager.
func (m *MySQLManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetLogger returns the datastore module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}
