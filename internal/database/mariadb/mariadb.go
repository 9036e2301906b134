package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
)

// Pool manages a MariaDB/MySQL connection pool.
type Pool struct {
	db *sql.DB
}

// NormalizeDSN accepts a go-sql-driver DSN, optionally prefixed with
// mysql://, and enables parseTime.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(strings.TrimPrefix(dsn, "mysql://"))
	if err != nil {
		return "", fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// NewPool creates a new MariaDB connection pool.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("MariaDB DSN is required")
	}
	dsn, err := NormalizeDSN(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(max(cfg.MaxOpenConns, 1))
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Open connects and creates the schema. It satisfies database.Opener.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (database.Store, error) {
	pool, err := NewPool(cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Register makes the MariaDB backend available to database.Open.
func Register() {
	database.RegisterBackend("mysql", Open)
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// EnsureSchema creates the member, attendance and advertising tables if missing.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS members (
			member_id INT PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(100) NOT NULL,
			email VARCHAR(100),
			gender ENUM('M', 'F'),
			age_group VARCHAR(20),
			registration_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			face_encoding TEXT,
			is_active BOOLEAN DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_log (
			log_id INT PRIMARY KEY AUTO_INCREMENT,
			member_id INT NULL,
			name VARCHAR(100) NOT NULL,
			confidence FLOAT,
			status VARCHAR(20) DEFAULT 'present',
			device_id VARCHAR(100),
			captured_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (member_id) REFERENCES members(member_id) ON DELETE SET NULL
		)`,
		`CREATE TABLE IF NOT EXISTS purchase_history (
			purchase_id INT PRIMARY KEY AUTO_INCREMENT,
			member_id INT,
			product_category VARCHAR(50),
			amount DECIMAL(10,2),
			purchase_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			store_location VARCHAR(100),
			INDEX idx_purchase_member_date (member_id, purchase_date),
			FOREIGN KEY (member_id) REFERENCES members(member_id)
		)`,
		`CREATE TABLE IF NOT EXISTS advertisements (
			ad_id INT PRIMARY KEY AUTO_INCREMENT,
			title VARCHAR(200),
			content TEXT,
			image_path VARCHAR(500),
			target_category VARCHAR(50),
			target_gender ENUM('M', 'F', 'ALL') DEFAULT 'ALL',
			target_age_group VARCHAR(20),
			is_active BOOLEAN DEFAULT TRUE,
			created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS ad_display_log (
			log_id INT PRIMARY KEY AUTO_INCREMENT,
			member_id INT,
			ad_id INT,
			display_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			display_location VARCHAR(100),
			FOREIGN KEY (member_id) REFERENCES members(member_id),
			FOREIGN KEY (ad_id) REFERENCES advertisements(ad_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var _ database.Store = (*Pool)(nil)
