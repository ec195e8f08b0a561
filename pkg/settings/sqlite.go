package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/venkytv/calendar-grid/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists settings in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create settings directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping settings database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate settings database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS calendar_customizations (
			id TEXT PRIMARY KEY,
			nickname TEXT,
			color_hex TEXT,
			is_hidden INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSettingUnavailable
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Customization(ctx context.Context, id string) (models.Customization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, nickname, color_hex, is_hidden FROM calendar_customizations WHERE id = ?`, id)
	c, err := scanCustomization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Customization{}, ErrSettingUnavailable
	}
	if err != nil {
		return models.Customization{}, fmt.Errorf("failed to read customization %s: %w", id, err)
	}
	return c, nil
}

func (s *SQLiteStore) SetCustomization(ctx context.Context, c models.Customization) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calendar_customizations (id, nickname, color_hex, is_hidden) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			nickname = excluded.nickname,
			color_hex = excluded.color_hex,
			is_hidden = excluded.is_hidden`,
		c.ID, nullString(c.Nickname), nullString(c.ColorHex), c.IsHidden)
	if err != nil {
		return fmt.Errorf("failed to write customization %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteCustomization(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM calendar_customizations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete customization %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Customizations(ctx context.Context) ([]models.Customization, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, nickname, color_hex, is_hidden FROM calendar_customizations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list customizations: %w", err)
	}
	defer rows.Close()

	var out []models.Customization
	for rows.Next() {
		c, err := scanCustomization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customization: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCustomization(row scanner) (models.Customization, error) {
	var (
		c        models.Customization
		nickname sql.NullString
		colorHex sql.NullString
	)
	if err := row.Scan(&c.ID, &nickname, &colorHex, &c.IsHidden); err != nil {
		return models.Customization{}, err
	}
	if nickname.Valid {
		c.Nickname = &nickname.String
	}
	if colorHex.Valid {
		c.ColorHex = &colorHex.String
	}
	return c, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
