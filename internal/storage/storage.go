package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

// ChatSettings is the per-chat mutable configuration. A zero value for a
// limit disables the corresponding check.
type ChatSettings struct {
	ChatID            int64
	Enabled           bool
	DailyLimit        int
	PhotoLimitPerHour int
	MaxTextLength     int
	SpamThreshold     int
	SpamWindowSec     int
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; one connection avoids busy errors from
	// concurrent message goroutines.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Migrate() error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

// GetChatSettings returns the chat's settings, creating the row lazily from
// defaults on first access.
func (s *Store) GetChatSettings(ctx context.Context, chatID int64, defaults ChatSettings) (ChatSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT enabled, daily_limit, photo_limit_per_hour, max_text_length,
		spam_threshold, spam_window_sec
		FROM chat_settings WHERE chat_id = ?`, chatID)

	result := defaults
	result.ChatID = chatID

	var enabled int
	err := row.Scan(
		&enabled,
		&result.DailyLimit,
		&result.PhotoLimitPerHour,
		&result.MaxTextLength,
		&result.SpamThreshold,
		&result.SpamWindowSec,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if err := s.UpsertChatSettings(ctx, result); err != nil {
				return ChatSettings{}, err
			}
			return result, nil
		}
		return ChatSettings{}, err
	}
	result.Enabled = enabled == 1
	return result, nil
}

func (s *Store) UpsertChatSettings(ctx context.Context, settings ChatSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_settings (
			chat_id, enabled, daily_limit, photo_limit_per_hour,
			max_text_length, spam_threshold, spam_window_sec
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			enabled = excluded.enabled,
			daily_limit = excluded.daily_limit,
			photo_limit_per_hour = excluded.photo_limit_per_hour,
			max_text_length = excluded.max_text_length,
			spam_threshold = excluded.spam_threshold,
			spam_window_sec = excluded.spam_window_sec
	`,
		settings.ChatID,
		boolToInt(settings.Enabled),
		settings.DailyLimit,
		settings.PhotoLimitPerHour,
		settings.MaxTextLength,
		settings.SpamThreshold,
		settings.SpamWindowSec,
	)
	return err
}

func (s *Store) AddDomainAllow(ctx context.Context, chatID int64, domain string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO domain_whitelist (chat_id, domain) VALUES (?, ?)`, chatID, strings.ToLower(domain))
	return err
}

func (s *Store) RemoveDomainAllow(ctx context.Context, chatID int64, domain string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM domain_whitelist WHERE chat_id = ? AND domain = ?`, chatID, strings.ToLower(domain))
	return err
}

func (s *Store) ListDomainAllow(ctx context.Context, chatID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain FROM domain_whitelist WHERE chat_id = ? ORDER BY domain`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, err
		}
		domains = append(domains, domain)
	}
	return domains, rows.Err()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}
