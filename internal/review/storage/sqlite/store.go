// Package sqlite provides the SQLite-backed ledger store for the review
// engine.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/inviteboard/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/inviteboard/internal/review/domain"
	"github.com/louisbranch/inviteboard/internal/review/storage"
	"github.com/louisbranch/inviteboard/internal/review/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists the review ledger in SQLite.
type Store struct {
	sqlDB *sql.DB
}

const postColumns = `id, author_id, title, content, status, up_votes, down_votes,
       reviewer_id, claim_expires_at, invite_code, reject_reason, reviewed_at,
       created_at, updated_at`

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite ledger store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	// _txlock=immediate takes the write lock at BEGIN, so a contended
	// transaction waits on busy_timeout instead of failing mid-flight.
	dsn := cleanPath + "?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writers in-process; cross-process writers
	// are serialized by the busy_timeout wait.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (domain.Post, error) {
	var post domain.Post
	var status int64
	var reviewerID sql.NullString
	var claimExpires sql.NullInt64
	var reviewedAt sql.NullInt64
	var createdAt int64
	var updatedAt int64
	if err := row.Scan(
		&post.ID,
		&post.AuthorID,
		&post.Title,
		&post.Content,
		&status,
		&post.UpVotes,
		&post.DownVotes,
		&reviewerID,
		&claimExpires,
		&post.InviteCode,
		&post.RejectReason,
		&reviewedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Post{}, err
	}
	post.Status = domain.Status(status)
	if reviewerID.Valid {
		post.ReviewerID = reviewerID.String
	}
	if claimExpires.Valid {
		post.ClaimExpires = fromMillis(claimExpires.Int64)
	}
	if reviewedAt.Valid {
		post.ReviewedAt = fromMillis(reviewedAt.Int64)
	}
	post.CreatedAt = fromMillis(createdAt)
	post.UpdatedAt = fromMillis(updatedAt)
	return post, nil
}

// begin starts a transaction, surfacing lock contention as storage.ErrBusy
// so the engine can treat it as retryable instead of internal.
func (s *Store) begin(ctx context.Context, op string, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := s.sqlDB.BeginTx(ctx, opts)
	if err != nil {
		return nil, wrapBusy("begin "+op, err)
	}
	return tx, nil
}

// wrapBusy wraps a driver error, tagging lock contention with
// storage.ErrBusy.
func wrapBusy(op string, err error) error {
	if isBusyError(err) {
		return fmt.Errorf("%s: %w: %v", op, storage.ErrBusy, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "database is locked") ||
		strings.Contains(message, "database table is locked")
}

func isVoteUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "votes.")
}

var _ storage.Ledger = (*Store)(nil)
