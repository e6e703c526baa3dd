package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/louisbranch/inviteboard/internal/review/domain"
)

const (
	settingMinVotes     = "min_votes"
	settingApprovalRate = "approval_rate"
)

// GetSettings returns the current tally settings.
func (s *Store) GetSettings(ctx context.Context) (domain.ReviewSettings, error) {
	if err := ctx.Err(); err != nil {
		return domain.ReviewSettings{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.ReviewSettings{}, fmt.Errorf("storage is not configured")
	}

	tx, err := s.begin(ctx, "get settings", &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return domain.ReviewSettings{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	settings, err := getSettingsTx(ctx, tx)
	if err != nil {
		return domain.ReviewSettings{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ReviewSettings{}, wrapBusy("commit get settings", err)
	}
	return settings, nil
}

// PutSettings replaces the tally settings. Invalid settings are rejected
// here as well as at the engine boundary so a bad value can never be
// persisted.
func (s *Store) PutSettings(ctx context.Context, settings domain.ReviewSettings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	tx, err := s.begin(ctx, "put settings", nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	upsert := `INSERT INTO review_settings (key, value) VALUES (?, ?)
	           ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	if _, err := tx.ExecContext(ctx, upsert, settingMinVotes, strconv.Itoa(settings.MinVotes)); err != nil {
		return fmt.Errorf("put min_votes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, settingApprovalRate,
		strconv.FormatFloat(settings.ApprovalRate, 'f', -1, 64)); err != nil {
		return fmt.Errorf("put approval_rate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapBusy("commit put settings", err)
	}
	return nil
}

func getSettingsTx(ctx context.Context, tx *sql.Tx) (domain.ReviewSettings, error) {
	settings := domain.DefaultReviewSettings

	rows, err := tx.QueryContext(
		ctx,
		`SELECT key, value FROM review_settings WHERE key IN (?, ?)`,
		settingMinVotes,
		settingApprovalRate,
	)
	if err != nil {
		return domain.ReviewSettings{}, fmt.Errorf("get settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return domain.ReviewSettings{}, fmt.Errorf("scan setting: %w", err)
		}
		switch key {
		case settingMinVotes:
			parsed, err := strconv.Atoi(value)
			if err != nil {
				return domain.ReviewSettings{}, fmt.Errorf("parse min_votes %q: %w", value, err)
			}
			settings.MinVotes = parsed
		case settingApprovalRate:
			parsed, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return domain.ReviewSettings{}, fmt.Errorf("parse approval_rate %q: %w", value, err)
			}
			settings.ApprovalRate = parsed
		}
	}
	if err := rows.Err(); err != nil {
		return domain.ReviewSettings{}, fmt.Errorf("iterate settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return domain.ReviewSettings{}, err
	}
	return settings, nil
}
