package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/inviteboard/internal/review/domain"
)

// RecordUser upserts the caller facts observed on an acting operation.
// Role and trust level always reflect the latest observation; the first
// seen timestamp is kept from the first one.
func (s *Store) RecordUser(ctx context.Context, identity domain.Identity, seenAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(identity.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}
	seenAt = seenAt.UTC()

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO users (user_id, role, trust_level, first_seen_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   role = excluded.role,
		   trust_level = excluded.trust_level,
		   last_seen_at = excluded.last_seen_at`,
		identity.UserID,
		identity.Role.String(),
		identity.TrustLevel,
		toMillis(seenAt),
		toMillis(seenAt),
	)
	if err != nil {
		return wrapBusy("record user", err)
	}
	return nil
}
