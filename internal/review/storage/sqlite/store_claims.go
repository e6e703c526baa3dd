package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/inviteboard/internal/review/domain"
	"github.com/louisbranch/inviteboard/internal/review/storage"
)

// claimableFilter matches posts a reviewer may claim: second review with no
// holder, or a holder whose claim has expired.
const claimableFilter = `status = ? AND (reviewer_id IS NULL OR claim_expires_at <= ?)`

// ClaimPost claims one second-review post for a reviewer. The claim is a
// conditional update checked by rows affected, so two reviewers racing on
// the same post produce exactly one winner. A repeat claim by the current
// holder succeeds without extending the deadline.
func (s *Store) ClaimPost(ctx context.Context, postID, reviewerID string, now time.Time, ttl time.Duration) (domain.Post, error) {
	if err := ctx.Err(); err != nil {
		return domain.Post{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Post{}, fmt.Errorf("storage is not configured")
	}
	postID = strings.TrimSpace(postID)
	reviewerID = strings.TrimSpace(reviewerID)
	if postID == "" {
		return domain.Post{}, fmt.Errorf("post id is required")
	}
	if reviewerID == "" {
		return domain.Post{}, fmt.Errorf("reviewer id is required")
	}
	if ttl <= 0 {
		return domain.Post{}, fmt.Errorf("claim ttl must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()

	tx, err := s.begin(ctx, "claim", nil)
	if err != nil {
		return domain.Post{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	post, err := getPostTx(ctx, tx, postID)
	if err != nil {
		return domain.Post{}, err
	}
	if post.Status != domain.StatusSecondReview {
		return domain.Post{}, storage.ErrInvalidState
	}
	if post.ReviewerID == reviewerID && post.ClaimExpires.After(now) {
		if err := tx.Commit(); err != nil {
			return domain.Post{}, wrapBusy("commit claim", err)
		}
		return post, nil
	}

	result, err := tx.ExecContext(
		ctx,
		`UPDATE posts SET reviewer_id = ?, claim_expires_at = ?, updated_at = ?
		  WHERE id = ? AND `+claimableFilter,
		reviewerID,
		toMillis(now.Add(ttl)),
		toMillis(now),
		postID,
		int(domain.StatusSecondReview),
		toMillis(now),
	)
	if err != nil {
		return domain.Post{}, fmt.Errorf("claim post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Post{}, fmt.Errorf("claim rows affected: %w", err)
	}
	if affected == 0 {
		return domain.Post{}, storage.ErrClaimConflict
	}

	claimed, err := getPostTx(ctx, tx, postID)
	if err != nil {
		return domain.Post{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Post{}, wrapBusy("commit claim", err)
	}
	return claimed, nil
}

// NextReviewable hands the reviewer the oldest claimable second-review post
// outside their exclusion list, claiming it in the same transaction. When
// nothing is claimable it returns storage.ErrNotFound together with a zero
// count; on success the count includes the returned post.
func (s *Store) NextReviewable(ctx context.Context, reviewerID string, exclude []string, now time.Time, ttl time.Duration) (domain.Post, int, error) {
	if err := ctx.Err(); err != nil {
		return domain.Post{}, 0, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Post{}, 0, fmt.Errorf("storage is not configured")
	}
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return domain.Post{}, 0, fmt.Errorf("reviewer id is required")
	}
	if ttl <= 0 {
		return domain.Post{}, 0, fmt.Errorf("claim ttl must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()

	filter := claimableFilter
	args := []any{int(domain.StatusSecondReview), toMillis(now)}
	if len(exclude) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(exclude)), ", ")
		filter += ` AND id NOT IN (` + placeholders + `)`
		for _, id := range exclude {
			args = append(args, id)
		}
	}

	tx, err := s.begin(ctx, "next reviewable", nil)
	if err != nil {
		return domain.Post{}, 0, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var eligible int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM posts WHERE `+filter, args...).Scan(&eligible); err != nil {
		return domain.Post{}, 0, fmt.Errorf("count eligible posts: %w", err)
	}
	if eligible == 0 {
		if err := tx.Commit(); err != nil {
			return domain.Post{}, 0, wrapBusy("commit next reviewable", err)
		}
		return domain.Post{}, 0, storage.ErrNotFound
	}

	var candidateID string
	err = tx.QueryRowContext(
		ctx,
		`SELECT id FROM posts WHERE `+filter+` ORDER BY created_at ASC, id ASC LIMIT 1`,
		args...,
	).Scan(&candidateID)
	if err != nil {
		return domain.Post{}, 0, fmt.Errorf("select next reviewable: %w", err)
	}

	result, err := tx.ExecContext(
		ctx,
		`UPDATE posts SET reviewer_id = ?, claim_expires_at = ?, updated_at = ?
		  WHERE id = ? AND `+claimableFilter,
		reviewerID,
		toMillis(now.Add(ttl)),
		toMillis(now),
		candidateID,
		int(domain.StatusSecondReview),
		toMillis(now),
	)
	if err != nil {
		return domain.Post{}, 0, fmt.Errorf("claim next reviewable: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Post{}, 0, fmt.Errorf("claim rows affected: %w", err)
	}
	if affected == 0 {
		// Lost the candidate between select and update; the caller retries.
		return domain.Post{}, eligible, storage.ErrClaimConflict
	}

	post, err := getPostTx(ctx, tx, candidateID)
	if err != nil {
		return domain.Post{}, 0, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Post{}, 0, wrapBusy("commit next reviewable", err)
	}
	return post, eligible, nil
}

// ReleaseClaim releases the caller's claim without changing the status.
func (s *Store) ReleaseClaim(ctx context.Context, postID, reviewerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	postID = strings.TrimSpace(postID)
	reviewerID = strings.TrimSpace(reviewerID)
	if postID == "" || reviewerID == "" {
		return fmt.Errorf("post id and reviewer id are required")
	}

	tx, err := s.begin(ctx, "release claim", nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	post, err := getPostTx(ctx, tx, postID)
	if err != nil {
		return err
	}
	if post.Status != domain.StatusSecondReview {
		return storage.ErrInvalidState
	}
	if post.ReviewerID != reviewerID {
		return storage.ErrClaimNotHeld
	}

	_, err = tx.ExecContext(
		ctx,
		`UPDATE posts SET reviewer_id = NULL, claim_expires_at = NULL, updated_at = ?
		  WHERE id = ? AND reviewer_id = ?`,
		toMillis(time.Now().UTC()),
		postID,
		reviewerID,
	)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return wrapBusy("commit release claim", err)
	}
	return nil
}

// FinalizePost moves a claimed second-review post to a terminal status.
// The conditional update keeps the decision exclusive to the claim holder.
func (s *Store) FinalizePost(ctx context.Context, postID, reviewerID string, status domain.Status, inviteCode, rejectReason string, now time.Time) (domain.Post, error) {
	if err := ctx.Err(); err != nil {
		return domain.Post{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Post{}, fmt.Errorf("storage is not configured")
	}
	postID = strings.TrimSpace(postID)
	reviewerID = strings.TrimSpace(reviewerID)
	if postID == "" || reviewerID == "" {
		return domain.Post{}, fmt.Errorf("post id and reviewer id are required")
	}
	if !status.Terminal() {
		return domain.Post{}, fmt.Errorf("finalize status must be terminal")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()

	tx, err := s.begin(ctx, "finalize", nil)
	if err != nil {
		return domain.Post{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	post, err := getPostTx(ctx, tx, postID)
	if err != nil {
		return domain.Post{}, err
	}
	if post.Status != domain.StatusSecondReview {
		return domain.Post{}, storage.ErrInvalidState
	}
	if post.ReviewerID != reviewerID {
		return domain.Post{}, storage.ErrClaimNotHeld
	}

	result, err := tx.ExecContext(
		ctx,
		`UPDATE posts SET status = ?, claim_expires_at = NULL, invite_code = ?,
		        reject_reason = ?, reviewed_at = ?, updated_at = ?
		  WHERE id = ? AND status = ? AND reviewer_id = ?`,
		int(status),
		inviteCode,
		rejectReason,
		toMillis(now),
		toMillis(now),
		postID,
		int(domain.StatusSecondReview),
		reviewerID,
	)
	if err != nil {
		return domain.Post{}, fmt.Errorf("finalize post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Post{}, fmt.Errorf("finalize rows affected: %w", err)
	}
	if affected == 0 {
		return domain.Post{}, storage.ErrClaimNotHeld
	}

	finalized, err := getPostTx(ctx, tx, postID)
	if err != nil {
		return domain.Post{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Post{}, wrapBusy("commit finalize", err)
	}
	return finalized, nil
}

// ReleaseExpiredClaims returns claims past their deadline to the pool.
func (s *Store) ReleaseExpiredClaims(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE posts SET reviewer_id = NULL, claim_expires_at = NULL, updated_at = ?
		  WHERE status = ? AND claim_expires_at IS NOT NULL AND claim_expires_at <= ?`,
		toMillis(now),
		int(domain.StatusSecondReview),
		toMillis(now),
	)
	if err != nil {
		return 0, wrapBusy("release expired claims", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release rows affected: %w", err)
	}
	return int(affected), nil
}
