package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/inviteboard/internal/review/domain"
	"github.com/louisbranch/inviteboard/internal/review/storage"
)

// CastVote records a vote, bumps the matching counter, and evaluates the
// promotion rule, all in one transaction. The settings are read inside the
// same transaction so a runtime change applies to the next vote.
func (s *Store) CastVote(ctx context.Context, vote domain.Vote) (storage.VoteResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.VoteResult{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.VoteResult{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(vote.PostID) == "" {
		return storage.VoteResult{}, fmt.Errorf("post id is required")
	}
	if strings.TrimSpace(vote.UserID) == "" {
		return storage.VoteResult{}, fmt.Errorf("user id is required")
	}
	if vote.Type != domain.VoteUp && vote.Type != domain.VoteDown {
		return storage.VoteResult{}, fmt.Errorf("vote type is invalid")
	}
	createdAt := vote.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	createdAt = createdAt.UTC()

	tx, err := s.begin(ctx, "cast vote", nil)
	if err != nil {
		return storage.VoteResult{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	post, err := getPostTx(ctx, tx, vote.PostID)
	if err != nil {
		return storage.VoteResult{}, err
	}
	if !post.Status.VotingOpen() {
		return storage.VoteResult{}, storage.ErrInvalidState
	}
	if post.AuthorID == vote.UserID {
		return storage.VoteResult{}, storage.ErrSelfVote
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO votes (post_id, user_id, vote_type, created_at) VALUES (?, ?, ?, ?)`,
		vote.PostID,
		vote.UserID,
		int(vote.Type),
		toMillis(createdAt),
	)
	if err != nil {
		if isVoteUniqueViolation(err) {
			return storage.VoteResult{}, storage.ErrDuplicateVote
		}
		return storage.VoteResult{}, fmt.Errorf("insert vote: %w", err)
	}

	counter := "up_votes"
	if vote.Type == domain.VoteDown {
		counter = "down_votes"
		post.DownVotes++
	} else {
		post.UpVotes++
	}
	_, err = tx.ExecContext(
		ctx,
		`UPDATE posts SET `+counter+` = `+counter+` + 1, updated_at = ? WHERE id = ?`,
		toMillis(createdAt),
		vote.PostID,
	)
	if err != nil {
		return storage.VoteResult{}, fmt.Errorf("bump vote counter: %w", err)
	}

	settings, err := getSettingsTx(ctx, tx)
	if err != nil {
		return storage.VoteResult{}, err
	}

	outcome := settings.Decide(post.UpVotes, post.DownVotes)
	switch outcome {
	case domain.TallyPromoted:
		_, err = tx.ExecContext(
			ctx,
			`UPDATE posts SET status = ?, updated_at = ? WHERE id = ?`,
			int(domain.StatusSecondReview),
			toMillis(createdAt),
			vote.PostID,
		)
		if err != nil {
			return storage.VoteResult{}, fmt.Errorf("promote post: %w", err)
		}
	case domain.TallyRejected:
		_, err = tx.ExecContext(
			ctx,
			`UPDATE posts SET status = ?, reject_reason = ?, reviewed_at = ?, updated_at = ? WHERE id = ?`,
			int(domain.StatusRejected),
			"community vote below approval threshold",
			toMillis(createdAt),
			toMillis(createdAt),
			vote.PostID,
		)
		if err != nil {
			return storage.VoteResult{}, fmt.Errorf("reject post: %w", err)
		}
	}

	updated, err := getPostTx(ctx, tx, vote.PostID)
	if err != nil {
		return storage.VoteResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return storage.VoteResult{}, wrapBusy("commit cast vote", err)
	}
	return storage.VoteResult{Post: updated, Outcome: outcome}, nil
}

func getPostTx(ctx context.Context, tx *sql.Tx, id string) (domain.Post, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Post{}, storage.ErrNotFound
		}
		return domain.Post{}, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}
