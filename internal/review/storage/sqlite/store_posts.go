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

// CreatePost inserts a new application after checking the author has no
// other open or approved one. The check and the insert share a transaction
// so two concurrent submissions cannot both pass.
func (s *Store) CreatePost(ctx context.Context, post domain.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(post.ID) == "" {
		return fmt.Errorf("post id is required")
	}
	if strings.TrimSpace(post.AuthorID) == "" {
		return fmt.Errorf("author id is required")
	}

	tx, err := s.begin(ctx, "create post", nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Approved is the highest non-rejected status, so MAX distinguishes an
	// author who already holds an invite from one with a pending decision.
	var blocking sql.NullInt64
	err = tx.QueryRowContext(
		ctx,
		`SELECT MAX(status) FROM posts WHERE author_id = ? AND status != ?`,
		post.AuthorID,
		int(domain.StatusRejected),
	).Scan(&blocking)
	if err != nil {
		return fmt.Errorf("check existing applications: %w", err)
	}
	if blocking.Valid {
		if domain.Status(blocking.Int64) == domain.StatusApproved {
			return storage.ErrApplicationGranted
		}
		return storage.ErrActiveApplication
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO posts (
		   id, author_id, title, content, status, up_votes, down_votes,
		   invite_code, reject_reason, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID,
		post.AuthorID,
		post.Title,
		post.Content,
		int(post.Status),
		post.UpVotes,
		post.DownVotes,
		post.InviteCode,
		post.RejectReason,
		toMillis(post.CreatedAt),
		toMillis(post.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapBusy("commit create post", err)
	}
	return nil
}

// GetPost returns one post by ID.
func (s *Store) GetPost(ctx context.Context, id string) (domain.Post, error) {
	if err := ctx.Err(); err != nil {
		return domain.Post{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Post{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Post{}, fmt.Errorf("post id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`,
		id,
	)
	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Post{}, storage.ErrNotFound
		}
		return domain.Post{}, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// ListPosts returns one page of posts in submission order (oldest first).
// The page token encodes the last row's position.
func (s *Store) ListPosts(ctx context.Context, query storage.PostQuery) (storage.PostPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.PostPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.PostPage{}, fmt.Errorf("storage is not configured")
	}
	if query.PageSize <= 0 {
		return storage.PostPage{}, fmt.Errorf("page size must be greater than zero")
	}

	conditions := make([]string, 0, 3)
	args := make([]any, 0, 5)
	if query.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, int(*query.Status))
	}
	if author := strings.TrimSpace(query.AuthorID); author != "" {
		conditions = append(conditions, "author_id = ?")
		args = append(args, author)
	}
	if token := strings.TrimSpace(query.PageToken); token != "" {
		afterMillis, afterID, err := decodePageToken(token)
		if err != nil {
			return storage.PostPage{}, err
		}
		conditions = append(conditions, "(created_at > ? OR (created_at = ? AND id > ?))")
		args = append(args, afterMillis, afterMillis, afterID)
	}

	querySQL := `SELECT ` + postColumns + ` FROM posts`
	if len(conditions) > 0 {
		querySQL += " WHERE " + strings.Join(conditions, " AND ")
	}
	querySQL += " ORDER BY created_at ASC, id ASC LIMIT ?"
	args = append(args, query.PageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return storage.PostPage{}, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	page := storage.PostPage{Posts: make([]domain.Post, 0, query.PageSize)}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return storage.PostPage{}, fmt.Errorf("list posts: %w", err)
		}
		page.Posts = append(page.Posts, post)
	}
	if err := rows.Err(); err != nil {
		return storage.PostPage{}, fmt.Errorf("list posts: %w", err)
	}
	if len(page.Posts) > query.PageSize {
		last := page.Posts[query.PageSize-1]
		page.NextPageToken = encodePageToken(last)
		page.Posts = page.Posts[:query.PageSize]
	}
	return page, nil
}

func encodePageToken(post domain.Post) string {
	return fmt.Sprintf("%d|%s", toMillis(post.CreatedAt), post.ID)
}

func decodePageToken(token string) (int64, string, error) {
	millisPart, idPart, ok := strings.Cut(token, "|")
	if !ok {
		return 0, "", fmt.Errorf("malformed page token")
	}
	var millis int64
	if _, err := fmt.Sscanf(millisPart, "%d", &millis); err != nil {
		return 0, "", fmt.Errorf("malformed page token")
	}
	return millis, idPart, nil
}

// Stats returns a single consistent snapshot of ledger counts. All reads
// happen in one transaction so the counts never interleave with writes.
func (s *Store) Stats(ctx context.Context, now time.Time) (storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return storage.Stats{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Stats{}, fmt.Errorf("storage is not configured")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()

	tx, err := s.begin(ctx, "stats", &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return storage.Stats{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stats := storage.Stats{
		ByStatus: make(map[domain.Status]int),
		TakenAt:  now,
	}

	rows, err := tx.QueryContext(ctx, `SELECT status, COUNT(1) FROM posts GROUP BY status`)
	if err != nil {
		return storage.Stats{}, fmt.Errorf("count posts by status: %w", err)
	}
	for rows.Next() {
		var status int64
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			_ = rows.Close()
			return storage.Stats{}, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[domain.Status(status)] = count
		stats.TotalPosts += count
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return storage.Stats{}, fmt.Errorf("iterate status counts: %w", err)
	}
	if err := rows.Close(); err != nil {
		return storage.Stats{}, fmt.Errorf("close status counts: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM votes`).Scan(&stats.TotalVotes); err != nil {
		return storage.Stats{}, fmt.Errorf("count votes: %w", err)
	}

	err = tx.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM posts
		  WHERE status = ? AND reviewer_id IS NOT NULL AND claim_expires_at > ?`,
		int(domain.StatusSecondReview),
		toMillis(now),
	).Scan(&stats.OpenClaims)
	if err != nil {
		return storage.Stats{}, fmt.Errorf("count open claims: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&stats.TotalUsers); err != nil {
		return storage.Stats{}, fmt.Errorf("count users: %w", err)
	}
	// Certified reviewers include admins, who review with the same powers.
	err = tx.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM users WHERE role IN (?, ?)`,
		domain.RoleCertified.String(),
		domain.RoleAdmin.String(),
	).Scan(&stats.CertifiedUsers)
	if err != nil {
		return storage.Stats{}, fmt.Errorf("count certified users: %w", err)
	}

	dayStart := toMillis(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC))
	err = tx.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM posts WHERE created_at >= ?`,
		dayStart,
	).Scan(&stats.TodayPosts)
	if err != nil {
		return storage.Stats{}, fmt.Errorf("count today posts: %w", err)
	}
	err = tx.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM posts
		  WHERE status = ? AND reviewed_at IS NOT NULL AND reviewed_at >= ?`,
		int(domain.StatusApproved),
		dayStart,
	).Scan(&stats.TodayApproved)
	if err != nil {
		return storage.Stats{}, fmt.Errorf("count today approved: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.Stats{}, wrapBusy("commit stats", err)
	}
	return stats, nil
}
