// Package storage defines the ledger store contract the review engine
// depends on. Every mutating operation is a single atomic transaction:
// read current state, validate, write new state. Implementations report
// outcome failures through the sentinel errors below so the engine can map
// them onto the caller-facing taxonomy.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/inviteboard/internal/review/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrInvalidState indicates the post's current status does not allow the
// attempted transition.
var ErrInvalidState = errors.New("state does not allow transition")

// ErrDuplicateVote indicates a (post, user) vote already exists.
var ErrDuplicateVote = errors.New("vote already recorded")

// ErrSelfVote indicates an author voting on their own post.
var ErrSelfVote = errors.New("author cannot vote on own post")

// ErrClaimConflict indicates another reviewer holds the claim.
var ErrClaimConflict = errors.New("claim held by another reviewer")

// ErrClaimNotHeld indicates the caller does not hold the claim required
// for the attempted transition.
var ErrClaimNotHeld = errors.New("claim not held by caller")

// ErrActiveApplication indicates the author already has an open
// application awaiting a decision.
var ErrActiveApplication = errors.New("author has an active application")

// ErrApplicationGranted indicates the author already holds an approved
// application and cannot apply again.
var ErrApplicationGranted = errors.New("author already has an approved application")

// ErrBusy indicates the store lost a lock race with another writer. The
// condition is transient; callers may retry.
var ErrBusy = errors.New("ledger store is busy")

// VoteResult reports the post after an accepted vote together with the
// tally decision that was applied in the same transaction.
type VoteResult struct {
	Post    domain.Post
	Outcome domain.TallyOutcome
}

// PostPage is one page of posts in submission order.
type PostPage struct {
	Posts         []domain.Post
	NextPageToken string
}

// PostQuery filters a post listing.
type PostQuery struct {
	// Status filters to a single status when set.
	Status *domain.Status
	// AuthorID filters to one author when set.
	AuthorID  string
	PageSize  int
	PageToken string
}

// Stats is one consistent snapshot of ledger counts. User counts cover
// the identities observed acting through the engine; "today" counters
// roll over at UTC midnight.
type Stats struct {
	TotalPosts     int
	ByStatus       map[domain.Status]int
	TotalVotes     int
	OpenClaims     int
	TotalUsers     int
	CertifiedUsers int
	TodayPosts     int
	TodayApproved  int
	TakenAt        time.Time
}

// Ledger persists posts, votes, review claims, and tally settings.
type Ledger interface {
	// CreatePost inserts a new post after checking the author has no
	// other open or approved application. Returns ErrActiveApplication
	// for an open one and ErrApplicationGranted for an approved one.
	CreatePost(ctx context.Context, post domain.Post) error

	// RecordUser upserts the caller facts observed on an acting
	// operation, feeding the user counts in Stats.
	RecordUser(ctx context.Context, identity domain.Identity, seenAt time.Time) error

	// GetPost returns one post by ID.
	GetPost(ctx context.Context, id string) (domain.Post, error)

	// ListPosts returns one page of posts, oldest first.
	ListPosts(ctx context.Context, query PostQuery) (PostPage, error)

	// CastVote atomically records a vote, bumps the matching counter, and
	// evaluates the promotion rule against the settings read in the same
	// transaction. Returns ErrNotFound, ErrInvalidState when voting is
	// closed, ErrSelfVote, or ErrDuplicateVote.
	CastVote(ctx context.Context, vote domain.Vote) (VoteResult, error)

	// ClaimPost claims a specific second-review post for a reviewer via a
	// conditional update. A repeat claim by the current holder succeeds
	// and returns the post unchanged. Returns ErrClaimConflict when held
	// by someone else and ErrInvalidState outside second review.
	ClaimPost(ctx context.Context, postID, reviewerID string, now time.Time, ttl time.Duration) (domain.Post, error)

	// NextReviewable picks the oldest unclaimed second-review post not in
	// exclude and claims it atomically. When none match it returns
	// ErrNotFound alongside the count of posts the reviewer could still
	// draw; the count is also returned on success.
	NextReviewable(ctx context.Context, reviewerID string, exclude []string, now time.Time, ttl time.Duration) (domain.Post, int, error)

	// ReleaseClaim releases the claim the reviewer holds, leaving the
	// status untouched. Returns ErrClaimNotHeld.
	ReleaseClaim(ctx context.Context, postID, reviewerID string) error

	// FinalizePost moves a claimed second-review post to a terminal
	// status, recording the reviewer and either the invite code or the
	// rejection reason. Returns ErrNotFound, ErrInvalidState, or
	// ErrClaimNotHeld.
	FinalizePost(ctx context.Context, postID, reviewerID string, status domain.Status, inviteCode, rejectReason string, now time.Time) (domain.Post, error)

	// ReleaseExpiredClaims returns claims past their deadline to the pool
	// and reports how many were released.
	ReleaseExpiredClaims(ctx context.Context, now time.Time) (int, error)

	// Stats returns a single consistent snapshot of ledger counts.
	Stats(ctx context.Context, now time.Time) (Stats, error)

	// GetSettings returns the current tally settings.
	GetSettings(ctx context.Context) (domain.ReviewSettings, error)

	// PutSettings replaces the tally settings.
	PutSettings(ctx context.Context, settings domain.ReviewSettings) error
}
