package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/louisbranch/inviteboard/internal/platform/errors"
)

// Status is the lifecycle state of an invite application post.
type Status int

const (
	// StatusPending is reserved for a pre-voting moderation gate. No such
	// gate is configured, so submissions skip straight to first review.
	StatusPending Status = iota
	// StatusFirstReview means community voting is open.
	StatusFirstReview
	// StatusSecondReview means the post awaits a trusted reviewer.
	StatusSecondReview
	// StatusApproved is terminal; an invite code was disclosed.
	StatusApproved
	// StatusRejected is terminal, by community vote or reviewer decision.
	StatusRejected
)

// String returns the wire form of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFirstReview:
		return "first_review"
	case StatusSecondReview:
		return "second_review"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// VotingOpen reports whether votes are accepted in this state.
func (s Status) VotingOpen() bool {
	return s == StatusPending || s == StatusFirstReview
}

// Terminal reports whether the state admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Open reports whether the application is still in flight.
func (s Status) Open() bool {
	return !s.Terminal()
}

// PostLimits bounds submission input sizes, in runes.
type PostLimits struct {
	TitleMax   int
	ContentMax int
}

// DefaultPostLimits are applied when a limit is unset.
var DefaultPostLimits = PostLimits{TitleMax: 120, ContentMax: 4000}

// Post is an invite application. Owned by the ledger store; mutated only
// through engine transitions or vote application.
type Post struct {
	ID           string
	AuthorID     string
	Title        string
	Content      string
	Status       Status
	UpVotes      int
	DownVotes    int
	ReviewerID   string    // set on claim, kept on terminal decision
	ClaimExpires time.Time // zero when no claim is held
	InviteCode   string    // set on approval, disclosed to the author only
	RejectReason string
	ReviewedAt   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SubmitInput describes a new application.
type SubmitInput struct {
	AuthorID string
	Title    string
	Content  string
}

// NewPost validates input and creates a post in first review with a
// generated ID and timestamps.
func NewPost(input SubmitInput, limits PostLimits, now func() time.Time, idGenerator func() (string, error)) (Post, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = NewID
	}
	if limits.TitleMax <= 0 {
		limits.TitleMax = DefaultPostLimits.TitleMax
	}
	if limits.ContentMax <= 0 {
		limits.ContentMax = DefaultPostLimits.ContentMax
	}

	title := strings.TrimSpace(input.Title)
	content := strings.TrimSpace(input.Content)
	if title == "" || utf8.RuneCountInString(title) > limits.TitleMax {
		return Post{}, errors.New(errors.CodePostTitleInvalid, "title is required and bounded")
	}
	if content == "" || utf8.RuneCountInString(content) > limits.ContentMax {
		return Post{}, errors.New(errors.CodePostContentInvalid, "content is required and bounded")
	}

	postID, err := idGenerator()
	if err != nil {
		return Post{}, errors.Wrap(errors.CodeUnknown, "generate post id", err)
	}

	createdAt := now().UTC()
	return Post{
		ID:        postID,
		AuthorID:  input.AuthorID,
		Title:     title,
		Content:   content,
		Status:    StatusFirstReview,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}

// TotalVotes returns the accumulated vote count.
func (p Post) TotalVotes() int {
	return p.UpVotes + p.DownVotes
}

// Claimed reports whether a reviewer currently holds the claim. Terminal
// posts keep their reviewer for the record but hold no claim.
func (p Post) Claimed() bool {
	return p.ReviewerID != "" && !p.Status.Terminal()
}

// RedactFor strips fields the viewer may not see: the invite code is
// disclosed to the author and admins only.
func (p Post) RedactFor(viewer Identity) Post {
	if viewer.UserID == p.AuthorID || viewer.Role == RoleAdmin {
		return p
	}
	p.InviteCode = ""
	return p
}
