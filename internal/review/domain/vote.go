package domain

import (
	"strings"
	"time"

	"github.com/louisbranch/inviteboard/internal/platform/errors"
)

// VoteType is the direction of a community vote.
type VoteType int

const (
	// VoteUp endorses the application.
	VoteUp VoteType = 1
	// VoteDown opposes the application.
	VoteDown VoteType = -1
)

// ParseVoteType maps the wire form of a vote direction.
func ParseVoteType(value string) (VoteType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "up":
		return VoteUp, nil
	case "down":
		return VoteDown, nil
	default:
		return 0, errors.New(errors.CodeVoteTypeInvalid, "vote type must be up or down")
	}
}

// String returns the wire form of the vote direction.
func (v VoteType) String() string {
	switch v {
	case VoteUp:
		return "up"
	case VoteDown:
		return "down"
	default:
		return "unknown"
	}
}

// Vote records one user's vote on one post. At most one vote exists per
// (post, user) pair.
type Vote struct {
	PostID    string
	UserID    string
	Type      VoteType
	CreatedAt time.Time
}
