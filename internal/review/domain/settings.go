package domain

import (
	"fmt"

	"github.com/louisbranch/inviteboard/internal/platform/errors"
)

// ReviewSettings are the runtime-tunable promotion parameters. They are
// re-read from the ledger on every tally evaluation, so an admin change
// applies to the next vote without a restart.
type ReviewSettings struct {
	// MinVotes is the total vote count required before the promotion rule
	// is evaluated. Must be at least one; evaluation at zero total would
	// divide by zero.
	MinVotes int
	// ApprovalRate is the minimum up/(up+down) fraction required to
	// promote, inclusive.
	ApprovalRate float64
}

// DefaultReviewSettings seed a fresh ledger.
var DefaultReviewSettings = ReviewSettings{MinVotes: 10, ApprovalRate: 0.7}

// Validate rejects settings the tally rule cannot run under.
func (s ReviewSettings) Validate() error {
	if s.MinVotes < 1 {
		return errors.New(errors.CodeSettingsInvalid, "min_votes must be at least 1")
	}
	if s.ApprovalRate < 0 || s.ApprovalRate > 1 {
		return errors.New(errors.CodeSettingsInvalid,
			fmt.Sprintf("approval_rate %v outside [0, 1]", s.ApprovalRate))
	}
	return nil
}

// TallyOutcome is the result of one promotion-rule evaluation.
type TallyOutcome int

const (
	// TallyPending means the vote total has not reached min_votes yet.
	TallyPending TallyOutcome = iota
	// TallyPromoted moves the post to second review.
	TallyPromoted
	// TallyRejected closes the post by community vote.
	TallyRejected
)

// Decide evaluates the promotion rule for the given counters. The rate
// threshold is inclusive: rate == approval_rate promotes.
func (s ReviewSettings) Decide(upVotes, downVotes int) TallyOutcome {
	total := upVotes + downVotes
	if total < s.MinVotes {
		return TallyPending
	}
	rate := float64(upVotes) / float64(total)
	if rate >= s.ApprovalRate {
		return TallyPromoted
	}
	return TallyRejected
}
