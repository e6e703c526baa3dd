// Package errors provides structured error handling for the review engine.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Post errors
	CodePostTitleInvalid      Code = "POST_TITLE_INVALID"
	CodePostContentInvalid    Code = "POST_CONTENT_INVALID"
	CodePostNotVotingOpen     Code = "POST_NOT_VOTING_OPEN"
	CodePostNotInSecondReview Code = "POST_NOT_IN_SECOND_REVIEW"
	CodePostAlreadyFinalized  Code = "POST_ALREADY_FINALIZED"
	CodeApplicationInFlight   Code = "APPLICATION_IN_FLIGHT"
	CodeApplicationGranted    Code = "APPLICATION_GRANTED"

	// Vote errors
	CodeVoteDuplicate   Code = "VOTE_DUPLICATE"
	CodeVoteOwnPost     Code = "VOTE_OWN_POST"
	CodeVoteTypeInvalid Code = "VOTE_TYPE_INVALID"

	// Review queue errors
	CodeReviewerNotEligible Code = "REVIEWER_NOT_ELIGIBLE"
	CodeClaimHeldElsewhere  Code = "CLAIM_HELD_ELSEWHERE"
	CodeClaimNotHeld        Code = "CLAIM_NOT_HELD"
	CodeInviteCodeEmpty     Code = "INVITE_CODE_EMPTY"

	// Settings errors
	CodeSettingsInvalid Code = "SETTINGS_INVALID"
	CodeAdminOnly       Code = "ADMIN_ONLY"

	// Identity errors
	CodeIdentityMissing Code = "IDENTITY_MISSING"

	// Storage errors
	CodeNotFound    Code = "NOT_FOUND"
	CodeUnavailable Code = "UNAVAILABLE"
)

// Kind groups codes into the retry taxonomy callers act on.
type Kind string

const (
	// KindValidation marks malformed input; the caller must correct it.
	KindValidation Kind = "validation"
	// KindForbidden marks a role or eligibility failure; not retried.
	KindForbidden Kind = "forbidden"
	// KindConflict marks a lost race or duplicate; the caller may retry
	// the whole read-modify-write from scratch.
	KindConflict Kind = "conflict"
	// KindInvalidState marks an illegal transition from the current state;
	// the caller should re-fetch before acting again.
	KindInvalidState Kind = "invalid_state"
	// KindNotFound marks a missing record.
	KindNotFound Kind = "not_found"
	// KindUnavailable marks a transient storage failure; safe to retry
	// with backoff.
	KindUnavailable Kind = "unavailable"
	// KindInternal marks everything else.
	KindInternal Kind = "internal"
)

// Kind maps domain codes onto the retry taxonomy.
func (c Code) Kind() Kind {
	switch c {
	case CodePostTitleInvalid,
		CodePostContentInvalid,
		CodeVoteTypeInvalid,
		CodeInviteCodeEmpty,
		CodeSettingsInvalid:
		return KindValidation

	case CodeReviewerNotEligible,
		CodeVoteOwnPost,
		CodeAdminOnly,
		CodeIdentityMissing:
		return KindForbidden

	case CodeVoteDuplicate,
		CodeClaimHeldElsewhere,
		CodeClaimNotHeld:
		return KindConflict

	case CodePostNotVotingOpen,
		CodePostNotInSecondReview,
		CodePostAlreadyFinalized,
		CodeApplicationInFlight,
		CodeApplicationGranted:
		return KindInvalidState

	case CodeNotFound:
		return KindNotFound

	case CodeUnavailable:
		return KindUnavailable

	default:
		return KindInternal
	}
}

// HTTPStatus maps a kind onto the HTTP status the JSON API returns.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindInvalidState:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
