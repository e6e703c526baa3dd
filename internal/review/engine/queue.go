package engine

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/inviteboard/internal/platform/errors"
	"github.com/louisbranch/inviteboard/internal/review/domain"
	"github.com/louisbranch/inviteboard/internal/review/storage"
)

// NextReviewable hands an eligible reviewer the oldest unclaimed
// second-review post outside their exclusion list, claiming it atomically.
// An empty queue returns a zero post with a zero count and no error. The
// exclusion list is the caller's session state; it is never persisted, so
// a skipped post remains available to every other reviewer.
func (e *Engine) NextReviewable(ctx context.Context, caller domain.Identity, excludeIDs []string) (post domain.Post, eligible int, err error) {
	ctx, span := e.startSpan(ctx, "engine.NextReviewable")
	defer func() { finishSpan(span, err) }()
	ctx, cancel := boundStorage(ctx)
	defer cancel()

	if err = requireReviewer(caller); err != nil {
		return domain.Post{}, 0, err
	}
	if err = e.observeCaller(ctx, caller); err != nil {
		return domain.Post{}, 0, err
	}

	// A lost claim race means another reviewer took the candidate between
	// scan and update; rescan for the next one.
	for attempt := 0; attempt <= claimRetries; attempt++ {
		post, eligible, err = e.ledger.NextReviewable(ctx, caller.UserID, excludeIDs, e.now(), e.claimTTL)
		switch {
		case err == nil:
			span.SetAttributes(attribute.String("post.id", post.ID), attribute.Int("queue.eligible", eligible))
			return post, eligible, nil
		case errors.Is(err, storage.ErrNotFound):
			return domain.Post{}, 0, nil
		case errors.Is(err, storage.ErrClaimConflict), errors.Is(err, storage.ErrBusy):
			continue
		default:
			return domain.Post{}, 0, storageFailure("next reviewable", err)
		}
	}
	if errors.Is(err, storage.ErrBusy) {
		return domain.Post{}, 0, storageFailure("next reviewable", err)
	}
	return domain.Post{}, 0, apperrors.New(apperrors.CodeClaimHeldElsewhere,
		"lost the claim race repeatedly; retry")
}

// ClaimPost claims one specific second-review post for the caller. A
// repeat claim by the current holder succeeds without extending the
// deadline.
func (e *Engine) ClaimPost(ctx context.Context, caller domain.Identity, postID string) (post domain.Post, err error) {
	ctx, span := e.startSpan(ctx, "engine.ClaimPost")
	defer func() { finishSpan(span, err) }()
	ctx, cancel := boundStorage(ctx)
	defer cancel()

	if err = requireReviewer(caller); err != nil {
		return domain.Post{}, err
	}
	postID = strings.TrimSpace(postID)
	span.SetAttributes(attribute.String("post.id", postID))

	if err = e.observeCaller(ctx, caller); err != nil {
		return domain.Post{}, err
	}
	post, err = e.ledger.ClaimPost(ctx, postID, caller.UserID, e.now(), e.claimTTL)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			err = apperrors.New(apperrors.CodeNotFound, "post not found")
		case errors.Is(err, storage.ErrInvalidState):
			err = e.reviewStateError(ctx, postID)
		case errors.Is(err, storage.ErrClaimConflict):
			err = apperrors.New(apperrors.CodeClaimHeldElsewhere, "another reviewer holds this claim")
		default:
			err = storageFailure("claim post", err)
		}
		return domain.Post{}, err
	}
	return post, nil
}

// Skip releases the caller's claim without changing the post status. The
// post returns to the pool immediately and may be handed to a different
// reviewer at once.
func (e *Engine) Skip(ctx context.Context, caller domain.Identity, postID string) (err error) {
	ctx, span := e.startSpan(ctx, "engine.Skip")
	defer func() { finishSpan(span, err) }()
	ctx, cancel := boundStorage(ctx)
	defer cancel()

	if err = requireReviewer(caller); err != nil {
		return err
	}
	postID = strings.TrimSpace(postID)
	span.SetAttributes(attribute.String("post.id", postID))

	if err = e.observeCaller(ctx, caller); err != nil {
		return err
	}
	if err = e.ledger.ReleaseClaim(ctx, postID, caller.UserID); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			err = apperrors.New(apperrors.CodeNotFound, "post not found")
		case errors.Is(err, storage.ErrInvalidState):
			err = e.reviewStateError(ctx, postID)
		case errors.Is(err, storage.ErrClaimNotHeld):
			err = apperrors.New(apperrors.CodeClaimNotHeld, "caller does not hold the claim")
		default:
			err = storageFailure("skip", err)
		}
		return err
	}
	return nil
}

// Approve closes a claimed post as approved and records the invite code.
// Only the claim holder may approve, and the code must be non-empty.
func (e *Engine) Approve(ctx context.Context, caller domain.Identity, postID, inviteCode string) (post domain.Post, err error) {
	ctx, span := e.startSpan(ctx, "engine.Approve")
	defer func() { finishSpan(span, err) }()
	ctx, cancel := boundStorage(ctx)
	defer cancel()

	if err = requireReviewer(caller); err != nil {
		return domain.Post{}, err
	}
	inviteCode = strings.TrimSpace(inviteCode)
	if inviteCode == "" {
		return domain.Post{}, apperrors.New(apperrors.CodeInviteCodeEmpty, "approval requires an invite code")
	}
	return e.finalize(ctx, span, caller, postID, domain.StatusApproved, inviteCode, "")
}

// Reject closes a claimed post as rejected. The reason is optional and
// shown to the author as given.
func (e *Engine) Reject(ctx context.Context, caller domain.Identity, postID, reason string) (post domain.Post, err error) {
	ctx, span := e.startSpan(ctx, "engine.Reject")
	defer func() { finishSpan(span, err) }()
	ctx, cancel := boundStorage(ctx)
	defer cancel()

	if err = requireReviewer(caller); err != nil {
		return domain.Post{}, err
	}
	return e.finalize(ctx, span, caller, postID, domain.StatusRejected, "", strings.TrimSpace(reason))
}

func (e *Engine) finalize(ctx context.Context, span trace.Span, caller domain.Identity, postID string, status domain.Status, inviteCode, reason string) (domain.Post, error) {
	postID = strings.TrimSpace(postID)
	span.SetAttributes(attribute.String("post.id", postID), attribute.String("post.status", status.String()))

	if err := e.observeCaller(ctx, caller); err != nil {
		return domain.Post{}, err
	}
	post, err := e.ledger.FinalizePost(ctx, postID, caller.UserID, status, inviteCode, reason, e.now())
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			err = apperrors.New(apperrors.CodeNotFound, "post not found")
		case errors.Is(err, storage.ErrInvalidState):
			err = e.reviewStateError(ctx, postID)
		case errors.Is(err, storage.ErrClaimNotHeld):
			err = apperrors.New(apperrors.CodeClaimNotHeld, "only the claim holder may decide this post")
		default:
			err = storageFailure("finalize", err)
		}
		return domain.Post{}, err
	}
	return post, nil
}

// reviewStateError distinguishes a post that is already decided from one
// that has not reached second review yet.
func (e *Engine) reviewStateError(ctx context.Context, postID string) error {
	post, err := e.ledger.GetPost(ctx, postID)
	if err == nil && post.Status.Terminal() {
		return apperrors.New(apperrors.CodePostAlreadyFinalized, "post already has a terminal decision")
	}
	return apperrors.New(apperrors.CodePostNotInSecondReview, "post is not in second review")
}

// ReleaseExpiredClaims sweeps claims past their deadline back into the
// pool and reports how many were released. Called by the app sweeper on a
// poll interval; also usable as an external maintenance hook.
func (e *Engine) ReleaseExpiredClaims(ctx context.Context) (released int, err error) {
	ctx, span := e.startSpan(ctx, "engine.ReleaseExpiredClaims")
	defer func() { finishSpan(span, err) }()
	ctx, cancel := boundStorage(ctx)
	defer cancel()

	released, err = e.ledger.ReleaseExpiredClaims(ctx, e.now())
	if err != nil {
		return 0, storageFailure("release expired claims", err)
	}
	span.SetAttributes(attribute.Int("claims.released", released))
	return released, nil
}
