package engine

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/louisbranch/inviteboard/internal/platform/errors"
	"github.com/louisbranch/inviteboard/internal/review/domain"
	"github.com/louisbranch/inviteboard/internal/review/storage"
)

// Submit validates and records a new invite application. The post enters
// first review immediately; there is no pre-voting moderation gate. An
// author with another open or approved application is turned away.
func (e *Engine) Submit(ctx context.Context, caller domain.Identity, input domain.SubmitInput) (post domain.Post, err error) {
	ctx, span := e.startSpan(ctx, "engine.Submit")
	defer func() { finishSpan(span, err) }()
	ctx, cancel := boundStorage(ctx)
	defer cancel()

	if err = requireCaller(caller); err != nil {
		return domain.Post{}, err
	}
	input.AuthorID = caller.UserID

	post, err = domain.NewPost(input, e.limits, e.clock, e.newID)
	if err != nil {
		return domain.Post{}, err
	}
	span.SetAttributes(attribute.String("post.id", post.ID))

	if err = e.observeCaller(ctx, caller); err != nil {
		return domain.Post{}, err
	}
	if err = e.ledger.CreatePost(ctx, post); err != nil {
		switch {
		case errors.Is(err, storage.ErrActiveApplication):
			err = apperrors.WithMetadata(apperrors.CodeApplicationInFlight,
				"an open application already exists for this author",
				map[string]string{"author_id": caller.UserID})
		case errors.Is(err, storage.ErrApplicationGranted):
			err = apperrors.WithMetadata(apperrors.CodeApplicationGranted,
				"this author already holds an approved application",
				map[string]string{"author_id": caller.UserID})
		default:
			err = storageFailure("submit", err)
		}
		return domain.Post{}, err
	}
	return post, nil
}

// GetPost returns one post redacted for the viewer.
func (e *Engine) GetPost(ctx context.Context, caller domain.Identity, postID string) (post domain.Post, err error) {
	ctx, span := e.startSpan(ctx, "engine.GetPost")
	defer func() { finishSpan(span, err) }()
	ctx, cancel := boundStorage(ctx)
	defer cancel()

	if err = requireCaller(caller); err != nil {
		return domain.Post{}, err
	}
	post, err = e.ledger.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Post{}, apperrors.New(apperrors.CodeNotFound, "post not found")
		}
		return domain.Post{}, storageFailure("get post", err)
	}
	return post.RedactFor(caller), nil
}

// ListPosts returns one page of posts in submission order, each redacted
// for the viewer.
func (e *Engine) ListPosts(ctx context.Context, caller domain.Identity, query storage.PostQuery) (page storage.PostPage, err error) {
	ctx, span := e.startSpan(ctx, "engine.ListPosts")
	defer func() { finishSpan(span, err) }()
	ctx, cancel := boundStorage(ctx)
	defer cancel()

	if err = requireCaller(caller); err != nil {
		return storage.PostPage{}, err
	}
	page, err = e.ledger.ListPosts(ctx, query)
	if err != nil {
		return storage.PostPage{}, storageFailure("list posts", err)
	}
	for i := range page.Posts {
		page.Posts[i] = page.Posts[i].RedactFor(caller)
	}
	return page, nil
}

// CastVote records one community vote and applies the promotion rule in
// the same transaction. The returned outcome reports whether this vote
// promoted or rejected the post.
func (e *Engine) CastVote(ctx context.Context, caller domain.Identity, postID string, voteType domain.VoteType) (result storage.VoteResult, err error) {
	ctx, span := e.startSpan(ctx, "engine.CastVote")
	defer func() { finishSpan(span, err) }()
	ctx, cancel := boundStorage(ctx)
	defer cancel()

	if err = requireCaller(caller); err != nil {
		return storage.VoteResult{}, err
	}
	if voteType != domain.VoteUp && voteType != domain.VoteDown {
		return storage.VoteResult{}, apperrors.New(apperrors.CodeVoteTypeInvalid, "vote type must be up or down")
	}
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return storage.VoteResult{}, apperrors.New(apperrors.CodeNotFound, "post not found")
	}
	span.SetAttributes(attribute.String("post.id", postID))

	if err = e.observeCaller(ctx, caller); err != nil {
		return storage.VoteResult{}, err
	}
	result, err = e.ledger.CastVote(ctx, domain.Vote{
		PostID:    postID,
		UserID:    caller.UserID,
		Type:      voteType,
		CreatedAt: e.now(),
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			err = apperrors.New(apperrors.CodeNotFound, "post not found")
		case errors.Is(err, storage.ErrInvalidState):
			err = apperrors.New(apperrors.CodePostNotVotingOpen, "voting is closed for this post")
		case errors.Is(err, storage.ErrSelfVote):
			err = apperrors.New(apperrors.CodeVoteOwnPost, "authors cannot vote on their own application")
		case errors.Is(err, storage.ErrDuplicateVote):
			err = apperrors.New(apperrors.CodeVoteDuplicate, "vote already recorded for this post")
		default:
			err = storageFailure("cast vote", err)
		}
		return storage.VoteResult{}, err
	}
	result.Post = result.Post.RedactFor(caller)
	return result, nil
}

// Stats returns one consistent snapshot of ledger counts.
func (e *Engine) Stats(ctx context.Context) (stats storage.Stats, err error) {
	ctx, span := e.startSpan(ctx, "engine.Stats")
	defer func() { finishSpan(span, err) }()
	ctx, cancel := boundStorage(ctx)
	defer cancel()

	stats, err = e.ledger.Stats(ctx, e.now())
	if err != nil {
		return storage.Stats{}, storageFailure("stats", err)
	}
	return stats, nil
}
