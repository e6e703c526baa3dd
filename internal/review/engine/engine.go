// Package engine implements the review workflow: submission, community
// voting with the promotion rule, the reviewer work queue, and runtime
// settings. Every operation validates the caller, delegates the atomic
// read-validate-write to the ledger store, and maps store sentinels onto
// the caller-facing error taxonomy.
package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/inviteboard/internal/platform/errors"
	"github.com/louisbranch/inviteboard/internal/platform/timeouts"
	"github.com/louisbranch/inviteboard/internal/review/domain"
	"github.com/louisbranch/inviteboard/internal/review/storage"
)

// DefaultClaimTTL bounds how long a reviewer may sit on a claimed post
// before the claim returns to the pool.
const DefaultClaimTTL = 30 * time.Minute

// claimRetries bounds how many lost claim races NextReviewable absorbs
// before reporting the conflict to the caller.
const claimRetries = 3

// Config carries the engine dependencies. Ledger is required; everything
// else has a usable default.
type Config struct {
	Ledger      storage.Ledger
	Clock       func() time.Time
	IDGenerator func() (string, error)
	ClaimTTL    time.Duration
	Limits      domain.PostLimits
	Tracer      trace.Tracer
}

// Engine runs the review workflow against a ledger store.
type Engine struct {
	ledger   storage.Ledger
	clock    func() time.Time
	newID    func() (string, error)
	claimTTL time.Duration
	limits   domain.PostLimits
	tracer   trace.Tracer
}

// New builds an engine, applying defaults for unset optional dependencies.
func New(cfg Config) (*Engine, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("engine requires a ledger store")
	}
	e := &Engine{
		ledger:   cfg.Ledger,
		clock:    cfg.Clock,
		newID:    cfg.IDGenerator,
		claimTTL: cfg.ClaimTTL,
		limits:   cfg.Limits,
		tracer:   cfg.Tracer,
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.newID == nil {
		e.newID = domain.NewID
	}
	if e.claimTTL <= 0 {
		e.claimTTL = DefaultClaimTTL
	}
	if e.limits.TitleMax <= 0 {
		e.limits.TitleMax = domain.DefaultPostLimits.TitleMax
	}
	if e.limits.ContentMax <= 0 {
		e.limits.ContentMax = domain.DefaultPostLimits.ContentMax
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("github.com/louisbranch/inviteboard/internal/review/engine")
	}
	return e, nil
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

// startSpan opens a child span for one engine operation.
func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name)
}

// finishSpan records the outcome before ending the span.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// requireCaller rejects calls carrying no authenticated identity.
func requireCaller(caller domain.Identity) error {
	if caller.UserID == "" {
		return apperrors.New(apperrors.CodeIdentityMissing, "caller identity is required")
	}
	return nil
}

// requireReviewer rejects callers who may not perform stage-2 review.
func requireReviewer(caller domain.Identity) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if !caller.ReviewEligible() {
		return apperrors.WithMetadata(apperrors.CodeReviewerNotEligible,
			"stage-2 review requires admin role or sufficient trust",
			map[string]string{"user_id": caller.UserID})
	}
	return nil
}

// boundStorage caps the time one operation may spend in the ledger. The
// deadline surfaces as Unavailable through storageFailure.
func boundStorage(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeouts.Storage)
}

// storageFailure wraps transport-level store failures. Timeouts,
// cancellations, and lock contention surface as Unavailable so callers
// retry with backoff instead of treating them as terminal.
func storageFailure(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.Wrap(apperrors.CodeUnavailable, op+": storage unavailable", err)
	case errors.Is(err, storage.ErrBusy):
		return apperrors.Wrap(apperrors.CodeUnavailable, op+": storage busy", err)
	}
	return apperrors.Wrap(apperrors.CodeUnknown, op+" failed", err)
}

// observeCaller records the acting identity's facts, which feed the user
// counts in Stats. Read-only operations do not record.
func (e *Engine) observeCaller(ctx context.Context, caller domain.Identity) error {
	if err := e.ledger.RecordUser(ctx, caller, e.now()); err != nil {
		return storageFailure("record user", err)
	}
	return nil
}
