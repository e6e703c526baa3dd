package engine

import (
	"context"

	apperrors "github.com/louisbranch/inviteboard/internal/platform/errors"
	"github.com/louisbranch/inviteboard/internal/review/domain"
)

// Settings returns the current tally settings.
func (e *Engine) Settings(ctx context.Context, caller domain.Identity) (settings domain.ReviewSettings, err error) {
	ctx, span := e.startSpan(ctx, "engine.Settings")
	defer func() { finishSpan(span, err) }()
	ctx, cancel := boundStorage(ctx)
	defer cancel()

	if err = requireCaller(caller); err != nil {
		return domain.ReviewSettings{}, err
	}
	if !caller.CanManage() {
		return domain.ReviewSettings{}, apperrors.New(apperrors.CodeAdminOnly, "settings are admin-only")
	}
	settings, err = e.ledger.GetSettings(ctx)
	if err != nil {
		return domain.ReviewSettings{}, storageFailure("get settings", err)
	}
	return settings, nil
}

// UpdateSettings replaces the tally settings. The new values apply to the
// next tally evaluation; no restart is needed.
func (e *Engine) UpdateSettings(ctx context.Context, caller domain.Identity, settings domain.ReviewSettings) (err error) {
	ctx, span := e.startSpan(ctx, "engine.UpdateSettings")
	defer func() { finishSpan(span, err) }()
	ctx, cancel := boundStorage(ctx)
	defer cancel()

	if err = requireCaller(caller); err != nil {
		return err
	}
	if !caller.CanManage() {
		return apperrors.New(apperrors.CodeAdminOnly, "settings are admin-only")
	}
	if err = settings.Validate(); err != nil {
		return err
	}
	if err = e.observeCaller(ctx, caller); err != nil {
		return err
	}
	if err = e.ledger.PutSettings(ctx, settings); err != nil {
		return storageFailure("put settings", err)
	}
	return nil
}
