package risk

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tradedesk/internal/audit"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
)

// Confirmation phrases for the dangerous mode switches. A mismatch is a
// validation error, never retried.
const (
	ConfirmActivate   = "HALT ALL TRADING"
	ConfirmDeactivate = "RESUME TRADING"
)

var ErrConfirmationMismatch = fmt.Errorf("risk: confirmation phrase mismatch")

// KillSwitch is an append-only activate/deactivate log; current state is the
// most recent event.
type KillSwitch struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Audit  *audit.Recorder
}

func (k *KillSwitch) IsActive(ctx context.Context) (bool, string, error) {
	if k == nil || k.Repo == nil {
		return false, "", nil
	}
	event, err := k.Repo.LatestKillSwitchEvent(ctx)
	if err != nil {
		return false, "", err
	}
	if event == nil {
		return false, "", nil
	}
	return event.Active, event.Reason, nil
}

func (k *KillSwitch) Activate(ctx context.Context, actor, reason, confirm string) error {
	if confirm != ConfirmActivate {
		return ErrConfirmationMismatch
	}
	return k.append(ctx, true, actor, reason)
}

func (k *KillSwitch) Deactivate(ctx context.Context, actor, reason, confirm string) error {
	if confirm != ConfirmDeactivate {
		return ErrConfirmationMismatch
	}
	return k.append(ctx, false, actor, reason)
}

func (k *KillSwitch) append(ctx context.Context, active bool, actor, reason string) error {
	if k == nil || k.Repo == nil {
		return nil
	}
	event := &models.KillSwitchEvent{
		Active: active,
		Reason: reason,
		Actor:  actor,
	}
	if err := k.Repo.InsertKillSwitchEvent(ctx, event); err != nil {
		return err
	}
	k.Audit.Record(ctx, actor, "kill_switch", "kill_switch_event", event.ID, map[string]any{
		"active": active,
		"reason": reason,
	})
	if k.Logger != nil {
		k.Logger.Warn("kill switch state changed",
			zap.Bool("active", active),
			zap.String("actor", actor),
			zap.String("reason", reason),
		)
	}
	return nil
}
