package audit

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"tradedesk/internal/models"
	"tradedesk/internal/repository"
)

// Recorder appends to the immutable audit trail. Writes are best-effort:
// a failed write is logged and the caller's decision proceeds unchanged.
type Recorder struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (r *Recorder) Record(ctx context.Context, actor, action, entity string, entityID uint64, detail map[string]any) {
	if r == nil || r.Repo == nil {
		return
	}
	var raw []byte
	if len(detail) > 0 {
		raw, _ = json.Marshal(detail)
	}
	entry := &models.AuditEntry{
		Actor:    actor,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Detail:   raw,
	}
	if err := r.Repo.InsertAuditEntry(ctx, entry); err != nil && r.Logger != nil {
		r.Logger.Warn("audit write failed",
			zap.String("action", action),
			zap.String("entity", entity),
			zap.Error(err),
		)
	}
}
