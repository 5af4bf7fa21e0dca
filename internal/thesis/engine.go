package thesis

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tradedesk/internal/models"
	"tradedesk/internal/repository"
)

// ErrInvalidTransition is returned when the requested edge is not in the
// state machine. It is a validation error: surfaced immediately, never retried.
var ErrInvalidTransition = fmt.Errorf("thesis: invalid transition")

var ErrNotFound = fmt.Errorf("thesis: not found")

// allowedEdges is the full transition table. ARCHIVED is terminal;
// INVALIDATED can only be archived.
var allowedEdges = map[string][]string{
	models.ThesisActive: {
		models.ThesisStrengthening, models.ThesisConfirmed, models.ThesisWeakening, models.ThesisArchived,
	},
	models.ThesisStrengthening: {
		models.ThesisConfirmed, models.ThesisWeakening, models.ThesisActive, models.ThesisArchived,
	},
	models.ThesisConfirmed: {
		models.ThesisWeakening, models.ThesisArchived,
	},
	models.ThesisWeakening: {
		models.ThesisInvalidated, models.ThesisStrengthening, models.ThesisActive, models.ThesisArchived,
	},
	models.ThesisInvalidated: {
		models.ThesisArchived,
	},
	models.ThesisArchived: {},
}

// confidenceMultipliers scale signal confidence by thesis strength. An
// invalidated or archived thesis can never produce a tradable signal.
var confidenceMultipliers = map[string]float64{
	models.ThesisActive:        1.0,
	models.ThesisStrengthening: 1.1,
	models.ThesisConfirmed:     1.2,
	models.ThesisWeakening:     0.6,
	models.ThesisInvalidated:   0.0,
	models.ThesisArchived:      0.0,
}

// ConfidenceMultiplier returns the strength multiplier for a thesis status.
// Unknown statuses score zero rather than passing through unscaled.
func ConfidenceMultiplier(status string) float64 {
	m, ok := confidenceMultipliers[status]
	if !ok {
		return 0
	}
	return m
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to string) bool {
	for _, target := range allowedEdges[from] {
		if target == to {
			return true
		}
	}
	return false
}

type Engine struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

// Create persists a new thesis in the ACTIVE state.
func (e *Engine) Create(ctx context.Context, item *models.Thesis) error {
	if e == nil || e.Repo == nil || item == nil {
		return nil
	}
	if item.Status == "" {
		item.Status = models.ThesisActive
	}
	return e.Repo.InsertThesis(ctx, item)
}

// Update mutates non-status fields only; status changes go through Transition.
func (e *Engine) Update(ctx context.Context, id uint64, updates map[string]any) error {
	if e == nil || e.Repo == nil {
		return nil
	}
	return e.Repo.UpdateThesisFields(ctx, id, updates)
}

// Transition moves a thesis along an allowed edge, updating the row and
// appending an immutable version record in one transaction.
func (e *Engine) Transition(ctx context.Context, id uint64, newStatus, reason string, evidence map[string]any) error {
	if e == nil || e.Repo == nil {
		return nil
	}
	current, err := e.Repo.GetThesisByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("%w: id=%d", ErrNotFound, id)
	}
	if !CanTransition(current.Status, newStatus) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, newStatus)
	}

	var evidenceJSON []byte
	if len(evidence) > 0 {
		evidenceJSON, _ = json.Marshal(evidence)
	}
	version := &models.ThesisVersion{
		ThesisID:  id,
		OldStatus: current.Status,
		NewStatus: newStatus,
		Reason:    reason,
		Evidence:  evidenceJSON,
	}
	err = e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := e.Repo.UpdateThesisStatusTx(ctx, tx, id, newStatus); err != nil {
			return err
		}
		return e.Repo.InsertThesisVersionTx(ctx, tx, version)
	})
	if err != nil {
		return err
	}
	if e.Logger != nil {
		e.Logger.Info("thesis transitioned",
			zap.Uint64("thesis_id", id),
			zap.String("from", current.Status),
			zap.String("to", newStatus),
			zap.String("reason", reason),
		)
	}
	return nil
}

// Archive is the only way out for a thesis; rows are never deleted.
func (e *Engine) Archive(ctx context.Context, id uint64, reason string) error {
	return e.Transition(ctx, id, models.ThesisArchived, reason, nil)
}
