// Package audit records a before/after activity log entry for every create, update,
// delete and restore of a tracked entity, and optionally copies each entry to external
// destinations (webhook, file) through the Shipper interface.
//
// Recording is best-effort: a failed write is logged and counted but never returned,
// so history can never block or roll back the change it describes.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pwd-registry/pwd-registry/internal/db/models"
	"github.com/pwd-registry/pwd-registry/internal/telemetry"
)

// Auditable is implemented by every entity whose changes are recorded.
type Auditable interface {
	// AuditType is the model type written to activity_logs.model_type, e.g. "PwdProfile".
	AuditType() string
	// AuditKey is the entity's primary key.
	AuditKey() string
	// AuditLabel is a name-like identifier for descriptions. Empty falls back to AuditKey.
	AuditLabel() string
	// AuditFields returns the trackable fields, including updated_at.
	AuditFields() map[string]any
}

// Store persists activity log entries.
type Store interface {
	Create(ctx context.Context, log *models.ActivityLog) error
}

// timestampFields never count as a change on their own.
var timestampFields = map[string]bool{
	"updated_at": true,
	"created_at": true,
}

// Trail writes activity log entries
type Trail struct {
	store   Store
	shipper Shipper
	now     func() time.Time
}

// NewTrail creates a Trail. shipper may be nil.
func NewTrail(store Store, shipper Shipper) *Trail {
	return &Trail{store: store, shipper: shipper, now: time.Now}
}

// RecordCreate records that entity was created, with its full field set as new values.
func (t *Trail) RecordCreate(ctx context.Context, entity Auditable) {
	t.record(ctx, entity, models.ActionCreated, "Created", nil, entity.AuditFields())
}

// RecordUpdate records the fields that differ between prior and next. Timestamp
// fields are ignored; nothing is written when no other field changed. Old and new
// values always carry the same key set.
func (t *Trail) RecordUpdate(ctx context.Context, entity Auditable, prior, next map[string]any) {
	changed := ChangedFields(prior, next)
	if len(changed) == 0 {
		return
	}
	oldValues := make(map[string]any, len(changed))
	newValues := make(map[string]any, len(changed))
	for _, k := range changed {
		oldValues[k] = prior[k]
		newValues[k] = next[k]
	}
	t.record(ctx, entity, models.ActionUpdated, "Updated", oldValues, newValues)
}

// RecordDelete records a deletion with finalState as the old values. permanent
// marks a hard delete, which is written as forceDeleted.
func (t *Trail) RecordDelete(ctx context.Context, entity Auditable, finalState map[string]any, permanent bool) {
	if permanent {
		t.record(ctx, entity, models.ActionForceDeleted, "Permanently deleted", finalState, nil)
		return
	}
	t.record(ctx, entity, models.ActionDeleted, "Deleted", finalState, nil)
}

// RecordRestore records that a soft-deleted entity was brought back.
func (t *Trail) RecordRestore(ctx context.Context, entity Auditable) {
	t.record(ctx, entity, models.ActionRestored, "Restored", nil, entity.AuditFields())
}

func (t *Trail) record(ctx context.Context, entity Auditable, action models.ActivityAction, verb string, oldValues, newValues map[string]any) {
	modelType := entity.AuditType()
	if modelType == models.ActivityLogModelType {
		return
	}

	label := entity.AuditLabel()
	if label == "" {
		label = entity.AuditKey()
	}

	info := ClientInfoFrom(ctx)
	entry := &models.ActivityLog{
		ID:          uuid.New().String(),
		UserID:      optional(info.UserID),
		ActionType:  action,
		ModelType:   modelType,
		ModelID:     entity.AuditKey(),
		OldValues:   oldValues,
		NewValues:   newValues,
		IPAddress:   optional(info.IPAddress),
		UserAgent:   optional(info.UserAgent),
		Description: fmt.Sprintf("%s %s: %s", verb, modelType, label),
		CreatedAt:   t.now(),
	}

	if err := t.store.Create(ctx, entry); err != nil {
		telemetry.ActivityLogFailuresTotal.WithLabelValues(modelType).Inc()
		slog.Error("failed to record activity log",
			"model_type", modelType, "model_id", entry.ModelID, "action", string(action), "error", err)
	} else {
		telemetry.ActivityLogWritesTotal.WithLabelValues(modelType, string(action)).Inc()
	}

	if t.shipper != nil {
		if err := t.shipper.Ship(ctx, NewLogEntry(entry)); err != nil {
			slog.Warn("failed to ship activity log", "model_type", modelType, "error", err)
		}
	}
}

// ChangedFields returns the sorted keys whose values differ between prior and
// next, ignoring timestamp fields. A key present on one side only counts as
// changed unless its value is nil.
func ChangedFields(prior, next map[string]any) []string {
	keys := make(map[string]struct{}, len(next))
	for k := range prior {
		keys[k] = struct{}{}
	}
	for k := range next {
		keys[k] = struct{}{}
	}

	changed := make([]string, 0)
	for k := range keys {
		if timestampFields[k] {
			continue
		}
		if !valuesEqual(prior[k], next[k]) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	// int vs int64 and similar encodings of the same value
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
