// Package app contains the application layer - service implementations and effect execution.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/escalator/internal/core/effects"
	"github.com/example/escalator/internal/ports/secondary"
)

// EffectExecutor interprets and executes effects.
// This is the "Imperative Shell" - the only place post-commit I/O happens.
type EffectExecutor interface {
	Execute(ctx context.Context, effs []effects.Effect) error
}

// Notifier accepts notification requests without blocking the caller.
// Enqueue reports false when the request was dropped.
type Notifier interface {
	Enqueue(ctx context.Context, req secondary.NotificationRequest) bool
}

// DefaultEffectExecutor implements EffectExecutor with real I/O.
type DefaultEffectExecutor struct {
	notifier Notifier
	audit    secondary.AuditWriter
	logger   *zap.Logger
}

// NewEffectExecutor creates a new DefaultEffectExecutor.
func NewEffectExecutor(notifier Notifier, audit secondary.AuditWriter, logger *zap.Logger) *DefaultEffectExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultEffectExecutor{
		notifier: notifier,
		audit:    audit,
		logger:   logger,
	}
}

// Execute processes every effect in order. A failing effect does not stop the
// rest; all failures are returned joined.
func (e *DefaultEffectExecutor) Execute(ctx context.Context, effs []effects.Effect) error {
	var errs []error
	for _, eff := range effs {
		if err := e.executeOne(ctx, eff); err != nil {
			errs = append(errs, fmt.Errorf("failed to execute %s effect: %w", eff.EffectType(), err))
		}
	}
	return errors.Join(errs...)
}

func (e *DefaultEffectExecutor) executeOne(ctx context.Context, eff effects.Effect) error {
	switch typed := eff.(type) {
	case effects.NotifyEffect:
		return e.executeNotify(ctx, typed)
	case effects.AuditEffect:
		return e.executeAudit(ctx, typed)
	case effects.LogEffect:
		e.executeLog(typed)
		return nil
	default:
		return fmt.Errorf("unknown effect type: %T", eff)
	}
}

func (e *DefaultEffectExecutor) executeNotify(ctx context.Context, eff effects.NotifyEffect) error {
	if e.notifier == nil {
		return nil
	}
	ok := e.notifier.Enqueue(ctx, secondary.NotificationRequest{
		NotificationID: eff.NotificationID,
		TenantID:       eff.TenantID,
		CaseID:         eff.CaseID,
		Level:          eff.Level,
		RecipientID:    eff.RecipientID,
		Method:         eff.Method,
	})
	if !ok {
		return fmt.Errorf("notification %s for case %s dropped", eff.NotificationID, eff.CaseID)
	}
	return nil
}

func (e *DefaultEffectExecutor) executeAudit(ctx context.Context, eff effects.AuditEffect) error {
	if e.audit == nil {
		return nil
	}
	return e.audit.Write(ctx, &secondary.AuditRecord{
		TenantID:   eff.TenantID,
		EntityType: eff.EntityType,
		EntityID:   eff.EntityID,
		Action:     eff.Action,
		ActorID:    eff.ActorID,
		Detail:     eff.Detail,
	})
}

func (e *DefaultEffectExecutor) executeLog(eff effects.LogEffect) {
	fields := make([]zap.Field, 0, len(eff.Fields))
	for k, v := range eff.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch eff.Level {
	case "debug":
		e.logger.Debug(eff.Message, fields...)
	case "warn":
		e.logger.Warn(eff.Message, fields...)
	case "error":
		e.logger.Error(eff.Message, fields...)
	default:
		e.logger.Info(eff.Message, fields...)
	}
}
