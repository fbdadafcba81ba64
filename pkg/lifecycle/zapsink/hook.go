// Package zapsink bridges lifecycle events to a zap logger for callers that
// already run structured logging.
package zapsink

import (
	"context"

	"go.uber.org/zap"

	"github.com/goliatone/go-insideout/pkg/lifecycle"
)

// Hook adapts lifecycle events to a zap.Logger.
type Hook struct {
	Logger *zap.Logger
}

// Notify logs the normalized event at info level.
func (h Hook) Notify(_ context.Context, event lifecycle.Event) error {
	if h.Logger == nil {
		return nil
	}

	normalized := lifecycle.NormalizeEvent(event)
	if normalized.Verb == "" {
		return nil
	}

	fields := []zap.Field{
		zap.String("event_id", normalized.ID.String()),
		zap.String("channel", normalized.Channel),
		zap.Time("occurred_at", normalized.OccurredAt),
	}
	if normalized.Class != "" {
		fields = append(fields, zap.String("class", normalized.Class))
	}
	if normalized.Identity != 0 {
		fields = append(fields, zap.Uint64("identity", normalized.Identity))
	}
	if normalized.Generation != "" {
		fields = append(fields, zap.String("generation", normalized.Generation))
	}
	if len(normalized.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", normalized.Metadata))
	}

	h.Logger.Info(normalized.Verb, fields...)
	return nil
}
