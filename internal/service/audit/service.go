// Package audit writes the audit trail of booking status changes, hard deletes and exports.
package audit

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jwalitptl/scheduling-api/internal/model"
)

type Service struct {
	logger *zap.Logger
}

func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger.Named("audit")}
}

// NewLogger builds a JSON zap logger writing to output ("stdout", "stderr" or a path).
func NewLogger(output string) (*zap.Logger, error) {
	if output == "" {
		output = "stdout"
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{output}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build audit logger: %w", err)
	}
	return logger, nil
}

func (s *Service) Log(ctx context.Context, entry model.AuditEntry) {
	fields := []zap.Field{
		zap.String("action", entry.Action),
		zap.String("entity_type", entry.EntityType),
		zap.String("entity_id", entry.EntityID.String()),
		zap.String("actor", entry.Actor),
	}
	if len(entry.Changes) > 0 {
		fields = append(fields, zap.Any("changes", entry.Changes))
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	s.logger.Info("audit", fields...)
}

func (s *Service) Sync() error {
	return s.logger.Sync()
}

type contextKey string

// RequestIDKey carries the request ID into audit records.
const RequestIDKey contextKey = "request_id"
