package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jwalitptl/scheduling-api/internal/model"
)

func TestLogWritesStructuredEntry(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	svc := NewService(zap.New(core))

	id := uuid.New()
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	svc.Log(ctx, model.AuditEntry{
		Action:     model.AuditActionStatusChange,
		EntityType: model.AuditEntityBooking,
		EntityID:   id,
		Actor:      "admin-1",
		Changes:    map[string]interface{}{"from": "pending", "to": "confirmed"},
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, "audit.audit", entry.LoggerName+"."+entry.Message)
	assert.Equal(t, "status_change", fields["action"])
	assert.Equal(t, id.String(), fields["entity_id"])
	assert.Equal(t, "admin-1", fields["actor"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, map[string]interface{}{"from": "pending", "to": "confirmed"}, fields["changes"])
}

func TestNilLoggerIsSafe(t *testing.T) {
	svc := NewService(nil)
	assert.NotPanics(t, func() {
		svc.Log(context.Background(), model.AuditEntry{Action: model.AuditActionDelete})
	})
}
