package model

import (
	"github.com/google/uuid"
)

const (
	AuditActionCreate       = "create"
	AuditActionStatusChange = "status_change"
	AuditActionDelete       = "delete"
	AuditActionConflict     = "conflict"
	AuditActionExport       = "export"

	AuditEntityBooking  = "booking"
	AuditEntitySchedule = "schedule"
)

// AuditEntry is one line of the audit trail.
type AuditEntry struct {
	Action     string
	EntityType string
	EntityID   uuid.UUID
	Actor      string
	Changes    map[string]interface{}
}
