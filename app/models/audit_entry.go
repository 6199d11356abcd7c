package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit actions recorded for administrative changes to a billing account.
const (
	AuditActionAssignPlan       = "assign_plan"
	AuditActionCancel           = "cancel"
	AuditActionRenew            = "renew"
	AuditActionGrantFreeAccess  = "grant_free_access"
	AuditActionRevokeFreeAccess = "revoke_free_access"
	AuditActionToggleBilling    = "toggle_billing"
	AuditActionOverrideStatus   = "override_status"
)

// AuditEntry records who changed a billing account and how.
type AuditEntry struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	BillingAccountID uint              `gorm:"not null;index" json:"billing_account_id"`
	ActorID          *uint             `json:"actor_id,omitempty"`
	Action           string            `gorm:"type:varchar(50);not null;index" json:"action"`
	FromStatus       string            `gorm:"type:varchar(20);default:''" json:"from_status"`
	ToStatus         string            `gorm:"type:varchar(20);default:''" json:"to_status"`
	Reason           string            `gorm:"type:varchar(500);default:''" json:"reason"`
	Details          datatypes.JSONMap `json:"details,omitempty"`
	CreatedAt        time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}
