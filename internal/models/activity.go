package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog captures auditable events triggered by teachers, admins and batch jobs.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    string            `gorm:"size:64;not null;index" json:"actorId"`
	ActorRole  string            `gorm:"size:32;not null" json:"actorRole"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	EntityType string            `gorm:"size:64;not null" json:"entityType"`
	EntityID   string            `gorm:"size:64" json:"entityId,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `json:"createdAt"`
}

const (
	ActivityFeedbackEdited   = "submission.feedback_edited"
	ActivityProblemRegraded  = "problem.regraded"
	ActivitySubmissionGraded = "submission.graded"
	ActivityProblemCreated   = "problem.created"
	ActivityProblemUpdated   = "problem.updated"
	ActivityProblemDeleted   = "problem.deleted"
)
