package chat

import (
	"github.com/google/uuid"
)

// Feedback is a human rating on a step. Value is binary {0,1}; upsert is
// keyed on ID and replaces value and comment.
type Feedback struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	ForID    uuid.UUID  `gorm:"type:uuid;not null;column:forId;index" json:"forId"`
	ThreadID *uuid.UUID `gorm:"type:uuid;column:threadId;index" json:"threadId,omitempty"`
	Value    int        `gorm:"column:value;not null" json:"value"`
	Comment  *string    `gorm:"column:comment" json:"comment,omitempty"`
}

func (Feedback) TableName() string { return "feedbacks" }
