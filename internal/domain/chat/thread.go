package chat

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Thread struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	CreatedAt      string         `gorm:"column:createdAt;not null;index" json:"createdAt"`
	UpdatedAt      string         `gorm:"column:updatedAt;not null" json:"updatedAt"`
	Name           *string        `gorm:"column:name" json:"name,omitempty"`
	UserID         *uuid.UUID     `gorm:"type:uuid;column:userId;index" json:"userId,omitempty"`
	UserIdentifier *string        `gorm:"column:userIdentifier" json:"userIdentifier,omitempty"`
	Tags           datatypes.JSON `gorm:"column:tags" json:"tags,omitempty"`
	Metadata       datatypes.JSON `gorm:"column:metadata;not null;default:'{}'" json:"metadata"`

	// Populated on read-back only; never written through gorm.
	Steps    []*Step    `gorm:"-" json:"steps,omitempty"`
	Elements []*Element `gorm:"-" json:"elements,omitempty"`
}

func (Thread) TableName() string { return "threads" }
