package chat

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PersistedUser is the server-side record of an authenticated identity.
// Identifier is chosen by the auth provider and is the upsert key; the
// surrogate ID is assigned here.
type PersistedUser struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	Identifier string         `gorm:"uniqueIndex;not null;column:identifier" json:"identifier"`
	Metadata   datatypes.JSON `gorm:"column:metadata;not null;default:'{}'" json:"metadata"`
	CreatedAt  string         `gorm:"column:createdAt;not null" json:"createdAt"`
}

func (PersistedUser) TableName() string { return "users" }
