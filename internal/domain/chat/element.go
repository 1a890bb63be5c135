package chat

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ElementType string

const (
	ElementTypeImage     ElementType = "image"
	ElementTypeText      ElementType = "text"
	ElementTypePDF       ElementType = "pdf"
	ElementTypeAudio     ElementType = "audio"
	ElementTypeVideo     ElementType = "video"
	ElementTypeFile      ElementType = "file"
	ElementTypePlotly    ElementType = "plotly"
	ElementTypeDataframe ElementType = "dataframe"
	ElementTypeTaskList  ElementType = "tasklist"
	ElementTypeCustom    ElementType = "custom"
)

func (t ElementType) Valid() bool {
	switch t {
	case ElementTypeImage, ElementTypeText, ElementTypePDF, ElementTypeAudio,
		ElementTypeVideo, ElementTypeFile, ElementTypePlotly,
		ElementTypeDataframe, ElementTypeTaskList, ElementTypeCustom:
		return true
	}
	return false
}

type ElementDisplay string

const (
	ElementDisplayInline ElementDisplay = "inline"
	ElementDisplaySide   ElementDisplay = "side"
	ElementDisplayPage   ElementDisplay = "page"
)

// Element is an attachment bound to a step. Exactly one of URL, ObjectKey
// or the transient Content must be populated at creation; all variants
// except tasklist are immutable after the first send.
type Element struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	ThreadID     uuid.UUID      `gorm:"type:uuid;not null;column:threadId;index" json:"threadId"`
	ForID        uuid.UUID      `gorm:"type:uuid;not null;column:forId;index" json:"forId"`
	Type         ElementType    `gorm:"column:type;not null" json:"type"`
	URL          *string        `gorm:"column:url" json:"url,omitempty"`
	ObjectKey    *string        `gorm:"column:objectKey" json:"objectKey,omitempty"`
	ChainlitKey  *string        `gorm:"column:chainlitKey" json:"chainlitKey,omitempty"`
	Name         string         `gorm:"column:name;not null" json:"name"`
	Display      ElementDisplay `gorm:"column:display;not null;default:'side'" json:"display"`
	Size         *string        `gorm:"column:size" json:"size,omitempty"`
	Page         *int           `gorm:"column:page" json:"page,omitempty"`
	Language     *string        `gorm:"column:language" json:"language,omitempty"`
	Mime         *string        `gorm:"column:mime" json:"mime,omitempty"`
	AutoPlay     *bool          `gorm:"column:autoPlay" json:"autoPlay,omitempty"`
	PlayerConfig datatypes.JSON `gorm:"column:playerConfig" json:"playerConfig,omitempty"`
	Props        datatypes.JSON `gorm:"column:props" json:"props,omitempty"`
	CreatedAt    string         `gorm:"column:createdAt;not null" json:"createdAt"`

	// Content is the inline creation source; it is uploaded to object
	// storage (or embedded) before the row is written and never persisted
	// as a column.
	Content []byte `gorm:"-" json:"-"`
}

func (Element) TableName() string { return "elements" }
