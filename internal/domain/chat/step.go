package chat

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type StepType string

const (
	StepTypeUserMessage      StepType = "user_message"
	StepTypeAssistantMessage StepType = "assistant_message"
	StepTypeSystemMessage    StepType = "system_message"
	StepTypeTool             StepType = "tool"
	StepTypeRun              StepType = "run"
	StepTypeUndefined        StepType = "undefined"
)

func (t StepType) Valid() bool {
	switch t {
	case StepTypeUserMessage, StepTypeAssistantMessage, StepTypeSystemMessage,
		StepTypeTool, StepTypeRun, StepTypeUndefined:
		return true
	}
	return false
}

// IsMessage reports whether the step carries a chat message as opposed to a
// computation record (tool/run).
func (t StepType) IsMessage() bool {
	switch t {
	case StepTypeUserMessage, StepTypeAssistantMessage, StepTypeSystemMessage:
		return true
	}
	return false
}

type ShowInput string

const (
	ShowInputJSON   ShowInput = "json"
	ShowInputPlain  ShowInput = "plain"
	ShowInputHidden ShowInput = "hidden"
)

// Step is a node in a thread's causal tree. ParentID is a weak reference to
// another step in the same thread; steps with a nil parent are forest roots.
type Step struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	ThreadID      uuid.UUID      `gorm:"type:uuid;not null;column:threadId;index" json:"threadId"`
	ParentID      *uuid.UUID     `gorm:"type:uuid;column:parentId;index" json:"parentId,omitempty"`
	Name          string         `gorm:"column:name" json:"name"`
	Type          StepType       `gorm:"column:type;not null;default:'undefined'" json:"type"`
	Input         string         `gorm:"column:input;type:text" json:"input"`
	Output        string         `gorm:"column:output;type:text" json:"output"`
	Metadata      datatypes.JSON `gorm:"column:metadata;not null;default:'{}'" json:"metadata"`
	Tags          datatypes.JSON `gorm:"column:tags" json:"tags,omitempty"`
	CreatedAt     string         `gorm:"column:createdAt;not null" json:"createdAt"`
	Start         *string        `gorm:"column:start" json:"start,omitempty"`
	End           *string        `gorm:"column:end" json:"end,omitempty"`
	Generation    datatypes.JSON `gorm:"column:generation" json:"generation,omitempty"`
	ShowInput     *ShowInput     `gorm:"column:showInput" json:"showInput,omitempty"`
	Language      *string        `gorm:"column:language" json:"language,omitempty"`
	Indent        int            `gorm:"column:indent;not null;default:0" json:"indent"`
	Streaming     bool           `gorm:"column:streaming;not null;default:false" json:"streaming"`
	WaitForAnswer bool           `gorm:"column:waitForAnswer;not null;default:false" json:"waitForAnswer"`
	IsError       bool           `gorm:"column:isError;not null;default:false" json:"isError"`
	RootRunID     *uuid.UUID     `gorm:"type:uuid;column:rootRunId" json:"rootRunId,omitempty"`
}

func (Step) TableName() string { return "steps" }
