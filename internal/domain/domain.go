package domain

import (
	"github.com/tkoivu/threadline-backend/internal/domain/chat"
)

type PersistedUser = chat.PersistedUser
type Thread = chat.Thread
type Step = chat.Step
type Element = chat.Element
type Feedback = chat.Feedback

type StepType = chat.StepType
type ShowInput = chat.ShowInput
type ElementType = chat.ElementType
type ElementDisplay = chat.ElementDisplay

const (
	StepTypeUserMessage      = chat.StepTypeUserMessage
	StepTypeAssistantMessage = chat.StepTypeAssistantMessage
	StepTypeSystemMessage    = chat.StepTypeSystemMessage
	StepTypeTool             = chat.StepTypeTool
	StepTypeRun              = chat.StepTypeRun
	StepTypeUndefined        = chat.StepTypeUndefined

	ShowInputJSON   = chat.ShowInputJSON
	ShowInputPlain  = chat.ShowInputPlain
	ShowInputHidden = chat.ShowInputHidden

	ElementDisplayInline = chat.ElementDisplayInline
	ElementDisplaySide   = chat.ElementDisplaySide
	ElementDisplayPage   = chat.ElementDisplayPage
)
