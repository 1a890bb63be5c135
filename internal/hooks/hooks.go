package hooks

import (
	"context"
	"encoding/json"

	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/emitter"
)

// ChatProfile is one selectable assistant configuration offered to the UI
// before a conversation starts.
type ChatProfile struct {
	Name                string `json:"name"`
	MarkdownDescription string `json:"markdown_description"`
	Icon                string `json:"icon,omitempty"`
	Default             bool   `json:"default"`
}

// Starter is a suggested opening message rendered on an empty thread.
type Starter struct {
	Label   string `json:"label"`
	Message string `json:"message"`
	Icon    string `json:"icon,omitempty"`
}

// Action is a button attached to a step; clicking it fires OnAction.
type Action struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	ForID   string          `json:"forId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Registry holds the application callbacks the conversation loop invokes.
// Every hook is optional; a nil hook is skipped.
type Registry struct {
	// OnChatStart runs once per fresh session, after the socket is up and
	// before any message is dispatched.
	OnChatStart func(ctx context.Context, e *emitter.Emitter) error

	// OnMessage runs for every user message that is not an answer to a
	// pending ask.
	OnMessage func(ctx context.Context, e *emitter.Emitter, step *types.Step) error

	// OnChatResume runs instead of OnChatStart when a session reattaches
	// to an existing thread.
	OnChatResume func(ctx context.Context, e *emitter.Emitter, thread *types.Thread) error

	// OnFeedback runs after a feedback upsert lands. Feedback arrives over
	// the REST surface, so no emitter is in scope.
	OnFeedback func(ctx context.Context, feedback *types.Feedback) error

	// OnAction runs when the user clicks an action button.
	OnAction func(ctx context.Context, e *emitter.Emitter, action *Action) error

	// OnSettingsUpdate runs when the user changes the chat settings form.
	OnSettingsUpdate func(ctx context.Context, e *emitter.Emitter, settings map[string]interface{}) error

	// OnStop runs when the user interrupts the running handler. The stop
	// flag on the session is already set when this fires.
	OnStop func(ctx context.Context, e *emitter.Emitter) error

	// OnChatEnd runs when the session is cleared or the socket goes away
	// for good.
	OnChatEnd func(ctx context.Context, e *emitter.Emitter) error

	// OnAudioChunk and OnAudioEnd receive streamed microphone input.
	OnAudioChunk func(ctx context.Context, e *emitter.Emitter, chunk []byte) error
	OnAudioEnd   func(ctx context.Context, e *emitter.Emitter) error

	// ChatProfiles and Starters feed the pre-conversation UI. Both may be
	// nil.
	ChatProfiles func(ctx context.Context, user *types.PersistedUser) ([]ChatProfile, error)
	Starters     func(ctx context.Context, user *types.PersistedUser) ([]Starter, error)
}
