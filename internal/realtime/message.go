package realtime

import "encoding/json"

// Event names are the socket protocol shared with the UI; they are part of
// the persistence-format contract and must not be renamed.
type Event string

// Outbound events (core -> UI).
const (
	EventConnected        Event = "connected"
	EventNewMessage       Event = "new_message"
	EventUpdateMessage    Event = "update_message"
	EventDeleteMessage    Event = "delete_message"
	EventStreamStart      Event = "stream_start"
	EventStreamToken      Event = "stream_token"
	EventStreamEnd        Event = "stream_end"
	EventElement          Event = "element"
	EventRemoveElement    Event = "remove_element"
	EventAsk              Event = "ask"
	EventAskTimeout       Event = "ask_timeout"
	EventClearAsk         Event = "clear_ask"
	EventTokenUsage       Event = "token_usage"
	EventTaskStart        Event = "task_start"
	EventTaskEnd          Event = "task_end"
	EventToast            Event = "toast"
	EventChatSettings     Event = "chat_settings"
	EventFirstInteraction Event = "first_interaction"
	EventSetChatProfiles  Event = "set_chat_profiles"
	EventSetStarters      Event = "set_starters"
	EventResumeThread     Event = "resume_thread"
	EventReload           Event = "reload"
)

// Inbound events (UI -> core). Connect is carried by the upgrade request
// itself, not as a frame.
const (
	EventUIMessage          Event = "ui_message"
	EventEditMessage        Event = "edit_message"
	EventActionCall         Event = "action_call"
	EventElementInteraction Event = "element_interaction"
	EventAudioChunk         Event = "audio_chunk"
	EventAudioEnd           Event = "audio_end"
	EventChatSettingsChange Event = "chat_settings_change"
	EventStop               Event = "stop"
	EventClearSession       Event = "clear_session"
	EventDisconnect         Event = "disconnect"
)

// Message is one outbound delivery, addressed by transport id.
type Message struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
	Data    any    `json:"data,omitempty"`
}

// InboundFrame is one decoded frame off the socket.
type InboundFrame struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundFrame is the wire shape written to the socket.
type OutboundFrame struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}
