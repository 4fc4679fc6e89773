package domain

// EventType names an event emitted while streaming a turn.
type EventType string

// Stream events, in the order they may occur.
const (
	EventSources      EventType = "sources"
	EventMessage      EventType = "message"
	EventTitleUpdate  EventType = "title_update"
	EventMessageSaved EventType = "message_saved"
	EventDone         EventType = "done"
	EventError        EventType = "error"
)

// IsTerminal reports whether no event follows this one.
func (t EventType) IsTerminal() bool {
	return t == EventDone || t == EventError
}

// Event is one tagged item of a turn's output. Data holds one of the
// payload types below and is serialised as-is by the transport.
type Event struct {
	Type EventType
	Data any
}

// MessageDelta is incremental assistant text. With Replace set, Content
// supersedes everything streamed for the answer so far.
type MessageDelta struct {
	Content string `json:"content"`
	Replace bool   `json:"replace,omitempty"`
}

// TitleUpdate announces an automatically generated conversation title.
type TitleUpdate struct {
	Title string `json:"title"`
}

// MessageSaved carries the id of the persisted assistant message.
type MessageSaved struct {
	MessageID string `json:"messageId"`
}

// Done closes a successful turn. SourcesHidden tells the client to drop the
// sources it was sent at the start of the turn.
type Done struct {
	ConversationID string `json:"conversationId"`
	SourcesHidden  bool   `json:"sourcesHidden,omitempty"`
}

// StreamError is the user-facing failure payload.
type StreamError struct {
	Message string `json:"message"`
}

// SendRequest is one user turn.
type SendRequest struct {
	ConversationID string
	GuestID        string
	Message        string
}
