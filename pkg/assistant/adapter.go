package assistant

import "context"

// Message is one chat history entry.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request carries one finalized utterance plus the conversation context the
// backend needs to answer it.
type Request struct {
	ChatID    string
	Persona   string
	System    string
	History   []Message
	Utterance string
}

type EventType string

const (
	// EventContent delivers one incremental reply fragment.
	EventContent EventType = "content"
	// EventTitle delivers a server-assigned conversation title.
	EventTitle EventType = "title"
	// EventDone marks a complete reply. Terminal.
	EventDone EventType = "done"
	// EventError marks an aborted reply. Terminal.
	EventError EventType = "error"
)

// Event is one item on an adapter's reply stream. Streams deliver zero or
// more content/title events and end with exactly one done or error event,
// after which the channel is closed.
type Event struct {
	Type EventType
	Text string
	Err  error
}

// Adapter defines the contract for any chat backend vendor.
type Adapter interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Stream opens a reply stream for the request. Errors returned here are
	// connection failures; mid-stream failures arrive as error events.
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}
