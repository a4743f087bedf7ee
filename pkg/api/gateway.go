package api

// Channel defines the standardized lifecycle interface for communication platforms.
type Channel interface {
	ID() string
	Start(ctx ChannelContext) error
	Stop() error
	Send(session SessionContext, message string) error
}

// SignalingChannel is an optional extension of the Channel interface for
// platforms that support control signals (e.g., typing indicators).
type SignalingChannel interface {
	Channel
	// SendSignal transmits a control signal (e.g., "working") to the target session.
	SendSignal(session SessionContext, signal string) error
}

// SignalTyping tells the channel a reply is being prepared.
const SignalTyping = "typing"

// ChannelContext provides the interface for a Channel implementation to
// communicate back with the Gateway core.
type ChannelContext interface {
	MessageResponder
	TaskRunner
	OnMessage(channelID string, msg *UnifiedMessage)
}

// MessageResponder defines the capabilities for sending responses back to a channel.
type MessageResponder interface {
	SendReply(session SessionContext, content string) error
	SendSignal(session SessionContext, signal string) error
}

// ReplyFormat selects how a task result is rendered for a session.
type ReplyFormat string

const (
	ReplyText ReplyFormat = "text"
	ReplyJSON ReplyFormat = "json"
)

// UnifiedMessage is the standardized inbound message. Each message carries
// one task.
type UnifiedMessage struct {
	Session          SessionContext // Contextual information about the source (User, Chat)
	Content          string         // The task text
	SkipVerification bool           // Take the fast path (plan, execute, finalize)
	Format           ReplyFormat    // How the handler should render the reply
	Raw              any            // Optional storage for the original platform-specific payload object
}

// SessionContext encapsulates identity and routing information for a specific
// conversation unit on a specific communication channel.
type SessionContext struct {
	ChannelID string // Identifier of the channel that originated the session (e.g., "telegram")
	UserID    string // Platform-specific unique identifier for the user
	ChatID    string // Platform-specific identifier for the chat or group (may match UserID for DMs)
	Username  string // Display name or nickname of the user as provided by the platform
}

// MessageHandler defines the function signature for processing incoming messages.
// It implements the MessageProcessor interface.
type MessageHandler func(*UnifiedMessage)

// OnMessage allows MessageHandler to satisfy the MessageProcessor interface.
func (h MessageHandler) OnMessage(msg *UnifiedMessage) {
	h(msg)
}

// MessageProcessor defines the interface for components that can process incoming messages.
type MessageProcessor interface {
	OnMessage(msg *UnifiedMessage)
}

// ResponderAware defines an interface for components that require a MessageResponder to be injected.
type ResponderAware interface {
	SetResponder(responder MessageResponder)
}

// GatewayHandler is a composite interface for components that handle incoming
// messages, run tasks synchronously and are aware of the responder.
type GatewayHandler interface {
	MessageProcessor
	ResponderAware
	TaskRunner
}
