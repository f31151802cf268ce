package dialogue

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// Message is one entry of the conversation. Tool messages answer the
// assistant message that requested them, matched by ToolCallID.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// History is the ordered conversation of a session. It is owned by a single
// Engine and not safe for concurrent use.
type History struct {
	messages []Message
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds messages to the end.
func (h *History) Append(messages ...Message) {
	h.messages = append(h.messages, messages...)
}

// Messages returns a copy of the entries.
func (h *History) Messages() []Message {
	return append([]Message(nil), h.messages...)
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.messages)
}

// Truncate drops every entry from index n on.
func (h *History) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(h.messages) {
		h.messages = h.messages[:n]
	}
}

// Clear removes all entries.
func (h *History) Clear() {
	h.messages = nil
}

// Clone returns an independent copy.
func (h *History) Clone() *History {
	return &History{messages: h.Messages()}
}
