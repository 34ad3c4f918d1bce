// README: Conversation message value object shared by the AI clients and the turn pipeline.
package types

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation. Treat it as immutable once created.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LastOfRole returns the content of the most recent message with the given role.
func LastOfRole(history []Message, role Role) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == role {
			return history[i].Content, true
		}
	}
	return "", false
}
