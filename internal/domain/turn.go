package domain

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation, tagged with its speaker.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

func SystemTurn(content string) Turn {
	return Turn{Role: RoleSystem, Content: content}
}

// CompletionRequest is the ordered conversation window plus the fixed
// sampling parameters sent to a chat-completion capability.
type CompletionRequest struct {
	Messages    []Turn
	MaxTokens   int
	Candidates  int
	Temperature float64
}

// System returns the content of the leading system turns joined by blank lines.
func (r CompletionRequest) System() string {
	var out string
	for _, t := range r.Messages {
		if t.Role != RoleSystem {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += t.Content
	}
	return out
}

// Dialogue returns the non-system turns in order.
func (r CompletionRequest) Dialogue() []Turn {
	out := make([]Turn, 0, len(r.Messages))
	for _, t := range r.Messages {
		if t.Role == RoleSystem {
			continue
		}
		out = append(out, t)
	}
	return out
}
