package generation

// Roles used in conversational transcripts.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single generation call. When Messages is non-empty the call is
// sent as a chat completion; otherwise Prompt is sent as a plain completion
// bounded by MaxTokens.
type Request struct {
	Model     string
	Prompt    string
	MaxTokens int
	Messages  []Message
}

// IsChat reports whether r uses the conversational call shape.
func (r Request) IsChat() bool {
	return len(r.Messages) > 0
}

// completionRequest is the JSON body for POST /completions.
type completionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// completionResponse is the subset of the /completions response we read.
type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// chatRequest is the JSON body for POST /chat/completions.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// chatResponse is the subset of the /chat/completions response we read.
type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// apiErrorBody mirrors the {"error":{...}} envelope returned on failures.
type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Model represents a model entry returned by the /models endpoint.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ModelList is the response from /models.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
