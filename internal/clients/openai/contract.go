package openai

import (
	"encoding/json"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type JSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

type ChatCompletionRequest struct {
	Model           string          `json:"model"`
	Messages        []Message       `json:"messages"`
	ResponseFormat  *ResponseFormat `json:"response_format,omitempty"`
	Temperature     float64         `json:"temperature"`
	TopP            float64         `json:"top_p,omitempty"`
	MaxOutputTokens int             `json:"max_output_tokens,omitempty"`
	Stream          bool            `json:"stream,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type ChatCompletion struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Created int64    `json:"created"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Message `json:"delta"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// validateRequest fails fast on malformed request shape rather than
// letting the provider reject it.
func validateRequest(req ChatCompletionRequest) error {
	if len(req.Messages) == 0 {
		return &InvalidRequestError{Message: "at least one message is required"}
	}
	if req.Messages[len(req.Messages)-1].Role == RoleAssistant {
		return &InvalidRequestError{Message: "last message must not be from the assistant role"}
	}
	if rf := req.ResponseFormat; rf != nil && rf.Type == "json_schema" {
		if rf.JSONSchema == nil {
			return &InvalidRequestError{Message: "json_schema response format requires a schema"}
		}
		if !rf.JSONSchema.Strict {
			return &InvalidRequestError{Message: "json_schema response format must request strict validation"}
		}
	}
	return nil
}

// parseCompletion turns a 2xx body into a typed completion; malformed JSON
// or a failed shape check surfaces as DataError, distinct from transport
// failures.
func parseCompletion(raw []byte) (*ChatCompletion, error) {
	var completion ChatCompletion
	if err := json.Unmarshal(raw, &completion); err != nil {
		return nil, &DataError{Message: "response body is not valid JSON", Cause: err}
	}
	if completion.ID == "" {
		return nil, &DataError{Message: "response is missing id"}
	}
	if len(completion.Choices) == 0 {
		return nil, &DataError{Message: "response has no choices"}
	}
	return &completion, nil
}
