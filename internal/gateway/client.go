// Package gateway is the client for the OpenAI-compatible chat-completions
// endpoint that does persona reasoning. The one non-text signal the model
// may emit is the "confession" tool call — the moment the scammer admits
// guilt. There is no keyword matching on reply text anywhere; the tool
// call is the sole confession channel.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://ai.gateway.lovable.dev/v1"

// ConfessionTool is the name of the single capability declared on every
// in-character request.
const ConfessionTool = "confession"

const confessionToolDescription = "Вызови эту функцию когда ты решишь признаться что ты мошенник. " +
	"Это важный момент в игре - пользователь должен сам тебя разоблачить через диалог, " +
	"а ты должен признаться когда он собрал достаточно улик."

type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// SetTestTransport points the client at a test server.
func (c *Client) SetTestTransport(baseURL string) {
	c.baseURL = baseURL
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Outcome is the tagged result of one model call: either an in-character
// text reply, or the confession capability (possibly with parting text).
type Outcome struct {
	Text      string
	Confessed bool
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Tools    []tool    `json:"tools,omitempty"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name string `json:"name"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends the persona system prompt plus the turn history and returns
// the tagged outcome. withConfession controls whether the confession
// capability is offered (it is not during the post-exposure interview).
func (c *Client) Chat(ctx context.Context, system string, history []Message, withConfession bool) (*Outcome, error) {
	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, Message{Role: "system", Content: system})
	messages = append(messages, history...)

	reqBody := request{
		Model:    c.model,
		Messages: messages,
	}
	if withConfession {
		reqBody.Tools = []tool{{
			Type: "function",
			Function: toolFunction{
				Name:        ConfessionTool,
				Description: confessionToolDescription,
				Parameters:  json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
			},
		}}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("api error %d: %s — %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("empty choices in response")
	}

	choice := apiResp.Choices[0]
	out := &Outcome{Text: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		if tc.Function.Name == ConfessionTool {
			out.Confessed = true
			break
		}
	}
	return out, nil
}
