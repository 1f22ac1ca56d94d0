package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dhowell/mailtriage/internal/config"
	"github.com/dhowell/mailtriage/internal/triage"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// HTTPClassifier talks to an OpenAI-compatible chat completions
// endpoint. Any server speaking that dialect works via base_url.
type HTTPClassifier struct {
	http        *http.Client
	baseURL     string
	apiKey      string
	triageModel string
	replyModel  string
}

func NewHTTPClassifier(cfg config.ModelConfig) (*HTTPClassifier, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("api key env %s is not set", cfg.APIKeyEnv)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &HTTPClassifier{
		http:        &http.Client{Timeout: 5 * time.Minute},
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		triageModel: cfg.TriageModel,
		replyModel:  cfg.ReplyModel,
	}, nil
}

// WithBaseURL redirects requests, mainly for tests.
func (c *HTTPClassifier) WithBaseURL(u string) *HTTPClassifier {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

func (c *HTTPClassifier) Classify(ctx context.Context, req BatchRequest) ([]triage.Decision, error) {
	prompt, err := TriagePrompt(req)
	if err != nil {
		return nil, err
	}
	out, err := c.complete(ctx, c.triageModel, prompt)
	if err != nil {
		return nil, err
	}
	return decodeDecisions(out)
}

func (c *HTTPClassifier) ToneProfile(ctx context.Context, req ToneRequest) (ToneResult, error) {
	prompt, err := TonePrompt(req)
	if err != nil {
		return ToneResult{}, err
	}
	out, err := c.complete(ctx, c.replyModel, prompt)
	if err != nil {
		return ToneResult{}, err
	}
	return decodeTone(out)
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClassifier) complete(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:          model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Temperature:    0.2,
		ResponseFormat: &chatFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat completions: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse chat response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(data)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("chat completions: status %d: %s", resp.StatusCode, msg)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completions: empty choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
