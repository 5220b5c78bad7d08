package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	altai "github.com/sashabaranov/go-openai"

	"cwinsights/internal/util"
)

var ErrDisabled = errors.New("openai disabled")

// OpenAIClient drafts Logs Insights queries from a plain language request.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
}

func NewOpenAIClient(apiKey, baseURL, model string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{apiKey: apiKey, baseURL: baseURL, model: model, timeout: timeout}
}

// Enabled reports whether requests can be made.
func (c *OpenAIClient) Enabled() bool { return c != nil && c.apiKey != "" }

// Draft is a suggested query.
type Draft struct {
	Query       string `json:"query"`
	Explanation string `json:"explanation"`
}

// DraftRequest describes what the user wants. Fields and Samples come from
// the current results and help the model pick real field names.
type DraftRequest struct {
	Ask       string
	Current   string
	LogGroups []string
	Fields    []string
	Samples   []string
}

func (c *OpenAIClient) DraftQuery(ctx context.Context, req DraftRequest) (Draft, error) {
	if !c.Enabled() {
		return Draft{}, ErrDisabled
	}
	if strings.TrimSpace(req.Ask) == "" {
		return Draft{}, errors.New("nothing to draft: empty request")
	}
	ctx2, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.complete(ctx2, buildDraftPrompt(req))
	if err != nil {
		return Draft{}, fmt.Errorf("openai: %w", err)
	}
	return parseDraft(resp)
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string) (string, error) {
	cfg := altai.DefaultConfig(c.apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	cli := altai.NewClientWithConfig(cfg)
	resp, err := cli.CreateChatCompletion(ctx, altai.ChatCompletionRequest{
		Model: c.model,
		Messages: []altai.ChatCompletionMessage{
			{Role: altai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: altai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:    0.2,
		ResponseFormat: &altai.ChatCompletionResponseFormat{Type: altai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

const systemPrompt = "You write Amazon CloudWatch Logs Insights queries. Return ONLY strict JSON {\"query\": string, \"explanation\": string}. No prose, no code fences."

func buildDraftPrompt(req DraftRequest) string {
	// cap what is sent
	const maxSamples, maxFields = 20, 60
	var b strings.Builder
	b.WriteString("Write a Logs Insights query for this request: ")
	b.WriteString(strings.TrimSpace(req.Ask))
	b.WriteByte('\n')
	if len(req.LogGroups) > 0 {
		b.WriteString("Log groups: ")
		b.WriteString(strings.Join(req.LogGroups, ", "))
		b.WriteByte('\n')
	}
	if q := strings.TrimSpace(req.Current); q != "" {
		b.WriteString("Current query:\n")
		b.WriteString(q)
		b.WriteByte('\n')
	}
	if len(req.Fields) > 0 {
		fields := req.Fields
		if len(fields) > maxFields {
			fields = fields[:maxFields]
		}
		b.WriteString("Known fields: ")
		b.WriteString(strings.Join(fields, ", "))
		b.WriteByte('\n')
	}
	n := min(len(req.Samples), maxSamples)
	if n > 0 {
		b.WriteString("Sample results:\n")
		for _, s := range req.Samples[:n] {
			b.WriteString(util.RedactPII(s))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func parseDraft(resp string) (Draft, error) {
	s := strings.TrimSpace(resp)
	// some compatible servers ignore the JSON response format
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	var d Draft
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &d); err != nil {
		return Draft{}, fmt.Errorf("openai: unexpected reply: %w", err)
	}
	d.Query = strings.TrimSpace(d.Query)
	if d.Query == "" {
		return Draft{}, errors.New("openai: reply has no query")
	}
	return d, nil
}
