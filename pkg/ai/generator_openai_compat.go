package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"emoseum/pkg/domain"
)

// OpenAICompatGenerator calls any OpenAI-compatible /v1/chat/completions
// endpoint. Works with vLLM, LiteLLM, LocalAI, OpenRouter, self-hosted models.
type OpenAICompatGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatGenerator builds an OpenAI-compatible TextGenerator.
// baseURL should include the /v1 prefix, e.g. "http://localhost:8000/v1".
// apiKey can be empty for local models that do not require authentication.
func NewOpenAICompatGenerator(baseURL, apiKey, model string) *OpenAICompatGenerator {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &OpenAICompatGenerator{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// GenerateText implements TextGenerator using the chat completions API.
func (g *OpenAICompatGenerator) GenerateText(ctx context.Context, genCtx GenerationContext) (string, error) {
	if g.model == "" {
		return "", fmt.Errorf("generation model required: %w", ErrInvalidContext)
	}
	messages := []oaiMessage{
		{Role: "system", Content: systemPrompt(genCtx)},
		{Role: "user", Content: userPrompt(genCtx)},
	}
	body, err := json.Marshal(oaiChatRequest{Model: g.model, Messages: messages})
	if err != nil {
		return "", err
	}

	url := g.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("text generation request: %w", domain.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("text generation backend %s: %w", resp.Status, domain.ErrServiceUnavailable)
	}
	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return "", fmt.Errorf("text generation rejected request (%s): %w", errResp.Error.Message, ErrInvalidContext)
		}
		return "", fmt.Errorf("text generation rejected request (%s): %w", resp.Status, ErrInvalidContext)
	}

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("text generation decode: %w", domain.ErrServiceUnavailable)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("empty completion: %w", domain.ErrServiceUnavailable)
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty completion: %w", domain.ErrServiceUnavailable)
	}
	return text, nil
}

func systemPrompt(genCtx GenerationContext) string {
	var b strings.Builder
	switch genCtx.Stage {
	case domain.StageReflection:
		b.WriteString("You write a single visual art prompt that mirrors the writer's emotional state without judging it. ")
	case domain.StageClosure:
		b.WriteString("You are a gentle museum curator writing a short closing message about the visitor's completed piece. ")
	default:
		b.WriteString("You write brief, supportive therapeutic text. ")
	}
	switch genCtx.CopingStyle {
	case domain.CopingAvoidant:
		b.WriteString("The writer processes distress indirectly; use soft metaphor, never name the emotion outright.")
	case domain.CopingConfrontive:
		b.WriteString("The writer faces distress head-on; be direct and concrete.")
	default:
		b.WriteString("Balance directness with metaphor.")
	}
	return b.String()
}

func userPrompt(genCtx GenerationContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Diary entry:\n%s\n\n", genCtx.Diary)
	fmt.Fprintf(&b, "Emotional profile: valence=%.2f arousal=%.2f dominance=%.2f\n",
		genCtx.VAD.Valence, genCtx.VAD.Arousal, genCtx.VAD.Dominance)
	if len(genCtx.History) > 0 {
		b.WriteString("\nEarlier in this journey:\n")
		for _, h := range genCtx.History {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	return b.String()
}

// OpenAI-compatible request/response types.

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
