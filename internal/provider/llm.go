package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/gzhole/deskpilot/internal/action"
	"github.com/gzhole/deskpilot/internal/config"
)

// LLM plans with a chat model that accepts images.
type LLM struct {
	model   llms.Model
	limiter *rate.Limiter
}

// NewLLM wraps an existing model. A nil limiter disables rate limiting.
func NewLLM(model llms.Model, limiter *rate.Limiter) *LLM {
	return &LLM{model: model, limiter: limiter}
}

// NewOpenAI builds an OpenAI-compatible model from cfg. cfg.URL, when set,
// replaces the default base URL.
func NewOpenAI(cfg config.ProviderConfig, limiter *rate.Limiter) (*LLM, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.URL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.URL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return NewLLM(model, limiter), nil
}

func (l *LLM) Name() string { return "llm" }

func systemPrompt() string {
	kinds := make([]string, 0, len(action.Kinds))
	for _, k := range action.Kinds {
		kinds = append(kinds, string(k))
	}
	var b strings.Builder
	b.WriteString("You operate a desktop computer for a user, one action per reply.\n")
	b.WriteString("Reply with a single JSON object and nothing else:\n")
	b.WriteString(`{"observation": string, "reasoning": string, "action": {"action": kind, "parameters": object}, "confidence": number 0..1, "expected_outcome": string}`)
	b.WriteString("\nAllowed kinds: ")
	b.WriteString(strings.Join(kinds, ", "))
	b.WriteString(".\nParameters: click/double_click/right_click/move {x, y}; type {text}; hotkey {keys: [..]}; ")
	b.WriteString("scroll {direction: up|down, amount}; drag {from: [x, y], to: [x, y]}; wait {seconds}; ")
	b.WriteString("screenshot {}; done {summary}; fail {reason}.\n")
	b.WriteString("Never propose speak. Use fail when the user must log in or solve a CAPTCHA.")
	return b.String()
}

type llmContext struct {
	Task              string   `json:"task"`
	StepIndex         int      `json:"step_index"`
	Width             int      `json:"width"`
	Height            int      `json:"height"`
	ActiveWindow      string   `json:"active_window"`
	OCRText           []string `json:"ocr_text"`
	Candidates        []string `json:"candidates"`
	LastResultMessage string   `json:"last_result_message"`
}

func (l *LLM) PlanNextAction(ctx context.Context, in Input) (Output, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return Output{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	turn, err := json.Marshal(llmContext{
		Task:              in.Task,
		StepIndex:         in.StepIndex,
		Width:             in.Width,
		Height:            in.Height,
		ActiveWindow:      in.ActiveWindow,
		OCRText:           capItems(in.OCRText),
		Candidates:        capItems(in.CandidateText),
		LastResultMessage: in.LastResultMessage,
	})
	if err != nil {
		return Output{}, fmt.Errorf("encode turn context: %w", err)
	}

	parts := []llms.ContentPart{llms.TextPart(string(turn))}
	if img, err := base64.StdEncoding.DecodeString(in.ImageBase64); err == nil && len(img) > 0 {
		parts = append(parts, llms.BinaryPart("image/png", img))
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt())},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: parts,
		},
	}

	resp, err := l.model.GenerateContent(ctx, messages, llms.WithTemperature(0), llms.WithJSONMode())
	if err != nil {
		return Output{}, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Output{}, fmt.Errorf("%w: no choices", ErrIncompleteResponse)
	}
	return decodeOutput([]byte(extractJSONObject(resp.Choices[0].Content)))
}

// extractJSONObject trims prose or code fences around the first JSON
// object in s.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
