package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// maxResponseBytes bounds how much of a provider reply is read.
const maxResponseBytes = 1 << 20

// Remote posts the turn to an HTTP vision-language endpoint.
type Remote struct {
	url     string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewRemote returns a provider for url. A nil limiter disables rate
// limiting.
func NewRemote(url, apiKey string, timeout time.Duration, limiter *rate.Limiter) *Remote {
	return &Remote{
		url:     url,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

func (r *Remote) Name() string { return "vlm" }

type remoteScreen struct {
	ImageBase64 string `json:"image_base64"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

type remoteRequirements struct {
	SingleActionOnly   bool     `json:"single_action_only"`
	UnsupportedActions []string `json:"unsupported_actions"`
}

type remoteRequest struct {
	Task              string             `json:"task"`
	StepIndex         int                `json:"step_index"`
	Screen            remoteScreen       `json:"screen"`
	ActiveWindow      string             `json:"active_window"`
	OCRText           []string           `json:"ocr_text"`
	Candidates        []string           `json:"candidates"`
	LastResultMessage string             `json:"last_result_message"`
	Requirements      remoteRequirements `json:"requirements"`
}

func (r *Remote) PlanNextAction(ctx context.Context, in Input) (Output, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Output{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	payload, err := json.Marshal(remoteRequest{
		Task:      in.Task,
		StepIndex: in.StepIndex,
		Screen: remoteScreen{
			ImageBase64: in.ImageBase64,
			Width:       in.Width,
			Height:      in.Height,
		},
		ActiveWindow:      in.ActiveWindow,
		OCRText:           capItems(in.OCRText),
		Candidates:        capItems(in.CandidateText),
		LastResultMessage: in.LastResultMessage,
		Requirements: remoteRequirements{
			SingleActionOnly:   true,
			UnsupportedActions: []string{"speak"},
		},
	})
	if err != nil {
		return Output{}, fmt.Errorf("encode provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return Output{}, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Output{}, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Output{}, fmt.Errorf("read provider response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Output{}, fmt.Errorf("provider returned HTTP %d", resp.StatusCode)
	}
	return decodeOutput(body)
}
