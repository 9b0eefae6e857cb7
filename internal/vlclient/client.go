// SPDX-License-Identifier: MIT

// Package vlclient talks to an OpenAI-compatible vision-language endpoint.
// The model is pinned to strict JSON output; replies wrapped in markdown
// fences are salvaged, and a single stricter re-prompt is attempted before
// the shot is given up as unparseable.
package vlclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/detect"
)

// Skipped reasons recorded when reasoning cannot complete.
const (
	ReasonUnreachable = "vl_unreachable"
	ReasonParseFailed = "vl_parse_failed"
)

var (
	// ErrUnreachable means all transport attempts failed.
	ErrUnreachable = errors.New("vl endpoint unreachable")
	// ErrParseFailed means the model never produced parseable JSON.
	ErrParseFailed = errors.New("vl reply not parseable as JSON")
)

// ShotNarrative is the parsed shot-level reply.
type ShotNarrative struct {
	Summary          string   `json:"summary"`
	Mood             string   `json:"mood"`
	Intent           string   `json:"intent"`
	CompositionNotes []string `json:"composition_notes"`
	TransitionGuess  string   `json:"transition_guess"`
}

// SceneStory is the parsed scene-level reply.
type SceneStory struct {
	NarrativeFunction string   `json:"narrative_function"`
	Tone              string   `json:"tone"`
	Motifs            []string `json:"motifs"`
	Risks             []string `json:"risks"`
}

// Reasoner is the reasoning capability consumed by the scheduler. The
// concrete Client talks HTTP; tests inject fakes.
type Reasoner interface {
	DescribeShot(ctx context.Context, obs ShotObservation, framePaths []string, maxFrames int) (ShotNarrative, error)
	DescribeScene(ctx context.Context, obs SceneObservation) (SceneStory, error)
	Healthy(ctx context.Context) bool
}

// Client is the HTTP Reasoner.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  zerolog.Logger

	// backoff between transport attempts; shortened in tests.
	backoff []time.Duration
}

// New builds a client from the VL configuration.
func New(cfg config.VLConfig, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.APIBase, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
		backoff: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// chat wire types, OpenAI chat-completions shape.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// DescribeShot sends sampled keyframes plus extracted signals and parses the
// strict-JSON narrative reply.
func (c *Client) DescribeShot(ctx context.Context, obs ShotObservation, framePaths []string, maxFrames int) (ShotNarrative, error) {
	parts := []contentPart{{Type: "text", Text: shotUserPrompt(obs)}}
	for _, p := range sampleEvenly(framePaths, maxFrames) {
		url, err := frameDataURL(p)
		if err != nil {
			return ShotNarrative{}, err
		}
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: url}})
	}

	var out ShotNarrative
	if err := c.completeJSON(ctx, shotSystemPrompt, parts, &out); err != nil {
		return ShotNarrative{}, err
	}
	if out.TransitionGuess == "" {
		out.TransitionGuess = "unknown"
	}
	return out, nil
}

// DescribeScene runs the text-only scene-level call.
func (c *Client) DescribeScene(ctx context.Context, obs SceneObservation) (SceneStory, error) {
	parts := []contentPart{{Type: "text", Text: sceneUserPrompt(obs)}}
	var out SceneStory
	if err := c.completeJSON(ctx, sceneSystemPrompt, parts, &out); err != nil {
		return SceneStory{}, err
	}
	return out, nil
}

// Healthy probes the models listing with a short deadline.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 500
}

// completeJSON runs a chat call, salvages fenced replies, and re-prompts once
// with a stricter instruction before giving up.
func (c *Client) completeJSON(ctx context.Context, system string, userParts []contentPart, out any) error {
	messages := []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: userParts},
	}

	reply, err := c.chat(ctx, messages)
	if err != nil {
		return err
	}
	if json.Unmarshal([]byte(extractJSON(reply)), out) == nil {
		return nil
	}

	c.logger.Warn().Str("event", "vl.reprompt").Msg("reply not parseable, re-prompting")
	messages = append(messages,
		chatMessage{Role: "assistant", Content: reply},
		chatMessage{Role: "user", Content: strictReminder},
	)
	reply, err = c.chat(ctx, messages)
	if err != nil {
		return err
	}
	if json.Unmarshal([]byte(extractJSON(reply)), out) == nil {
		return nil
	}
	return detect.External("vl reply parse", ErrParseFailed)
}

// chat performs one logical completion with transport retries.
func (c *Client) chat(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   1024,
		Temperature: 0.2,
	})
	if err != nil {
		return "", detect.Internal("marshal vl request", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(c.backoff); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.backoff[attempt-1]):
			}
		}

		reply, retryable, err := c.doOnce(ctx, body)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !retryable {
			return "", err
		}
		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt+1).
			Str("event", "vl.retry").Msg("vl call failed")
	}
	return "", detect.External("vl endpoint", fmt.Errorf("%w: %w", ErrUnreachable, lastErr))
}

// doOnce reports whether a failure is worth retrying (transport errors, 429,
// and 5xx are; other HTTP errors are not).
func (c *Client) doOnce(ctx context.Context, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, detect.Internal("build vl request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", true, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("vl status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, detect.External("vl endpoint", fmt.Errorf("vl status %d: %s", resp.StatusCode, truncate(string(data), 200)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, detect.External("vl response decode", err)
	}
	if len(parsed.Choices) == 0 {
		return "", false, detect.External("vl response", errors.New("no choices in reply"))
	}
	return parsed.Choices[0].Message.Content, false, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// extractJSON salvages a JSON object from a reply that may be wrapped in
// markdown fences or surrounded by prose.
func extractJSON(reply string) string {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// frameDataURL inlines a JPEG keyframe as a base64 data URL.
func frameDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", detect.InputDefect("read frame for vl", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// sampleEvenly picks at most max frames spread across the shot.
func sampleEvenly(paths []string, max int) []string {
	if max <= 0 || len(paths) <= max {
		return paths
	}
	out := make([]string, 0, max)
	step := float64(len(paths)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		out = append(out, paths[int(float64(i)*step+0.5)])
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
