package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/schollz/progressbar/v3"

	"github.com/alint77/llm-oai-tpsbench/internal/tokens"
)

// Error kinds. Every error returned from this package wraps one of
// these, so callers can tell a transport failure from a malformed
// server reply with errors.Is.
var (
	ErrNetwork  = errors.New("network error")
	ErrProtocol = errors.New("protocol error")
)

// Response holds what a single completion request produced.
type Response struct {
	// Text is the full generated text. For streams it is the
	// concatenation of all deltas in arrival order.
	Text string

	// UsageTokens is the server-reported usage.total_tokens,
	// 0 when the server sent no usage block.
	UsageTokens int

	// Elapsed is the measured window in seconds. Non-stream: request
	// send to full response receipt. Stream: first chunk receipt to
	// terminal chunk receipt, excluding connection setup and
	// time-to-first-token.
	Elapsed float64
}

// NewClient builds an OpenAI client for the given base URL
// (e.g. http://127.0.0.1:8080/v1). A zero timeout leaves the default
// HTTP client untouched.
func NewClient(baseURL, apiKey string, timeout time.Duration) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	if timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: timeout}
	}
	return openai.NewClientWithConfig(config)
}

// AskChat sends one prompt to the chat/completions endpoint and waits
// for the full response.
func AskChat(client *openai.Client, model, prompt string, maxTokens int) (Response, error) {
	start := time.Now()
	resp, err := client.CreateChatCompletion(
		context.Background(),
		openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			// Add the deprecated `MaxTokens` for backward compatibility with some older API servers.
			MaxTokens:           maxTokens,
			MaxCompletionTokens: maxTokens,
		},
	)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return Response{}, classify(err)
	}

	result := Response{
		UsageTokens: resp.Usage.TotalTokens,
		Elapsed:     elapsed,
	}
	if len(resp.Choices) > 0 {
		result.Text = resp.Choices[0].Message.Content
	}
	return result, nil
}

// AskChatStream sends one prompt to the chat/completions endpoint and
// consumes the response stream. The measured window runs from receipt
// of the first chunk to receipt of the terminal [DONE] chunk, so
// connection setup and time-to-first-token never count. When bar is
// non-nil it advances by an estimated token count per delta.
func AskChatStream(client *openai.Client, model, prompt string, maxTokens int, bar *progressbar.ProgressBar) (Response, error) {
	stream, err := client.CreateChatCompletionStream(
		context.Background(),
		openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			// Add the deprecated `MaxTokens` for backward compatibility with some older API servers.
			MaxTokens:           maxTokens,
			MaxCompletionTokens: maxTokens,
			Stream:              true,
			StreamOptions: &openai.StreamOptions{
				IncludeUsage: true,
			},
		},
	)
	if err != nil {
		return Response{}, classify(err)
	}
	defer stream.Close()

	var (
		content   strings.Builder
		firstSeen bool
		first     time.Time
		last      time.Time
		lastUsage *openai.Usage
	)
	estimator := tokens.Heuristic()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			// EOF is the [DONE] terminator; its receipt closes the window.
			last = time.Now()
			break
		}
		if err != nil {
			return Response{}, classify(fmt.Errorf("stream error: %w", err))
		}

		if !firstSeen {
			first = time.Now()
			firstSeen = true
		}

		if len(resp.Choices) > 0 {
			delta := resp.Choices[0].Delta.Content
			if delta != "" {
				content.WriteString(delta)
				if bar != nil {
					bar.Add(estimator.Count(delta))
				}
			}
		}
		if resp.Usage != nil {
			lastUsage = resp.Usage
		}
	}

	result := Response{Text: content.String()}
	if firstSeen {
		result.Elapsed = last.Sub(first).Seconds()
	}
	if lastUsage != nil {
		result.UsageTokens = lastUsage.TotalTokens
	}
	return result, nil
}

// AskCompletion sends one prompt to the classic completions endpoint
// and waits for the full response.
func AskCompletion(client *openai.Client, model, prompt string, maxTokens int) (Response, error) {
	start := time.Now()
	resp, err := client.CreateCompletion(
		context.Background(),
		openai.CompletionRequest{
			Model:     model,
			Prompt:    prompt,
			MaxTokens: maxTokens,
		},
	)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return Response{}, classify(err)
	}

	result := Response{
		UsageTokens: resp.Usage.TotalTokens,
		Elapsed:     elapsed,
	}
	if len(resp.Choices) > 0 {
		result.Text = resp.Choices[0].Text
	}
	return result, nil
}

// AskCompletionStream is AskChatStream for the classic completions
// endpoint. Deltas arrive as choices[0].text fragments.
func AskCompletionStream(client *openai.Client, model, prompt string, maxTokens int, bar *progressbar.ProgressBar) (Response, error) {
	stream, err := client.CreateCompletionStream(
		context.Background(),
		openai.CompletionRequest{
			Model:     model,
			Prompt:    prompt,
			MaxTokens: maxTokens,
			Stream:    true,
		},
	)
	if err != nil {
		return Response{}, classify(err)
	}
	defer stream.Close()

	var (
		content     strings.Builder
		firstSeen   bool
		first       time.Time
		last        time.Time
		usageTokens int
	)
	estimator := tokens.Heuristic()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			last = time.Now()
			break
		}
		if err != nil {
			return Response{}, classify(fmt.Errorf("stream error: %w", err))
		}

		if !firstSeen {
			first = time.Now()
			firstSeen = true
		}

		if len(resp.Choices) > 0 {
			delta := resp.Choices[0].Text
			if delta != "" {
				content.WriteString(delta)
				if bar != nil {
					bar.Add(estimator.Count(delta))
				}
			}
		}
		if resp.Usage.TotalTokens > 0 {
			usageTokens = resp.Usage.TotalTokens
		}
	}

	result := Response{Text: content.String(), UsageTokens: usageTokens}
	if firstSeen {
		result.Elapsed = last.Sub(first).Seconds()
	}
	return result, nil
}

// GetFirstAvailableModel retrieves the first available model from the OpenAI API.
func GetFirstAvailableModel(client *openai.Client) (string, error) {
	modelList, err := client.ListModels(context.Background())
	if err != nil {
		return "", classify(fmt.Errorf("failed to list models: %w", err))
	}

	if len(modelList.Models) == 0 {
		return "", fmt.Errorf("no models available")
	}

	return modelList.Models[0].ID, nil
}

// classify maps client errors onto the package error kinds. API status
// errors and transport failures are network errors; everything else
// means the server replied with something we could not parse.
func classify(err error) error {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var urlErr *url.Error
	switch {
	case errors.As(err, &apiErr), errors.As(err, &reqErr), errors.As(err, &urlErr):
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	default:
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
}
