// Package llm wraps an OpenAI-compatible server (LM Studio, Ollama, OpenAI)
// behind the three calls the pipeline needs: embeddings, relevance grading and
// streamed answer generation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/avezek/docuchat/internal/config"
	"github.com/avezek/docuchat/internal/logger"
	"github.com/avezek/docuchat/internal/model"
)

type Client struct {
	api        *openai.Client
	embedModel string
	chatModel  string

	maxAttempts int
	retryBase   time.Duration

	log *logger.Logger
}

func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	oaiCfg.BaseURL = cfg.LMBaseURL
	return &Client{
		api:         openai.NewClientWithConfig(oaiCfg),
		embedModel:  cfg.EmbedModel,
		chatModel:   cfg.ChatModel,
		maxAttempts: cfg.MaxAttempts,
		retryBase:   500 * time.Millisecond,
		log:         log.With("component", "llm"),
	}
}

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := c.withRetry(ctx, "embed", func() error {
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.embedModel),
			Input: []string{text},
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return errors.New("llm: empty embeddings response")
		}
		out = resp.Data[0].Embedding
		return nil
	})
	return out, err
}

// Grade classifies one passage as relevant to the query or not.
func (c *Client) Grade(ctx context.Context, query, passage string) (bool, error) {
	prompt := fmt.Sprintf(
		"Is this passage relevant to the question: %q? Answer only 'yes' or 'no'.\n\nPassage:\n%s",
		query, passage,
	)
	var answer string
	err := c.withRetry(ctx, "grade", func() error {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.chatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: 0,
			MaxTokens:   4,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("llm: empty grading response")
		}
		answer = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return false, err
	}
	return parseVerdict(answer), nil
}

// Stream starts answer generation and returns a channel of content deltas.
// The channel closes when generation finishes; a Token carrying Err is always
// the last one sent. Cancelling ctx stops the underlying request and no
// further tokens are delivered.
func (c *Client) Stream(ctx context.Context, req model.GenerationRequest) (<-chan model.Token, error) {
	messages := buildMessages(req)

	var stream *openai.ChatCompletionStream
	err := c.withRetry(ctx, "generate", func() error {
		var err error
		stream, err = c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       c.chatModel,
			Messages:    messages,
			Temperature: 0.2,
			Stream:      true,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make(chan model.Token)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case out <- model.Token{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- model.Token{Content: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func buildMessages(req model.GenerationRequest) []openai.ChatCompletionMessage {
	var system string
	if req.Grounded {
		var b strings.Builder
		for _, ch := range req.Context {
			fmt.Fprintf(&b, "[%s]", ch.ID)
			if f := ch.Metadata["filename"]; f != "" {
				fmt.Fprintf(&b, " (%s", f)
				if pg := ch.Metadata["page"]; pg != "" {
					fmt.Fprintf(&b, ", p.%s", pg)
				}
				b.WriteString(")")
			}
			b.WriteString("\n")
			b.WriteString(ch.Text)
			b.WriteString("\n\n")
		}
		system = fmt.Sprintf(
			"You are a document assistant. Answer strictly from the context below, citing sources by their bracketed ids. If the context is not enough, say so honestly.\n\nContext:\n%s",
			b.String(),
		)
	} else {
		system = "You are a general assistant. None of the uploaded documents matched this question, so answer from general knowledge and make clear the answer is not based on the user's documents."
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleSystem, Content: system,
	})
	for _, t := range req.History {
		role := openai.ChatMessageRoleUser
		if t.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: req.Query,
	})
	return messages
}

func parseVerdict(answer string) bool {
	return strings.Contains(strings.ToLower(answer), "yes")
}

// withRetry runs fn up to maxAttempts times with doubling backoff, retrying
// only transient failures.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := c.retryBase
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isTransient(err) || attempt == c.maxAttempts {
			return err
		}
		c.log.Warn("llm call retrying",
			"op", op, "attempt", attempt, "max_attempts", c.maxAttempts, "err", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}

func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
