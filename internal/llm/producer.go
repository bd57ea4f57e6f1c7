package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"archie-backend/internal/store"
	"archie-backend/internal/streaming"
)

// Producer is the generation pipeline contract: given a question and the
// conversation so far, it returns an ordered stream of chunks.
type Producer interface {
	Generate(ctx context.Context, question string, history []store.Message) streaming.Stream
}

// errStreamClosed aborts generation when the consumer stops pulling.
var errStreamClosed = errors.New("stream consumer closed")

// OpenAIProducer streams completions from an OpenAI-compatible endpoint.
type OpenAIProducer struct {
	client  *openai.LLM
	persona *Persona
}

var _ Producer = (*OpenAIProducer)(nil)

func NewOpenAIProducer(apiKey string, persona *Persona) (*OpenAIProducer, error) {
	client, err := openai.New(openai.WithToken(apiKey), openai.WithModel(persona.Model))
	if err != nil {
		return nil, fmt.Errorf("could not create OpenAI client: %w", err)
	}
	return &OpenAIProducer{client: client, persona: persona}, nil
}

func (p *OpenAIProducer) Generate(ctx context.Context, question string, history []store.Message) streaming.Stream {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, p.persona.SystemPrompt),
	}
	for _, msg := range history {
		switch msg.Role {
		case "assistant":
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, msg.Content))
		default:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		}
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, question))

	return func(yield func(streaming.Chunk, error) bool) {
		_, err := p.client.GenerateContent(ctx, messages,
			llms.WithTemperature(p.persona.Temperature),
			llms.WithMaxTokens(p.persona.MaxTokens),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				if !yield(streaming.TextDelta{Text: string(chunk)}, nil) {
					return errStreamClosed
				}
				return nil
			}),
		)
		if err != nil && !errors.Is(err, errStreamClosed) {
			yield(nil, fmt.Errorf("generation failed: %w", err))
			return
		}
		if err == nil {
			yield(streaming.Final{}, nil)
		}
	}
}
