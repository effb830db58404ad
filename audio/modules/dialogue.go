package modules

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/sashabaranov/go-openai"
)

// DialogueEngine streams the assistant's reply to history. Fragments must
// be concatenated in delivery order; an error ends the sequence.
type DialogueEngine interface {
	Generate(ctx context.Context, history []Turn) iter.Seq2[string, error]
}

// NewOpenAIClient builds a client for api.openai.com or, when baseURL is
// set, any OpenAI compatible server such as a local Ollama.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

type ChatEngine struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

func NewChatEngine(client *openai.Client, model, systemPrompt string) *ChatEngine {
	return &ChatEngine{client: client, model: model, systemPrompt: systemPrompt}
}

func (e *ChatEngine) Generate(ctx context.Context, history []Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream, err := e.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    e.model,
			Messages: e.messages(history),
			Stream:   true,
		})
		if err != nil {
			yield("", Wrap(KindGeneration, "chat.open", err))
			return
		}
		defer stream.Close()

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", Wrap(KindGeneration, "chat.recv", err))
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !yield(delta, nil) {
					return
				}
			}
		}
	}
}

// messages converts history, skipping empty turns such as the pending
// assistant reply.
func (e *ChatEngine) messages(history []Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if e.systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: e.systemPrompt})
	}
	for _, turn := range history {
		if turn.Content == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		if turn.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	return msgs
}
