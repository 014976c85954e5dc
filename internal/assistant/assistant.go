// Package assistant answers natural-language questions about a user's
// contacts: the question is embedded, relevant contact cards and document
// chunks are retrieved from the user's vector namespace, and a chat
// completion produces the answer grounded in that context.
package assistant

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/meishi/internal/config"
	"github.com/hyperjump/meishi/internal/embedding"
	"github.com/hyperjump/meishi/internal/indexer"
	"github.com/hyperjump/meishi/internal/models"
	"github.com/hyperjump/meishi/internal/storage"
	"github.com/hyperjump/meishi/internal/vector"
	"github.com/hyperjump/meishi/pkg/utils"
)

const systemPrompt = `You are a personal contact assistant. Answer questions about the user's contacts using only the context below. If the context does not contain the answer, say so. Be concise.`

// chatClient is the slice of the OpenAI client the engine needs.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Engine runs retrieval-augmented assistant queries over one user's contacts.
type Engine struct {
	storage     storage.Storage
	embedder    embedding.Embedder
	vectorIndex vector.Index
	client      chatClient
	config      *config.AssistantConfig
	logger      *zap.Logger
}

func NewEngine(
	store storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.Index,
	client chatClient,
	cfg *config.AssistantConfig,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		storage:     store,
		embedder:    embedder,
		vectorIndex: vectorIndex,
		client:      client,
		config:      cfg,
		logger:      logger,
	}
}

// Answer embeds the question, retrieves context from the user's namespace,
// and asks the chat model. Both the question and the answer are appended to
// the persisted history.
func (e *Engine) Answer(ctx context.Context, userEmail, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("empty question")
	}

	queryVec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return "", fmt.Errorf("failed to embed question: %w", err)
	}
	hits, err := e.vectorIndex.Search(ctx, indexer.UserNamespace(userEmail), queryVec, e.config.MaxContextChunks)
	if err != nil {
		return "", fmt.Errorf("failed to search contacts: %w", err)
	}

	history, err := e.storage.GetHistory(ctx, userEmail, e.config.MaxHistory)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}

	messages := e.buildMessages(hits, history, question)
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    e.config.Model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	answer := resp.Choices[0].Message.Content

	e.saveExchange(ctx, userEmail, question, answer)

	e.logger.Debug("assistant answered",
		zap.String("user", userEmail),
		zap.Int("context_chunks", len(hits)),
		zap.String("answer", utils.Truncate(answer, 120)))
	return answer, nil
}

func (e *Engine) buildMessages(hits []*vector.Result, history []*models.ChatMessage, question string) []openai.ChatCompletionMessage {
	var contextText strings.Builder
	for _, hit := range hits {
		contextText.WriteString(hit.Text)
		contextText.WriteString("\n\n")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt + "\n\nContext:\n" + contextText.String(),
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: question,
	})
	return messages
}

// saveExchange persists both sides of the turn. History is a convenience, so
// a failed write is logged rather than failing the answer.
func (e *Engine) saveExchange(ctx context.Context, userEmail, question, answer string) {
	for _, m := range []*models.ChatMessage{
		{UserEmail: userEmail, Role: "user", Content: question},
		{UserEmail: userEmail, Role: "assistant", Content: answer},
	} {
		if err := e.storage.SaveMessage(ctx, m); err != nil {
			e.logger.Warn("failed to save chat message", zap.Error(err))
			return
		}
	}
}

// History returns the most recent exchanges for a user in chronological order.
func (e *Engine) History(ctx context.Context, userEmail string, limit int) ([]*models.ChatMessage, error) {
	if limit <= 0 {
		limit = e.config.MaxHistory
	}
	return e.storage.GetHistory(ctx, userEmail, limit)
}

// ClearHistory drops a user's conversation history.
func (e *Engine) ClearHistory(ctx context.Context, userEmail string) error {
	return e.storage.ClearHistory(ctx, userEmail)
}
