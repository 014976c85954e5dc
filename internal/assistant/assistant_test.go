package assistant

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/meishi/internal/config"
	"github.com/hyperjump/meishi/internal/embedding"
	"github.com/hyperjump/meishi/internal/indexer"
	"github.com/hyperjump/meishi/internal/models"
	"github.com/hyperjump/meishi/internal/storage"
	"github.com/hyperjump/meishi/internal/vector"
)

type fakeChatClient struct {
	reply    string
	err      error
	requests []openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.reply}},
		},
	}, nil
}

func newTestEngine(t *testing.T, client chatClient) (*Engine, storage.Storage, *vector.MemoryIndex, embedding.Embedder) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	vectorIndex, err := vector.NewMemoryIndex(64)
	if err != nil {
		t.Fatalf("failed to create vector index: %v", err)
	}
	embedder := embedding.NewMockEmbedder(64)
	cfg := &config.AssistantConfig{Model: "test-model", MaxContextChunks: 4, MaxHistory: 10}
	return NewEngine(store, embedder, vectorIndex, client, cfg, zap.NewNop()), store, vectorIndex, embedder
}

func TestAnswerIncludesRetrievedContext(t *testing.T) {
	client := &fakeChatClient{reply: "Jane Smith works at Globex."}
	engine, store, vectorIndex, embedder := newTestEngine(t, client)
	ctx := context.Background()

	cardText := "--- CONTACT CARD ---\nName: Jane Smith\nCompany: Globex\n"
	vec, err := embedder.Embed(ctx, cardText)
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	err = vectorIndex.Add(ctx, indexer.UserNamespace("u@x.com"), []*vector.Entry{
		{ID: "1_card", Owner: "1", Text: cardText, Vector: vec},
	})
	if err != nil {
		t.Fatalf("failed to seed vector index: %v", err)
	}

	answer, err := engine.Answer(ctx, "u@x.com", "Where does Jane work?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if answer != "Jane Smith works at Globex." {
		t.Errorf("unexpected answer: %q", answer)
	}

	if len(client.requests) != 1 {
		t.Fatalf("expected 1 completion request, got %d", len(client.requests))
	}
	req := client.requests[0]
	if req.Model != "test-model" {
		t.Errorf("unexpected model: %q", req.Model)
	}
	system := req.Messages[0]
	if system.Role != openai.ChatMessageRoleSystem || !strings.Contains(system.Content, "Globex") {
		t.Errorf("system prompt missing retrieved context: %q", system.Content)
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != openai.ChatMessageRoleUser || last.Content != "Where does Jane work?" {
		t.Errorf("question not last message: %+v", last)
	}

	history, err := store.GetHistory(ctx, "u@x.com", 10)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 2 || history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("exchange not persisted: %+v", history)
	}
}

func TestAnswerCarriesHistory(t *testing.T) {
	client := &fakeChatClient{reply: "ok"}
	engine, store, _, _ := newTestEngine(t, client)
	ctx := context.Background()

	seed := []*models.ChatMessage{
		{UserEmail: "u@x.com", Role: "user", Content: "earlier question"},
		{UserEmail: "u@x.com", Role: "assistant", Content: "earlier answer"},
	}
	for _, m := range seed {
		if err := store.SaveMessage(ctx, m); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	if _, err := engine.Answer(ctx, "u@x.com", "next question"); err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	req := client.requests[0]
	// system + 2 history + question
	if len(req.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(req.Messages))
	}
	if req.Messages[1].Content != "earlier question" || req.Messages[2].Role != openai.ChatMessageRoleAssistant {
		t.Errorf("history not carried: %+v", req.Messages)
	}
}

func TestAnswerEmptyQuestion(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, &fakeChatClient{reply: "x"})
	if _, err := engine.Answer(context.Background(), "u@x.com", "   "); err == nil {
		t.Error("expected error for empty question")
	}
}

func TestAnswerCompletionFailure(t *testing.T) {
	client := &fakeChatClient{err: errors.New("rate limited")}
	engine, store, _, _ := newTestEngine(t, client)
	ctx := context.Background()

	if _, err := engine.Answer(ctx, "u@x.com", "question"); err == nil {
		t.Fatal("expected error from failed completion")
	}
	history, err := store.GetHistory(ctx, "u@x.com", 10)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("failed exchange must not be persisted: %+v", history)
	}
}
