package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// embeddingsClient is the subset of the OpenAI client used here; narrowed for tests.
type embeddingsClient interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder implements Embedder against the hosted OpenAI embeddings API.
// Results are cached by text so repeated cards and queries cost one call.
type OpenAIEmbedder struct {
	client     embeddingsClient
	model      openai.EmbeddingModel
	dimensions int
	cache      *EmbeddingCache
}

// NewOpenAIEmbedder creates an embedder for the given model and dimension.
// cacheSize bounds the LRU embedding cache.
func NewOpenAIEmbedder(apiKey, model string, dimensions, cacheSize int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	return &OpenAIEmbedder{
		client:     openai.NewClient(apiKey),
		model:      openai.EmbeddingModel(model),
		dimensions: dimensions,
		cache:      NewEmbeddingCache(cacheSize),
	}, nil
}

// Embed returns the embedding for text, using the cache when possible.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if emb, ok := e.cache.Get(text); ok {
		return emb, nil
	}
	embeddings, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, embeddings[0])
	return embeddings[0], nil
}

// EmbedBatch embeds texts, requesting only cache misses from the API.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if emb, ok := e.cache.Get(text); ok {
			result[i] = emb
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return result, nil
	}
	embeddings, err := e.request(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i, emb := range embeddings {
		result[missingIdx[i]] = emb
		e.cache.Set(missing[i], emb)
	}
	return result, nil
}

func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      e.model,
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response count mismatch: got %d, expected %d", len(resp.Data), len(texts))
	}
	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding response index out of range: %d", d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for the hosted API client.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
