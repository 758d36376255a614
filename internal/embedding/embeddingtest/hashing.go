// Package embeddingtest provides a deterministic, offline embedder for tests.
package embeddingtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"

	"github.com/tmc/langchaingo/embeddings"
)

// Dimension is the length of every vector produced here
const Dimension = 64

// Client hashes lowercase words into Dimension buckets. Texts sharing words
// end up close in cosine space, identical texts map to identical vectors.
type Client struct {
	calls atomic.Int64
	texts atomic.Int64
}

var _ embeddings.EmbedderClient = (*Client)(nil)

func (c *Client) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = Vector(text)
	}
	return out, nil
}

// Calls is the number of CreateEmbedding invocations
func (c *Client) Calls() int { return int(c.calls.Load()) }

// Texts is the total number of texts embedded
func (c *Client) Texts() int { return int(c.texts.Load()) }

// NewEmbedder returns a langchaingo embedder backed by a fresh Client
func NewEmbedder() (*embeddings.EmbedderImpl, *Client) {
	client := &Client{}
	e, _ := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(false))
	return e, client
}

func Vector(text string) []float32 {
	v := make([]float32, Dimension)
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		v[0] = 1
		return v
	}
	for _, word := range fields {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		sum := h.Sum32()
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		v[sum%Dimension] += sign
	}
	return v
}
