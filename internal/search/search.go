// Package search ranks schema tables against a natural language question.
// Each session gets its own index built from the table DDL at connect
// time; queries embed the question and rank tables by cosine similarity.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sqlmesa/sqlmesa/internal/llm"
)

// TableSearch finds the table names most relevant to a question. An
// empty result is a valid outcome and callers are expected to fall back
// to the full table list.
type TableSearch interface {
	TopK(ctx context.Context, question string, k int) ([]string, error)
}

// Document is one indexable table description.
type Document struct {
	Table string
	Text  string
}

// EmbeddingSearch is an in-memory vector index over table documents.
type EmbeddingSearch struct {
	embedder llm.Embedder
	tables   []string
	vectors  [][]float64
}

func NewEmbeddingSearch(embedder llm.Embedder) *EmbeddingSearch {
	return &EmbeddingSearch{embedder: embedder}
}

// Index embeds the documents and replaces any previous index content.
func (s *EmbeddingSearch) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		s.tables = nil
		s.vectors = nil
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d table documents: %w", len(docs), err)
	}

	s.tables = make([]string, len(docs))
	for i, doc := range docs {
		s.tables[i] = doc.Table
	}
	s.vectors = vectors
	return nil
}

// TopK returns up to k table names ranked by similarity to the question.
func (s *EmbeddingSearch) TopK(ctx context.Context, question string, k int) ([]string, error) {
	if len(s.tables) == 0 || k <= 0 {
		return nil, nil
	}

	queryVectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	query := queryVectors[0]

	type scored struct {
		table string
		score float64
	}
	ranked := make([]scored, 0, len(s.tables))
	for i, table := range s.tables {
		ranked = append(ranked, scored{table: table, score: cosine(query, s.vectors[i])})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k > len(ranked) {
		k = len(ranked)
	}
	result := make([]string, k)
	for i := 0; i < k; i++ {
		result[i] = ranked[i].table
	}
	return result, nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
