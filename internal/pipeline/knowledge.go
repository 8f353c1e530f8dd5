package pipeline

import (
	"context"
	"log/slog"
	"math"
)

// minSimilarity keeps barely-related memories out of the prompt.
const minSimilarity = 0.75

// retrieveKnowledge embeds the inbound text and returns the best-matching
// stored snippet, or empty. Every failure path degrades to no knowledge.
func (p *Pipeline) retrieveKnowledge(ctx context.Context, text string) string {
	stored, err := p.store.ListEmbeddings()
	if err != nil || len(stored) == 0 {
		return ""
	}

	query, err := p.llm.Embed(ctx, text)
	if err != nil {
		slog.Debug("Knowledge retrieval embed failed", "error", err)
		return ""
	}

	best := ""
	bestScore := minSimilarity
	for _, e := range stored {
		if score := cosineSimilarity(query, e.Vector); score > bestScore {
			bestScore = score
			best = e.SourceText
		}
	}
	return best
}

func cosineSimilarity(a, b []float64) float64 {
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
