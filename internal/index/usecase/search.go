package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	indexdomain "maildigest/internal/index/domain"
	"maildigest/pkg/fuzzy"
)

// SearchResult is one ranked hit.
type SearchResult struct {
	MessageSeq   int64   `json:"message_seq"`
	Score        float64 `json:"score"`
	LexicalScore float64 `json:"lexical_score"`
	VectorScore  float64 `json:"vector_score"`
}

// Search performs hybrid search: a normalized lexical overlap score and a
// cosine-similarity score per entry, ranked by the higher of the two (or a
// weighted sum when a vector weight is configured). Ties break toward the
// more recently received message. Returns at most k message sequence
// numbers.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return nil, nil
	}

	queryTokens := Tokenize(query)

	// Embed the query if we can; lexical-only search still works without it
	var queryVector []float32
	var modelVersion string
	if e.embedder != nil {
		vec, err := e.embedder.Embed(ctx, query)
		if err == nil {
			queryVector = vec
			modelVersion = e.embedder.ModelVersion()
		}
	}

	var results []SearchResult
	afterSeq := int64(0)
	for {
		entries, err := e.entries.ListAll(afterSeq, e.batchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		if len(entries) == 0 {
			break
		}

		for _, entry := range entries {
			lex := lexicalScore(queryTokens, entry.Tokens)

			vec := 0.0
			// Vectors from a different model version are never compared
			if queryVector != nil && !entry.PendingEmbedding && entry.ModelVersion == modelVersion {
				vec = normalizedCosine(queryVector, entry.Vector)
			}

			score := math.Max(lex, vec)
			if e.vectorWeight > 0 {
				score = e.vectorWeight*vec + (1-e.vectorWeight)*lex
			}
			if score <= 0 {
				continue
			}

			results = append(results, SearchResult{
				MessageSeq:   entry.MessageSeq,
				Score:        score,
				LexicalScore: lex,
				VectorScore:  vec,
			})
		}

		afterSeq = entries[len(entries)-1].MessageSeq
		if len(entries) < e.batchSize {
			break
		}
	}

	receivedAt := make(map[int64]int64, len(results))
	for _, r := range results {
		if entry, err := e.entries.GetByMessageSeq(r.MessageSeq); err == nil && entry != nil {
			receivedAt[r.MessageSeq] = entry.ReceivedAt.UnixNano()
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Tie-break: more recent received timestamp first
		return receivedAt[results[i].MessageSeq] > receivedAt[results[j].MessageSeq]
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// lexicalScore is the fraction of query tokens present in the entry's token
// set, in [0,1].
func lexicalScore(queryTokens []string, entryTokens []string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(entryTokens))
	for _, t := range entryTokens {
		set[t] = struct{}{}
	}
	matched := 0
	for _, t := range queryTokens {
		if _, ok := set[t]; ok {
			matched++
			continue
		}
		// Tolerate a single-edit typo on longer tokens
		for _, et := range entryTokens {
			if fuzzy.TokenMatch(t, et) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

// normalizedCosine maps cosine similarity from [-1,1] into [0,1] so it is
// comparable with the lexical score.
func normalizedCosine(a []float32, b indexdomain.Vector) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}
