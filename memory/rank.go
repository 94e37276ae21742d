package memory

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Weights blends the two retrieval legs into one combined score:
//
//	score = Vector*vectorScore + Keyword*keywordScore
//
// Candidates without a stored embedding are scored keyword-only with
// the keyword weight renormalized to 1.0, never silently zeroed.
type Weights struct {
	Vector  float64 `yaml:"vector" json:"vector"`
	Keyword float64 `yaml:"keyword" json:"keyword"`
}

// DefaultWeights returns the standard 0.7 vector / 0.3 keyword blend.
func DefaultWeights() Weights {
	return Weights{Vector: 0.7, Keyword: 0.3}
}

// Validate rejects negative weights and an all-zero blend.
func (w Weights) Validate() error {
	if w.Vector < 0 || w.Keyword < 0 {
		return fmt.Errorf("memory: hybrid weights must be non-negative, got (%v, %v)", w.Vector, w.Keyword)
	}
	if w.Vector+w.Keyword == 0 {
		return fmt.Errorf("memory: hybrid weights must not both be zero")
	}
	return nil
}

// orDefault substitutes the default blend for a zero-value Weights so
// callers can leave the field unset.
func (w Weights) orDefault() Weights {
	if w.Vector == 0 && w.Keyword == 0 {
		return DefaultWeights()
	}
	return w
}

// Rank scores candidates against the query and returns the top
// q.Limit results by combined score, ties broken by the newer
// UpdatedAt. It is the shared ranking path for backends without a
// native ranked index; backends with one (FTS5 BM25, chromem cosine)
// feed their native leg scores through Combine instead.
func Rank(q Query, candidates []Entry) []RetrievalResult {
	w := q.Weights.orDefault()

	results := make([]RetrievalResult, 0, len(candidates))
	for _, e := range candidates {
		kw := KeywordScore(q.Text, e.Content)
		var vec float64
		hasVec := len(q.Embedding) > 0 && len(e.Embedding) > 0
		if hasVec {
			vec = CosineSimilarity(q.Embedding, e.Embedding)
		}
		score := Combine(w, vec, kw, hasVec)
		if score <= 0 {
			continue
		}
		results = append(results, RetrievalResult{Entry: e.Clone(), Score: score})
	}

	SortResults(results)
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}

// Combine merges one vector score and one keyword score under the
// weights. When the candidate has no vector leg the keyword weight is
// renormalized to 1.0 so embedding-less entries stay competitive.
func Combine(w Weights, vectorScore, keywordScore float64, hasVector bool) float64 {
	w = w.orDefault()
	if !hasVector {
		return keywordScore
	}
	return w.Vector*vectorScore + w.Keyword*keywordScore
}

// SortResults orders results by descending score; equal scores rank the
// newer UpdatedAt first.
func SortResults(results []RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.UpdatedAt.After(results[j].Entry.UpdatedAt)
	})
}

// KeywordScore computes a lexical match score in [0,1]: the fraction of
// query keywords present in the content. Stop words and short tokens
// are ignored; with no usable keywords the raw lowercased query is
// matched as a substring.
func KeywordScore(query, content string) float64 {
	keywords := ExtractKeywords(query)
	lower := strings.ToLower(content)
	if len(keywords) == 0 {
		q := strings.ToLower(strings.TrimSpace(query))
		if q != "" && strings.Contains(lower, q) {
			return 1
		}
		return 0
	}

	matches := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	return float64(matches) / float64(len(keywords))
}

// ExtractKeywords lowercases the query, strips punctuation and drops
// stop words and tokens shorter than three characters.
func ExtractKeywords(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	var keywords []string
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()[]{}*")
		if len(w) < 3 || stopWords[w] {
			continue
		}
		keywords = append(keywords, w)
	}
	return keywords
}

// stopWords are common words filtered out during keyword extraction.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "its": true, "let": true, "may": true, "who": true,
	"did": true, "get": true, "got": true, "him": true, "his": true,
	"how": true, "new": true, "now": true, "old": true, "see": true,
	"way": true, "too": true, "use": true, "that": true, "with": true,
	"have": true, "this": true, "will": true, "your": true, "from": true,
	"they": true, "been": true, "said": true, "each": true, "which": true,
	"their": true, "what": true, "about": true, "would": true, "there": true,
	"when": true, "make": true, "like": true, "just": true, "know": true,
	"take": true, "could": true, "than": true, "look": true, "only": true,
	"into": true, "over": true, "such": true, "also": true, "back": true,
	"some": true, "them": true, "then": true, "these": true, "where": true,
	"much": true, "should": true, "well": true, "after": true,
}

// CosineSimilarity computes the cosine similarity of two vectors.
// Mismatched or empty vectors score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
