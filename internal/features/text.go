package features

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// tokens are runs of two or more letters, digits or underscores
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Tokenize renders a genre set as one whitespace-joined bag and splits it
// into lowercase tokens. "dance pop" contributes "dance" and "pop".
func Tokenize(genres []string) []string {
	if len(genres) == 0 {
		return nil
	}
	doc := strings.ToLower(strings.Join(genres, " "))
	return tokenPattern.FindAllString(doc, -1)
}

// textModel is a fitted TF-IDF vocabulary
type textModel struct {
	vocab []string
	index map[string]int
	idf   []float64
}

// fitText learns the vocabulary and smoothed idf over all documents:
// idf(t) = ln((1+n) / (1+df(t))) + 1
func fitText(docs [][]string) *textModel {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{}, len(doc))
		for _, tok := range doc {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	vocab := make([]string, 0, len(df))
	for tok := range df {
		vocab = append(vocab, tok)
	}
	sort.Strings(vocab)

	n := float64(len(docs))
	m := &textModel{
		vocab: vocab,
		index: make(map[string]int, len(vocab)),
		idf:   make([]float64, len(vocab)),
	}
	for i, tok := range vocab {
		m.index[tok] = i
		m.idf[i] = math.Log((1+n)/(1+float64(df[tok]))) + 1
	}
	return m
}

func (m *textModel) width() int {
	return len(m.vocab)
}

// transform writes raw tf*idf into dst. Tokens outside the vocabulary are
// ignored.
func (m *textModel) transform(doc []string, dst []float64) {
	for _, tok := range doc {
		if i, ok := m.index[tok]; ok {
			dst[i] += m.idf[i]
		}
	}
}
