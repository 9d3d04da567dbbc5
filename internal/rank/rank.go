// Package rank scores collected items against a recipient's interests.
//
// Scoring is cosine similarity over a TF-IDF vector space built from the
// current batch: unigrams and bigrams, vocabulary capped at the most
// frequent terms. The model is rebuilt per call; nothing is persisted.
package rank

import (
	"math"
	"sort"
	"strings"

	"digestbot/internal/ingest"
	logx "digestbot/pkg/logx"
)

const (
	// Threshold is the minimum cosine similarity for an item to count as
	// relevant to the interest profile.
	Threshold = 0.2

	// MaxResults caps the ranked output.
	MaxResults = 50

	// unrankedLimit caps the passthrough when no interests exist.
	unrankedLimit = 20

	maxVocabulary = 2000
)

type Ranker struct {
	log logx.Logger
}

func New(log logx.Logger) *Ranker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ranker{log: log}
}

// Rank filters items by relevance to the interests and orders them by
// descending score. Ties keep input order. With no interests the first
// items pass through unscored; a degenerate corpus (no usable terms)
// yields an empty result rather than an error.
func (r *Ranker) Rank(items []ingest.Item, interests []string) []ingest.Item {
	if len(items) == 0 {
		return nil
	}

	query := strings.TrimSpace(strings.Join(interests, "; "))
	if query == "" {
		n := len(items)
		if n > unrankedLimit {
			n = unrankedLimit
		}
		out := make([]ingest.Item, n)
		copy(out, items[:n])
		return out
	}

	docs := make([]string, 0, len(items)+1)
	for _, it := range items {
		docs = append(docs, it.Title+" "+it.Summary)
	}
	docs = append(docs, query)

	vecs, ok := vectorize(docs)
	if !ok {
		r.log.Debug("no usable terms in batch; nothing ranked",
			logx.Int("items", len(items)))
		return nil
	}
	queryVec := vecs[len(vecs)-1]

	type scored struct {
		item  ingest.Item
		score float64
	}
	var kept []scored
	for i := range items {
		score := dot(vecs[i], queryVec)
		if score >= Threshold {
			it := items[i]
			s := score
			it.Relevance = &s
			kept = append(kept, scored{item: it, score: score})
		}
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })
	if len(kept) > MaxResults {
		kept = kept[:MaxResults]
	}

	out := make([]ingest.Item, len(kept))
	for i, s := range kept {
		out[i] = s.item
	}
	return out
}

// vectorize builds L2-normalized TF-IDF vectors for the documents. The
// vocabulary is the top terms by total frequency across the corpus. ok is
// false when tokenization finds no terms at all.
func vectorize(docs []string) (vecs []map[int]float64, ok bool) {
	counts := make([]map[string]int, len(docs))
	total := map[string]int{}
	for i, doc := range docs {
		c := map[string]int{}
		for _, term := range terms(doc) {
			c[term]++
			total[term]++
		}
		counts[i] = c
	}
	if len(total) == 0 {
		return nil, false
	}

	vocab := buildVocabulary(total)

	// Document frequency over the capped vocabulary.
	df := make([]int, len(vocab))
	for _, c := range counts {
		for term, idx := range vocab {
			if c[term] > 0 {
				df[idx]++
			}
		}
	}

	// Smoothed IDF, as if one extra document contained every term.
	n := float64(len(docs))
	idf := make([]float64, len(vocab))
	for i, d := range df {
		idf[i] = math.Log((1+n)/(1+float64(d))) + 1
	}

	vecs = make([]map[int]float64, len(docs))
	for i, c := range counts {
		v := map[int]float64{}
		var norm float64
		for term, cnt := range c {
			idx, found := vocab[term]
			if !found {
				continue
			}
			w := float64(cnt) * idf[idx]
			v[idx] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for idx := range v {
				v[idx] /= norm
			}
		}
		vecs[i] = v
	}
	return vecs, true
}

func buildVocabulary(total map[string]int) map[string]int {
	type termCount struct {
		term  string
		count int
	}
	all := make([]termCount, 0, len(total))
	for term, cnt := range total {
		all = append(all, termCount{term, cnt})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].term < all[j].term
	})
	if len(all) > maxVocabulary {
		all = all[:maxVocabulary]
	}

	vocab := make(map[string]int, len(all))
	for i, tc := range all {
		vocab[tc.term] = i
	}
	return vocab
}

// terms tokenizes into lowercase unigrams plus adjacent bigrams.
func terms(s string) []string {
	words := tokenize(s)
	out := make([]string, 0, 2*len(words))
	out = append(out, words...)
	for i := 0; i+1 < len(words); i++ {
		out = append(out, words[i]+" "+words[i+1])
	}
	return out
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !isWordRune(r)
	})
	words := fields[:0]
	for _, w := range fields {
		if len(w) > 1 || isDigitWord(w) {
			words = append(words, w)
		}
	}
	return words
}

func isWordRune(r rune) bool {
	return r == '_' ||
		(r >= '0' && r <= '9') ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		r > 127
}

func isDigitWord(w string) bool {
	return len(w) == 1 && w[0] >= '0' && w[0] <= '9'
}

func dot(a, b map[int]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for idx, av := range a {
		sum += av * b[idx]
	}
	return sum
}
