// Package ranking scores documents against keyword queries for stores that
// cannot delegate ranking to a full-text engine. SQLite ranks with FTS5
// bm25() and Postgres with ts_rank_cd; the in-memory store uses BM25 from
// this package so that all three order results the same way.
package ranking

import (
	"math"
	"strings"
	"unicode"
)

// Scorer assigns a relevance score to a document. Higher is better; zero
// means no match.
type Scorer interface {
	Score(query []string, document string) float64
}

// Tokenize lowercases s and splits it on anything that is not a letter or a
// digit, the way the FTS5 unicode61 tokenizer does.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Matches reports whether any keyword occurs in document as a phrase, i.e.
// its tokens appear consecutively. Keywords without tokens never match.
func Matches(keywords []string, document string) bool {
	doc := Tokenize(document)
	for _, k := range keywords {
		if containsPhrase(doc, Tokenize(k)) {
			return true
		}
	}
	return false
}

func containsPhrase(doc, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(doc) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(doc); i++ {
		for j, tok := range phrase {
			if doc[i+j] != tok {
				continue outer
			}
		}
		return true
	}
	return false
}

// BM25 parameters. The values match the FTS5 defaults.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// BM25 is an Okapi BM25 scorer over a fixed corpus. Build one per search
// with the candidate documents so document frequencies reflect them.
type BM25 struct {
	K1 float64
	B  float64

	docs   int
	avgLen float64
	df     map[string]int
}

// NewBM25 collects corpus statistics.
func NewBM25(corpus []string) *BM25 {
	b := &BM25{K1: DefaultK1, B: DefaultB, df: make(map[string]int)}
	total := 0
	for _, doc := range corpus {
		toks := Tokenize(doc)
		total += len(toks)
		seen := make(map[string]bool, len(toks))
		for _, t := range toks {
			if !seen[t] {
				seen[t] = true
				b.df[t]++
			}
		}
	}
	b.docs = len(corpus)
	if b.docs > 0 {
		b.avgLen = float64(total) / float64(b.docs)
	}
	return b
}

// Score sums the BM25 weight of every distinct query term found in
// document.
func (b *BM25) Score(query []string, document string) float64 {
	toks := Tokenize(document)
	if len(toks) == 0 {
		return 0
	}
	tf := make(map[string]int, len(toks))
	for _, t := range toks {
		tf[t]++
	}

	avg := b.avgLen
	if avg == 0 {
		avg = float64(len(toks))
	}
	norm := b.K1 * (1 - b.B + b.B*float64(len(toks))/avg)

	score := 0.0
	counted := make(map[string]bool)
	for _, k := range query {
		for _, term := range Tokenize(k) {
			if counted[term] {
				continue
			}
			counted[term] = true
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			score += b.idf(term) * f * (b.K1 + 1) / (f + norm)
		}
	}
	return score
}

func (b *BM25) idf(term string) float64 {
	n := float64(b.df[term])
	N := float64(b.docs)
	if N < n {
		N = n
	}
	return math.Log(1 + (N-n+0.5)/(n+0.5))
}
