// Package advisor provides a simple, deterministic, concurrency-safe
// in-memory retrieval index over the marketing playbook: a set of
// recommendation entries, each with a topic line and an advice body. It is
// intentionally small and dependency-free:
//
//   - No logging in the library (callers decide how/what to log)
//   - Unicode-aware tokenization with optional stop-word removal
//   - Immutable, read-only index after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//
// Scoring uses Jaccard similarity between the query token set and each
// entry's token set (topic tokens counted twice, since the topic line is the
// strongest relevance signal): score = |Q ∩ E| / |Q ∪ E|.
package advisor

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Entry is one playbook recommendation.
type Entry struct {
	// Topic is the short heading, e.g. "Slow checkout".
	Topic string
	// Advice is the full recommendation body.
	Advice string
}

// Result is a ranked entry with its similarity score.
type Result struct {
	Topic  string
	Advice string
	Score  float64
}

// Index is the minimal interface implemented by all advisor indices.
type Index interface {
	TopK(query string, k int) []Result
}

// Option customizes index construction.
type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	maxDocs   int
}

func defaultConfig() config {
	return config{stopwords: defaultStopwords, maxDocs: 0}
}

// WithStopwords replaces the default stop-word set.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		c.stopwords = m
	}
}

// WithMaxDocs caps the number of indexed entries (0 = unlimited).
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// defaultStopwords keeps question scaffolding ("how do i fix …") from
// dominating the overlap with short playbook topics.
var defaultStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {},
	"how": {}, "do": {}, "does": {}, "i": {}, "my": {}, "me": {}, "what": {},
	"can": {}, "should": {}, "fix": {}, "improve": {},
}

type doc struct {
	entry  Entry
	tokens map[string]int
	weight int
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndex builds an Index from playbook entries. Entries with an empty
// advice body or no indexable tokens are skipped.
func NewIndex(entries []Entry, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	docs := make([]doc, 0, len(entries))
	for _, e := range entries {
		e.Topic = strings.TrimSpace(e.Topic)
		e.Advice = strings.TrimSpace(e.Advice)
		if e.Advice == "" {
			continue
		}
		toks := make(map[string]int)
		// Topic tokens weigh double.
		for t := range tokenize(e.Topic, cfg.stopwords) {
			toks[t] += 2
		}
		for t := range tokenize(e.Advice, cfg.stopwords) {
			toks[t]++
		}
		if len(toks) == 0 {
			continue
		}
		w := 0
		for _, n := range toks {
			w += n
		}
		docs = append(docs, doc{entry: e, tokens: toks, weight: w})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: docs}
}

// TopK returns up to k best-matching entries by weighted Jaccard similarity.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}

	type scored struct {
		entry    Entry
		score    float64
		lenRunes int
	}

	buf := make([]scored, 0, len(i.docs))
	for _, d := range i.docs {
		over := 0
		for t := range qTokens {
			over += d.tokens[t]
		}
		if over == 0 {
			continue
		}
		union := float64(len(qTokens) + d.weight - over)
		if union <= 0 {
			continue
		}
		buf = append(buf, scored{
			entry:    d.entry,
			score:    float64(over) / union,
			lenRunes: utf8.RuneCountInString(d.entry.Advice),
		})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].entry.Topic < buf[b].entry.Topic
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for n := 0; n < k; n++ {
		out[n] = Result{
			Topic:  buf[n].entry.Topic,
			Advice: buf[n].entry.Advice,
			Score:  buf[n].score,
		}
	}
	return out
}
