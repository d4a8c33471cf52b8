// Package knowledge turns a chatbot's knowledge items into the context block
// appended to its system prompt.
//
// Every item is rendered as "{title}: {content}" and items are joined by a
// blank line, in the order the store returned them. With no budget set the
// block always contains every item exactly once. When a rune budget is set
// and the full block would exceed it, items are ranked against the visitor's
// latest message (Jaccard similarity over Unicode word tokens) and the best
// ones are kept; kept items still appear in their original order.
//
// The package does no I/O and holds no mutable state, so an Assembler is
// safe for concurrent use.
package knowledge

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tbourn/go-widget-chat/internal/domain"
)

// ContextHeader introduces the knowledge block inside the system prompt.
const ContextHeader = "Use the following knowledge base to answer questions:"

const itemSeparator = "\n\n"

// Option configures an Assembler.
type Option func(*Assembler)

// WithMaxRunes caps the rendered block. n <= 0 means unlimited.
func WithMaxRunes(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.maxRunes = n
		}
	}
}

// WithStopwords excludes words from relevance ranking.
func WithStopwords(words []string) Option {
	return func(a *Assembler) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			a.stopwords = m
		}
	}
}

// Assembler builds system prompts from a base prompt and knowledge items.
type Assembler struct {
	maxRunes  int
	stopwords map[string]struct{}
}

// New returns an Assembler. Without options it includes every item.
func New(opts ...Option) *Assembler {
	a := &Assembler{}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Entry renders a single item.
func Entry(it domain.KnowledgeItem) string {
	return it.Title + ": " + it.Content
}

// Block renders items joined by blank lines. It returns "" for no items.
func Block(items []domain.KnowledgeItem) string {
	if len(items) == 0 {
		return ""
	}
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = Entry(it)
	}
	return strings.Join(parts, itemSeparator)
}

// SystemPrompt returns base unchanged when no item survives selection, and
// otherwise base followed by the header and the knowledge block.
func (a *Assembler) SystemPrompt(base string, items []domain.KnowledgeItem, query string) string {
	block := Block(a.Select(items, query))
	if block == "" {
		return base
	}
	return base + "\n\n" + ContextHeader + "\n" + block
}

// Select returns the items that fit the budget, in their original order.
func (a *Assembler) Select(items []domain.KnowledgeItem, query string) []domain.KnowledgeItem {
	if len(items) == 0 {
		return nil
	}
	if a.maxRunes <= 0 || utf8.RuneCountInString(Block(items)) <= a.maxRunes {
		return items
	}

	q := tokenize(query, a.stopwords)
	type ranked struct {
		pos   int
		score float64
		runes int
	}
	rs := make([]ranked, len(items))
	for i, it := range items {
		rs[i] = ranked{
			pos:   i,
			score: jaccard(q, tokenize(it.Title+" "+it.Content, a.stopwords)),
			runes: utf8.RuneCountInString(Entry(it)),
		}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].score != rs[j].score {
			return rs[i].score > rs[j].score
		}
		return rs[i].pos < rs[j].pos
	})

	sepRunes := utf8.RuneCountInString(itemSeparator)
	used := 0
	keep := make([]int, 0, len(rs))
	for _, r := range rs {
		cost := r.runes
		if len(keep) > 0 {
			cost += sepRunes
		}
		if used+cost > a.maxRunes {
			continue
		}
		used += cost
		keep = append(keep, r.pos)
	}
	if len(keep) == 0 {
		// Nothing fits whole: clip the most relevant item to the budget.
		best := items[rs[0].pos]
		return []domain.KnowledgeItem{clip(best, a.maxRunes)}
	}

	sort.Ints(keep)
	out := make([]domain.KnowledgeItem, len(keep))
	for i, p := range keep {
		out[i] = items[p]
	}
	return out
}

// clip shortens the content so Entry(it) is at most n runes.
func clip(it domain.KnowledgeItem, n int) domain.KnowledgeItem {
	prefix := utf8.RuneCountInString(it.Title) + 2
	room := n - prefix
	if room <= 0 {
		it.Content = ""
		return it
	}
	rs := []rune(it.Content)
	if len(rs) > room {
		it.Content = string(rs[:room])
	}
	return it
}
