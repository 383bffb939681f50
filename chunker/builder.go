package chunker

import (
	"strings"

	"knowledge/types"
)

type Options struct {
	// TargetTokens is the size chunks are expected to land near. Packing is
	// bounded by MaxTokens only.
	TargetTokens  int
	OverlapTokens int
	MaxTokens     int
}

func DefaultOptions() Options {
	return Options{TargetTokens: 1000, OverlapTokens: 125, MaxTokens: 1200}
}

// Builder packs sentences into token-bounded chunks with a trailing overlap.
type Builder struct {
	tokenizer Tokenizer
	opts      Options
}

func NewBuilder(tokenizer Tokenizer, opts Options) *Builder {
	return &Builder{tokenizer: tokenizer, opts: opts}
}

func (b *Builder) Options() Options {
	return b.opts
}

// Build returns the chunks for one document in index order. A sentence larger
// than MaxTokens is never cut; it becomes an oversized chunk of its own.
func (b *Builder) Build(sentences []types.SentenceUnit) []types.Chunk {
	var (
		chunks []types.Chunk
		acc    accumulator
	)
	for _, s := range sentences {
		cur := measured{unit: s, tokens: b.tokenizer.CountTokens(s.Text)}
		if acc.tokens+cur.tokens > b.opts.MaxTokens && !acc.empty() {
			chunks = append(chunks, acc.chunk(len(chunks)))
			acc = acc.carry(b.opts.OverlapTokens)
		}
		acc.add(cur)
	}
	if !acc.empty() {
		chunks = append(chunks, acc.chunk(len(chunks)))
	}
	return chunks
}

// BuildFromPages segments pages and builds chunks in one pass.
func (b *Builder) BuildFromPages(pages []types.PageText) []types.Chunk {
	return b.Build(Segment(pages))
}

type measured struct {
	unit   types.SentenceUnit
	tokens int
}

// accumulator holds the sentences of the chunk being packed.
type accumulator struct {
	sentences []measured
	tokens    int
}

func (a *accumulator) empty() bool {
	return len(a.sentences) == 0
}

func (a *accumulator) add(m measured) {
	a.sentences = append(a.sentences, m)
	a.tokens += m.tokens
}

func (a *accumulator) chunk(index int) types.Chunk {
	texts := make([]string, len(a.sentences))
	pageStart, pageEnd := a.sentences[0].unit.PageNumber, a.sentences[0].unit.PageNumber
	for i, m := range a.sentences {
		texts[i] = m.unit.Text
		pageStart = min(pageStart, m.unit.PageNumber)
		pageEnd = max(pageEnd, m.unit.PageNumber)
	}
	content := strings.Join(texts, " ")
	return types.Chunk{
		Index:         index,
		Content:       content,
		ContentTokens: a.tokens,
		ContentHash:   ContentHash(content),
		PageStart:     pageStart,
		PageEnd:       pageEnd,
	}
}

// carry walks back from the last sentence and keeps the longest suffix whose
// token total fits in budget. It stops at the first sentence that does not fit.
func (a *accumulator) carry(budget int) accumulator {
	start := len(a.sentences)
	total := 0
	for i := len(a.sentences) - 1; i >= 0; i-- {
		if total+a.sentences[i].tokens > budget {
			break
		}
		total += a.sentences[i].tokens
		start = i
	}
	seed := make([]measured, len(a.sentences)-start)
	copy(seed, a.sentences[start:])
	return accumulator{sentences: seed, tokens: total}
}
