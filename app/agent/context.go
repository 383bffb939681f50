package agent

import (
	"fmt"
	"strings"

	"knowledge/types"
)

const (
	blockSeparator = "\n\n---\n\n"
	previewRunes   = 300
)

// Assembled is the prompt context and citation projection of a reranked set.
type Assembled struct {
	Context   string
	Citations []types.Citation
	Retrieved []types.RetrievedChunk
}

// Assemble renders one block per chunk in rank order:
//
//	[1] Title (v1.0, sida 3-5)
//	Chunk ID: <uuid>
//	<content>
func Assemble(ranked []types.RankedResult) Assembled {
	out := Assembled{
		Citations: make([]types.Citation, 0, len(ranked)),
		Retrieved: make([]types.RetrievedChunk, 0, len(ranked)),
	}
	blocks := make([]string, 0, len(ranked))
	for i, r := range ranked {
		label := "v" + versionLabel(r.DocumentVersion)
		if ref := PageRef(r.PageStart, r.PageEnd); ref != "" {
			label += ", " + ref
		}
		blocks = append(blocks, fmt.Sprintf("[%d] %s (%s)\nChunk ID: %s\n%s",
			i+1, r.DocumentTitle, label, r.ChunkID, r.Content))

		out.Citations = append(out.Citations, types.Citation{
			ChunkID:         r.ChunkID,
			DocumentID:      r.DocumentID,
			DocumentTitle:   r.DocumentTitle,
			DocumentVersion: r.DocumentVersion,
			PageStart:       r.PageStart,
			PageEnd:         r.PageEnd,
			Section:         r.Section,
			ContentPreview:  preview(r.Content, previewRunes),
		})
		out.Retrieved = append(out.Retrieved, types.RetrievedChunk{
			ChunkID:       r.ChunkID,
			DocumentID:    r.DocumentID,
			DocumentTitle: r.DocumentTitle,
			Content:       r.Content,
			Score:         r.Score,
			Rank:          r.Rank,
			PageStart:     r.PageStart,
			PageEnd:       r.PageEnd,
			Section:       r.Section,
		})
	}
	out.Context = strings.Join(blocks, blockSeparator)
	return out
}

// PageRef formats "sida X" or "sida X-Y". It is empty when no page is known.
func PageRef(start, end int) string {
	if start <= 0 {
		return ""
	}
	if end > 0 && end != start {
		return fmt.Sprintf("sida %d-%d", start, end)
	}
	return fmt.Sprintf("sida %d", start)
}

func versionLabel(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return "?"
	}
	return v
}

func preview(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
