package processor

import (
	"fmt"
	"unicode"

	"github.com/saymasiddiquie/dscpl/internal/models"
)

type ProcessorConfig struct {
	// ChunkSize is the maximum chunk length in runes.
	ChunkSize int
	// ChunkOverlap is how many runes consecutive chunks of a unit share.
	ChunkOverlap int
}

type Processor struct {
	config ProcessorConfig
}

// NewWithConfig validates the chunk parameters. It fails with
// *models.InvalidChunkConfigError unless ChunkSize >= 1 and
// 0 <= ChunkOverlap < ChunkSize.
func NewWithConfig(config ProcessorConfig) (*Processor, error) {
	if config.ChunkSize < 1 || config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, &models.InvalidChunkConfigError{
			ChunkSize:    config.ChunkSize,
			ChunkOverlap: config.ChunkOverlap,
		}
	}
	return &Processor{config: config}, nil
}

func (p *Processor) Config() ProcessorConfig {
	return p.config
}

// Process splits every unit into chunks, preserving unit order.
func (p *Processor) Process(units []models.TextUnit) []models.Chunk {
	var chunks []models.Chunk
	for _, unit := range units {
		chunks = append(chunks, p.Split(unit)...)
	}
	return chunks
}

// Split chunks a single unit. A unit no longer than ChunkSize becomes one
// chunk equal to the unit; longer units are covered by overlapping windows
// whose last window ends at the end of the text.
func (p *Processor) Split(unit models.TextUnit) []models.Chunk {
	text := []rune(unit.Text)
	n := len(text)
	size, overlap := p.config.ChunkSize, p.config.ChunkOverlap

	newChunk := func(seq, start, end int) models.Chunk {
		return models.Chunk{
			ID:     fmt.Sprintf("%s#%d", unit.ID, seq),
			UnitID: unit.ID,
			Seq:    seq,
			Text:   string(text[start:end]),
			Start:  start,
			End:    end,
			Unit:   unit.Meta(),
		}
	}

	if n <= size {
		return []models.Chunk{newChunk(0, 0, n)}
	}

	var chunks []models.Chunk
	start := 0
	for seq := 0; ; seq++ {
		end := start + size
		if end >= n {
			chunks = append(chunks, newChunk(seq, start, n))
			break
		}

		end = wordBoundary(text, start+overlap+1, end)
		chunks = append(chunks, newChunk(seq, start, end))
		start = end - overlap
	}
	return chunks
}

// wordBoundary moves a cut at end back to just after the last whitespace in
// text[min:end] when the cut would split a word. The cut never moves below
// min, which keeps every window advancing.
func wordBoundary(text []rune, min, end int) int {
	if unicode.IsSpace(text[end-1]) || unicode.IsSpace(text[end]) {
		return end
	}
	for i := end - 1; i >= min; i-- {
		if unicode.IsSpace(text[i-1]) {
			return i
		}
	}
	return end
}

// Reassemble joins a unit's chunks, dropping each chunk's overlap with the
// previous one. For chunks produced by Split it returns the unit text.
func Reassemble(chunks []models.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	out := []rune(chunks[0].Text)
	prevEnd := chunks[0].End
	for _, c := range chunks[1:] {
		r := []rune(c.Text)
		out = append(out, r[prevEnd-c.Start:]...)
		prevEnd = c.End
	}
	return string(out)
}
