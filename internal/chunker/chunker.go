package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/hachimB/student-assistant/internal/model"
)

// ErrEmptyDocument is returned when a document has no content left after
// normalization. Ingestion of that document is skipped; the batch continues.
var ErrEmptyDocument = errors.New("document text is empty")

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200

	// A final fragment shorter than this fraction of the chunk size is
	// merged into the previous chunk instead of being emitted on its own.
	defaultMinFragmentRatio = 0.2

	// Fraction of the chunk size we may backtrack looking for a sentence
	// or paragraph break before accepting a hard cut.
	defaultBoundarySlackRatio = 0.15
)

// Params controls chunk decomposition. Sizes are measured in runes.
type Params struct {
	ChunkSize        int
	Overlap          int
	MinFragmentRatio float64
	BoundarySlack    int
}

func (p Params) normalized() Params {
	if p.ChunkSize <= 0 {
		p.ChunkSize = DefaultChunkSize
	}
	if p.Overlap < 0 {
		p.Overlap = 0
	}
	if p.Overlap >= p.ChunkSize {
		p.Overlap = p.ChunkSize / 2
	}
	if p.MinFragmentRatio <= 0 || p.MinFragmentRatio >= 1 {
		p.MinFragmentRatio = defaultMinFragmentRatio
	}
	if p.BoundarySlack <= 0 {
		p.BoundarySlack = int(float64(p.ChunkSize) * defaultBoundarySlackRatio)
	}
	return p
}

var (
	multiSpace      = regexp.MustCompile(` +`)
	multiNewline    = regexp.MustCompile(`\n{3,}`)
	spaceBeforePunc = regexp.MustCompile(`\s+([.,;:!?])`)
)

// Normalize cleans extracted text before chunking: collapses runs of
// spaces, caps consecutive blank lines, trims line edges, normalizes
// dashes and strips whitespace before punctuation. Chunk offsets and page
// offsets are rune offsets into this normalized form.
func Normalize(text string) string {
	text = multiSpace.ReplaceAllString(text, " ")
	text = multiNewline.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	text = strings.Join(lines, "\n")
	text = strings.ReplaceAll(text, "—", "-")
	text = strings.ReplaceAll(text, "–", "-")
	text = spaceBeforePunc.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// ChunkID derives the deterministic ID of the chunk at the given sequence
// index of a document.
func ChunkID(documentID string, sequenceIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", documentID, sequenceIndex)))
	return hex.EncodeToString(sum[:])
}

// Chunk splits normalized document text into overlapping chunks with page
// provenance. Deterministic given (text, params): running it twice yields
// identical chunk IDs and texts. Each chunk after the first starts
// Overlap runes before the previous chunk's end, so the trailing overlap
// of chunk i equals the leading overlap of chunk i+1. A document shorter
// than the chunk size yields exactly one chunk with zero overlap.
func Chunk(documentID, text string, pageOffsets []int, params Params) ([]model.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}
	p := params.normalized()

	runes := []rune(text)
	total := len(runes)
	minFragment := int(float64(p.ChunkSize) * p.MinFragmentRatio)

	var chunks []model.Chunk
	start := 0
	for seq := 0; ; seq++ {
		end := start + p.ChunkSize
		if end >= total {
			end = total
		} else {
			end = breakPoint(runes, start, end, p)
			// Do not leave behind a fragment too short to stand alone.
			if total-end < minFragment {
				end = total
			}
		}

		chunks = append(chunks, model.Chunk{
			ChunkID:       ChunkID(documentID, seq),
			DocumentID:    documentID,
			Text:          string(runes[start:end]),
			StartOffset:   start,
			EndOffset:     end,
			PageNumber:    PageForOffset(pageOffsets, start),
			SequenceIndex: seq,
			CreatedAt:     time.Now(),
		})

		if end >= total {
			break
		}
		start = end - p.Overlap
	}
	return chunks, nil
}

// breakPoint backtracks from the hard cut at end, within the slack window,
// to the nearest paragraph or sentence boundary. The cut must stay far
// enough past start that the next chunk makes progress.
func breakPoint(runes []rune, start, end int, p Params) int {
	floor := end - p.BoundarySlack
	if min := start + p.Overlap + 1; floor < min {
		floor = min
	}
	if floor >= end {
		return end
	}

	// Paragraph break first, then end of sentence, then any whitespace.
	for i := end - 1; i >= floor; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i > floor; i-- {
		if isSentenceEnd(runes[i-1]) && unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	for i := end - 1; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// PageForOffset resolves the 1-based page containing the given rune
// offset. Offsets are page start positions in ascending order; an empty
// slice means a single page.
func PageForOffset(pageOffsets []int, offset int) int {
	page := 1
	for i, off := range pageOffsets {
		if offset >= off {
			page = i + 1
		} else {
			break
		}
	}
	return page
}
