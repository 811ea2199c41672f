package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hachimB/student-assistant/internal/chunker"
	"github.com/hachimB/student-assistant/internal/model"
	"github.com/hachimB/student-assistant/internal/pkg/pdfextract"
)

// ErrUnsupportedFormat is returned for file types no parser handles.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Plain text has no page structure, so pages are approximated the same
// way the parsing of non-paginated formats does elsewhere in the corpus:
// one page per ~2500 runes.
const approxPageRunes = 2500

// Loaded is the loader boundary's output: a document record, its
// normalized text and the rune offsets at which each page starts. No
// file-format concern crosses this boundary.
type Loaded struct {
	Document    model.Document
	Text        string
	PageOffsets []int
}

// Load reads a document file, extracts its text and page layout, and
// derives the document's identity from a hash of its normalized content,
// so loading the same content twice yields the same document ID.
func Load(path string) (*Loaded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document failed: %w", err)
	}
	defer f.Close()

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	category := CategoryFromPath(path)

	var loaded *Loaded
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		pages, err := pdfextract.ExtractPages(f)
		if err != nil {
			return nil, fmt.Errorf("extract pdf %s failed: %w", path, err)
		}
		loaded = FromPages(path, title, pages)
	case ".txt", ".md":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read document failed: %w", err)
		}
		loaded = FromText(path, title, string(b))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	loaded.Document.Category = category
	return loaded, nil
}

// FromPages builds a Loaded from per-page text. Each page is normalized
// independently and pages are joined with a blank line; page offsets are
// rune offsets of each page's start in the joined text.
func FromPages(sourcePath, title string, pages []string) *Loaded {
	var (
		parts   []string
		offsets []int
		offset  int
	)
	for _, page := range pages {
		normalized := chunker.Normalize(page)
		offsets = append(offsets, offset)
		parts = append(parts, normalized)
		offset += len([]rune(normalized)) + 2 // joined with "\n\n"
	}
	text := strings.Join(parts, "\n\n")

	return &Loaded{
		Document: model.Document{
			ID:         contentID(text),
			SourcePath: sourcePath,
			Title:      title,
			PageCount:  len(pages),
			CreatedAt:  time.Now(),
		},
		Text:        text,
		PageOffsets: offsets,
	}
}

// FromText builds a Loaded from unpaginated text, approximating page
// breaks so citations still carry a usable page number.
func FromText(sourcePath, title, text string) *Loaded {
	normalized := chunker.Normalize(text)
	runes := []rune(normalized)

	var offsets []int
	for off := 0; off == 0 || off < len(runes); off += approxPageRunes {
		offsets = append(offsets, off)
	}

	return &Loaded{
		Document: model.Document{
			ID:         contentID(normalized),
			SourcePath: sourcePath,
			Title:      title,
			PageCount:  len(offsets),
			CreatedAt:  time.Now(),
		},
		Text:        normalized,
		PageOffsets: offsets,
	}
}

func contentID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
