package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hachimB/student-assistant/internal/chunker"
	"github.com/hachimB/student-assistant/internal/index"
	"github.com/hachimB/student-assistant/internal/loader"
	"github.com/hachimB/student-assistant/internal/model"
)

var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore is the document metadata persistence boundary, satisfied
// by repository.DocumentRepository.
type DocumentStore interface {
	Upsert(doc *model.Document) error
	List() ([]model.Document, error)
	GetByID(id string) (*model.Document, error)
	DeleteByID(id string) error
}

// BatchEmbedder is the ingestion-time collaborator boundary: many texts
// in, parallel vectors out.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbeddingModel() string
}

// IngestService runs the offline pipeline: load, chunk, embed, index.
// Documents are independent units, so a batch fans out over a bounded
// worker pool; one failed document is logged and skipped, never aborting
// the rest.
type IngestService struct {
	docRepo       DocumentStore
	store         index.Store
	embedder      BatchEmbedder
	chunkParams   chunker.Params
	embedBatch    int
	batchWorkers  int
	invalidations AnswerInvalidator
}

// AnswerInvalidator drops memoized answers once the index changes.
type AnswerInvalidator interface {
	Invalidate(ctx context.Context) error
}

func NewIngestService(
	docRepo DocumentStore,
	store index.Store,
	embedder BatchEmbedder,
	chunkParams chunker.Params,
	embedBatch int,
	batchWorkers int,
	invalidations AnswerInvalidator,
) *IngestService {
	if embedBatch <= 0 {
		embedBatch = 32
	}
	if batchWorkers <= 0 {
		batchWorkers = 4
	}
	return &IngestService{
		docRepo:       docRepo,
		store:         store,
		embedder:      embedder,
		chunkParams:   chunkParams,
		embedBatch:    embedBatch,
		batchWorkers:  batchWorkers,
		invalidations: invalidations,
	}
}

// IngestResult reports one document's ingestion.
type IngestResult struct {
	Document   model.Document `json:"document"`
	ChunkCount int            `json:"chunk_count"`
}

// IngestLoaded chunks, embeds and indexes a loaded document. Chunk IDs
// are derived from the content hash, so ingesting unchanged content
// replaces the same records.
func (s *IngestService) IngestLoaded(ctx context.Context, loaded *loader.Loaded) (*IngestResult, error) {
	chunks, err := chunker.Chunk(loaded.Document.ID, loaded.Text, loaded.PageOffsets, s.chunkParams)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	// Embedding providers limit batch sizes, so the chunk list is embedded
	// in slices.
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(texts); start += s.embedBatch {
		end := start + s.embedBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := s.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	doc := loaded.Document
	doc.ChunkCount = len(chunks)
	if err := s.docRepo.Upsert(&doc); err != nil {
		return nil, err
	}

	for i, c := range chunks {
		entry := index.Entry{
			ChunkID:       c.ChunkID,
			DocumentID:    c.DocumentID,
			DocumentTitle: doc.Title,
			Category:      doc.Category,
			Text:          c.Text,
			StartOffset:   c.StartOffset,
			EndOffset:     c.EndOffset,
			PageNumber:    c.PageNumber,
			SequenceIndex: c.SequenceIndex,
			ModelID:       s.embedder.EmbeddingModel(),
			Metric:        s.store.Metric(),
			Vector:        vectors[i],
		}
		if err := s.store.Upsert(ctx, entry); err != nil {
			return nil, err
		}
	}

	if s.invalidations != nil {
		if err := s.invalidations.Invalidate(ctx); err != nil {
			log.Printf("invalidate answer cache failed: %v", err)
		}
	}

	return &IngestResult{Document: doc, ChunkCount: len(chunks)}, nil
}

// IngestFile loads one document file and ingests it.
func (s *IngestService) IngestFile(ctx context.Context, path string) (*IngestResult, error) {
	loaded, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	return s.IngestLoaded(ctx, loaded)
}

// IngestContent ingests already-extracted text, e.g. from an upload.
func (s *IngestService) IngestContent(ctx context.Context, sourcePath, title, category, text string) (*IngestResult, error) {
	loaded := loader.FromText(sourcePath, title, text)
	loaded.Document.Category = category
	return s.IngestLoaded(ctx, loaded)
}

// IngestPages ingests per-page text, e.g. from an uploaded PDF.
func (s *IngestService) IngestPages(ctx context.Context, sourcePath, title, category string, pages []string) (*IngestResult, error) {
	loaded := loader.FromPages(sourcePath, title, pages)
	loaded.Document.Category = category
	return s.IngestLoaded(ctx, loaded)
}

// BatchReport summarizes one batch run.
type BatchReport struct {
	Ingested []IngestResult `json:"ingested"`
	Skipped  []SkippedFile  `json:"skipped"`
}

type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// IngestDir walks the documents directory and ingests every supported
// file on a bounded worker pool.
func (s *IngestService) IngestDir(ctx context.Context, dir string) (*BatchReport, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pdf", ".txt", ".md":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk documents dir failed: %w", err)
	}
	return s.IngestPaths(ctx, paths), nil
}

// IngestPaths ingests the given files concurrently. Each worker owns its
// document's writes end to end; the store serializes concurrent upserts.
func (s *IngestService) IngestPaths(ctx context.Context, paths []string) *BatchReport {
	report := &BatchReport{}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan string)
	)
	for i := 0; i < s.batchWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				result, err := s.IngestFile(ctx, path)
				mu.Lock()
				if err != nil {
					log.Printf("ingest %s skipped: %v", path, err)
					report.Skipped = append(report.Skipped, SkippedFile{Path: path, Reason: err.Error()})
				} else {
					report.Ingested = append(report.Ingested, *result)
				}
				mu.Unlock()
			}
		}()
	}

	for _, path := range paths {
		jobs <- path
	}
	close(jobs)
	wg.Wait()
	return report
}

// DeleteDocument removes a document and cascades to its chunks and
// embeddings.
func (s *IngestService) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := s.docRepo.GetByID(documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := s.docRepo.DeleteByID(documentID); err != nil {
		return err
	}
	if s.invalidations != nil {
		if err := s.invalidations.Invalidate(ctx); err != nil {
			log.Printf("invalidate answer cache failed: %v", err)
		}
	}
	return nil
}

// ListDocuments returns all ingested documents.
func (s *IngestService) ListDocuments() ([]model.Document, error) {
	return s.docRepo.List()
}
