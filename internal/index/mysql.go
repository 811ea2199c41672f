package index

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hachimB/student-assistant/internal/model"
)

// MySQLStore persists chunks and embeddings through GORM and serves
// queries from an embedded MemoryStore that mirrors the tables, so index
// contents survive process restarts while similarity search stays in
// memory. Writes go to the database first inside a transaction; the
// memory mirror is updated only after commit, so a failed upsert leaves
// no partial state behind. writeMu holds commit and mirror update
// together, so concurrent writers to the same chunk cannot leave the
// database with one writer's vector and the mirror with the other's.
type MySQLStore struct {
	db      *gorm.DB
	writeMu sync.Mutex
	mirror  *MemoryStore
}

func NewMySQLStore(db *gorm.DB, metric Metric, dimension int) (*MySQLStore, error) {
	s := &MySQLStore{
		db:     db,
		mirror: NewMemoryStore(metric, dimension),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

type indexedRow struct {
	model.Chunk
	ModelID       string
	Metric        string
	Vector        string
	DocumentTitle string
}

func (s *MySQLStore) load() error {
	var rows []indexedRow
	err := s.db.Table("chunks").
		Select("chunks.*, embeddings.model_id, embeddings.metric, embeddings.vector, documents.title AS document_title").
		Joins("JOIN embeddings ON embeddings.chunk_id = chunks.chunk_id").
		Joins("JOIN documents ON documents.id = chunks.document_id").
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("load index entries failed: %w", err)
	}

	for _, row := range rows {
		emb := model.Embedding{Vector: row.Vector}
		entry := Entry{
			ChunkID:       row.ChunkID,
			DocumentID:    row.DocumentID,
			DocumentTitle: row.DocumentTitle,
			Category:      row.Chunk.Category,
			Text:          row.Text,
			StartOffset:   row.StartOffset,
			EndOffset:     row.EndOffset,
			PageNumber:    row.PageNumber,
			SequenceIndex: row.SequenceIndex,
			ModelID:       row.ModelID,
			Metric:        Metric(row.Metric),
			Vector:        emb.VectorSlice(),
		}
		if err := s.mirror.Upsert(context.Background(), entry); err != nil {
			return fmt.Errorf("rebuild index entry %s failed: %w", row.ChunkID, err)
		}
	}
	return nil
}

func (s *MySQLStore) Metric() Metric { return s.mirror.Metric() }

func (s *MySQLStore) Upsert(ctx context.Context, entry Entry) error {
	if entry.Metric != s.mirror.metric {
		return fmt.Errorf("%w: store is %q, embedding is %q",
			ErrMetricMismatch, s.mirror.metric, entry.Metric)
	}
	if len(entry.Vector) != s.mirror.dimension {
		return fmt.Errorf("%w: store dimension %d, vector dimension %d",
			ErrDimensionMismatch, s.mirror.dimension, len(entry.Vector))
	}

	chunk := model.Chunk{
		ChunkID:       entry.ChunkID,
		DocumentID:    entry.DocumentID,
		Category:      entry.Category,
		Text:          entry.Text,
		StartOffset:   entry.StartOffset,
		EndOffset:     entry.EndOffset,
		PageNumber:    entry.PageNumber,
		SequenceIndex: entry.SequenceIndex,
	}
	emb := model.Embedding{
		ChunkID: entry.ChunkID,
		ModelID: entry.ModelID,
		Metric:  string(entry.Metric),
	}
	emb.SetVector(entry.Vector)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chunk_id"}},
			UpdateAll: true,
		}).Create(&chunk).Error; err != nil {
			return fmt.Errorf("upsert chunk failed: %w", err)
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chunk_id"}, {Name: "model_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"metric", "dimension", "vector"}),
		}).Create(&emb).Error; err != nil {
			return fmt.Errorf("upsert embedding failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.mirror.Upsert(ctx, entry)
}

func (s *MySQLStore) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	return s.mirror.Query(ctx, vector, k)
}

func (s *MySQLStore) Get(ctx context.Context, chunkID string) (Entry, bool, error) {
	return s.mirror.Get(ctx, chunkID)
}

func (s *MySQLStore) DeleteDocument(ctx context.Context, documentID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chunk_id IN (?)",
			tx.Model(&model.Chunk{}).Select("chunk_id").Where("document_id = ?", documentID),
		).Delete(&model.Embedding{}).Error; err != nil {
			return fmt.Errorf("delete embeddings by document failed: %w", err)
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("delete chunks by document failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.mirror.DeleteDocument(ctx, documentID)
}

func (s *MySQLStore) Count() int {
	return s.mirror.Count()
}
