package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cleaveai/cleave/pkg/chunking"
	"github.com/cleaveai/cleave/pkg/config"
	"github.com/cleaveai/cleave/pkg/errors"
	"github.com/cleaveai/cleave/pkg/interfaces"
	"github.com/cleaveai/cleave/pkg/types"
)

// Store provides chunk and document persistence backed by gorm
type Store struct {
	db     *gorm.DB
	config *config.StoreConfig
}

var _ interfaces.ChunkStore = (*Store)(nil)

// NewStore creates a new chunk store and migrates its schema
func NewStore(cfg *config.StoreConfig) (*Store, error) {
	if cfg == nil {
		cfg = config.NewStoreConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("invalid store config: %v", err))
	}

	var db *gorm.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.NewStorageError(fmt.Sprintf("failed to create database directory %s", dir), err)
			}
		}

		db, err = gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
	default:
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("unsupported store driver: %s", cfg.Driver))
	}

	if err != nil {
		return nil, errors.NewStorageError("failed to connect to database", err)
	}

	store := &Store{db: db, config: cfg}

	if err := store.migrate(); err != nil {
		return nil, errors.NewStorageError("failed to migrate database", err)
	}

	return store, nil
}

// migrate runs database migrations
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&Document{},
		&ChunkRecord{},
	)
}

// UpsertDocument stores the whitespace-normalized content of a source
// entity. The returned flag reports whether the stored content changed,
// so callers can skip re-chunking unchanged sources.
func (s *Store) UpsertDocument(sourceID, sourceType, content string) (bool, error) {
	if sourceID == "" {
		return false, errors.NewMissingFieldError("sourceID")
	}
	if sourceType == "" {
		sourceType = types.SourceTypeDocument
	}

	normalized := chunking.NormalizeWhitespace(content)
	hash := contentHash(normalized)

	var existing Document
	err := s.db.Where("source_id = ?", sourceID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		doc := Document{
			SourceID:    sourceID,
			SourceType:  sourceType,
			Content:     normalized,
			ContentHash: hash,
			TokenCount:  chunking.CountTokens(normalized),
		}
		if err := s.db.Create(&doc).Error; err != nil {
			return false, errors.NewStorageError(fmt.Sprintf("failed to create document %s", sourceID), err)
		}
		return true, nil
	}
	if err != nil {
		return false, errors.NewStorageError(fmt.Sprintf("failed to load document %s", sourceID), err)
	}

	if existing.ContentHash == hash && existing.SourceType == sourceType {
		return false, nil
	}

	existing.SourceType = sourceType
	existing.Content = normalized
	existing.ContentHash = hash
	existing.TokenCount = chunking.CountTokens(normalized)
	if err := s.db.Save(&existing).Error; err != nil {
		return false, errors.NewStorageError(fmt.Sprintf("failed to update document %s", sourceID), err)
	}
	return true, nil
}

// GetDocument retrieves a stored document by source ID
func (s *Store) GetDocument(sourceID string) (*Document, error) {
	var doc Document
	err := s.db.Where("source_id = ?", sourceID).First(&doc).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.NewNotFoundError(fmt.Sprintf("document %s", sourceID))
	}
	if err != nil {
		return nil, errors.NewStorageError(fmt.Sprintf("failed to get document %s", sourceID), err)
	}
	return &doc, nil
}

// GetChunks returns the stored chunks for a source at one granularity,
// ordered by position
func (s *Store) GetChunks(sourceID string, granularity types.Granularity) ([]types.Chunk, error) {
	if !granularity.IsValid() {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("unknown granularity %q", granularity))
	}

	doc, err := s.GetDocument(sourceID)
	if err != nil {
		return nil, err
	}

	var records []ChunkRecord
	err = s.db.Where("source_id = ? AND granularity = ?", sourceID, string(granularity)).
		Order("position ASC").
		Find(&records).Error
	if err != nil {
		return nil, errors.NewStorageError(fmt.Sprintf("failed to get chunks for %s", sourceID), err)
	}

	chunks := make([]types.Chunk, len(records))
	for i := range records {
		chunks[i] = records[i].toChunk(doc.SourceType)
	}
	return chunks, nil
}

// ReplaceChunks transactionally swaps the stored chunk set for a source at
// the chunks' granularity. An empty slice clears every chunk of the source.
func (s *Store) ReplaceChunks(sourceID string, chunks []types.Chunk) error {
	if sourceID == "" {
		return errors.NewMissingFieldError("sourceID")
	}

	granularity, err := validateChunkSet(sourceID, chunks)
	if err != nil {
		return err
	}

	if _, err := s.GetDocument(sourceID); err != nil {
		return err
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	query := tx.Where("source_id = ?", sourceID)
	if granularity != "" {
		query = query.Where("granularity = ?", granularity)
	}
	if err := query.Delete(&ChunkRecord{}).Error; err != nil {
		tx.Rollback()
		return errors.NewStorageError(fmt.Sprintf("failed to delete old chunks for %s", sourceID), err)
	}

	for i := range chunks {
		record := fromChunk(&chunks[i], i)
		if err := tx.Create(&record).Error; err != nil {
			tx.Rollback()
			return errors.NewStorageError(fmt.Sprintf("failed to insert chunk %s", record.ID), err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return errors.NewTransactionFailedError(err)
	}
	return nil
}

// validateChunkSet checks that all chunks belong to the source and share
// one granularity, and returns that granularity. An empty set is valid
// and returns an empty granularity, meaning "all".
func validateChunkSet(sourceID string, chunks []types.Chunk) (string, error) {
	if len(chunks) == 0 {
		return "", nil
	}

	granularity := chunks[0].Granularity
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return "", errors.NewInvalidArgumentError(fmt.Sprintf("invalid chunk at position %d: %v", i, err))
		}
		if chunks[i].SourceID != sourceID {
			return "", errors.NewInvalidArgumentError(fmt.Sprintf("chunk at position %d belongs to source %q, not %q", i, chunks[i].SourceID, sourceID))
		}
		if chunks[i].Granularity != granularity {
			return "", errors.NewInvalidArgumentError(fmt.Sprintf("chunk at position %d has granularity %q, expected %q", i, chunks[i].Granularity, granularity))
		}
	}
	return string(granularity), nil
}

// ReconstructRange returns the literal text of a token range within a
// source document. The range must lie inside [0, TokenCount).
func (s *Store) ReconstructRange(sourceID string, startToken, endToken int) (string, error) {
	doc, err := s.GetDocument(sourceID)
	if err != nil {
		return "", err
	}

	if startToken < 0 || endToken > doc.TokenCount || startToken >= endToken {
		return "", errors.NewInvalidArgumentError(fmt.Sprintf("token range [%d, %d) is outside document %s with %d tokens", startToken, endToken, sourceID, doc.TokenCount))
	}

	tokens := chunking.Tokens(doc.Content)
	return strings.Join(tokens[startToken:endToken], " "), nil
}

// ParentOf returns the parent-granularity chunk whose token range contains
// the child's range
func (s *Store) ParentOf(child *types.Chunk) (*types.Chunk, error) {
	if child == nil {
		return nil, errors.NewMissingFieldError("child")
	}
	if err := child.Validate(); err != nil {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("invalid child chunk: %v", err))
	}

	doc, err := s.GetDocument(child.SourceID)
	if err != nil {
		return nil, err
	}

	var record ChunkRecord
	err = s.db.Where(
		"source_id = ? AND granularity = ? AND start_token <= ? AND end_token >= ?",
		child.SourceID, string(types.GranularityParent), child.StartToken, child.EndToken,
	).First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.NewNotFoundError(fmt.Sprintf("parent chunk for %s", child.ID))
	}
	if err != nil {
		return nil, errors.NewStorageError(fmt.Sprintf("failed to look up parent of %s", child.ID), err)
	}

	chunk := record.toChunk(doc.SourceType)
	return &chunk, nil
}

// DeleteDocument removes a source document and all of its chunks
func (s *Store) DeleteDocument(sourceID string) error {
	if sourceID == "" {
		return errors.NewMissingFieldError("sourceID")
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Where("source_id = ?", sourceID).Delete(&ChunkRecord{}).Error; err != nil {
		tx.Rollback()
		return errors.NewStorageError(fmt.Sprintf("failed to delete chunks for %s", sourceID), err)
	}

	result := tx.Where("source_id = ?", sourceID).Delete(&Document{})
	if result.Error != nil {
		tx.Rollback()
		return errors.NewStorageError(fmt.Sprintf("failed to delete document %s", sourceID), result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return errors.NewNotFoundError(fmt.Sprintf("document %s", sourceID))
	}

	if err := tx.Commit().Error; err != nil {
		return errors.NewTransactionFailedError(err)
	}
	return nil
}

// CountChunks returns the number of stored chunks for a source. An empty
// granularity counts across both levels.
func (s *Store) CountChunks(sourceID string, granularity types.Granularity) (int64, error) {
	query := s.db.Model(&ChunkRecord{}).Where("source_id = ?", sourceID)
	if granularity != "" {
		if !granularity.IsValid() {
			return 0, errors.NewInvalidArgumentError(fmt.Sprintf("unknown granularity %q", granularity))
		}
		query = query.Where("granularity = ?", string(granularity))
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, errors.NewStorageError(fmt.Sprintf("failed to count chunks for %s", sourceID), err)
	}
	return count, nil
}

// HealthCheck performs a database health check
func (s *Store) HealthCheck() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.NewStorageError("failed to get database instance", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return errors.NewStorageError("database ping failed", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.NewStorageError("failed to get database instance", err)
	}
	return sqlDB.Close()
}
