// Package store persists source documents and their chunk ranges in a
// relational database. It is the text-reconstruction collaborator: chunks
// carry only token ranges, and this package maps (sourceID, startToken,
// endToken) back to literal displayable text.
package store

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"

	"github.com/cleaveai/cleave/pkg/types"
)

// Document represents a stored source entity. Content holds the
// whitespace-normalized text; token positions in chunk records index it.
type Document struct {
	SourceID    string    `gorm:"primaryKey;type:varchar(255)" json:"source_id"`
	SourceType  string    `gorm:"not null;default:'document'" json:"source_type"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	ContentHash string    `gorm:"not null;type:varchar(64)" json:"content_hash"`
	TokenCount  int       `gorm:"not null" json:"token_count"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`

	// Relationships
	Chunks []ChunkRecord `gorm:"foreignKey:SourceID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate hook for Document model
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	d.CreatedAt = time.Now()
	d.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate hook for Document model
func (d *Document) BeforeUpdate(tx *gorm.DB) error {
	d.UpdatedAt = time.Now()
	return nil
}

// ChunkRecord represents one stored chunk range. Position is the chunk's
// ordinal within its source and granularity, starting at zero.
type ChunkRecord struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SourceID    string    `gorm:"not null;index;type:varchar(255)" json:"source_id"`
	Granularity string    `gorm:"not null;index" json:"granularity"`
	StartToken  int       `gorm:"not null" json:"start_token"`
	EndToken    int       `gorm:"not null" json:"end_token"`
	Position    int       `gorm:"not null" json:"position"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

// BeforeCreate hook for ChunkRecord model
func (c *ChunkRecord) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now()
	return nil
}

// toChunk converts a record back to the engine's chunk type. The source
// type lives on the document, so the caller supplies it.
func (c *ChunkRecord) toChunk(sourceType string) types.Chunk {
	return types.Chunk{
		ID:          c.ID,
		SourceID:    c.SourceID,
		SourceType:  sourceType,
		StartToken:  c.StartToken,
		EndToken:    c.EndToken,
		Granularity: types.Granularity(c.Granularity),
		CreatedAt:   c.CreatedAt,
	}
}

// fromChunk builds a record from an engine chunk at the given position
func fromChunk(chunk *types.Chunk, position int) ChunkRecord {
	return ChunkRecord{
		ID:          chunk.ID,
		SourceID:    chunk.SourceID,
		Granularity: string(chunk.Granularity),
		StartToken:  chunk.StartToken,
		EndToken:    chunk.EndToken,
		Position:    position,
	}
}

// contentHash returns the hex blake2b-256 digest of the content, used to
// detect whether a re-upserted document actually changed
func contentHash(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
