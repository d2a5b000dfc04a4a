package chunking

import (
	"fmt"

	"github.com/cleaveai/cleave/pkg/errors"
	"github.com/cleaveai/cleave/pkg/types"
)

// Config controls one chunking run. TargetSize is the preferred chunk
// length, MinSize the soft floor, MaxSize the hard ceiling; all are token
// counts. SourceID and SourceType are stamped onto every produced chunk.
type Config struct {
	// TargetSize is the preferred number of tokens per chunk
	TargetSize int `json:"target_size"`

	// MinSize is the soft minimum chunk length; undersized chunks merge
	// backward when a predecessor exists
	MinSize int `json:"min_size"`

	// MaxSize is the hard maximum chunk length; never exceeded
	MaxSize int `json:"max_size"`

	// SimilarityThreshold flags a topic boundary when adjacent segment
	// similarity falls below it
	SimilarityThreshold float64 `json:"similarity_threshold"`

	// WindowSize is the analysis window length for unpunctuated text
	WindowSize int `json:"window_size"`

	// WindowOverlap is the token overlap between adjacent windows
	WindowOverlap int `json:"window_overlap"`

	// Granularity marks produced chunks as parent or child
	Granularity types.Granularity `json:"granularity"`

	// SourceID identifies the source entity the text came from
	SourceID string `json:"source_id,omitempty"`

	// SourceType classifies the source entity
	SourceType string `json:"source_type,omitempty"`
}

// DefaultConfig returns the parent-granularity defaults
func DefaultConfig() *Config {
	return &Config{
		TargetSize:          200,
		MinSize:             100,
		MaxSize:             400,
		SimilarityThreshold: 0.5,
		WindowSize:          200,
		WindowOverlap:       50,
		Granularity:         types.GranularityParent,
	}
}

// DefaultChildConfig returns the child-granularity defaults
func DefaultChildConfig() *Config {
	return &Config{
		TargetSize:          25,
		MinSize:             10,
		MaxSize:             50,
		SimilarityThreshold: 0.5,
		WindowSize:          200,
		WindowOverlap:       50,
		Granularity:         types.GranularityChild,
	}
}

// Validate checks the configuration before any processing happens
func (c *Config) Validate() error {
	if c.TargetSize <= 0 {
		return errors.NewInvalidArgumentError(fmt.Sprintf("target size must be positive, got %d", c.TargetSize))
	}
	if c.MinSize <= 0 {
		return errors.NewInvalidArgumentError(fmt.Sprintf("min size must be positive, got %d", c.MinSize))
	}
	if c.MaxSize <= 0 {
		return errors.NewInvalidArgumentError(fmt.Sprintf("max size must be positive, got %d", c.MaxSize))
	}
	if c.MinSize > c.TargetSize {
		return errors.NewInvalidArgumentError(fmt.Sprintf("min size %d exceeds target size %d", c.MinSize, c.TargetSize))
	}
	if c.TargetSize > c.MaxSize {
		return errors.NewInvalidArgumentError(fmt.Sprintf("target size %d exceeds max size %d", c.TargetSize, c.MaxSize))
	}
	if c.WindowSize <= 0 {
		return errors.NewInvalidArgumentError(fmt.Sprintf("window size must be positive, got %d", c.WindowSize))
	}
	if c.WindowOverlap < 0 {
		return errors.NewInvalidArgumentError(fmt.Sprintf("window overlap cannot be negative, got %d", c.WindowOverlap))
	}
	if c.WindowOverlap >= c.WindowSize {
		return errors.NewInvalidArgumentError(fmt.Sprintf("window overlap %d must be less than window size %d", c.WindowOverlap, c.WindowSize))
	}
	if c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1 {
		return errors.NewInvalidArgumentError(fmt.Sprintf("similarity threshold must be within [-1, 1], got %g", c.SimilarityThreshold))
	}
	if !c.Granularity.IsValid() {
		return errors.NewInvalidArgumentError(fmt.Sprintf("unknown granularity %q", c.Granularity))
	}
	return nil
}
