package vectordb

import (
	"fmt"
	"time"

	"github.com/cleaveai/cleave/pkg/config"
	"github.com/cleaveai/cleave/pkg/errors"
)

// QdrantConfig represents Qdrant-specific configuration for the chunk index
type QdrantConfig struct {
	// Connection settings
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`

	// Authentication
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Collection settings
	CollectionName string `json:"collection_name" yaml:"collection_name"`
	VectorSize     int    `json:"vector_size" yaml:"vector_size"`
	Distance       string `json:"distance" yaml:"distance"` // "cosine", "euclidean", "dot"
	OnDiskPayload  bool   `json:"on_disk_payload" yaml:"on_disk_payload"`

	// Connection options
	ConnectionTimeout time.Duration `json:"connection_timeout" yaml:"connection_timeout"`
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	RetryInterval     time.Duration `json:"retry_interval" yaml:"retry_interval"`

	// Operation settings
	BatchSize      int     `json:"batch_size" yaml:"batch_size"`
	DefaultTopK    int     `json:"default_top_k" yaml:"default_top_k"`
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
}

// DefaultQdrantConfig returns a default Qdrant configuration. Port 6334 is
// the Qdrant gRPC port; 6333 serves only REST.
func DefaultQdrantConfig() *QdrantConfig {
	return &QdrantConfig{
		Host:              "localhost",
		Port:              6334,
		CollectionName:    "cleave_chunks",
		VectorSize:        768,
		Distance:          "cosine",
		OnDiskPayload:     false,
		ConnectionTimeout: 30 * time.Second,
		MaxRetries:        3,
		RetryInterval:     time.Second,
		BatchSize:         100,
		DefaultTopK:       10,
		ScoreThreshold:    0.0,
	}
}

// FromIndexConfig builds a Qdrant configuration from the index section of
// the root configuration, filling unset operational knobs with defaults
func FromIndexConfig(cfg *config.IndexConfig) *QdrantConfig {
	qc := DefaultQdrantConfig()
	if cfg == nil {
		return qc
	}

	qc.Host = cfg.Host
	qc.Port = cfg.Port
	qc.APIKey = cfg.APIKey
	qc.CollectionName = cfg.Collection
	qc.VectorSize = cfg.Dimension
	if cfg.Timeout > 0 {
		qc.ConnectionTimeout = cfg.Timeout
	}
	return qc
}

// Validate validates the Qdrant configuration
func (c *QdrantConfig) Validate() error {
	if c.Host == "" {
		return errors.NewMissingFieldError("host")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.NewInvalidArgumentError("port must be between 1 and 65535")
	}
	if c.CollectionName == "" {
		return errors.NewMissingFieldError("collection_name")
	}
	if c.VectorSize <= 0 {
		return errors.NewInvalidArgumentError("vector_size must be greater than 0")
	}

	switch c.Distance {
	case "", "cosine", "euclidean", "dot":
	default:
		return errors.NewInvalidArgumentError(fmt.Sprintf("invalid distance metric: %s, must be one of: cosine, euclidean, dot", c.Distance))
	}

	if c.MaxRetries < 0 {
		return errors.NewInvalidArgumentError("max_retries cannot be negative")
	}
	if c.BatchSize <= 0 {
		return errors.NewInvalidArgumentError("batch_size must be greater than 0")
	}
	if c.DefaultTopK <= 0 {
		return errors.NewInvalidArgumentError("default_top_k must be greater than 0")
	}
	if c.ScoreThreshold < 0 {
		return errors.NewInvalidArgumentError("score_threshold cannot be negative")
	}

	return nil
}

// Address returns the gRPC dial address
func (c *QdrantConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetDistance returns the configured distance metric, defaulting to cosine
func (c *QdrantConfig) GetDistance() string {
	if c.Distance == "" {
		return "cosine"
	}
	return c.Distance
}

// Clone creates a copy of the configuration
func (c *QdrantConfig) Clone() *QdrantConfig {
	clone := *c
	return &clone
}
