// Package config provides configuration management for Cleave
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cleaveai/cleave/pkg/errors"
	"github.com/cleaveai/cleave/pkg/interfaces"
	"github.com/cleaveai/cleave/pkg/types"
)

// validate is shared by all config types; validator.Validate is safe for
// concurrent use
var validate = validator.New()

// BaseConfig carries fields common to every configuration section
type BaseConfig struct {
	Schema string `yaml:"schema,omitempty" json:"schema,omitempty"`
}

// yamlTags makes viper decode file keys into the same field names the
// yaml struct tags declare. Squash matches the yaml ",inline" treatment
// of embedded structs.
func yamlTags(dc *mapstructure.DecoderConfig) {
	dc.TagName = "yaml"
	dc.Squash = true
}

// FromYAMLFile loads configuration from a YAML file into cfg
func FromYAMLFile(path string, cfg interface{}) error {
	return fromFile(path, "yaml", cfg)
}

// FromJSONFile loads configuration from a JSON file into cfg
func FromJSONFile(path string, cfg interface{}) error {
	return fromFile(path, "json", cfg)
}

func fromFile(path, format string, cfg interface{}) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(format)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return errors.NewConfigNotFoundError(path)
		}
		return errors.NewConfigError(fmt.Sprintf("failed to read config file %s: %v", path, err))
	}

	if err := v.Unmarshal(cfg, yamlTags); err != nil {
		return errors.NewConfigError(fmt.Sprintf("failed to decode config file %s: %v", path, err))
	}
	return nil
}

// GranularitySpec bounds chunk sizes for one granularity level
type GranularitySpec struct {
	TargetSize int `yaml:"target_size" json:"target_size" validate:"required,gt=0"`
	MinSize    int `yaml:"min_size" json:"min_size" validate:"required,gt=0,ltefield=TargetSize"`
	MaxSize    int `yaml:"max_size" json:"max_size" validate:"required,gtefield=TargetSize"`
}

// ChunkingConfig represents chunking engine configuration
type ChunkingConfig struct {
	BaseConfig          `yaml:",inline"`
	Parent              GranularitySpec `yaml:"parent" json:"parent"`
	Child               GranularitySpec `yaml:"child" json:"child"`
	SimilarityThreshold float64         `yaml:"similarity_threshold" json:"similarity_threshold" validate:"gte=-1,lte=1"`
	WindowSize          int             `yaml:"window_size" json:"window_size" validate:"required,gt=0"`
	WindowOverlap       int             `yaml:"window_overlap" json:"window_overlap" validate:"gte=0,ltfield=WindowSize"`
}

// NewChunkingConfig creates a chunking configuration with default presets
func NewChunkingConfig() *ChunkingConfig {
	return &ChunkingConfig{
		Parent:              GranularitySpec{TargetSize: 200, MinSize: 100, MaxSize: 400},
		Child:               GranularitySpec{TargetSize: 25, MinSize: 10, MaxSize: 50},
		SimilarityThreshold: 0.5,
		WindowSize:          200,
		WindowOverlap:       50,
	}
}

// Validate validates the chunking configuration
func (c *ChunkingConfig) Validate() error {
	return validate.Struct(c)
}

// EmbedderConfig represents embedding provider configuration
type EmbedderConfig struct {
	BaseConfig `yaml:",inline"`
	Backend    types.BackendType `yaml:"backend" json:"backend" validate:"required,oneof=openai ollama mock"`
	Model      string            `yaml:"model" json:"model" validate:"required"`
	APIKey     string            `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL    string            `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Dimension  int               `yaml:"dimension,omitempty" json:"dimension,omitempty" validate:"omitempty,gt=0"`
	Timeout    time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// NewEmbedderConfig creates a new embedder configuration
func NewEmbedderConfig() *EmbedderConfig {
	return &EmbedderConfig{
		Backend:   types.BackendMock,
		Model:     "mock-768",
		Dimension: 768,
		Timeout:   30 * time.Second,
	}
}

// Validate validates the embedder configuration
func (c *EmbedderConfig) Validate() error {
	return validate.Struct(c)
}

// CacheConfig represents embedding cache configuration
type CacheConfig struct {
	BaseConfig    `yaml:",inline"`
	Backend       types.BackendType `yaml:"backend" json:"backend" validate:"required,oneof=memory redis"`
	RedisHost     string            `yaml:"redis_host,omitempty" json:"redis_host,omitempty"`
	RedisPort     int               `yaml:"redis_port,omitempty" json:"redis_port,omitempty"`
	RedisPassword string            `yaml:"redis_password,omitempty" json:"redis_password,omitempty"`
	RedisDB       int               `yaml:"redis_db,omitempty" json:"redis_db,omitempty"`
	TTL           time.Duration     `yaml:"ttl,omitempty" json:"ttl,omitempty"`
	MaxEntries    int               `yaml:"max_entries,omitempty" json:"max_entries,omitempty"`
}

// NewCacheConfig creates a new cache configuration
func NewCacheConfig() *CacheConfig {
	return &CacheConfig{
		Backend:    types.BackendMemory,
		RedisHost:  "localhost",
		RedisPort:  6379,
		RedisDB:    0,
		TTL:        24 * time.Hour,
		MaxEntries: 10000,
	}
}

// Validate validates the cache configuration
func (c *CacheConfig) Validate() error {
	return validate.Struct(c)
}

// StoreConfig represents chunk store configuration
type StoreConfig struct {
	BaseConfig `yaml:",inline"`
	Driver     string `yaml:"driver" json:"driver" validate:"required,oneof=sqlite"`
	Path       string `yaml:"path" json:"path" validate:"required"`
}

// NewStoreConfig creates a new store configuration
func NewStoreConfig() *StoreConfig {
	return &StoreConfig{
		Driver: "sqlite",
		Path:   "cleave.db",
	}
}

// Validate validates the store configuration
func (c *StoreConfig) Validate() error {
	return validate.Struct(c)
}

// IndexConfig represents vector index configuration
type IndexConfig struct {
	BaseConfig `yaml:",inline"`
	Backend    types.BackendType `yaml:"backend" json:"backend" validate:"required,oneof=qdrant"`
	Host       string            `yaml:"host" json:"host" validate:"required"`
	Port       int               `yaml:"port" json:"port" validate:"required,gt=0"`
	APIKey     string            `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Collection string            `yaml:"collection" json:"collection" validate:"required"`
	Dimension  int               `yaml:"dimension" json:"dimension" validate:"required,gt=0"`
	Timeout    time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// NewIndexConfig creates a new index configuration
func NewIndexConfig() *IndexConfig {
	return &IndexConfig{
		Backend:    types.BackendQdrant,
		Host:       "localhost",
		Port:       6334,
		Collection: "cleave_chunks",
		Dimension:  768,
		Timeout:    30 * time.Second,
	}
}

// Validate validates the index configuration
func (c *IndexConfig) Validate() error {
	return validate.Struct(c)
}

// GraphConfig represents graph store configuration
type GraphConfig struct {
	BaseConfig `yaml:",inline"`
	Backend    types.BackendType `yaml:"backend" json:"backend" validate:"required,oneof=neo4j"`
	URI        string            `yaml:"uri" json:"uri" validate:"required"`
	Username   string            `yaml:"username" json:"username" validate:"required"`
	Password   string            `yaml:"password" json:"password" validate:"required"`
	Database   string            `yaml:"database,omitempty" json:"database,omitempty"`
	Timeout    time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// NewGraphConfig creates a new graph configuration
func NewGraphConfig() *GraphConfig {
	return &GraphConfig{
		Backend:  types.BackendNeo4j,
		URI:      "bolt://localhost:7687",
		Username: "neo4j",
		Database: "neo4j",
		Timeout:  30 * time.Second,
	}
}

// Validate validates the graph configuration
func (c *GraphConfig) Validate() error {
	return validate.Struct(c)
}

// EventsConfig represents event publisher configuration. Subject is the
// subject prefix; the source type of each event is appended as the final
// token.
type EventsConfig struct {
	BaseConfig    `yaml:",inline"`
	URL           string        `yaml:"url" json:"url" validate:"required"`
	Subject       string        `yaml:"subject" json:"subject" validate:"required"`
	MaxReconnects int           `yaml:"max_reconnects,omitempty" json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `yaml:"reconnect_wait,omitempty" json:"reconnect_wait,omitempty"`
}

// NewEventsConfig creates a new events configuration
func NewEventsConfig() *EventsConfig {
	return &EventsConfig{
		URL:           "nats://localhost:4222",
		Subject:       "cleave.chunked",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
	}
}

// Validate validates the events configuration
func (c *EventsConfig) Validate() error {
	return validate.Struct(c)
}

// CleaveConfig is the root configuration
type CleaveConfig struct {
	BaseConfig     `yaml:",inline"`
	Chunking       *ChunkingConfig `yaml:"chunking" json:"chunking" validate:"required"`
	Embedder       *EmbedderConfig `yaml:"embedder" json:"embedder" validate:"required"`
	Cache          *CacheConfig    `yaml:"cache,omitempty" json:"cache,omitempty"`
	Store          *StoreConfig    `yaml:"store,omitempty" json:"store,omitempty"`
	Index          *IndexConfig    `yaml:"index,omitempty" json:"index,omitempty"`
	Graph          *GraphConfig    `yaml:"graph,omitempty" json:"graph,omitempty"`
	Events         *EventsConfig   `yaml:"events,omitempty" json:"events,omitempty"`
	EnableIndexing bool            `yaml:"enable_indexing" json:"enable_indexing"`
	EnableGraph    bool            `yaml:"enable_graph" json:"enable_graph"`
	EnableEvents   bool            `yaml:"enable_events" json:"enable_events"`
	LogLevel       string          `yaml:"log_level,omitempty" json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	MetricsEnabled bool            `yaml:"metrics_enabled" json:"metrics_enabled"`
}

// NewCleaveConfig creates a root configuration with defaults
func NewCleaveConfig() *CleaveConfig {
	return &CleaveConfig{
		Chunking:       NewChunkingConfig(),
		Embedder:       NewEmbedderConfig(),
		Cache:          NewCacheConfig(),
		Store:          NewStoreConfig(),
		Index:          NewIndexConfig(),
		Graph:          NewGraphConfig(),
		Events:         NewEventsConfig(),
		EnableIndexing: true,
		EnableGraph:    false,
		EnableEvents:   false,
		LogLevel:       "info",
		MetricsEnabled: true,
	}
}

// Validate validates the configuration and all present sections
func (c *CleaveConfig) Validate() error {
	return validate.Struct(c)
}

// FromYAMLFile loads the configuration from a YAML file. Missing keys
// keep their current values, so loading over NewCleaveConfig fills
// defaults for anything the file omits.
func (c *CleaveConfig) FromYAMLFile(path string) error {
	return FromYAMLFile(path, c)
}

// FromJSONFile loads the configuration from a JSON file
func (c *CleaveConfig) FromJSONFile(path string) error {
	return FromJSONFile(path, c)
}

// ToYAMLFile saves the configuration to a YAML file
func (c *CleaveConfig) ToYAMLFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewConfigError(fmt.Sprintf("failed to create directory for %s: %v", path, err))
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.NewConfigError(fmt.Sprintf("failed to marshal config: %v", err))
	}

	return os.WriteFile(path, data, 0644)
}

// ToJSONFile saves the configuration to a JSON file
func (c *CleaveConfig) ToJSONFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewConfigError(fmt.Sprintf("failed to create directory for %s: %v", path, err))
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.NewConfigError(fmt.Sprintf("failed to marshal config: %v", err))
	}

	return os.WriteFile(path, data, 0644)
}

// Load reads a configuration file by extension, applies it over the
// defaults, and validates the result
func Load(path string) (*CleaveConfig, error) {
	cfg := NewCleaveConfig()

	switch ext := filepath.Ext(path); ext {
	case ".json":
		if err := cfg.FromJSONFile(path); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := cfg.FromYAMLFile(path); err != nil {
			return nil, err
		}
	default:
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("unsupported config file format: %s", ext))
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigInvalidError(err.Error())
	}
	return cfg, nil
}

// ConfigManager implements the configuration manager interface
type ConfigManager struct {
	config map[string]interface{}
	mu     sync.RWMutex
	viper  *viper.Viper
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() interfaces.ConfigManager {
	return &ConfigManager{
		config: make(map[string]interface{}),
		viper:  viper.New(),
	}
}

// Load loads configuration from a file
func (cm *ConfigManager) Load(ctx context.Context, path string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.viper.SetConfigFile(path)

	if err := cm.viper.ReadInConfig(); err != nil {
		return errors.NewConfigError(fmt.Sprintf("failed to read config file %s: %v", path, err))
	}

	cm.config = cm.viper.AllSettings()
	return nil
}

// Get retrieves a configuration value
func (cm *ConfigManager) Get(key string) interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.viper.Get(key)
}

// Set sets a configuration value
func (cm *ConfigManager) Set(key string, value interface{}) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.viper.Set(key, value)
	cm.config[key] = value
	return nil
}

// Save saves configuration to a file
func (cm *ConfigManager) Save(ctx context.Context, path string) error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.viper.WriteConfigAs(path)
}

// Watch watches for configuration changes
func (cm *ConfigManager) Watch(ctx context.Context, callback func(key string, value interface{})) error {
	cm.viper.WatchConfig()
	cm.viper.OnConfigChange(func(e fsnotify.Event) {
		cm.mu.Lock()
		defer cm.mu.Unlock()

		cm.config = cm.viper.AllSettings()

		for key, value := range cm.config {
			callback(key, value)
		}
	})

	return nil
}

// LoadFromEnv returns a viper instance bound to environment variables
// with the given prefix, so CLEAVE_EMBEDDER_API_KEY overrides
// embedder.api_key
func LoadFromEnv(prefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v
}

// MergeConfigs merges multiple configurations; later maps win
func MergeConfigs(configs ...map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})

	for _, config := range configs {
		for key, value := range config {
			result[key] = value
		}
	}

	return result
}
