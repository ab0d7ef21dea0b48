package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the knowledge store.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig holds the persistent file paths. Empty paths are resolved
// against the data directory at startup.
type StorageConfig struct {
	DataDir           string `yaml:"data_dir"`
	RegistryPath      string `yaml:"registry_path"`
	IndexPath         string `yaml:"index_path"`
	ResearchIndexPath string `yaml:"research_index_path"`
}

// ChunkingConfig holds the document splitting parameters.
type ChunkingConfig struct {
	MaxChars int `yaml:"max_chars"`
	Overlap  int `yaml:"overlap"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`    // "openai", "ollama", "hash"
	Model     string `yaml:"model"`       // e.g., "text-embedding-3-small"
	APIKeyEnv string `yaml:"api_key_env"` // Environment variable for API key
	BaseURL   string `yaml:"base_url"`    // For ollama / openai-compatible endpoints
	Dimension int    `yaml:"dimension"`
}

// RetrieveConfig holds retrieval defaults.
type RetrieveConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"` // Drop related research below this score (0 = disabled)
}

// IngestConfig holds file ingestion configuration.
type IngestConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: ".researchkb",
		},
		Chunking: ChunkingConfig{
			MaxChars: 1000,
			Overlap:  100,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 256,
		},
		Retrieve: RetrieveConfig{
			TopK:     5,
			MinScore: 0,
		},
		Ingest: IngestConfig{
			Includes: []string{"**/*.md", "**/*.txt"},
			Excludes: []string{"**/node_modules/**", "**/vendor/**", "**/.git/**"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for researchkb.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "researchkb.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".researchkb", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RegistryPath returns the configured registry path, defaulting into the
// data directory.
func (c *Config) RegistryPath() string {
	if c.Storage.RegistryPath != "" {
		return c.Storage.RegistryPath
	}
	return filepath.Join(c.Storage.DataDir, "registry.db")
}

// IndexPath returns the configured chunk index path.
func (c *Config) IndexPath() string {
	if c.Storage.IndexPath != "" {
		return c.Storage.IndexPath
	}
	return filepath.Join(c.Storage.DataDir, "index.db")
}

// ResearchIndexPath returns the configured research index path.
func (c *Config) ResearchIndexPath() string {
	if c.Storage.ResearchIndexPath != "" {
		return c.Storage.ResearchIndexPath
	}
	return filepath.Join(c.Storage.DataDir, "research.db")
}

// EnsureDataDir ensures the data directory exists.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.Storage.DataDir, 0755)
}
