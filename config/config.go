package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pdfrag/internal/domain"
)

// Config holds all configuration for pdfrag.
type Config struct {
	Chunk     ChunkConfig     `yaml:"chunk"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Generator GeneratorConfig `yaml:"generator"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ChunkConfig holds chunking configuration. Sizes are in characters.
type ChunkConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// IndexConfig selects and configures the vector index backend.
type IndexConfig struct {
	Backend         string         `yaml:"backend"` // "memory", "bolt", "pinecone", "qdrant", "pgvector"
	Name            string         `yaml:"name"`
	Metric          string         `yaml:"metric"`
	BatchSize       int            `yaml:"batch_size"`
	ContinueOnError bool           `yaml:"continue_on_error"`
	Path            string         `yaml:"path"` // bolt database file
	Pinecone        PineconeConfig `yaml:"pinecone"`
	Qdrant          QdrantConfig   `yaml:"qdrant"`
	Pgvector        PgvectorConfig `yaml:"pgvector"`
}

type PineconeConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Cloud     string `yaml:"cloud"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type QdrantConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	APIKeyEnv string `yaml:"api_key_env"`
	UseTLS    bool   `yaml:"use_tls"`
}

type PgvectorConfig struct {
	DSNEnv string `yaml:"dsn_env"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"` // "openai", "hash", "random"
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Dimension         int     `yaml:"dimension"` // 0 uses the provider's default
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries"`
}

// GeneratorConfig holds answer generation configuration.
type GeneratorConfig struct {
	Provider          string  `yaml:"provider"` // "openai", "none"
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries"`
	MaxSnippets       int     `yaml:"max_snippets"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK      int           `yaml:"top_k"`
	CacheSize int           `yaml:"cache_size"` // 0 disables the query cache
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// IngestConfig holds the file patterns used by `pdfrag ingest <dir>`.
type IngestConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

type TimeoutConfig struct {
	Embed    time.Duration `yaml:"embed"`
	Index    time.Duration `yaml:"index"`
	Generate time.Duration `yaml:"generate"`
}

type ServerConfig struct {
	Addr           string `yaml:"addr"`
	DataDir        string `yaml:"data_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunk: ChunkConfig{
			Size:    1000,
			Overlap: 150,
		},
		Index: IndexConfig{
			Backend:   "bolt",
			Name:      "pdfrag",
			Metric:    "cosine",
			BatchSize: 100,
			Path:      filepath.Join(".rag", "index.db"),
			Pinecone: PineconeConfig{
				APIKeyEnv: "PINECONE_API_KEY",
				Cloud:     "aws",
				Region:    "us-east-1",
			},
			Qdrant: QdrantConfig{
				Host:      "localhost",
				Port:      6334,
				APIKeyEnv: "QDRANT_API_KEY",
			},
			Pgvector: PgvectorConfig{
				DSNEnv: "DATABASE_URL",
			},
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			BatchSize: 100,
		},
		Generator: GeneratorConfig{
			Provider:    "openai",
			Model:       "gemini-1.5-flash",
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/",
			APIKeyEnv:   "GEMINI_API_KEY",
			Temperature: 0.2,
			MaxSnippets: 20,
		},
		Retrieve: RetrieveConfig{
			TopK:      5,
			CacheSize: 256,
			CacheTTL:  5 * time.Minute,
		},
		Ingest: IngestConfig{
			Includes: []string{"**/*.[pP][dD][fF]"},
			Excludes: []string{"**/.git/**", "**/.rag/**", "**/node_modules/**"},
		},
		Timeouts: TimeoutConfig{
			Embed:    60 * time.Second,
			Index:    30 * time.Second,
			Generate: 60 * time.Second,
		},
		Server: ServerConfig{
			Addr:           ":8000",
			DataDir:        filepath.Join("data", "documents"),
			MaxUploadBytes: 32 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file and applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for pdfrag.yaml,
// then .rag/config.yaml). A .env file in dir is loaded first; variables
// already set in the environment win.
func LoadFromDir(dir string) (*Config, error) {
	if err := LoadDotEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}

	for _, path := range []string{
		filepath.Join(dir, "pdfrag.yaml"),
		filepath.Join(dir, ".rag", "config.yaml"),
	} {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return Load("")
}

// LoadDotEnv loads a .env file if it exists.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides file values with the environment variables the service
// has always honoured.
func (c *Config) ApplyEnv() error {
	var err error
	if c.Chunk.Size, err = envInt("CHUNK_SIZE", c.Chunk.Size); err != nil {
		return err
	}
	if c.Chunk.Overlap, err = envInt("CHUNK_OVERLAP", c.Chunk.Overlap); err != nil {
		return err
	}
	c.Index.Backend = envString("PDFRAG_BACKEND", c.Index.Backend)
	c.Index.Name = envString("PINECONE_INDEX_NAME", c.Index.Name)
	c.Index.Pinecone.Cloud = envString("PINECONE_CLOUD", c.Index.Pinecone.Cloud)
	c.Index.Pinecone.Region = envString("PINECONE_REGION", c.Index.Pinecone.Region)
	c.Generator.Model = envString("GENERATION_MODEL", c.Generator.Model)
	c.Logging.Level = envString("LOG_LEVEL", c.Logging.Level)
	return nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Chunk.Size <= 0 {
		return fmt.Errorf("%w: chunk.size must be positive, got %d", domain.ErrConfiguration, c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 {
		return fmt.Errorf("%w: chunk.overlap must not be negative, got %d", domain.ErrConfiguration, c.Chunk.Overlap)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("%w: index.batch_size must be positive, got %d", domain.ErrConfiguration, c.Index.BatchSize)
	}
	if strings.TrimSpace(c.Index.Name) == "" {
		return fmt.Errorf("%w: index.name is required", domain.ErrConfiguration)
	}
	switch c.Index.Backend {
	case "memory", "bolt", "pinecone", "qdrant", "pgvector":
	default:
		return fmt.Errorf("%w: unknown index backend %q", domain.ErrConfiguration, c.Index.Backend)
	}
	if _, err := domain.ParseMetric(c.Index.Metric); err != nil {
		return fmt.Errorf("%w: index.metric: %v", domain.ErrConfiguration, err)
	}
	switch c.Embedding.Provider {
	case "openai", "hash", "random":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", domain.ErrConfiguration, c.Embedding.Provider)
	}
	switch c.Generator.Provider {
	case "openai", "none":
	default:
		return fmt.Errorf("%w: unknown generator provider %q", domain.ErrConfiguration, c.Generator.Provider)
	}
	if c.Retrieve.TopK <= 0 {
		return fmt.Errorf("%w: retrieve.top_k must be positive, got %d", domain.ErrConfiguration, c.Retrieve.TopK)
	}
	return nil
}

// Secret reads the environment variable a config section names for its
// credential.
func Secret(envName string) string {
	if envName == "" {
		return ""
	}
	return os.Getenv(envName)
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ResolvePath resolves a relative config path against dir.
func ResolvePath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// EnsureRAGDir ensures the .rag directory exists.
func EnsureRAGDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".rag"), 0755)
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", domain.ErrConfiguration, key, v)
	}
	return n, nil
}
