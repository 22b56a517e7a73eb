// Package config handles loading and validating the supportline configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the supportline service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Index         IndexConfig         `mapstructure:"index"`
	Cache         CacheConfig         `mapstructure:"cache"`
	TTS           TTSConfig           `mapstructure:"tts"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig holds the HTTP API and health server settings.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	HealthPort     int      `mapstructure:"health_port"`
	GRPCHealthPort int      `mapstructure:"grpc_health_port"` // 0 disables the gRPC health server
	PublicBaseURL  string   `mapstructure:"public_base_url"`  // overrides the base address derived from the request
	CORSOrigins    []string `mapstructure:"cors_origins"`
	MaxUploadMB    int      `mapstructure:"max_upload_mb"`
}

// StorageConfig holds the on-disk locations used by the pipeline.
type StorageConfig struct {
	TempDir     string `mapstructure:"temp_dir"`     // request-scoped uploads
	StaticDir   string `mapstructure:"static_dir"`   // served under /static
	AudioSubdir string `mapstructure:"audio_subdir"` // synthesized answers, relative to StaticDir
}

// TranscriptionConfig configures the Whisper-compatible speech-to-text endpoint.
type TranscriptionConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Type     string        `mapstructure:"type"` // "openai" (default) or "asr" (ahmetoner/whisper-asr-webservice)
	Model    string        `mapstructure:"model"`
	Language string        `mapstructure:"language"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LLMConfig selects the generative backend and the models used for each role.
type LLMConfig struct {
	Backend           string       `mapstructure:"backend"` // "ollama" or "openai"
	TextModel         string       `mapstructure:"text_model"`
	VisionModel       string       `mapstructure:"vision_model"`
	EmbeddingModel    string       `mapstructure:"embedding_model"`
	TextTemperature   float64      `mapstructure:"text_temperature"`
	VisionTemperature float64      `mapstructure:"vision_temperature"`
	Ollama            OllamaConfig `mapstructure:"ollama"`
	OpenAI            OpenAIConfig `mapstructure:"openai"`
}

// OllamaConfig holds the Ollama server address.
type OllamaConfig struct {
	Host    string        `mapstructure:"host"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OpenAIConfig holds OpenAI-compatible API settings.
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// IndexConfig selects and configures the vector index.
type IndexConfig struct {
	Backend string       `mapstructure:"backend"` // "sqlite" or "qdrant"
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
	Qdrant  QdrantConfig `mapstructure:"qdrant"`
}

// SQLiteConfig points at the local index file written by ingestion.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// QdrantConfig contains connection details for a Qdrant collection.
type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
	Collection string `mapstructure:"collection"`
}

// CacheConfig configures the optional query-embedding cache.
type CacheConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// TTSConfig selects and configures the text-to-speech backend.
type TTSConfig struct {
	Backend  string      `mapstructure:"backend"` // "gtts" or "piper"
	Language string      `mapstructure:"language"`
	GTTS     GTTSConfig  `mapstructure:"gtts"`
	Piper    PiperConfig `mapstructure:"piper"`
}

// GTTSConfig holds Google Translate TTS settings.
type GTTSConfig struct {
	TLD     string        `mapstructure:"tld"`      // accent variant, e.g. "com.mx"
	BaseURL string        `mapstructure:"base_url"` // overrides https://translate.google.<tld>
	Slow    bool          `mapstructure:"slow"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// For per-language instances, set Endpoints which maps ISO-639-1 codes to
// individual Wyoming TCP endpoints. Endpoints takes precedence.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`  // Default Wyoming TCP endpoint (host:port)
	Endpoints map[string]string `mapstructure:"endpoints"` // ISO-639-1 language code -> Wyoming TCP endpoint
	Voices    map[string]string `mapstructure:"voices"`    // ISO-639-1 language code -> Piper voice model name
}

// IngestConfig controls the offline knowledge-base ingestion job.
type IngestConfig struct {
	KnowledgeDir string   `mapstructure:"knowledge_dir"`
	Files        []string `mapstructure:"files"` // relative to KnowledgeDir; empty means every supported file
	ChunkSize    int      `mapstructure:"chunk_size"`
	ChunkOverlap int      `mapstructure:"chunk_overlap"`
	BatchSize    int      `mapstructure:"batch_size"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("server.grpc_health_port", 50051)
	v.SetDefault("server.public_base_url", "")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 25)
	v.SetDefault("storage.temp_dir", "./temp_files")
	v.SetDefault("storage.static_dir", "./app/static")
	v.SetDefault("storage.audio_subdir", "audio_responses")
	v.SetDefault("transcription.endpoint", "http://localhost:9000/v1/audio/transcriptions")
	v.SetDefault("transcription.type", "openai")
	v.SetDefault("transcription.model", "base")
	v.SetDefault("transcription.language", "es")
	v.SetDefault("transcription.timeout", 2*time.Minute)
	v.SetDefault("llm.backend", "ollama")
	v.SetDefault("llm.text_model", "phi3")
	v.SetDefault("llm.vision_model", "llava")
	v.SetDefault("llm.embedding_model", "all-minilm")
	v.SetDefault("llm.text_temperature", 0.5)
	v.SetDefault("llm.vision_temperature", 0.0)
	v.SetDefault("llm.ollama.host", "http://localhost:11434")
	v.SetDefault("llm.ollama.timeout", 5*time.Minute)
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.openai.timeout", 2*time.Minute)
	v.SetDefault("index.backend", "sqlite")
	v.SetDefault("index.sqlite.path", "./db/index.sqlite")
	v.SetDefault("index.qdrant.host", "localhost")
	v.SetDefault("index.qdrant.port", 6334)
	v.SetDefault("index.qdrant.collection", "knowledge_base")
	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.addr", "127.0.0.1:6379")
	v.SetDefault("cache.redis.ttl", 24*time.Hour)
	v.SetDefault("tts.backend", "gtts")
	v.SetDefault("tts.language", "es")
	v.SetDefault("tts.gtts.tld", "com.mx")
	v.SetDefault("tts.gtts.timeout", 30*time.Second)
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("ingest.knowledge_dir", "./knowledge_base")
	v.SetDefault("ingest.chunk_size", 1200)
	v.SetDefault("ingest.chunk_overlap", 150)
	v.SetDefault("ingest.batch_size", 32)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads the configuration from file, environment variables, and defaults.
// A .env file in the working directory is loaded first when present.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./supportline.yaml, ./configs/supportline.yaml, /etc/supportline/supportline.yaml.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("supportline")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/supportline")
	}

	// Environment variables: SUPPORTLINE_SERVER_PORT, SUPPORTLINE_LLM_BACKEND, etc.
	v.SetEnvPrefix("SUPPORTLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${OPENAI_API_KEY}")
	cfg.LLM.OpenAI.APIKey = resolveEnvRef(cfg.LLM.OpenAI.APIKey)
	cfg.Transcription.APIKey = resolveEnvRef(cfg.Transcription.APIKey)
	cfg.Index.Qdrant.APIKey = resolveEnvRef(cfg.Index.Qdrant.APIKey)
	cfg.Cache.Redis.Password = resolveEnvRef(cfg.Cache.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks backend selections and required settings.
func (c *Config) Validate() error {
	switch c.LLM.Backend {
	case "ollama":
		if c.LLM.Ollama.Host == "" {
			return errors.New("llm.ollama.host is required for the ollama backend")
		}
	case "openai":
		if c.LLM.OpenAI.BaseURL == "" {
			return errors.New("llm.openai.base_url is required for the openai backend")
		}
	default:
		return fmt.Errorf("unknown llm backend %q", c.LLM.Backend)
	}

	switch c.Index.Backend {
	case "sqlite":
		if c.Index.SQLite.Path == "" {
			return errors.New("index.sqlite.path is required for the sqlite index")
		}
	case "qdrant":
		if c.Index.Qdrant.Collection == "" {
			return errors.New("index.qdrant.collection is required for the qdrant index")
		}
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}

	switch c.TTS.Backend {
	case "gtts", "piper":
	default:
		return fmt.Errorf("unknown tts backend %q", c.TTS.Backend)
	}

	switch c.Transcription.Type {
	case "openai", "asr":
	default:
		return fmt.Errorf("unknown transcription type %q", c.Transcription.Type)
	}

	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
