package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config carries every tunable of the service. Loading starts from the
// baseline defaults, then an optional yaml file overrides, then environment
// variables override that.
type Config struct {
	ServerAddr string `yaml:"server_addr"`
	LogMode    string `yaml:"log_mode"`

	// Empty PgConn runs the service with the in-memory index and no
	// conversation persistence.
	PgConn string `yaml:"pg_conn"`

	LMBaseURL  string `yaml:"lm_base_url"`
	APIKey     string `yaml:"api_key"`
	EmbedModel string `yaml:"embed_model"`
	ChatModel  string `yaml:"chat_model"`
	EmbedDim   int    `yaml:"embed_dim"`

	RetrievalK   int     `yaml:"retrieval_k"`
	FetchK       int     `yaml:"fetch_k"`
	MMRLambda    float64 `yaml:"mmr_lambda"`
	ChunkSize    int     `yaml:"chunk_size"`
	ChunkOverlap int     `yaml:"chunk_overlap"`
	MaxAttempts  int     `yaml:"max_attempts"`
}

// defaults is the baseline every load starts from. Overrides land on top of
// it, so an explicit zero (chunk_overlap: 0, mmr_lambda: 0) is a real setting,
// not an unset field.
func defaults() *Config {
	return &Config{
		ServerAddr:   ":8080",
		LogMode:      "development",
		LMBaseURL:    "http://localhost:1234/v1",
		APIKey:       "not-needed",
		EmbedModel:   "text-embedding-nomic-embed-text-v1.5",
		ChatModel:    "google/gemma-3n-e4b",
		EmbedDim:     768,
		RetrievalK:   5,
		FetchK:       20,
		MMRLambda:    0.5,
		ChunkSize:    1000,
		ChunkOverlap: 200,
		MaxAttempts:  3,
	}
}

// Load reads the yaml file at path if it exists, then applies env overrides.
// A missing file is not an error. Out-of-range values fall back to the
// baseline.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}
	applyEnv(cfg)
	sanitize(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setStr(&cfg.ServerAddr, "SERVER_ADDR")
	setStr(&cfg.LogMode, "LOG_MODE")
	setStr(&cfg.PgConn, "PG_CONN")
	setStr(&cfg.LMBaseURL, "LM_BASE_URL")
	setStr(&cfg.APIKey, "LLM_API_KEY")
	setStr(&cfg.EmbedModel, "EMBED_MODEL")
	setStr(&cfg.ChatModel, "LLM_MODEL")
	setInt(&cfg.EmbedDim, "EMBED_DIM")
	setInt(&cfg.RetrievalK, "RETRIEVAL_K")
	setInt(&cfg.FetchK, "FETCH_K")
	setFloat(&cfg.MMRLambda, "MMR_LAMBDA")
	setInt(&cfg.ChunkSize, "CHUNK_SIZE")
	setInt(&cfg.ChunkOverlap, "CHUNK_OVERLAP")
	setInt(&cfg.MaxAttempts, "LLM_MAX_ATTEMPTS")
}

// sanitize pulls values no component could run with back to the baseline.
// Zero overlap and zero lambda are valid; negative values and overlaps that
// swallow the whole chunk are not.
func sanitize(cfg *Config) {
	def := defaults()
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = def.ServerAddr
	}
	if cfg.LogMode == "" {
		cfg.LogMode = def.LogMode
	}
	if cfg.LMBaseURL == "" {
		cfg.LMBaseURL = def.LMBaseURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = def.APIKey
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = def.EmbedModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = def.ChatModel
	}
	if cfg.EmbedDim <= 0 {
		cfg.EmbedDim = def.EmbedDim
	}
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = def.RetrievalK
	}
	if cfg.FetchK <= 0 {
		cfg.FetchK = def.FetchK
	}
	if cfg.MMRLambda < 0 || cfg.MMRLambda > 1 {
		cfg.MMRLambda = def.MMRLambda
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
