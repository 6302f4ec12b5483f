package taboot

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jmagar/taboot/llm"
)

// Config holds all configuration for the taboot pipeline and daemons.
type Config struct {
	// CachePath is the directory of the embedded KV cache. Empty means an
	// ephemeral in-memory cache (tests, one-shot CLI runs).
	CachePath string `json:"cache_path"`

	// DocStorePath is the SQLite document database file. Empty means an
	// in-memory document store.
	DocStorePath string `json:"docstore_path"`

	// LLM configures the Tier-C chat provider.
	LLM llm.Config `json:"llm"`

	// Graph configures the property-graph store. An empty URI disables
	// graph writes.
	Graph GraphConfig `json:"graph"`

	// MaxWindowTokens is the Tier-B window budget.
	MaxWindowTokens int `json:"max_window_tokens"`

	// TierCBatchSize is the Tier-C extraction chunk size.
	TierCBatchSize int `json:"tier_c_batch_size"`

	// ResultTTLDays bounds the lifetime of cached Tier-C results.
	// Zero disables expiry.
	ResultTTLDays int `json:"result_ttl_days"`

	// WriteBatchSize is the graph writer rows-per-query batch size.
	WriteBatchSize int `json:"write_batch_size"`

	// MaxRetries is the orchestrator's per-document retry budget.
	MaxRetries int `json:"max_retries"`

	// ExtractorVersion stamps provenance on every emitted record.
	ExtractorVersion string `json:"extractor_version"`

	// Patterns is the Tier-A vocabulary: entity type to literal surface
	// forms. Registered once at startup.
	Patterns map[string][]string `json:"patterns,omitempty"`

	Worker WorkerConfig `json:"worker"`
	HTTP   HTTPConfig   `json:"http"`
}

// GraphConfig configures the Bolt connection to the graph store.
type GraphConfig struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// WorkerConfig configures the background worker and DLQ.
type WorkerConfig struct {
	// PollTimeout is the blocking-pop timeout on the extraction queue.
	PollTimeout time.Duration `json:"poll_timeout"`
	// BaseDelay is the backoff unit: delay = BaseDelay * 2^(n-1).
	BaseDelay time.Duration `json:"base_delay"`
	// MaxRetries bounds worker-level re-queues before the DLQ.
	MaxRetries int `json:"max_retries"`
	// SweepInterval is the cron spec of the pending sweeper. Empty
	// disables sweeping.
	SweepInterval string `json:"sweep_interval"`
}

// HTTPConfig configures the daemon's HTTP listener.
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// Version is the extractor version stamped on records when the config does
// not override it.
const Version = "0.3.0"

// DefaultConfig returns a Config with sensible defaults for local use.
func DefaultConfig() Config {
	return Config{
		LLM: llm.Config{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Graph: GraphConfig{
			URI:      "",
			Username: "neo4j",
		},
		MaxWindowTokens:  512,
		TierCBatchSize:   16,
		ResultTTLDays:    30,
		WriteBatchSize:   2000,
		MaxRetries:       3,
		ExtractorVersion: Version,
		Worker: WorkerConfig{
			PollTimeout:   5 * time.Second,
			BaseDelay:     2 * time.Second,
			MaxRetries:    3,
			SweepInterval: "@every 1m",
		},
		HTTP: HTTPConfig{Addr: ":8480"},
	}
}

// LoadConfig reads a JSON config file over the defaults, then applies
// TABOOT_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("%w: reading %s: %v", ErrInvalidConfig, path, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays environment variables onto the config. Environment wins
// over file values.
func (c *Config) applyEnv() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("TABOOT_CACHE_PATH", &c.CachePath)
	setString("TABOOT_DOCSTORE_PATH", &c.DocStorePath)
	setString("TABOOT_LLM_PROVIDER", &c.LLM.Provider)
	setString("TABOOT_LLM_MODEL", &c.LLM.Model)
	setString("TABOOT_LLM_BASE_URL", &c.LLM.BaseURL)
	setString("TABOOT_LLM_API_KEY", &c.LLM.APIKey)
	setString("TABOOT_GRAPH_URI", &c.Graph.URI)
	setString("TABOOT_GRAPH_USERNAME", &c.Graph.Username)
	setString("TABOOT_GRAPH_PASSWORD", &c.Graph.Password)
	setString("TABOOT_HTTP_ADDR", &c.HTTP.Addr)
	if v := os.Getenv("TABOOT_MAX_WINDOW_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxWindowTokens = n
		}
	}
}

// ResultTTL converts the configured day count to a duration.
func (c *Config) ResultTTL() time.Duration {
	return time.Duration(c.ResultTTLDays) * 24 * time.Hour
}
