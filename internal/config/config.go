package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rakunlabs/alan"
	_ "github.com/rakunlabs/chu/loader/external/loaderconsul"
	_ "github.com/rakunlabs/chu/loader/external/loadervault"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"

	mforwardauth "github.com/rakunlabs/ada/middleware/forwardauth"
	"github.com/rakunlabs/chu"
	"github.com/rakunlabs/tell"
)

var Service = ""

type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	// Providers is a map of named LLM provider configurations used by
	// llm.simple and agent.react nodes. Each entry selects an
	// implementation ("openai" covers every OpenAI-compatible API,
	// "anthropic" covers Claude's distinct message format) plus the
	// credentials/model it talks to.
	//
	// Example YAML:
	//
	//   providers:
	//     default:
	//       type: openai
	//       api_key: "sk-..."
	//       model: "gpt-4o"
	//     claude:
	//       type: anthropic
	//       api_key: "sk-ant-..."
	//       model: "claude-haiku-4-5"
	//     groq:
	//       type: openai
	//       api_key: "gsk_..."
	//       base_url: "https://api.groq.com/openai/v1/chat/completions"
	//       model: "llama-3.3-70b-versatile"
	//
	// If no providers are configured at all, llm.simple/agent.react nodes
	// that don't name one fall back to a no-credentials echo provider, so
	// a workflow can be built and test-run before any API key exists.
	Providers map[string]LLMConfig `cfg:"providers"`

	Store     Store       `cfg:"store"`
	Server    Server      `cfg:"server"`
	Scheduler Scheduler   `cfg:"scheduler"`
	Telemetry tell.Config `cfg:"telemetry,noprefix"`
}

type Server struct {
	BasePath string `cfg:"base_path"`

	Port string `cfg:"port" default:"8080"`
	Host string `cfg:"host"`

	// ForwardAuth, if set, configures the API to forward auth requests to
	// an external authentication service.
	ForwardAuth *mforwardauth.ForwardAuth `cfg:"forward_auth"`

	// UserHeader is the HTTP header name that contains the authenticated
	// user's identifier (populated by the forward auth middleware).
	UserHeader string `cfg:"user_header" default:"X-User"`

	// Alan, if set, enables distributed clustering via UDP peer discovery,
	// used for cron-trigger leader election across replicas.
	Alan *alan.Config `cfg:"alan"`
}

// Scheduler holds the cron-trigger scheduler's settings.
type Scheduler struct {
	// PollInterval is accepted but not read: the scheduler loads enabled
	// cron triggers on Start and on each Reload (called after a workflow
	// save), and does not poll the store.
	PollInterval time.Duration `cfg:"poll_interval" default:"30s"`
}

type Store struct {
	Postgres *StorePostgres `cfg:"postgres"`

	// EncryptionKey, if set, enables AES-256-GCM encryption for sensitive
	// fields (provider api_key, extra_headers values, integration account
	// credentials) stored in the database. The key can be any non-empty
	// string; it is hashed with SHA-256 into the 32-byte key. When
	// empty, no encryption is applied.
	EncryptionKey string `cfg:"encryption_key" log:"-"`

	// ObjectStore configures where file.save writes run output files.
	ObjectStore ObjectStoreConfig `cfg:"object_store"`
}

// ObjectStoreConfig configures the filesystem-backed object store used by
// file.save and any node that returns a downloadable asset.
type ObjectStoreConfig struct {
	Dir        string        `cfg:"dir" default:"./data/objects"`
	SigningKey string        `cfg:"signing_key" log:"-"`
	BaseURL    string        `cfg:"base_url" default:"http://localhost:8080"`
	URLTTL     time.Duration `cfg:"url_ttl" default:"1h"`
}

type StorePostgres struct {
	TablePrefix     *string        `cfg:"table_prefix"`
	Datasource      string         `cfg:"datasource" log:"-"`
	Schema          string         `cfg:"schema"`
	ConnMaxLifetime *time.Duration `cfg:"conn_max_lifetime"`
	MaxIdleConns    *int           `cfg:"max_idle_conns"`
	MaxOpenConns    *int           `cfg:"max_open_conns"`

	Migrate Migrate `cfg:"migrate"`
}

type Migrate struct {
	Datasource string            `cfg:"datasource" log:"-"`
	Schema     string            `cfg:"schema"`
	Table      string            `cfg:"table"`
	Values     map[string]string `cfg:"values"`
}

// LLMConfig describes a single LLM provider configuration.
type LLMConfig struct {
	// Type selects the provider implementation: "openai" (any
	// OpenAI-compatible chat completions API) or "anthropic".
	Type string `cfg:"type" json:"type"`

	// APIKey is the authentication key for the provider. Optional for
	// local providers like Ollama.
	APIKey string `cfg:"api_key" json:"api_key" log:"-"`

	// BaseURL is the full endpoint URL for the provider's chat completions
	// API. Defaults to the provider's public endpoint when empty.
	BaseURL string `cfg:"base_url" json:"base_url"`

	// Model is the default model identifier used when a node doesn't
	// override it (e.g., "gpt-4o", "claude-haiku-4-5").
	Model string `cfg:"model" json:"model"`

	// ExtraHeaders allows setting additional HTTP headers sent with each
	// request.
	ExtraHeaders map[string]string `cfg:"extra_headers" json:"extra_headers"`
}

func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("FLOWFORGE_")))); err != nil {
		return nil, err
	}

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}
