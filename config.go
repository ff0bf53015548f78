package ytresolve

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// Config controls how a Resolver talks to the platform and which personas
// it tries, in what order.
type Config struct {
	HTTPClient *http.Client `validate:"required"`

	// PersonaOrder is the primary persona attempt order (default:
	// ["ios", "android"]).
	PersonaOrder []string `validate:"required,min=1"`

	// SecondaryFallback is tried once if PersonaOrder is exhausted without a
	// fatal classification (default: ["tvEmbedded"]).
	SecondaryFallback []string

	// RequireWatchPage forces an eager watch-page fetch per persona instead
	// of the lazy fetch-only-if-n-param-present default.
	RequireWatchPage bool

	// RequestTimeout bounds each individual HTTP operation (default 30s).
	// Applied per-call by the transport, not shared across retries within
	// one call.
	RequestTimeout time.Duration `validate:"required"`

	// ManifestTimeout bounds one whole GetManifest call (default 60s). Only
	// takes effect when the caller's context carries no earlier deadline of
	// its own.
	ManifestTimeout time.Duration `validate:"required"`

	// ScriptBudgetMS bounds the descrambling script's wall-clock proxy for
	// its instruction budget.
	ScriptBudgetMS int `validate:"required,gt=0"`

	Logger zerolog.Logger

	Metrics *Metrics

	OnExtractionEvent ExtractionEventHandler

	// PersonaOverrides optionally layers operator-supplied persona-template
	// overrides (as loaded by LoadPersonaOverrides) onto the built-in
	// registry when the Resolver is constructed.
	PersonaOverrides *koanf.Koanf
}

// ExtractionEvent is one lifecycle event emitted while resolving a manifest.
type ExtractionEvent struct {
	Stage   string
	Phase   string
	Persona string
	Detail  string
}

// ExtractionEventHandler receives extraction lifecycle events.
type ExtractionEventHandler func(ExtractionEvent)

// DefaultConfig returns a Config with the default persona order and
// conservative timeouts.
func DefaultConfig(client *http.Client) Config {
	if client == nil {
		client = http.DefaultClient
	}
	return Config{
		HTTPClient:        client,
		PersonaOrder:      []string{"ios", "android"},
		SecondaryFallback: []string{"tvEmbedded"},
		RequestTimeout:    30 * time.Second,
		ManifestTimeout:   60 * time.Second,
		ScriptBudgetMS:    750,
		Logger:            zerolog.Nop(),
	}
}

var configValidator = validator.New()

// Validate checks the struct tags above and returns an *ArgumentError on
// failure, matching go-playground/validator's idiomatic entry point.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return &ArgumentError{Field: "config", Reason: err.Error()}
	}
	return nil
}

// LoadPersonaOverrides loads a persona-table overlay from a YAML file and
// environment variables, so operators can retune persona templates (user
// agents, API keys, client versions) as data rather than redeploying code.
func LoadPersonaOverrides(path, envPrefix string) (*koanf.Koanf, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}
	if envPrefix != "" {
		transform := func(s string) string {
			stripped := strings.TrimPrefix(s, envPrefix)
			return strings.ReplaceAll(strings.ToLower(stripped), "_", ".")
		}
		if err := k.Load(env.Provider(envPrefix, ".", transform), nil); err != nil {
			return nil, err
		}
	}
	return k, nil
}
