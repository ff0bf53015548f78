package ytresolve

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestValidateRejectsMissingPersonaOrder(t *testing.T) {
	cfg := DefaultConfig(http.DefaultClient)
	cfg.PersonaOrder = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for empty persona order")
	}
}

func TestLoadPersonaOverridesReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	doc := "personas:\n  android:\n    client_version: \"21.99.99\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	k, err := LoadPersonaOverrides(path, "")
	if err != nil {
		t.Fatalf("LoadPersonaOverrides() error = %v", err)
	}
	if got := k.String("personas.android.client_version"); got != "21.99.99" {
		t.Fatalf("expected yaml value to load, got %q", got)
	}
}

func TestLoadPersonaOverridesMissingFileErrors(t *testing.T) {
	if _, err := LoadPersonaOverrides(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Fatal("expected an error for a missing overrides file")
	}
}

func TestNewResolverAppliesPersonaOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	doc := "personas:\n  ios:\n    user_agent: \"custom-agent/1.0\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	k, err := LoadPersonaOverrides(path, "")
	if err != nil {
		t.Fatalf("LoadPersonaOverrides() error = %v", err)
	}

	cfg := DefaultConfig(http.DefaultClient)
	cfg.PersonaOverrides = k
	r, err := NewResolver(cfg)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	var ios *ClientPersona
	for _, p := range r.Personas() {
		if p.Name == "ios" {
			ios = &p
			break
		}
	}
	if ios == nil {
		t.Fatal("expected the ios persona in the registry")
	}
	if ios.UserAgent != "custom-agent/1.0" {
		t.Fatalf("expected overridden user agent, got %q", ios.UserAgent)
	}
	if ios.APIClientName != "IOS" {
		t.Fatalf("unoverridden field should keep its default, got %q", ios.APIClientName)
	}
}

func TestLoadPersonaOverridesReadsEnv(t *testing.T) {
	t.Setenv("YTRESOLVE_PERSONAS_ANDROID_API_KEY", "env-key")

	k, err := LoadPersonaOverrides("", "YTRESOLVE_")
	if err != nil {
		t.Fatalf("LoadPersonaOverrides() error = %v", err)
	}
	if got := k.String("personas.android.api_key"); got != "env-key" {
		t.Fatalf("expected env var to map to personas.android.api_key, got %q", got)
	}
}
