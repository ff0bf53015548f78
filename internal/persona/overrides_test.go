package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

func loadTestOverrides(t *testing.T, doc string) *koanf.Koanf {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		t.Fatalf("loading koanf doc: %v", err)
	}
	return k
}

func TestOverrideSetAppliesUserAgentAndAPIKey(t *testing.T) {
	k := loadTestOverrides(t, `
personas:
  ios:
    user_agent: "com.google.ios.youtube/99.0.0 (custom build)"
    api_key: "overridden-key"
`)

	reg := NewRegistry()
	NewOverrideSet(k).Apply(reg)

	got, ok := reg.Get("ios")
	if !ok {
		t.Fatalf("expected ios persona to still be registered")
	}
	if got.UserAgent != "com.google.ios.youtube/99.0.0 (custom build)" {
		t.Fatalf("user agent override did not apply, got %q", got.UserAgent)
	}
	if got.APIKey != "overridden-key" {
		t.Fatalf("api key override did not apply, got %q", got.APIKey)
	}
	if got.ClientVersion != iOS.ClientVersion {
		t.Fatalf("unspecified field should keep its default, got %q", got.ClientVersion)
	}
}

func TestOverrideSetNilIsNoop(t *testing.T) {
	reg := NewRegistry()
	var o *OverrideSet
	o.Apply(reg) // must not panic

	got, ok := reg.Get("android")
	if !ok || got.UserAgent != Android.UserAgent {
		t.Fatalf("expected android persona to be untouched by a nil override set")
	}
}
