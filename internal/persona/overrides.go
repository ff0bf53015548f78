package persona

import "github.com/knadh/koanf/v2"

// OverrideSet captures persona-template overrides sourced from a koanf
// instance (YAML file + env overlay), so operators can retune user agents,
// API keys, and client versions as data instead of redeploying code.
type OverrideSet struct {
	k *koanf.Koanf
}

// NewOverrideSet wraps an already-loaded koanf instance.
func NewOverrideSet(k *koanf.Koanf) *OverrideSet {
	return &OverrideSet{k: k}
}

// Apply reads "personas.<id>.user_agent" / "personas.<id>.api_key" style
// keys out of the koanf tree and layers them onto reg's existing profiles.
func (o *OverrideSet) Apply(reg Registry) {
	if o == nil || o.k == nil {
		return
	}
	for _, id := range []string{"ios", "android", "tvEmbedded", "web", "web_embedded"} {
		profile, ok := reg.Get(id)
		if !ok {
			continue
		}
		prefix := "personas." + id + "."
		if v := o.k.String(prefix + "user_agent"); v != "" {
			profile.UserAgent = v
		}
		if v := o.k.String(prefix + "api_key"); v != "" {
			profile.APIKey = v
		}
		if v := o.k.String(prefix + "client_version"); v != "" {
			profile.ClientVersion = v
		}
		ApplyOverride(reg, profile)
	}
}
