package ytresolve

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/lindenrook/ytresolve/internal/controller"
	"github.com/lindenrook/ytresolve/internal/parse"
	"github.com/lindenrook/ytresolve/internal/persona"
	"github.com/lindenrook/ytresolve/internal/scriptvm"
	"github.com/lindenrook/ytresolve/internal/transport"
)

// Resolver resolves stream manifests: it owns the transport, controller,
// persona registry, and script evaluator a GetManifest call needs, and
// tries personas sequentially, one cooperative task per call.
type Resolver struct {
	config     Config
	transport  *transport.Transport
	controller *controller.Controller
	registry   persona.Registry
	scriptEval *scriptvm.Evaluator
}

// NewResolver validates cfg and builds a ready-to-use Resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tcfg := transport.DefaultConfig()
	tcfg.RequestTimeout = cfg.RequestTimeout
	tp := transport.New(cfg.HTTPClient, tcfg)
	registry := persona.NewRegistry()
	if cfg.PersonaOverrides != nil {
		persona.NewOverrideSet(cfg.PersonaOverrides).Apply(registry)
	}
	return &Resolver{
		config:     cfg,
		transport:  tp,
		controller: controller.New(tp),
		registry:   registry,
		scriptEval: scriptvm.New(cfg.ScriptBudgetMS),
	}, nil
}

// Personas reports the registered persona table, with any configured
// overrides applied, sorted by name for deterministic output.
func (r *Resolver) Personas() []ClientPersona {
	profiles := r.registry.All()
	out := make([]ClientPersona, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, clientPersonaFromProfile(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func clientPersonaFromProfile(p persona.Profile) ClientPersona {
	var policy map[StreamingProtocol]PoTokenRequirement
	if len(p.PoTokenPolicy) > 0 {
		policy = make(map[StreamingProtocol]PoTokenRequirement, len(p.PoTokenPolicy))
		for proto, req := range p.PoTokenPolicy {
			policy[StreamingProtocol(proto)] = PoTokenRequirement{
				Required:    req.Required,
				Recommended: req.Recommended,
			}
		}
	}
	return ClientPersona{
		Name:            p.ID,
		APIClientName:   p.ClientName,
		ClientVersion:   p.ClientVersion,
		APIKey:          p.APIKey,
		UserAgent:       p.UserAgent,
		ContextClientID: p.ContextClientID,
		Host:            p.Host,
		Embedded:        p.Embedded,
		PoTokenPolicy:   policy,
	}
}

// ManifestRequest carries the optional per-call overrides get_manifest
// accepts on top of the Resolver's Config defaults.
type ManifestRequest struct {
	// Personas overrides Config.PersonaOrder for this call. When set, the
	// secondary fallback is not attempted; it only widens the default order.
	Personas []string

	// RequireWatchPage forces an eager watch-page fetch, ORed with
	// Config.RequireWatchPage.
	RequireWatchPage bool
}

// GetManifest resolves a playable stream manifest for videoID: normalize
// the id, try the persona order (falling back once to the
// secondary list if the accumulator stays empty), and return the first
// manifest with at least one stream, or the last captured error.
func (r *Resolver) GetManifest(ctx context.Context, videoID VideoID, req ManifestRequest) (*StreamManifest, error) {
	start := time.Now()
	defer func() { r.config.Metrics.observeLatency(time.Since(start)) }()

	ctx, cancel := withManifestTimeout(ctx, r.config.ManifestTimeout)
	defer cancel()

	videoID, err := ParseVideoID(string(videoID))
	if err != nil {
		return nil, err
	}

	requireWatchPage := req.RequireWatchPage || r.config.RequireWatchPage
	cs := newCallState(videoID)

	personaOrder := req.Personas
	allowSecondary := len(personaOrder) == 0
	if allowSecondary {
		personaOrder = r.config.PersonaOrder
	}

	manifest, lastErr := r.resolveWithPersonas(ctx, cs, videoID, personaOrder, requireWatchPage)
	if manifest != nil {
		return manifest, nil
	}

	// A call-fatal error (unavailable, purchase-gated, cancelled) means no
	// persona will change the outcome; skip the secondary fallback entirely.
	if isCallFatal(lastErr) {
		return nil, r.logFatalOutcome(videoID, lastErr)
	}

	if allowSecondary && len(r.config.SecondaryFallback) > 0 {
		r.emitExtractionEvent("persona", "fallback", "tvEmbedded", "primary order exhausted, trying secondary fallback")
		manifest, secondaryErr := r.resolveWithPersonas(ctx, cs, videoID, r.config.SecondaryFallback, requireWatchPage)
		if manifest != nil {
			return manifest, nil
		}
		if secondaryErr != nil {
			lastErr = secondaryErr
		}
	}

	if lastErr == nil {
		return nil, r.logFatalOutcome(videoID, ErrVideoUnavailable)
	}
	if isLoopFatal(lastErr) {
		return nil, r.logFatalOutcome(videoID, lastErr)
	}
	return nil, r.logFatalOutcome(videoID, &AllPersonasFailedError{Attempts: []PersonaAttemptError{{Persona: lastAttemptPersona(personaOrder, lastErr), Err: lastErr}}})
}

// withManifestTimeout applies Config.ManifestTimeout to ctx, mirroring the
// transport's per-operation withRequestTimeout: it never shortens a deadline
// the caller already established.
func withManifestTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// lastAttemptPersona is a best-effort label for the error assembled in
// AllPersonasFailedError when the caller didn't already attach one.
func lastAttemptPersona(personaOrder []string, err error) string {
	if pe, ok := err.(*TransientFailureError); ok && pe.Persona != "" {
		return pe.Persona
	}
	if len(personaOrder) == 0 {
		return ""
	}
	return personaOrder[len(personaOrder)-1]
}

// GetHLSURL fetches the watch page, requires playability, and returns the
// live HLS manifest URL.
func (r *Resolver) GetHLSURL(ctx context.Context, videoID VideoID) (string, error) {
	videoID, err := ParseVideoID(string(videoID))
	if err != nil {
		return "", err
	}
	cs := newCallState(videoID)
	if err := r.ensureWatchPage(ctx, cs); err != nil {
		return "", &TransientFailureError{Cause: err}
	}

	resp, err := parse.ExtractInlinePlayerResponse(cs.watchPage.Body)
	if err != nil {
		primary, ok := r.registry.Get(firstOrDefault(r.config.PersonaOrder, "ios"))
		if !ok {
			return "", err
		}
		resp, _, err = r.controller.GetPlayerResponse(ctx, primary, string(videoID), controller.RequestOptions{})
		if err != nil {
			return "", &TransientFailureError{Cause: err}
		}
	}

	if fatalErr := r.classifyPlayerResponse(resp); fatalErr != nil {
		return "", fatalErr
	}
	if resp.StreamingData.HlsManifestURL == "" {
		return "", ErrNotLiveStream
	}
	return resp.StreamingData.HlsManifestURL, nil
}

func firstOrDefault(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return values[0]
}

// GetStream opens the byte stream for a resolved StreamInfo, optionally
// ranged, delegating straight to the transport's get_stream primitive.
func (r *Resolver) GetStream(ctx context.Context, info StreamInfo, rangeHeader string) (io.ReadCloser, int64, error) {
	body, resp, err := r.transport.Stream(ctx, info.URL, rangeHeader, nil)
	if err != nil {
		return nil, 0, &TransientFailureError{Cause: err}
	}
	return body, resp.ContentLength, nil
}
