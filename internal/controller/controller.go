// Package controller fetches and normalizes a player response for a single
// (video, persona) pair and exposes the DASH/HLS manifest fetch helpers
// the resolver needs afterward. Personas are tried one at a time; the
// resolver above owns ordering and fallback.
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/lindenrook/ytresolve/internal/parse"
	"github.com/lindenrook/ytresolve/internal/persona"
	"github.com/lindenrook/ytresolve/internal/transport"
	"github.com/mogiioin/hls-m3u8/m3u8"
)

// HTTPStatusError records a non-2xx response from the player endpoint.
type HTTPStatusError struct {
	Persona    string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("controller: persona %s: http status %d", e.Persona, e.StatusCode)
}

// CircuitOpenError indicates a persona's breaker is open and the call was
// rejected before any request was issued.
type CircuitOpenError struct {
	Persona string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("controller: persona %s: circuit open", e.Persona)
}

// WatchPage is the parsed result of fetching the caller-visible watch page.
// Normalization borrows it only for the lifetime of one descriptor's
// descrambling; it is never stored back onto a PlayerResponse.
type WatchPage struct {
	Body            []byte
	PlayerScriptURL string
}

// RequestOptions carries per-call values layered on top of a persona's
// static template.
type RequestOptions struct {
	VisitorData string
	PoToken     string
	Params      string
}

// Controller fetches player responses and adaptive/live manifests on behalf
// of the resolver, one persona at a time.
type Controller struct {
	transport *transport.Transport
	baseURL   string

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*parse.PlayerResponse]
}

// New builds a Controller over an already-configured retrying Transport.
func New(t *transport.Transport) *Controller {
	return &Controller{
		transport: t,
		baseURL:   "https://www.youtube.com",
		breakers:  make(map[string]*gobreaker.CircuitBreaker[*parse.PlayerResponse]),
	}
}

// GetPlayerResponse issues the persona's player-endpoint POST through a
// per-persona circuit breaker and parses the JSON result. The correlation
// id returned is attached by the caller to extraction events/logs; it
// plays the role of the platform's per-request CPN value.
func (c *Controller) GetPlayerResponse(ctx context.Context, p persona.Profile, videoID string, opts RequestOptions) (*parse.PlayerResponse, string, error) {
	correlationID := uuid.NewString()
	breaker := c.breakerFor(p.ID)

	resp, err := breaker.Execute(func() (*parse.PlayerResponse, error) {
		return c.fetchPlayerResponse(ctx, p, videoID, opts, correlationID)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, correlationID, &CircuitOpenError{Persona: p.ID}
		}
		return nil, correlationID, err
	}
	return resp, correlationID, nil
}

func (c *Controller) breakerFor(personaID string) *gobreaker.CircuitBreaker[*parse.PlayerResponse] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[personaID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[*parse.PlayerResponse](gobreaker.Settings{
		Name:        "persona:" + personaID,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	c.breakers[personaID] = cb
	return cb
}

func (c *Controller) fetchPlayerResponse(ctx context.Context, p persona.Profile, videoID string, opts RequestOptions, correlationID string) (*parse.PlayerResponse, error) {
	req := persona.NewPlayerRequest(p, videoID, persona.RequestOptions{
		VisitorData: opts.VisitorData,
		PoToken:     opts.PoToken,
		Params:      opts.Params,
	})
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("controller: marshaling player request: %w", err)
	}

	endpoint := "https://" + p.Host + "/youtubei/v1/player"
	if p.APIKey != "" {
		endpoint += "?key=" + url.QueryEscape(p.APIKey)
	}

	respBody, resp, err := c.transport.Post(ctx, endpoint, body, c.headersFor(p, videoID, correlationID))
	if err != nil {
		return nil, fmt.Errorf("controller: posting player request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{Persona: p.ID, StatusCode: resp.StatusCode}
	}

	var playerResp parse.PlayerResponse
	if err := json.Unmarshal(respBody, &playerResp); err != nil {
		return nil, fmt.Errorf("controller: decoding player response: %w", err)
	}
	return &playerResp, nil
}

func (c *Controller) headersFor(p persona.Profile, videoID, correlationID string) http.Header {
	origin := "https://" + p.Host
	h := http.Header{
		"Content-Type":              {"application/json"},
		"User-Agent":                {p.UserAgent},
		"Origin":                    {origin},
		"X-Origin":                  {origin},
		"Referer":                   {origin + "/watch?v=" + videoID},
		"X-Goog-Api-Format-Version": {"2"},
		"X-Request-Id":              {correlationID},
	}
	if p.ContextClientID > 0 {
		h.Set("X-Youtube-Client-Name", strconv.Itoa(p.ContextClientID))
	}
	if p.ClientVersion != "" {
		h.Set("X-Youtube-Client-Version", p.ClientVersion)
	}
	for k, values := range p.Headers {
		for _, v := range values {
			h.Add(k, v)
		}
	}
	return h
}

// GetWatchPage fetches the user-visible watch page, the entry point for
// extracting the inline player response, the base player script URL, and
// the cookie context some personas need for descrambling.
func (c *Controller) GetWatchPage(ctx context.Context, videoID string) (*WatchPage, error) {
	u := c.baseURL + "/watch?v=" + url.QueryEscape(videoID) + "&bpctr=9999999999&has_verified=1"
	headers := http.Header{
		"User-Agent": {persona.Web.UserAgent},
		"Cookie":     {"PREF=hl=en&tz=UTC"},
	}
	body, resp, err := c.transport.Get(ctx, u, headers)
	if err != nil {
		return nil, fmt.Errorf("controller: fetching watch page: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("controller: watch page status %d", resp.StatusCode)
	}
	scriptURL, err := parse.ExtractBasePlayerScriptURL(body)
	if err != nil {
		scriptURL = ""
	}
	return &WatchPage{Body: body, PlayerScriptURL: scriptURL}, nil
}

// GetPlayerScript fetches the base player script located at scriptURL
// (absolute, as returned by GetWatchPage / parse.ExtractBasePlayerScriptURL).
func (c *Controller) GetPlayerScript(ctx context.Context, scriptURL string) ([]byte, error) {
	body, resp, err := c.transport.Get(ctx, scriptURL, http.Header{"User-Agent": {persona.Web.UserAgent}})
	if err != nil {
		return nil, fmt.Errorf("controller: fetching player script: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("controller: player script status %d", resp.StatusCode)
	}
	return body, nil
}

// GetDashManifest fetches and parses a DASH MPD manifest through the shared
// retrying transport instead of a bare http.Client, so a flaky manifest
// fetch benefits from the same backoff policy as player-endpoint requests.
func (c *Controller) GetDashManifest(ctx context.Context, manifestURL string) ([]parse.DASHRepresentation, error) {
	body, resp, err := c.transport.Get(ctx, manifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("controller: fetching dash manifest: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("controller: dash manifest status %d", resp.StatusCode)
	}
	return parse.ParseDASHManifest(string(body), manifestURL)
}

// GetHLSManifest fetches and parses an HLS master playlist.
func (c *Controller) GetHLSManifest(ctx context.Context, manifestURL string) ([]parse.HLSVariant, error) {
	body, resp, err := c.transport.Get(ctx, manifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("controller: fetching hls manifest: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("controller: hls manifest status %d", resp.StatusCode)
	}
	playlist := m3u8.NewMasterPlaylist()
	if err := playlist.DecodeFrom(bytes.NewReader(body), false); err != nil {
		return nil, fmt.Errorf("controller: decoding hls master playlist: %w", err)
	}
	return parse.ParseHLSMasterPlaylist(playlist, manifestURL)
}
