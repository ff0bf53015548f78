package ytresolve

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lindenrook/ytresolve/internal/controller"
	"github.com/lindenrook/ytresolve/internal/parse"
	"github.com/lindenrook/ytresolve/internal/scriptvm"
)

// callState holds the resources and caches shared across every persona
// attempt within one GetManifest call: the lazily-fetched watch page, the
// extracted n-descrambling function source, and the n-cache. One call is a
// single cooperative task, never raced across goroutines, so none of this
// needs locking.
type callState struct {
	videoID VideoID

	watchPage      *controller.WatchPage
	watchPageErr   error
	watchPageTried bool

	nFuncSource string
	nFuncErr    error
	nFuncTried  bool

	nCache map[string]string // ciphertext -> plaintext
}

func newCallState(videoID VideoID) *callState {
	return &callState{videoID: videoID, nCache: make(map[string]string)}
}

// resolveWithPersonas tries each persona in order, returning the first
// manifest with at least one stream. A loop-fatal classification stops this
// list immediately; a non-fatal per-persona failure just moves on to the
// next entry.
func (r *Resolver) resolveWithPersonas(ctx context.Context, cs *callState, videoID VideoID, personaIDs []string, requireWatchPage bool) (*StreamManifest, error) {
	var lastErr error
	for _, id := range personaIDs {
		manifest, err := r.attemptPersona(ctx, cs, videoID, id, requireWatchPage)
		if err != nil {
			lastErr = err
			r.emitExtractionEvent("persona", "failure", id, err.Error())
			r.config.Metrics.observeFailure(id, failureReason(err))
			if isLoopFatal(err) {
				return nil, err
			}
			continue
		}
		return manifest, nil
	}
	return nil, lastErr
}

// isLoopFatal stops the remaining entries of the *current* persona list but
// does not by itself rule out the secondary fallback: VideoUnplayable in
// particular (login/age/geo/drm gating) is exactly the case tvEmbedded
// exists to route around.
func isLoopFatal(err error) bool {
	return errors.Is(err, ErrVideoUnavailable) ||
		errors.Is(err, ErrVideoUnplayable) ||
		errors.Is(err, ErrVideoRequiresPurchase) ||
		errors.Is(err, ErrCancelled)
}

// isCallFatal stops the whole GetManifest call outright, skipping even the
// secondary fallback: the video is gone, gated behind a purchase, or the
// caller cancelled, and no persona will change that outcome.
func isCallFatal(err error) bool {
	return errors.Is(err, ErrVideoUnavailable) ||
		errors.Is(err, ErrVideoRequiresPurchase) ||
		errors.Is(err, ErrCancelled)
}

// failureReason classifies err into a short, low-cardinality label for the
// PersonaFailures metric, the way observeAttempt already labels outcomes by
// a fixed "ok"/"error" pair.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrVideoUnavailable):
		return "unavailable"
	case errors.Is(err, ErrVideoUnplayable):
		return "unplayable"
	case errors.Is(err, ErrVideoRequiresPurchase):
		return "requires_purchase"
	case errors.Is(err, ErrCodecExtraction):
		return "codec_extraction"
	case errors.Is(err, ErrScriptTimeout):
		return "script_timeout"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "other"
	}
}

// attemptPersona fetches and normalizes one persona's contribution to the
// manifest: player response, playability classification, descriptor
// accumulation (direct, then DASH, then HLS), normalization, dedup, and
// the first-URL HEAD probe.
func (r *Resolver) attemptPersona(ctx context.Context, cs *callState, videoID VideoID, personaID string, requireWatchPage bool) (*StreamManifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled
	}

	profile, ok := r.registry.Get(personaID)
	if !ok {
		return nil, fmt.Errorf("ytresolve: unknown persona %q", personaID)
	}

	if requireWatchPage {
		if err := r.ensureWatchPage(ctx, cs); err != nil {
			r.emitExtractionEvent("watch_page", "failure", personaID, err.Error())
		}
	}

	resp, correlationID, err := r.controller.GetPlayerResponse(ctx, profile, string(videoID), controller.RequestOptions{})
	if err != nil {
		r.config.Metrics.observeAttempt(personaID, "error")
		return nil, &TransientFailureError{Persona: personaID, Cause: err}
	}
	r.config.Metrics.observeAttempt(personaID, "ok")
	r.emitExtractionEvent("player_response", "success", personaID, correlationID)

	if fatalErr := r.classifyPlayerResponse(resp); fatalErr != nil {
		return nil, fatalErr
	}

	descriptors := r.accumulateDescriptors(ctx, resp, personaID)

	streams := make([]StreamInfo, 0, len(descriptors))
	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		info, err := r.normalizeDescriptor(ctx, cs, d, personaID)
		if err != nil {
			// CodecExtractionError and ScriptTimeoutError are persona-scoped:
			// abort this persona's whole contribution, try the next one.
			return nil, err
		}
		if info == nil {
			continue // non-positive content length, discarded silently
		}
		key := info.dedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		streams = append(streams, *info)
	}

	if len(streams) == 0 {
		return nil, fmt.Errorf("ytresolve: persona %s produced no usable streams", personaID)
	}

	// HEAD the first accumulated URL; a 403 indicates signature rejection
	// and discards this persona's entire contribution.
	status, headErr := r.transport.Head(ctx, streams[0].URL, nil)
	if headErr == nil && status == 403 {
		return nil, fmt.Errorf("ytresolve: persona %s: signature rejected (head 403)", personaID)
	}

	return &StreamManifest{
		VideoID:      videoID,
		Title:        resp.VideoDetails.Title,
		IsLive:       resp.VideoDetails.IsLiveContent || resp.PlayabilityStatus.IsLive(),
		Streams:      streams,
		HLSURL:       resp.StreamingData.HlsManifestURL,
		ResolvedFrom: personaID,
	}, nil
}

// classifyPlayerResponse maps a non-OK playability status to the fatal
// error taxonomy: a preview video id or a "payment" mention means the
// content is purchase-gated; everything else not OK is classified via
// classifyPlayability (errors.go).
func (r *Resolver) classifyPlayerResponse(resp *parse.PlayerResponse) error {
	ps := resp.PlayabilityStatus
	if ps.IsOK() {
		return nil
	}
	if preview := resp.PreviewVideoID(); preview != "" {
		return &VideoRequiresPurchaseError{Preview: true}
	}
	reason := ps.Reason
	subreason := ps.SubreasonText()
	if strings.Contains(strings.ToUpper(ps.Status+" "+reason+" "+subreason), "PAYMENT") {
		return &VideoRequiresPurchaseError{Preview: false}
	}
	return classifyPlayability(ps.Status, reason, subreason)
}

// accumulateDescriptors emits StreamDescriptors in the order direct, then
// DASH, then HLS. A DASH/HLS manifest fetch failure is logged and skipped
// rather than aborting the persona: the direct formats alone may still be
// usable.
func (r *Resolver) accumulateDescriptors(ctx context.Context, resp *parse.PlayerResponse, personaID string) []StreamDescriptor {
	out := directDescriptors(resp.StreamingData)

	if u := resp.StreamingData.DashManifestURL; u != "" {
		reps, err := r.controller.GetDashManifest(ctx, u)
		if err != nil {
			r.emitExtractionEvent("dash_manifest", "failure", personaID, err.Error())
		} else {
			for _, rep := range reps {
				out = append(out, descriptorFromDASH(rep))
			}
		}
	}

	if u := resp.StreamingData.HlsManifestURL; u != "" {
		variants, err := r.controller.GetHLSManifest(ctx, u)
		if err != nil {
			r.emitExtractionEvent("hls_manifest", "failure", personaID, err.Error())
		} else {
			for _, v := range variants {
				out = append(out, descriptorFromHLS(v))
			}
		}
	}

	return out
}

func directDescriptors(sd parse.StreamingData) []StreamDescriptor {
	out := make([]StreamDescriptor, 0, len(sd.Formats)+len(sd.AdaptiveFormats))
	for _, f := range sd.Formats {
		out = append(out, descriptorFromFormat(f, SourceProgressive))
	}
	for _, f := range sd.AdaptiveFormats {
		out = append(out, descriptorFromFormat(f, SourceAdaptive))
	}
	return out
}

func descriptorFromFormat(f parse.Format, source DescriptorSource) StreamDescriptor {
	container, codecs := parse.MimeDetails(f.MimeType)
	audio, video := parse.HasAudioVideo(f.MimeType, codecs)
	if f.Width > 0 || f.Height > 0 {
		video = true
	}
	if f.AudioChannels > 0 {
		audio = true
	}

	var contentLength int64
	if f.ContentLength != "" {
		if n, err := strconv.ParseInt(f.ContentLength, 10, 64); err == nil {
			contentLength = n
		}
	}

	var track *AudioTrack
	if f.AudioTrack != nil {
		track = &AudioTrack{
			Language:  f.AudioTrack.DisplayName,
			ID:        f.AudioTrack.ID,
			IsDefault: f.AudioTrack.AudioIsDefault,
		}
	}

	rawURL := f.URL
	if rawURL == "" && f.SignatureCipher != "" {
		// Some personas (notably web/tvEmbedded) wrap the URL inside
		// signatureCipher alongside an `s`/`sp` signature pair. Signature
		// decryption is not implemented; best-effort extraction of the bare
		// `url` still lets this descriptor reach the HEAD probe, where a
		// still-enciphered URL is rejected with 403 and the persona's
		// contribution is discarded, same as any other signature rejection.
		rawURL = extractCipheredURL(f.SignatureCipher)
	}

	return StreamDescriptor{
		Itag:          f.Itag,
		URL:           rawURL,
		MimeType:      f.MimeType,
		Container:     container,
		Codecs:        codecs,
		Bitrate:       f.Bitrate,
		Width:         f.Width,
		Height:        f.Height,
		FPS:           f.FPS,
		QualityLabel:  f.QualityLabel,
		AudioChannels: f.AudioChannels,
		ContentLength: contentLength,
		Source:        source,
		AudioOnly:     audio && !video,
		VideoOnly:     video && !audio,
		AudioTrack:    track,
	}
}

// extractCipheredURL pulls the `url` sub-parameter out of a signatureCipher
// blob (itself a query-encoded string of url/s/sp).
func extractCipheredURL(cipher string) string {
	values, err := url.ParseQuery(cipher)
	if err != nil {
		return ""
	}
	return values.Get("url")
}

func descriptorFromDASH(rep parse.DASHRepresentation) StreamDescriptor {
	itag, _ := strconv.Atoi(rep.ID)
	var frags []Fragment
	for _, s := range rep.Segments {
		frags = append(frags, Fragment{URL: s})
	}
	return StreamDescriptor{
		Itag:          itag,
		URL:           rep.URL,
		MimeType:      rep.MimeType,
		Container:     rep.Container,
		Codecs:        rep.Codecs,
		Bitrate:       rep.Bitrate,
		Width:         rep.Width,
		Height:        rep.Height,
		FPS:           rep.FPS,
		AudioChannels: audioChannelsFromSampleRate(rep),
		Source:        SourceAdaptive,
		AudioOnly:     rep.HasAudio && !rep.HasVideo,
		VideoOnly:     rep.HasVideo && !rep.HasAudio,
		Fragments:     frags,
	}
}

// audioChannelsFromSampleRate is a conservative stand-in for a channel
// count the DASH MPD doesn't carry explicitly: any audio-only
// representation is assumed stereo, matching the overwhelming majority of
// the platform's adaptive audio representations.
func audioChannelsFromSampleRate(rep parse.DASHRepresentation) int {
	if rep.HasAudio && !rep.HasVideo {
		return 2
	}
	return 0
}

func descriptorFromHLS(v parse.HLSVariant) StreamDescriptor {
	return StreamDescriptor{
		Itag:      v.Itag,
		URL:       v.URL,
		Container: v.Container,
		Codecs:    v.Codecs,
		Bitrate:   v.Bandwidth,
		Width:     v.Width,
		Height:    v.Height,
		FPS:       v.FPS,
		Source:    SourceHLS,
		AudioOnly: v.HasAudio && !v.HasVideo,
		VideoOnly: v.HasVideo && !v.HasAudio,
	}
}

// normalizeDescriptor implements the per-descriptor normalization rules:
// n-descrambling, content-length resolution, variant classification, and
// derived fields. Returns (nil, nil) when the descriptor should be
// silently discarded.
func (r *Resolver) normalizeDescriptor(ctx context.Context, cs *callState, d StreamDescriptor, personaID string) (*StreamInfo, error) {
	if len(d.Codecs) == 0 {
		return nil, &CodecExtractionError{Itag: d.Itag, MimeType: d.MimeType}
	}

	resolvedURL, err := r.descrambleURL(ctx, cs, d.URL)
	if err != nil {
		return nil, err
	}

	contentLength := d.ContentLength
	if contentLength <= 0 && resolvedURL != "" {
		length, _, err := r.transport.ProbeContentLength(ctx, resolvedURL, nil)
		if err == nil {
			contentLength = length
		}
	}
	if contentLength <= 0 {
		return nil, nil
	}

	fps := d.FPS
	if fps <= 0 {
		fps = 24
	}

	quality := parse.QualityFromLabel(d.QualityLabel)
	if quality == parse.QualityUnknown && d.Height > 0 {
		quality = parse.QualityFromHeight(d.Height)
	}

	var kind StreamKind
	switch {
	case d.Source == SourceHLS && d.AudioOnly:
		kind = KindHLSAudio
	case d.Source == SourceHLS && d.VideoOnly:
		kind = KindHLSVideo
	case d.Source == SourceHLS:
		kind = KindHLSMuxed
	case d.Source == SourceProgressive && !d.AudioOnly && !d.VideoOnly:
		kind = KindProgressive
	case d.AudioOnly:
		kind = KindAudioOnly
	default:
		kind = KindVideoOnly
	}

	return &StreamInfo{
		Kind:          kind,
		Itag:          d.Itag,
		URL:           resolvedURL,
		MimeType:      d.MimeType,
		Codecs:        d.Codecs,
		Container:     d.Container,
		Bitrate:       d.Bitrate,
		Width:         d.Width,
		Height:        d.Height,
		FPS:           fps,
		Quality:       quality.String(),
		QualityLabel:  d.QualityLabel,
		AudioChannels: d.AudioChannels,
		ContentLength: contentLength,
		SourcePersona: personaID,
		AudioTrack:    d.AudioTrack,
		Fragments:     d.Fragments,
	}, nil
}

// descrambleURL resolves an `n` query parameter via the cached
// descrambling function, leaving URLs without one untouched.
func (r *Resolver) descrambleURL(ctx context.Context, cs *callState, rawURL string) (string, error) {
	if rawURL == "" {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, nil
	}
	n := u.Query().Get("n")
	if n == "" {
		return rawURL, nil
	}
	plain, err := r.descrambleN(ctx, cs, n)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("n", plain)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r *Resolver) descrambleN(ctx context.Context, cs *callState, ciphertext string) (string, error) {
	if plain, ok := cs.nCache[ciphertext]; ok {
		r.config.Metrics.observeCacheHit()
		return plain, nil
	}
	if err := r.ensureWatchPage(ctx, cs); err != nil {
		return "", err
	}
	if err := r.ensureNFunction(ctx, cs); err != nil {
		return "", err
	}
	out, err := r.scriptEval.RunNFunction(cs.nFuncSource, ciphertext)
	if err != nil {
		if _, ok := err.(*scriptvm.TimeoutError); ok {
			return "", &ScriptTimeoutError{Operation: "n_descramble", BudgetMS: r.config.ScriptBudgetMS}
		}
		return "", fmt.Errorf("ytresolve: n-parameter descrambling failed: %w", err)
	}
	cs.nCache[ciphertext] = out
	return out, nil
}

func (r *Resolver) ensureWatchPage(ctx context.Context, cs *callState) error {
	if cs.watchPageTried {
		return cs.watchPageErr
	}
	cs.watchPageTried = true
	cs.watchPage, cs.watchPageErr = r.controller.GetWatchPage(ctx, string(cs.videoID))
	return cs.watchPageErr
}

func (r *Resolver) ensureNFunction(ctx context.Context, cs *callState) error {
	if cs.nFuncTried {
		return cs.nFuncErr
	}
	cs.nFuncTried = true
	if cs.watchPage == nil || cs.watchPage.PlayerScriptURL == "" {
		cs.nFuncErr = fmt.Errorf("ytresolve: no player script url available for n-function extraction")
		return cs.nFuncErr
	}
	script, err := r.controller.GetPlayerScript(ctx, cs.watchPage.PlayerScriptURL)
	if err != nil {
		cs.nFuncErr = err
		return err
	}
	fnSrc, err := parse.ExtractNFunctionSource(script)
	if err != nil {
		cs.nFuncErr = err
		return err
	}
	cs.nFuncSource = fnSrc
	return nil
}
