package parse

import "testing"

func TestExtractInlinePlayerResponse(t *testing.T) {
	body := []byte(`<html><script>var ytInitialPlayerResponse = {"playabilityStatus":{"status":"OK"},"videoDetails":{"videoId":"abc123XYZ_-","title":"clip"}};</script></html>`)
	resp, err := ExtractInlinePlayerResponse(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.PlayabilityStatus.IsOK() {
		t.Fatalf("expected OK playability, got %q", resp.PlayabilityStatus.Status)
	}
	if resp.VideoDetails.VideoID != "abc123XYZ_-" {
		t.Fatalf("got videoId %q", resp.VideoDetails.VideoID)
	}
}

func TestExtractInlinePlayerResponse_Missing(t *testing.T) {
	if _, err := ExtractInlinePlayerResponse([]byte(`<html></html>`)); err == nil {
		t.Fatal("expected error for missing inline response")
	}
}

func TestExtractBasePlayerScriptURL(t *testing.T) {
	body := []byte(`{"jsUrl":"\/s\/player\/abcdef01\/player_ias.vflset\/en_US\/base.js"}`)
	got, err := ExtractBasePlayerScriptURL(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://www.youtube.com/s/player/abcdef01/player_ias.vflset/en_US/base.js"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExtractFunctionBody(t *testing.T) {
	js := []byte(`var x=1;foo=function(a){return a+1;};var y=2;`)
	got, err := extractFunctionBody(js, "foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `function(a){return a+1;}` {
		t.Fatalf("got %q", got)
	}
}

func TestParseDASHManifest(t *testing.T) {
	const mpd = `<?xml version="1.0"?>
<MPD>
  <Period>
    <AdaptationSet mimeType="video/mp4" codecs="avc1.4d401f">
      <Representation id="137" bandwidth="2000000" width="1920" height="1080" frameRate="30">
        <BaseURL>https://r.example.com/videoplayback?id=137</BaseURL>
      </Representation>
    </AdaptationSet>
    <AdaptationSet mimeType="audio/mp4" codecs="mp4a.40.2">
      <Representation id="140" bandwidth="128000" audioSamplingRate="44100">
        <BaseURL>https://r.example.com/videoplayback?id=140</BaseURL>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`
	reps, err := ParseDASHManifest(mpd, "https://r.example.com/manifest.mpd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reps) != 2 {
		t.Fatalf("got %d representations, want 2", len(reps))
	}
	if !reps[0].HasVideo || reps[0].Width != 1920 {
		t.Fatalf("expected video representation, got %+v", reps[0])
	}
	if !reps[1].HasAudio || reps[1].AudioSampleRate != 44100 {
		t.Fatalf("expected audio representation, got %+v", reps[1])
	}
}

func TestQualityFromLabel(t *testing.T) {
	cases := map[string]Quality{
		"1080p60": QualityFullHD,
		"720p":    QualityHD,
		"144p":    QualityLow,
		"":        QualityUnknown,
	}
	for label, want := range cases {
		if got := QualityFromLabel(label); got != want {
			t.Errorf("QualityFromLabel(%q) = %v, want %v", label, got, want)
		}
	}
}
