package ytresolve

// emitExtractionEvent fans one lifecycle event out to the structured
// logger and the optional caller-supplied callback, logging at Warn or
// Debug depending on phase.
func (r *Resolver) emitExtractionEvent(stage, phase, persona, detail string) {
	if phase == "failure" {
		r.config.Logger.Warn().
			Str("stage", stage).
			Str("persona", persona).
			Str("detail", detail).
			Msg("persona attempt failed")
	} else {
		r.config.Logger.Debug().
			Str("stage", stage).
			Str("phase", phase).
			Str("persona", persona).
			Msg("extraction event")
	}
	if r.config.OnExtractionEvent != nil {
		r.config.OnExtractionEvent(ExtractionEvent{
			Stage:   stage,
			Phase:   phase,
			Persona: persona,
			Detail:  detail,
		})
	}
}

// logFatalOutcome records a call-fatal resolution failure at Error level,
// as opposed to the persona-scoped warnings emitted along the way, and
// returns err for use at the call's exit points.
func (r *Resolver) logFatalOutcome(videoID VideoID, err error) error {
	r.config.Logger.Error().
		Str("video_id", string(videoID)).
		Err(err).
		Msg("manifest resolution failed")
	return err
}
