package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// Recognition errors. "no speech" timeouts are transient and ignored;
	// everything else is surfaced to the user.
	ReasonRecognitionNoSpeech ReasonCode = "recognition_no_speech"
	ReasonRecognizerConnect   ReasonCode = "recognizer_connect"
	ReasonRecognizerSend      ReasonCode = "recognizer_send"
	ReasonRecognition         ReasonCode = "recognition"

	// Assistant stream errors abort the turn; the user can re-speak.
	ReasonStreamConnect   ReasonCode = "stream_connect"
	ReasonStream          ReasonCode = "stream"
	ReasonStreamRateLimit ReasonCode = "stream_rate_limit"

	// Synthesis and playback errors fall back to a silent turn completion.
	ReasonSynthConnect ReasonCode = "synth_connect"
	ReasonSynthesis    ReasonCode = "synthesis"
	ReasonPlayback     ReasonCode = "playback"

	// A frame tagged for an already-abandoned turn. Logged, never surfaced.
	ReasonStaleTurn ReasonCode = "stale_turn"
)

// Transient reports whether err represents a condition that should be ignored
// rather than surfaced, such as a recognizer timing out on silence.
func Transient(err error) bool {
	return HasReason(err, ReasonRecognitionNoSpeech)
}
