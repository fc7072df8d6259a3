// Package wakeword defines the Detector interface for wake-word scoring
// backends.
//
// A wake-word detector wraps a keyword-spotting model (openWakeWord, Porcupine,
// a custom ONNX model) and scores every audio frame against its configured
// keywords. Scoring is synchronous and cheap by design — the session state
// machine calls it once per frame, in every state, because a wake word is the
// highest-priority signal and may interrupt an in-progress recording.
//
// The detector is an optional capability: deployments without a wake-word
// model use [Null], which never detects anything, so the state machine never
// branches on the presence of the dependency.
package wakeword

// Detector scores audio frames against the configured wake keywords.
//
// Implementations must be safe for concurrent use across sessions; a detector
// that keeps per-stream state should document that callers need one instance
// per stream.
type Detector interface {
	// Score returns a confidence in [0, 1] per configured keyword for one
	// frame of little-endian PCM16 mono audio at the pipeline sample rate.
	//
	// A non-nil error means the frame could not be scored; callers treat it
	// as "no detection this frame" and must not abort the frame loop.
	Score(frame []byte) (map[string]float64, error)

	// Keywords lists the keyword names this detector reports scores for.
	Keywords() []string
}

// Null is a Detector that never detects anything. It stands in when no
// wake-word model is configured so callers can invoke the interface
// unconditionally.
type Null struct{}

// Compile-time assertion that Null satisfies Detector.
var _ Detector = Null{}

// Score always returns an empty score map.
func (Null) Score([]byte) (map[string]float64, error) {
	return map[string]float64{}, nil
}

// Keywords returns nil: a null detector has no keywords.
func (Null) Keywords() []string { return nil }

// Best returns the highest-scoring keyword and its confidence from a score
// map. ok is false when scores is empty.
func Best(scores map[string]float64) (keyword string, confidence float64, ok bool) {
	for k, v := range scores {
		if !ok || v > confidence {
			keyword, confidence, ok = k, v, true
		}
	}
	return keyword, confidence, ok
}
