package gateway

// Wire protocol for the /ws endpoint.
//
// Control messages are JSON text frames; audio travels as binary frames, one
// codec frame per message. The client opens a session with "session_start"
// and then streams audio (or sends "text_input"). The server pushes state
// changes, audio cues, and responses as they happen.

// Client → server message types.
const (
	typeSessionStart = "session_start"
	typeTextInput    = "text_input"
)

// Server → client message types.
const (
	typeSessionStarted = "session_started"
	typeState          = "state"
	typeCue            = "cue"
	typeResponse       = "response"
	typeResponseEnd    = "response_end"
	typeError          = "error"
)

// Supported uplink codecs.
const (
	CodecPCM16 = "pcm16"
	CodecOpus  = "opus"
)

// Cue identifiers carried by "cue" messages.
const (
	cueActivation  = "activation"
	cueAcknowledge = "acknowledgement"
	cueError       = "error"
)

// clientMessage is any JSON message a client may send.
type clientMessage struct {
	Type string `json:"type"`

	// session_start fields. SessionID resumes a previous session's
	// conversation context; when empty the server assigns a fresh ID.
	SessionID  string `json:"session_id,omitempty"`
	Codec      string `json:"codec,omitempty"`       // default "pcm16"
	SampleRate int    `json:"sample_rate,omitempty"` // default 16000; opus is always 48000
	Channels   int    `json:"channels,omitempty"`    // default 1

	// text_input field.
	Text string `json:"text,omitempty"`
}

// serverMessage is any JSON message the server may send.
type serverMessage struct {
	Type string `json:"type"`

	// session_started.
	SessionID string `json:"session_id,omitempty"`

	// state.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// cue.
	Cue string `json:"cue,omitempty"`

	// response. Audio is base64 PCM16 mono at SampleRate; omitted for
	// text-only replies and for opus downlinks, where the audio follows as
	// binary frames terminated by a response_end message.
	Transcript string `json:"transcript,omitempty"`
	Text       string `json:"text,omitempty"`
	Audio      []byte `json:"audio,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`

	// error.
	Message string `json:"message,omitempty"`
}
