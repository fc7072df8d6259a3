package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/halcyon-voice/halcyon/internal/pipeline"
	"github.com/halcyon-voice/halcyon/internal/session"
	"github.com/halcyon-voice/halcyon/pkg/audio"
	"github.com/halcyon-voice/halcyon/pkg/audio/opus"
)

// writeTimeout bounds a single websocket write. A client that cannot drain
// events in this time is abandoned rather than allowed to stall the session
// loop.
const writeTimeout = 5 * time.Second

// downlinkFrameBytes is one 20 ms mono PCM16 frame at the opus wire rate.
var downlinkFrameBytes = audio.BytesPerFrame(opusWireRate, 20*time.Millisecond)

// wsSink delivers session events to the websocket client. Events arrive from
// the machine's run goroutine; the mutex only guards against the handshake
// writes racing the first event.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
	log  *slog.Logger

	// enc, when non-nil, re-encodes reply audio as opus binary frames
	// instead of inlining PCM into the response message.
	enc *opus.Encoder
}

var _ session.Sink = (*wsSink)(nil)

func newWSSink(conn *websocket.Conn, log *slog.Logger, enc *opus.Encoder) *wsSink {
	return &wsSink{conn: conn, log: log, enc: enc}
}

// StateChanged implements [session.Sink].
func (s *wsSink) StateChanged(from, to session.State) {
	s.send(serverMessage{Type: typeState, From: from.String(), To: to.String()})
}

// ActivationCue implements [session.Sink].
func (s *wsSink) ActivationCue() {
	s.send(serverMessage{Type: typeCue, Cue: cueActivation})
}

// AcknowledgementCue implements [session.Sink].
func (s *wsSink) AcknowledgementCue() {
	s.send(serverMessage{Type: typeCue, Cue: cueAcknowledge})
}

// ErrorCue implements [session.Sink].
func (s *wsSink) ErrorCue() {
	s.send(serverMessage{Type: typeCue, Cue: cueError})
}

// Response implements [session.Sink].
func (s *wsSink) Response(reply pipeline.Reply) {
	msg := serverMessage{
		Type:       typeResponse,
		Transcript: reply.Transcript,
		Text:       reply.Text,
	}
	if len(reply.Audio) == 0 {
		s.send(msg)
		return
	}
	if s.enc == nil {
		msg.Audio = reply.Audio
		msg.SampleRate = pipeline.ReplySampleRate
		s.send(msg)
		return
	}

	// Opus downlink: response metadata first, then the audio as binary
	// packets, then an end marker.
	msg.SampleRate = opusWireRate
	s.send(msg)
	s.sendOpusAudio(reply.Audio)
	s.send(serverMessage{Type: typeResponseEnd})
}

// sendError reports a protocol or server error to the client.
func (s *wsSink) sendError(message string) {
	s.send(serverMessage{Type: typeError, Message: message})
}

// sessionStarted completes the handshake.
func (s *wsSink) sessionStarted(sessionID string) {
	s.send(serverMessage{Type: typeSessionStarted, SessionID: sessionID})
}

const opusWireRate = 48000

// sendOpusAudio resamples the 24 kHz reply to the opus wire rate, splits it
// into 20 ms frames (zero-padding the tail), and writes one packet per frame.
func (s *wsSink) sendOpusAudio(pcm []byte) {
	up := audio.ResampleMono16(pcm, pipeline.ReplySampleRate, opusWireRate)
	for off := 0; off < len(up); off += downlinkFrameBytes {
		frame := make([]byte, downlinkFrameBytes)
		copy(frame, up[off:min(off+downlinkFrameBytes, len(up))])

		packet, err := s.enc.Encode(frame)
		if err != nil {
			s.log.Warn("opus encode failed, truncating reply audio", "error", err)
			return
		}
		if err := s.writeBinary(packet); err != nil {
			s.log.Debug("reply audio write failed", "error", err)
			return
		}
	}
}

func (s *wsSink) send(msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("marshal server message", "type", msg.Type, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.log.Debug("event write failed", "type", msg.Type, "error", err)
	}
}

func (s *wsSink) writeBinary(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageBinary, data)
}
