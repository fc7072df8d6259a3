// Package gateway serves the websocket endpoint that connects clients to
// their voice sessions.
//
// Each websocket connection owns one session state machine. The client
// streams audio frames (PCM16 or Opus) uplink; the gateway normalizes them to
// the 16 kHz mono pipeline format, feeds the machine, and pushes state
// changes, cues, and responses back downlink. The same HTTP server exposes
// the health probes and the Prometheus metrics endpoint.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/halcyon-voice/halcyon/internal/config"
	"github.com/halcyon-voice/halcyon/internal/health"
	"github.com/halcyon-voice/halcyon/internal/observe"
	"github.com/halcyon-voice/halcyon/internal/pipeline"
	"github.com/halcyon-voice/halcyon/internal/session"
	"github.com/halcyon-voice/halcyon/pkg/audio"
	"github.com/halcyon-voice/halcyon/pkg/audio/opus"
	"github.com/halcyon-voice/halcyon/pkg/memory"
	"github.com/halcyon-voice/halcyon/pkg/provider/vad"
	"github.com/halcyon-voice/halcyon/pkg/provider/wakeword"
	"github.com/halcyon-voice/halcyon/pkg/provider/wakeword/phonetic"
)

const (
	// handshakeTimeout bounds the wait for the session_start message.
	handshakeTimeout = 10 * time.Second

	// shutdownTimeout bounds graceful HTTP shutdown.
	shutdownTimeout = 10 * time.Second
)

// Deps are the collaborators the gateway hands to each session.
type Deps struct {
	// Wake scores audio frames for the wake phrase. Defaults to
	// [wakeword.Null].
	Wake wakeword.Detector

	// VAD creates one speech-detection session per connection. Required.
	VAD vad.Engine

	// Responder answers completed utterances. Required.
	Responder pipeline.Responder

	// Store, when non-nil, persists turns and seeds resumed sessions.
	Store memory.Store

	// Matcher gates typed input on the wake phrase while the session is
	// passive. Nil disables the gate.
	Matcher *phonetic.Matcher

	// Checkers are added to the /readyz endpoint.
	Checkers []health.Checker

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

// Gateway is the websocket front end. Create with [New], serve with [Run].
type Gateway struct {
	server   config.ServerConfig
	deps     Deps
	sessions *SessionManager
	log      *slog.Logger

	mu   sync.RWMutex
	sess config.SessionConfig
}

// New creates a Gateway.
func New(server config.ServerConfig, sess config.SessionConfig, deps Deps) (*Gateway, error) {
	if deps.VAD == nil || deps.Responder == nil {
		return nil, errors.New("gateway: VAD and Responder are required")
	}
	if deps.Wake == nil {
		deps.Wake = wakeword.Null{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Gateway{
		server:   server,
		sess:     sess,
		deps:     deps,
		sessions: NewSessionManager(deps.Metrics),
		log:      deps.Logger,
	}, nil
}

// Sessions exposes the connected-session registry.
func (g *Gateway) Sessions() *SessionManager { return g.sessions }

// UpdateSession replaces the thresholds used for new connections, e.g. after
// a config reload. Sessions already running keep the thresholds they started
// with.
func (g *Gateway) UpdateSession(sess config.SessionConfig) {
	g.mu.Lock()
	g.sess = sess
	g.mu.Unlock()
}

func (g *Gateway) sessionConfig() config.SessionConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sess
}

// Handler builds the HTTP routing table: /ws, the health probes, and
// /metrics, all wrapped in the observability middleware.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", g.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(g.deps.Checkers...).Register(mux)
	return observe.Middleware(g.deps.Metrics)(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    g.server.ListenAddr,
		Handler: g.Handler(),
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g.log.Info("gateway listening",
			"addr", g.server.ListenAddr, "tls", g.server.TLS != nil)
		var err error
		if g.server.TLS != nil {
			err = srv.ListenAndServeTLS(g.server.TLS.CertFile, g.server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway: serve: %w", err)
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

// ─── Connection handling ──────────────────────────────────────────────────────

// handleWS upgrades the connection, performs the session_start handshake, and
// runs the session until either side disconnects.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session ended")

	ctx := r.Context()

	start, err := g.readHandshake(ctx, conn)
	if err != nil {
		g.log.Warn("session handshake failed", "remote", r.RemoteAddr, "error", err)
		conn.Close(websocket.StatusPolicyViolation, "bad handshake")
		return
	}

	up, enc, err := newUplink(start)
	if err != nil {
		g.log.Warn("codec negotiation failed", "remote", r.RemoteAddr, "error", err)
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}

	sessionID := start.SessionID
	resumed := sessionID != ""
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	log := g.log.With("session_id", sessionID, "remote", r.RemoteAddr)
	sess := g.sessionConfig()

	vadSess, err := g.deps.VAD.NewSession(vad.Config{
		SampleRate:     audio.SampleRate,
		FrameSizeMs:    int(audio.VADFrameDuration / time.Millisecond),
		Aggressiveness: sess.VADAggressiveness,
	})
	if err != nil {
		log.Error("vad session creation failed", "error", err)
		conn.Close(websocket.StatusInternalError, "vad unavailable")
		return
	}
	defer vadSess.Close()

	sink := newWSSink(conn, log, enc)

	machine, err := session.New(session.Config{
		SessionID:      sessionID,
		WakeThreshold:  sess.WakeThreshold,
		SilenceTimeout: sess.SilenceTimeout.Std(),
		FollowUpWindow: sess.FollowUpWindow.Std(),
		ContextTurns:   sess.ContextTurns,
	}, session.Deps{
		Wake:      g.deps.Wake,
		VAD:       vadSess,
		Responder: g.deps.Responder,
		Sink:      sink,
		Store:     g.deps.Store,
		Metrics:   g.deps.Metrics,
		Logger:    log,
	})
	if err != nil {
		log.Error("session creation failed", "error", err)
		conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}

	if resumed && g.deps.Store != nil {
		turns, err := g.deps.Store.RecentTurns(ctx, sessionID, sess.ContextTurns)
		if err != nil {
			log.Warn("failed to load session history", "error", err)
		} else {
			machine.SeedHistory(turns)
			log.Info("resumed session", "turns", len(turns))
		}
	}

	info := SessionInfo{
		SessionID:  sessionID,
		StartedAt:  time.Now(),
		RemoteAddr: r.RemoteAddr,
		Codec:      up.codec,
	}
	if err := g.sessions.Add(ctx, info); err != nil {
		log.Warn("session rejected", "error", err)
		sink.sendError(err.Error())
		conn.Close(websocket.StatusPolicyViolation, "session already connected")
		return
	}
	defer g.sessions.Remove(context.Background(), sessionID)

	sink.sessionStarted(sessionID)
	log.Info("session connected", "codec", up.codec, "resumed", resumed)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return machine.Run(ctx) })
	eg.Go(func() error { return g.readLoop(ctx, conn, machine, up) })

	err = eg.Wait()
	switch {
	case err == nil || errors.Is(err, context.Canceled):
		log.Info("session disconnected")
		conn.Close(websocket.StatusNormalClosure, "bye")
	default:
		log.Warn("session ended with error", "error", err)
	}
}

// readHandshake waits for the client's session_start message.
func (g *Gateway) readHandshake(ctx context.Context, conn *websocket.Conn) (clientMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		return clientMessage{}, fmt.Errorf("read: %w", err)
	}
	if typ != websocket.MessageText {
		return clientMessage{}, errors.New("expected a text message")
	}
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return clientMessage{}, fmt.Errorf("parse: %w", err)
	}
	if msg.Type != typeSessionStart {
		return clientMessage{}, fmt.Errorf("expected %s, got %q", typeSessionStart, msg.Type)
	}
	return msg, nil
}

// readLoop pumps client messages into the machine until the connection or
// context ends. A normal close returns nil; the errgroup then cancels the
// machine.
func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, m *session.Machine, up *uplink) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gateway: read: %w", err)
		}

		switch typ {
		case websocket.MessageBinary:
			frame, err := up.toPipelineFormat(data)
			if err != nil {
				g.log.Debug("dropping undecodable frame", "error", err)
				continue
			}
			if err := m.Ingest(ctx, frame); err != nil {
				return err
			}

		case websocket.MessageText:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				g.log.Debug("dropping unparseable message", "error", err)
				continue
			}
			if msg.Type != typeTextInput {
				g.log.Debug("dropping unexpected message", "type", msg.Type)
				continue
			}
			text, ok := g.gateText(m, msg.Text)
			if !ok {
				continue
			}
			if err := m.IngestText(ctx, text); err != nil {
				return err
			}
		}
	}
}

// gateText applies the wake-phrase gate to typed input. While the session is
// passive the text must begin with a wake phrase, which is stripped before
// submission; in any other state the assistant is already engaged.
func (g *Gateway) gateText(m *session.Machine, text string) (string, bool) {
	if text == "" {
		return "", false
	}
	if g.deps.Matcher == nil || m.State() != session.StatePassive {
		return text, true
	}
	rest, score, matched := g.deps.Matcher.Match(text)
	if !matched {
		g.log.Debug("typed input without wake phrase, ignoring")
		return "", false
	}
	if rest == "" {
		// A bare wake phrase with nothing after it is not an utterance.
		return "", false
	}
	g.log.Debug("typed wake phrase matched", "score", score)
	return rest, true
}

// ─── Uplink format conversion ─────────────────────────────────────────────────

// uplink converts one client's audio frames to the 16 kHz mono PCM16 format
// the pipeline expects.
type uplink struct {
	codec      string
	dec        *opus.Decoder
	channels   int
	sampleRate int
}

// newUplink negotiates the codec from the handshake. For opus clients it also
// returns the downlink encoder.
func newUplink(start clientMessage) (*uplink, *opus.Encoder, error) {
	codec := start.Codec
	if codec == "" {
		codec = CodecPCM16
	}
	channels := start.Channels
	if channels == 0 {
		channels = 1
	}
	if channels != 1 && channels != 2 {
		return nil, nil, fmt.Errorf("gateway: unsupported channel count %d", channels)
	}

	switch codec {
	case CodecPCM16:
		rate := start.SampleRate
		if rate == 0 {
			rate = audio.SampleRate
		}
		if rate < 8000 || rate > 48000 {
			return nil, nil, fmt.Errorf("gateway: unsupported sample rate %d", rate)
		}
		return &uplink{codec: codec, channels: channels, sampleRate: rate}, nil, nil

	case CodecOpus:
		dec, err := opus.NewDecoder(channels)
		if err != nil {
			return nil, nil, fmt.Errorf("gateway: %w", err)
		}
		enc, err := opus.NewEncoder(1)
		if err != nil {
			return nil, nil, fmt.Errorf("gateway: %w", err)
		}
		return &uplink{codec: codec, dec: dec, channels: channels, sampleRate: opusWireRate}, enc, nil

	default:
		return nil, nil, fmt.Errorf("gateway: unsupported codec %q", codec)
	}
}

// toPipelineFormat decodes, downmixes, and resamples one uplink frame.
func (u *uplink) toPipelineFormat(data []byte) ([]byte, error) {
	pcm := data
	if u.dec != nil {
		decoded, err := u.dec.Decode(data)
		if err != nil {
			return nil, err
		}
		pcm = decoded
	}
	if u.channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	if u.sampleRate != audio.SampleRate {
		pcm = audio.ResampleMono16(pcm, u.sampleRate, audio.SampleRate)
	}
	return pcm, nil
}
