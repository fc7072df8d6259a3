// Package pipeline runs a completed utterance through the three response
// stages: transcription, routing, and synthesis.
//
// The whole pipeline shares one deadline. A slow stage eats into the budget
// of the stages after it; when the budget is exhausted the caller gets a
// single timeout error regardless of which stage was running. Synthesis is
// the only stage allowed to degrade: if it fails, the reply is returned
// text-only rather than failing the exchange.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/halcyon-voice/halcyon/internal/observe"
	"github.com/halcyon-voice/halcyon/pkg/provider/router"
	"github.com/halcyon-voice/halcyon/pkg/provider/stt"
	"github.com/halcyon-voice/halcyon/pkg/provider/tts"
)

// DefaultTimeout bounds one full transcribe-route-synthesize run.
const DefaultTimeout = 30 * time.Second

// ReplySampleRate is the sample rate of Reply.Audio in Hz.
const ReplySampleRate = 24000

// Request is one utterance to answer.
type Request struct {
	// SessionID identifies the originating session.
	SessionID string

	// Audio is the recorded utterance as little-endian PCM16 mono at 16 kHz.
	// Ignored when Text is set.
	Audio []byte

	// Text is a pre-transcribed utterance from a text-mode client. When
	// non-empty the transcription stage is skipped.
	Text string

	// Context holds the recent conversation, oldest first.
	Context []router.Turn
}

// Reply is the pipeline's answer to one utterance.
type Reply struct {
	// Transcript is what the user said. Empty when NoSpeech is true.
	Transcript string

	// Text is the assistant's reply.
	Text string

	// Audio is the synthesized reply as little-endian PCM16 mono at 24 kHz.
	// Nil when synthesis is unavailable or failed; the exchange is still
	// valid, just text-only.
	Audio []byte

	// NoSpeech is true when the recording contained no recognizable speech.
	// The other fields are zero; callers drop the exchange silently.
	NoSpeech bool
}

// Responder answers utterances. Implemented by [Pipeline]; the session
// machine depends on this interface so tests can script outcomes.
type Responder interface {
	Respond(ctx context.Context, req Request) (Reply, error)
}

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline)

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithVoice sets the TTS voice used for replies.
func WithVoice(voice tts.VoiceProfile) Option {
	return func(p *Pipeline) { p.voice = voice }
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// Pipeline is the production [Responder]. Safe for concurrent use; one
// instance serves all sessions.
type Pipeline struct {
	sttP    stt.Provider
	routerP router.Provider
	ttsP    tts.Provider
	voice   tts.VoiceProfile
	timeout time.Duration
	metrics *observe.Metrics
	log     *slog.Logger
}

var _ Responder = (*Pipeline)(nil)

// New creates a Pipeline. sttP and routerP are required; ttsP may be
// [tts.Null] for text-only deployments.
func New(sttP stt.Provider, routerP router.Provider, ttsP tts.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{
		sttP:    sttP,
		routerP: routerP,
		ttsP:    ttsP,
		timeout: DefaultTimeout,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Respond implements [Responder]. It runs all three stages under a single
// deadline and records per-stage latency.
func (p *Pipeline) Respond(ctx context.Context, req Request) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "pipeline.respond")
	defer span.End()

	start := time.Now()
	defer func() {
		p.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	}()

	// Stage 1: transcribe (skipped for text-mode input).
	transcript := strings.TrimSpace(req.Text)
	if transcript == "" {
		sttStart := time.Now()
		res, err := p.sttP.Transcribe(ctx, req.Audio)
		p.metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
		if err != nil {
			p.metrics.RecordPipelineError(ctx, "stt")
			return Reply{}, fmt.Errorf("pipeline: transcribe: %w", err)
		}
		transcript = strings.TrimSpace(res.Text)
	}

	// An empty transcript is not a failure. The user coughed or the room
	// was noisy; the session returns to passive without fanfare.
	if transcript == "" {
		return Reply{NoSpeech: true}, nil
	}

	// Stage 2: route.
	routeStart := time.Now()
	resp, err := p.routerP.Route(ctx, router.Request{
		SessionID: req.SessionID,
		Text:      transcript,
		Context:   req.Context,
	})
	p.metrics.RouteDuration.Record(ctx, time.Since(routeStart).Seconds())
	if err != nil {
		p.metrics.RecordPipelineError(ctx, "route")
		return Reply{}, fmt.Errorf("pipeline: route: %w", err)
	}

	reply := Reply{Transcript: transcript, Text: resp.Text}

	// Stage 3: synthesize. Failure degrades to text-only instead of losing
	// the exchange.
	ttsStart := time.Now()
	audioData, err := p.ttsP.Synthesize(ctx, resp.Text, p.voice)
	p.metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds(),
		metric.WithAttributes(observe.Attr("degraded", fmt.Sprintf("%t", err != nil))))
	if err != nil {
		if ctx.Err() != nil {
			p.metrics.RecordPipelineError(ctx, "tts")
			return Reply{}, fmt.Errorf("pipeline: synthesize: %w", err)
		}
		p.metrics.RecordPipelineError(ctx, "tts")
		p.log.Warn("synthesis failed, delivering text-only response",
			"session_id", req.SessionID, "error", err)
	} else {
		reply.Audio = audioData
	}

	return reply, nil
}
